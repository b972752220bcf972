package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/desertthunder/tdx/internal/tasks"
)

func TestPalette(t *testing.T) {
	p := DefaultPalette

	tc := []struct {
		name string
		got  string
		want string
	}{
		{"ok", p.OK("done"), "✓ done"},
		{"err", p.Err("boom"), "✗ boom"},
		{"warn", p.Warn("careful"), "⚠ careful"},
		{"title", p.Title("tdx"), "tdx"},
	}

	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			if !strings.Contains(c.got, c.want) {
				t.Errorf("expected %q in %q", c.want, c.got)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	p := DefaultPalette

	line := p.Progress(tasks.ProgressUpdate{Phase: tasks.Resolve, Step: 2, Total: 4, Message: "Resolving stream for Song"})
	for _, want := range []string{"[2/4]", "resolve", "Resolving stream for Song"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}

	failed := p.Progress(tasks.ProgressUpdate{Phase: tasks.Failed, Step: 1, Total: 1, Message: "x", Data: errors.New("boom")})
	if !strings.Contains(failed, "[1/1]") || !strings.Contains(failed, "x") {
		t.Errorf("unexpected failed line %q", failed)
	}
}

type fakeSearcher struct {
	tracks []models.TrackDescriptor
	err    error
}

func (f *fakeSearcher) SearchTracks(ctx context.Context, query string, limit int) ([]models.TrackDescriptor, error) {
	return f.tracks, f.err
}

type fakeFetcher struct {
	mu   sync.Mutex
	reqs []tasks.Request
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, req tasks.Request, progress chan<- tasks.ProgressUpdate) (*tasks.FetchResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	progress <- tasks.ProgressUpdate{Phase: tasks.Lookup, Step: 1, Total: 4, Message: "Looking up " + req.String()}
	if f.err != nil {
		return nil, f.err
	}
	progress <- tasks.ProgressUpdate{Phase: tasks.Download, Step: 3, Total: 4, Message: "Downloading Song"}

	track := models.Track{ID: req.TrackID, Title: "Song", Artist: "Artist", Duration: 185 * time.Second}
	return &tasks.FetchResult{Request: req, Track: track, Path: "/cache/" + req.TrackID + ".opus", Size: 2048}, nil
}

func searchMatches() []models.TrackDescriptor {
	return []models.TrackDescriptor{
		{ID: 101, Title: "Song", Duration: 185, AllowStreaming: true, Artists: []models.ArtistRef{{Name: "Artist"}, {Name: "Guest"}}},
		{ID: 102, Title: "Song (Live)", Duration: 200, Artists: []models.ArtistRef{{Name: "Artist"}}},
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// searchFor types query, submits it and delivers the search results.
func searchFor(t *testing.T, m *Model, query string) {
	t.Helper()
	m.Update(keyMsg(query))
	_, cmd := m.Update(keyMsg("enter"))
	if cmd == nil {
		t.Fatal("expected a search command")
	}
	m.Update(cmd())
}

// runFetch feeds progress messages back into the model until the fetch completes.
func runFetch(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for range 10 {
		if cmd == nil {
			t.Fatal("fetch ended without completing")
		}
		msg := cmd()
		_, cmd = m.Update(msg)
		if _, ok := msg.(fetchCompleteMsg); ok {
			return
		}
	}
	t.Fatal("fetch did not complete")
}

func TestModel(t *testing.T) {
	newModel := func(s Searcher, f Fetcher) *Model {
		m := NewModel(t.Context(), s, f, 5)
		m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
		return m
	}

	t.Run("search, pick and fetch", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		m := newModel(&fakeSearcher{tracks: searchMatches()}, fetcher)

		if m.Init() == nil {
			t.Error("expected Init to start the cursor")
		}
		searchFor(t, m, "song")

		if m.State() != ResultsView {
			t.Fatalf("expected results view, got %d", m.State())
		}
		if n := len(m.results.Items()); n != 2 {
			t.Fatalf("expected 2 items, got %d", n)
		}
		if !strings.Contains(m.View(), "Song") {
			t.Errorf("expected matches in view, got %q", m.View())
		}

		_, cmd := m.Update(keyMsg("enter"))
		if m.State() != FetchView {
			t.Fatalf("expected fetch view, got %d", m.State())
		}
		runFetch(t, m, cmd)

		if m.State() != ResultView {
			t.Fatalf("expected result view, got %d", m.State())
		}
		res, err := m.Result()
		if err != nil || res.Path != "/cache/101.opus" {
			t.Errorf("unexpected result %+v, %v", res, err)
		}
		if len(m.progress) != 2 {
			t.Errorf("expected 2 progress lines, got %d", len(m.progress))
		}
		if view := m.View(); !strings.Contains(view, "/cache/101.opus") || !strings.Contains(view, "downloaded") {
			t.Errorf("expected path in result view, got %q", view)
		}
		if len(fetcher.reqs) != 1 || fetcher.reqs[0].TrackID != "101" {
			t.Errorf("expected a fetch by track id, got %v", fetcher.reqs)
		}
	})

	t.Run("no matches stays on search", func(t *testing.T) {
		m := newModel(&fakeSearcher{}, &fakeFetcher{})
		searchFor(t, m, "nothing")

		if m.State() != SearchView {
			t.Errorf("expected search view, got %d", m.State())
		}
		if !errors.Is(m.err, shared.ErrTrackNotFound) || !strings.Contains(m.View(), "no matches") {
			t.Errorf("expected not found notice, got %v", m.err)
		}
	})

	t.Run("search error is shown", func(t *testing.T) {
		m := newModel(&fakeSearcher{err: shared.ErrAuth}, &fakeFetcher{})
		searchFor(t, m, "song")

		if m.State() != SearchView || !errors.Is(m.err, shared.ErrAuth) {
			t.Errorf("expected auth error on search view, got %d %v", m.State(), m.err)
		}
	})

	t.Run("empty query does nothing", func(t *testing.T) {
		m := newModel(&fakeSearcher{}, &fakeFetcher{})
		if _, cmd := m.Update(keyMsg("enter")); cmd != nil {
			t.Error("expected no command for an empty query")
		}
	})

	t.Run("esc returns to search", func(t *testing.T) {
		m := newModel(&fakeSearcher{tracks: searchMatches()}, &fakeFetcher{})
		searchFor(t, m, "song")

		m.Update(keyMsg("esc"))
		if m.State() != SearchView {
			t.Errorf("expected search view, got %d", m.State())
		}
	})

	t.Run("failed fetch and restart", func(t *testing.T) {
		m := newModel(&fakeSearcher{tracks: searchMatches()}, &fakeFetcher{err: shared.ErrNotAvailable})
		searchFor(t, m, "song")

		_, cmd := m.Update(keyMsg("enter"))
		runFetch(t, m, cmd)

		if _, err := m.Result(); !errors.Is(err, shared.ErrNotAvailable) {
			t.Errorf("expected ErrNotAvailable, got %v", err)
		}
		if !strings.Contains(m.View(), "Fetch failed") {
			t.Errorf("expected failure in view, got %q", m.View())
		}

		m.Update(keyMsg("r"))
		if m.State() != SearchView || m.input.Value() != "" || m.err != nil {
			t.Errorf("expected a fresh search, got view %d value %q err %v", m.State(), m.input.Value(), m.err)
		}
	})
}

func TestTrackItem(t *testing.T) {
	items := trackItems(searchMatches())

	first := items[0].(trackItem)
	if first.Title() != "Song" || first.Description() != "Artist ft. Guest • 03:05" {
		t.Errorf("unexpected item %q / %q", first.Title(), first.Description())
	}
	if first.FilterValue() != "Song Artist" {
		t.Errorf("unexpected filter value %q", first.FilterValue())
	}

	second := items[1].(trackItem)
	if !strings.HasSuffix(second.Title(), "[unavailable]") {
		t.Errorf("expected unavailable marker, got %q", second.Title())
	}
}
