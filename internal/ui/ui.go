package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tdx/internal/formatter"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/desertthunder/tdx/internal/tasks"
	"github.com/dustin/go-humanize"
)

// ViewState represents the current view in the picker.
type ViewState int

const (
	SearchView ViewState = iota
	ResultsView
	FetchView
	ResultView
)

// Searcher finds candidate tracks for a query.
type Searcher interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]models.TrackDescriptor, error)
}

// Fetcher makes one track present in the cache.
type Fetcher interface {
	Fetch(ctx context.Context, req tasks.Request, progress chan<- tasks.ProgressUpdate) (*tasks.FetchResult, error)
}

// Model is the interactive picker: search, choose a match, fetch it into the cache.
type Model struct {
	ctx      context.Context
	view     ViewState
	searcher Searcher
	fetcher  Fetcher
	limit    int
	palette  *Palette
	width    int
	height   int

	input    textinput.Model
	results  list.Model
	selected models.TrackDescriptor

	progressChan chan tasks.ProgressUpdate
	doneChan     chan fetchCompleteMsg
	progress     []tasks.ProgressUpdate
	result       *tasks.FetchResult
	err          error

	help help.Model
	keys keyMap
}

// NewModel creates a picker that searches with searcher and fetches with fetcher. limit caps the
// number of matches shown.
func NewModel(ctx context.Context, searcher Searcher, fetcher Fetcher, limit int) *Model {
	input := textinput.New()
	input.Placeholder = "artist, title or both"
	input.CharLimit = 200
	input.Focus()

	results := list.New(nil, list.NewDefaultDelegate(), 0, 0)

	return &Model{
		ctx:      ctx,
		view:     SearchView,
		searcher: searcher,
		fetcher:  fetcher,
		limit:    limit,
		palette:  DefaultPalette,
		input:    input,
		results:  results,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// State returns the current view.
func (m *Model) State() ViewState { return m.view }

// Result returns the outcome of the last fetch, if one completed.
func (m *Model) Result() (*tasks.FetchResult, error) { return m.result, m.err }

// Init starts the cursor blinking in the search box.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.results.SetSize(max(msg.Width-4, 0), max(msg.Height-6, 0))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case SearchView:
			return m.handleSearchKeys(msg)
		case ResultsView:
			return m.handleResultsKeys(msg)
		case FetchView:
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case searchResultsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if len(msg.tracks) == 0 {
			m.err = fmt.Errorf("%w: no matches for %q", shared.ErrTrackNotFound, msg.query)
			return m, nil
		}
		m.results.Title = fmt.Sprintf("Results for %q", msg.query)
		m.view = ResultsView
		m.input.Blur()
		return m, m.results.SetItems(trackItems(msg.tracks))

	case progressUpdateMsg:
		m.progress = append(m.progress, tasks.ProgressUpdate(msg))
		return m, m.waitForProgress()

	case fetchCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.view = ResultView
		m.progressChan, m.doneChan = nil, nil
		return m, nil
	}

	return m.updateInputs(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case SearchView:
		return m.renderSearch()
	case ResultsView:
		return m.renderResults()
	case FetchView:
		return m.renderFetch()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		query := strings.TrimSpace(m.input.Value())
		if query == "" {
			return m, nil
		}
		m.err = nil
		return m, m.search(query)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleResultsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.results.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.results, cmd = m.results.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = SearchView
		m.input.Focus()
		return m, nil
	case "enter":
		if item, ok := m.results.SelectedItem().(trackItem); ok {
			m.view = FetchView
			return m, m.startFetch(item.track)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "enter":
		return m, tea.Quit
	case "r":
		m.view = SearchView
		m.input.SetValue("")
		m.input.Focus()
		m.progress = nil
		m.result = nil
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case SearchView:
		m.input, cmd = m.input.Update(msg)
	case ResultsView:
		m.results, cmd = m.results.Update(msg)
	}
	return m, cmd
}

func (m *Model) search(query string) tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.searcher.SearchTracks(m.ctx, query, m.limit)
		return searchResultsMsg{query: query, tracks: tracks, err: err}
	}
}

func (m *Model) startFetch(d models.TrackDescriptor) tea.Cmd {
	m.selected = d
	m.progress = nil
	m.progressChan = make(chan tasks.ProgressUpdate, 16)
	m.doneChan = make(chan fetchCompleteMsg, 1)

	progress, done := m.progressChan, m.doneChan
	go func() {
		res, err := m.fetcher.Fetch(m.ctx, tasks.Request{TrackID: d.Key()}, progress)
		close(progress)
		done <- fetchCompleteMsg{result: res, err: err}
	}()

	return m.waitForProgress()
}

// waitForProgress relays one progress update, or the completion once the channel is closed.
func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if u, ok := <-progress; ok {
			return progressUpdateMsg(u)
		}
		return <-done
	}
}

func (m *Model) renderSearch() string {
	var b strings.Builder
	b.WriteString(m.palette.Title("Search Tidal"))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString("\n" + m.palette.Err(m.err.Error()) + "\n")
	}
	quitKey := key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "quit"))
	b.WriteString("\n" + m.help.ShortHelpView([]key.Binding{m.keys.search, quitKey}))
	return b.String()
}

func (m *Model) renderResults() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.results.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderFetch() string {
	lines := []string{m.palette.Title(fmt.Sprintf("Fetching %s", m.selected.Title)), ""}
	for _, u := range m.progress {
		lines = append(lines, m.palette.Progress(u))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", m.palette.Err(fmt.Sprintf("Fetch failed: %v", m.err)), helpView)
	}
	if m.result == nil {
		return fmt.Sprintf("%s\n\n%s", m.palette.Err("No result available"), helpView)
	}

	status := "downloaded"
	if m.result.Cached {
		status = "cached"
	}
	title := m.palette.OK(fmt.Sprintf("%s (%s, %s)", formatter.TrackLine(m.result.Track), status, humanize.Bytes(uint64(m.result.Size))))
	return fmt.Sprintf("%s\n%s\n\n%s", title, m.result.Path, helpView)
}
