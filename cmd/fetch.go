package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/tdx/internal/formatter"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/desertthunder/tdx/internal/tasks"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// fetchOutput is the JSON shape of one fetched track.
type fetchOutput struct {
	TrackID string `json:"track_id"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Path    string `json:"path,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Cached  bool   `json:"cached"`
	Error   string `json:"error,omitempty"`
}

// Fetch makes each requested track present in the cache and prints the file paths.
//
// A single request reports progress as it goes. Several requests (repeated --id, --from) run through
// the bulk worker pool and one failure does not stop the rest.
func (r *Runner) Fetch(ctx context.Context, cmd *cli.Command) error {
	reqs, err := fetchRequests(cmd)
	if err != nil {
		return err
	}

	engine, err := r.fetchEngine(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	if len(reqs) == 1 {
		return r.fetchOne(ctx, engine, reqs[0], cmd.Bool("json"))
	}
	return r.fetchMany(ctx, engine, reqs, int(cmd.Int("workers")), cmd.Bool("json"))
}

func (r *Runner) fetchOne(ctx context.Context, engine *tasks.FetchEngine, req tasks.Request, asJSON bool) error {
	prog := make(chan tasks.ProgressUpdate, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range prog {
			if !asJSON {
				r.writePlain("%s\n", r.styles.Progress(u))
			}
		}
	}()

	res, err := engine.Fetch(ctx, req, prog)
	close(prog)
	<-done

	if err != nil {
		return err
	}

	if asJSON {
		return r.writeJSON(outputFor(res), true)
	}

	status := "downloaded"
	if res.Cached {
		status = "cached"
	}
	r.writePlain("%s\n", r.styles.OK(fmt.Sprintf("%s (%s, %s)", formatter.TrackLine(res.Track), status, humanize.Bytes(uint64(res.Size)))))
	return r.writePlain("%s\n", res.Path)
}

func (r *Runner) fetchMany(ctx context.Context, engine *tasks.FetchEngine, reqs []tasks.Request, workers int, asJSON bool) error {
	prog := make(chan tasks.ProgressUpdate, len(reqs))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range prog {
			if !asJSON {
				r.writePlain("%s\n", r.styles.Progress(u))
			}
		}
	}()

	result, err := engine.FetchAll(ctx, prog, reqs, tasks.BulkFetchOpts{NumWorkers: workers})
	close(prog)
	<-done

	if asJSON {
		out := make([]fetchOutput, 0, len(result.Outcomes))
		for _, o := range result.Outcomes {
			if o.Err != nil {
				out = append(out, fetchOutput{TrackID: o.Request.TrackID, Title: o.Request.Query, Error: o.Err.Error()})
				continue
			}
			out = append(out, outputFor(o.Result))
		}
		if werr := r.writeJSON(out, true); werr != nil {
			return werr
		}
	} else {
		r.writePlainHeader("Fetch Results")
		for _, o := range result.Outcomes {
			if o.Err != nil {
				r.writePlain("%s\n", r.styles.Err(fmt.Sprintf("%s: %v", o.Request, o.Err)))
				continue
			}
			r.writePlain("%s\n", o.Result.Path)
		}
		r.writePlainln("Fetched: %d/%d (%d already cached, %d failed)", result.Succeeded, result.Total, result.Cached, result.Failed)
	}

	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d requests failed", result.Failed, result.Total)
	}
	return nil
}

func outputFor(res *tasks.FetchResult) fetchOutput {
	return fetchOutput{
		TrackID: res.Track.ID,
		Title:   res.Track.Title,
		Artist:  res.Track.Artist,
		Path:    res.Path,
		Size:    res.Size,
		Cached:  res.Cached,
	}
}

// fetchRequests collects requests from --id, --from and the positional query, in that order.
func fetchRequests(cmd *cli.Command) ([]tasks.Request, error) {
	var reqs []tasks.Request

	for _, id := range cmd.StringSlice("id") {
		if id = strings.TrimSpace(id); id != "" {
			reqs = append(reqs, tasks.Request{TrackID: id})
		}
	}

	if path := cmd.String("from"); path != "" {
		queries, err := readQueries(path)
		if err != nil {
			return nil, err
		}
		for _, q := range queries {
			reqs = append(reqs, tasks.Request{Query: q})
		}
	}

	if q := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " ")); q != "" {
		reqs = append(reqs, tasks.Request{Query: q})
	}

	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: a query, --id or --from", shared.ErrMissingArgument)
	}
	return reqs, nil
}

// readQueries reads one query per line, skipping blanks and lines starting with '#'.
func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return out, nil
}
