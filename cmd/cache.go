package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tdx/internal/formatter"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

type cacheStatus struct {
	Dir             string    `json:"dir"`
	Capacity        int64     `json:"capacity"`
	Size            int64     `json:"size"`
	Items           int       `json:"items"`
	Hits            int64     `json:"hits"`
	Misses          int64     `json:"misses"`
	Evictions       int64     `json:"evictions"`
	FailedEvictions int64     `json:"failed_evictions"`
	LastEvict       time.Time `json:"last_evict,omitzero"`
}

// CacheStatus reports cache usage against its capacity.
func (r *Runner) CacheStatus(ctx context.Context, cmd *cli.Command) error {
	cache, err := r.store()
	if err != nil {
		return err
	}

	st := cache.Stats()
	status := cacheStatus{
		Dir:             cache.Dir(),
		Capacity:        st.Capacity,
		Size:            st.Size,
		Items:           st.Items,
		Hits:            st.Hits,
		Misses:          st.Misses,
		Evictions:       st.Evictions,
		FailedEvictions: st.FailedEvictions,
		LastEvict:       st.LastEvict,
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	used := 0.0
	if st.Capacity > 0 {
		used = float64(st.Size) / float64(st.Capacity) * 100
	}

	r.writePlainHeader("Cache")
	r.writePlain("Directory: %s\n", status.Dir)
	r.writePlain("Usage:     %s / %s (%.1f%%)\n", humanize.Bytes(uint64(st.Size)), humanize.Bytes(uint64(st.Capacity)), used)
	r.writePlain("Tracks:    %d\n", st.Items)
	if st.FailedEvictions > 0 {
		r.writePlain("%s\n", r.styles.Warn(fmt.Sprintf("%d evictions failed", st.FailedEvictions)))
	}
	return nil
}

// CacheList prints the catalog of cached tracks.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	catalog, err := r.trackCatalog()
	if err != nil {
		return err
	}
	defer r.Close()

	tracks, err := catalog.List(map[string]any{
		"artist": cmd.String("artist"),
		"query":  cmd.String("query"),
	})
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteExport(tracks, format, path); err != nil {
			return err
		}
		return r.writePlain("%s\n", r.styles.OK(fmt.Sprintf("Wrote %d tracks to %s", len(tracks), path)))
	}

	if len(tracks) == 0 && format == formatter.FormatText {
		return r.writePlain("%s\n", r.styles.Warn("No cached tracks"))
	}

	data, err := formatter.Export(tracks, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// CacheRemove deletes one track from the cache and the catalog.
func (r *Runner) CacheRemove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	cache, err := r.store()
	if err != nil {
		return err
	}
	if err := cache.Remove(id); err != nil {
		return err
	}

	if catalog, err := r.trackCatalog(); err == nil {
		defer r.Close()
		if row, err := catalog.GetByTrackID(id); err == nil {
			if err := catalog.Delete(row.ID()); err != nil {
				r.logger.Warn("failed to delete catalog row", "track", id, "error", err)
			}
		}
	}

	return r.writePlain("%s\n", r.styles.OK("Removed "+id))
}

// CacheClear removes every cached track. Catalog rows are pruned to match.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	cache, err := r.store()
	if err != nil {
		return err
	}

	before := cache.Stats()
	if err := cache.Clear(); err != nil {
		return err
	}

	if _, err := r.prune(); err != nil {
		r.logger.Warn("failed to prune catalog", "error", err)
	}

	return r.writePlain("%s\n", r.styles.OK(fmt.Sprintf("Cleared %d tracks (%s)", before.Items, humanize.Bytes(uint64(before.Size)))))
}

// CachePrune drops catalog rows whose audio is no longer in the cache.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	removed, err := r.prune()
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", r.styles.OK(fmt.Sprintf("Pruned %d catalog rows", removed)))
}

func (r *Runner) prune() (int, error) {
	cache, err := r.store()
	if err != nil {
		return 0, err
	}
	catalog, err := r.trackCatalog()
	if err != nil {
		return 0, err
	}
	defer r.Close()

	return catalog.Prune(cache.Exists)
}
