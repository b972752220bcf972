package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultSearchLimit = 5
	defaultTimeout     = 2 * time.Minute
)

// Resolver finds tracks and resolves their stream URLs.
type Resolver interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]models.TrackDescriptor, error)
	Track(ctx context.Context, id string) (models.TrackDescriptor, error)
	Resolve(ctx context.Context, d models.TrackDescriptor) (models.Track, error)
}

// Store holds downloaded audio keyed by track id.
type Store interface {
	Exists(key string) bool
	Path(key string) (string, bool)
	InsertFrom(key string, r io.Reader) error
}

// Catalog records metadata for cached tracks.
type Catalog interface {
	Record(t models.Track, filePath string, size int64) (*models.CachedTrack, error)
	IncrementPlayCount(trackID string) error
}

// Request names one track to fetch, either by id or by free-text query.
type Request struct {
	Query   string
	TrackID string
}

func (r Request) String() string {
	if r.TrackID != "" {
		return "track " + r.TrackID
	}
	return fmt.Sprintf("%q", r.Query)
}

// FetchResult is a track that is present in the cache.
type FetchResult struct {
	Request Request
	Track   models.Track
	Path    string
	Size    int64
	Cached  bool // served without a download
}

// EngineOpts contains optional collaborators and download limits for a [FetchEngine].
type EngineOpts struct {
	HTTPClient        *http.Client
	Catalog           Catalog
	RequestsPerSecond float64       // download pacing; zero disables it
	Timeout           time.Duration // per download
	SearchLimit       int
	Logger            *log.Logger
}

// FetchEngine resolves requests through a [Resolver] and fills a [Store].
type FetchEngine struct {
	resolver    Resolver
	store       Store
	catalog     Catalog
	client      *http.Client
	limiter     *rate.Limiter
	timeout     time.Duration
	searchLimit int
	logger      *log.Logger
}

// NewFetchEngine creates a new FetchEngine with the provided collaborators.
func NewFetchEngine(resolver Resolver, store Store, opts EngineOpts) *FetchEngine {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = defaultSearchLimit
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &FetchEngine{
		resolver:    resolver,
		store:       store,
		catalog:     opts.Catalog,
		client:      opts.HTTPClient,
		limiter:     rate.NewLimiter(limit, 1),
		timeout:     opts.Timeout,
		searchLimit: opts.SearchLimit,
		logger:      shared.WithLogger(opts.Logger, "component", "fetch"),
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *FetchEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Fetch makes the requested track present in the store and returns its path.
//
// A track already in the store is served without resolving a stream URL; its Track carries no
// StreamURL in that case.
func (e *FetchEngine) Fetch(ctx context.Context, req Request, progress chan<- ProgressUpdate) (*FetchResult, error) {
	const total = 4

	e.sendProgress(progress, lookupUpdate(1, total, req))
	d, err := e.describe(ctx, req)
	if err != nil {
		return nil, err
	}

	key := d.Key()
	if e.store.Exists(key) {
		e.sendProgress(progress, cacheHitUpdate(2, total, d))
		return e.served(req, d)
	}

	e.sendProgress(progress, resolveUpdate(2, total, d))
	track, err := e.resolver.Resolve(ctx, d)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, downloadUpdate(3, total, track))
	size, err := e.download(ctx, key, track.StreamURL)
	if err != nil {
		return nil, err
	}

	path, ok := e.store.Path(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s missing right after insert", shared.ErrStorageIO, key)
	}

	e.sendProgress(progress, storeUpdate(4, total, track, size))
	e.record(track, path, size)

	e.logger.Info("fetched", "track", key, "size", size, "path", path)
	return &FetchResult{Request: req, Track: track, Path: path, Size: size}, nil
}

// describe finds the descriptor for req. A search picks the first streamable match, falling back to
// the first match so that Resolve reports it as unavailable.
func (e *FetchEngine) describe(ctx context.Context, req Request) (models.TrackDescriptor, error) {
	if req.TrackID != "" {
		return e.resolver.Track(ctx, req.TrackID)
	}
	if req.Query == "" {
		return models.TrackDescriptor{}, fmt.Errorf("%w: query or track id", shared.ErrMissingArgument)
	}

	matches, err := e.resolver.SearchTracks(ctx, req.Query, e.searchLimit)
	if err != nil {
		return models.TrackDescriptor{}, err
	}
	if len(matches) == 0 {
		return models.TrackDescriptor{}, fmt.Errorf("%w: no results for %q", shared.ErrTrackNotFound, req.Query)
	}

	for _, m := range matches {
		if m.AllowStreaming {
			return m, nil
		}
	}
	return matches[0], nil
}

func (e *FetchEngine) served(req Request, d models.TrackDescriptor) (*FetchResult, error) {
	key := d.Key()
	path, ok := e.store.Path(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s vanished from the cache", shared.ErrStorageIO, key)
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	track := models.NewTrack(d, "")
	if e.catalog != nil {
		err := e.catalog.IncrementPlayCount(key)
		if errors.Is(err, shared.ErrTrackNotFound) {
			e.record(track, path, size)
		} else if err != nil {
			e.logger.Warn("failed to update play count", "track", key, "error", err)
		}
	}

	return &FetchResult{Request: req, Track: track, Path: path, Size: size, Cached: true}, nil
}

// download streams url into the store under key and returns the number of bytes stored.
func (e *FetchEngine) download(ctx context.Context, key, url string) (int64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("download pacing: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: bad stream url: %v", shared.ErrUpstreamRejected, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: download of %s: %w", shared.ErrTimedOut, key, err)
		}
		return 0, fmt.Errorf("%w: %v", shared.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: stream returned status %d", shared.ErrUpstreamRejected, resp.StatusCode)
	}

	body := &countingReader{r: resp.Body}
	if err := e.store.InsertFrom(key, body); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: download of %s: %w", shared.ErrTimedOut, key, err)
		}
		if body.err != nil {
			return 0, fmt.Errorf("%w: download of %s interrupted: %v", shared.ErrTransientNetwork, key, body.err)
		}
		return 0, err
	}
	return body.n, nil
}

func (e *FetchEngine) record(t models.Track, path string, size int64) {
	if e.catalog == nil {
		return
	}
	if _, err := e.catalog.Record(t, path, size); err != nil {
		e.logger.Warn("failed to record track in catalog", "track", t.ID, "error", err)
	}
}

// countingReader counts bytes read and keeps the first read error, so a dropped stream can be told
// apart from a failed write.
type countingReader struct {
	r   io.Reader
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err != nil && err != io.EOF && c.err == nil {
		c.err = err
	}
	return n, err
}
