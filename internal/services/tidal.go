// Tidal API implementation of the track resolver
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/auth"
	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultAPIURL       = "https://api.tidal.com/v1"
	defaultSearchLimit  = 10
	defaultAudioQuality = "HIGH"

	// TypeTracks and friends name search result categories.
	TypeTracks    = "tracks"
	TypeAlbums    = "albums"
	TypeArtists   = "artists"
	TypePlaylists = "playlists"
	TypeVideos    = "videos"
)

// Session sends authenticated requests and exposes the identity they need.
type Session interface {
	Do(req *http.Request) (*http.Response, error)
	SessionID() string
	CountryCode() string
}

var _ Session = (*auth.SessionManager)(nil)

// Config contains the API endpoint and stream parameters.
type Config struct {
	APIURL            string
	AudioQuality      string
	CountryCode       string // overrides the session's country when set
	RequestsPerSecond float64
}

// ConfigFromShared builds a service Config from the application config.
func ConfigFromShared(c *shared.Config) Config {
	return Config{
		APIURL:            c.Tidal.APIURL,
		AudioQuality:      c.Tidal.AudioQuality,
		CountryCode:       c.Tidal.CountryCode,
		RequestsPerSecond: c.Tidal.RequestsPerSecond,
	}
}

// Option configures a [TidalService].
type Option func(*TidalService)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *TidalService) { s.logger = l }
}

// TidalService searches the catalog and resolves stream URLs through a [Session].
type TidalService struct {
	session Session
	cfg     Config
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewTidalService creates a resolver bound to session.
func NewTidalService(session Session, cfg Config, opts ...Option) *TidalService {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.AudioQuality == "" {
		cfg.AudioQuality = defaultAudioQuality
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	s := &TidalService{
		session: session,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = shared.NewLogger(nil)
	}
	s.logger = shared.WithLogger(s.logger, "component", "tidal")

	return s
}

// Name returns the name of the service.
func (s *TidalService) Name() string { return "Tidal" }

// Category is one requested category of a search response.
type Category struct {
	Name  string
	Total int
	Items []json.RawMessage
}

// SearchResult holds the requested categories in request order.
type SearchResult struct {
	Query      string
	Categories []Category
}

// Category returns the named category, if it was requested and present.
func (r *SearchResult) Category(name string) (Category, bool) {
	for _, c := range r.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// Keys returns the category names in order.
func (r *SearchResult) Keys() []string {
	keys := make([]string, 0, len(r.Categories))
	for _, c := range r.Categories {
		keys = append(keys, c.Name)
	}
	return keys
}

type searchPage struct {
	Limit              int               `json:"limit"`
	Offset             int               `json:"offset"`
	TotalNumberOfItems int               `json:"totalNumberOfItems"`
	Items              []json.RawMessage `json:"items"`
}

// Search queries the search endpoint. types defaults to tracks; only the requested categories are
// returned, in the order given, even when the response carries others.
func (s *TidalService) Search(ctx context.Context, query string, limit int, types ...string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	wanted := normalizeTypes(types)

	upper := make([]string, len(wanted))
	for i, t := range wanted {
		upper[i] = strings.ToUpper(t)
	}

	country, err := s.country()
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"query":       {query},
		"limit":       {strconv.Itoa(limit)},
		"offset":      {"0"},
		"countryCode": {country},
		"types":       {strings.Join(upper, ",")},
	}

	var raw map[string]json.RawMessage
	if err := s.getJSON(ctx, "/search", params, &raw); err != nil {
		return nil, err
	}

	byKey := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		byKey[strings.ToLower(k)] = v
	}

	result := &SearchResult{Query: query}
	for _, name := range wanted {
		body, ok := byKey[name]
		if !ok {
			continue
		}

		var page searchPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("%w: failed to decode %s results: %v", shared.ErrUpstreamRejected, name, err)
		}
		result.Categories = append(result.Categories, Category{Name: name, Total: page.TotalNumberOfItems, Items: page.Items})
	}

	s.logger.Debug("search", "query", query, "categories", result.Keys())
	return result, nil
}

// SearchTracks searches for tracks and decodes the matches.
func (s *TidalService) SearchTracks(ctx context.Context, query string, limit int) ([]models.TrackDescriptor, error) {
	result, err := s.Search(ctx, query, limit, TypeTracks)
	if err != nil {
		return nil, err
	}

	tracks, ok := result.Category(TypeTracks)
	if !ok {
		return nil, nil
	}

	out := make([]models.TrackDescriptor, 0, len(tracks.Items))
	for _, item := range tracks.Items {
		var d models.TrackDescriptor
		if err := json.Unmarshal(item, &d); err != nil {
			return nil, fmt.Errorf("%w: failed to decode track: %v", shared.ErrUpstreamRejected, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Track looks up a single track descriptor by id.
func (s *TidalService) Track(ctx context.Context, id string) (models.TrackDescriptor, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return models.TrackDescriptor{}, fmt.Errorf("%w: track id %q", shared.ErrInvalidArgument, id)
	}

	country, err := s.country()
	if err != nil {
		return models.TrackDescriptor{}, err
	}

	var d models.TrackDescriptor
	if err := s.getJSON(ctx, "/tracks/"+id, url.Values{"countryCode": {country}}, &d); err != nil {
		var se *auth.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return models.TrackDescriptor{}, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
		}
		return models.TrackDescriptor{}, err
	}
	return d, nil
}

type playbackResponse struct {
	TrackID      int64    `json:"trackId"`
	URLs         []string `json:"urls"`
	AudioQuality string   `json:"audioQuality"`
	Codec        string   `json:"codec"`
}

// Resolve obtains a short-lived stream URL for d.
//
// A match that is not streamable in the session's region fails with [shared.ErrNotAvailable] without
// a network call.
func (s *TidalService) Resolve(ctx context.Context, d models.TrackDescriptor) (models.Track, error) {
	if !d.AllowStreaming {
		return models.Track{}, fmt.Errorf("%w: %q cannot be streamed in this region", shared.ErrNotAvailable, d.Title)
	}

	country, err := s.country()
	if err != nil {
		return models.Track{}, err
	}
	sessionID := s.session.SessionID()
	if sessionID == "" {
		return models.Track{}, fmt.Errorf("%w: no session identity", shared.ErrAuth)
	}

	params := url.Values{
		"sessionId":         {sessionID},
		"countryCode":       {country},
		"urlusagemode":      {"STREAM"},
		"audioquality":      {s.cfg.AudioQuality},
		"assetpresentation": {"FULL"},
	}

	var playback playbackResponse
	if err := s.getJSON(ctx, "/tracks/"+d.Key()+"/urlpostpaywall", params, &playback); err != nil {
		return models.Track{}, err
	}
	if len(playback.URLs) == 0 || playback.URLs[0] == "" {
		return models.Track{}, fmt.Errorf("%w: no stream url for %q", shared.ErrNotAvailable, d.Title)
	}

	s.logger.Debug("resolved", "track", d.Key(), "quality", playback.AudioQuality, "codec", playback.Codec)
	return models.NewTrack(d, playback.URLs[0]), nil
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Raw performs an authenticated GET to path (relative to the API url) and returns the raw response.
// countryCode is added when the path does not carry one.
func (s *TidalService) Raw(ctx context.Context, path string) (*APIResponse, error) {
	u, err := url.Parse(s.cfg.APIURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	q := u.Query()
	if q.Get("countryCode") == "" {
		if country, err := s.country(); err == nil {
			q.Set("countryCode", country)
		}
	}
	u.RawQuery = q.Encode()

	resp, err := s.do(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrTransientNetwork, err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	var jsonData any
	if err := json.Unmarshal(body, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// getJSON performs a paced authenticated GET and decodes the body into out.
func (s *TidalService) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := s.do(ctx, s.cfg.APIURL+path+"?"+params.Encode())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", shared.ErrUpstreamRejected, path, err)
	}
	return nil
}

func (s *TidalService) do(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("request pacing: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return s.session.Do(req)
}

func (s *TidalService) country() (string, error) {
	if s.cfg.CountryCode != "" {
		return s.cfg.CountryCode, nil
	}
	if c := s.session.CountryCode(); c != "" {
		return c, nil
	}
	return "", fmt.Errorf("%w: no session identity", shared.ErrAuth)
}

// normalizeTypes lowercases, trims and de-duplicates category names, defaulting to tracks.
func normalizeTypes(types []string) []string {
	seen := make(map[string]bool, len(types))
	out := make([]string, 0, len(types))
	for _, t := range types {
		for part := range strings.SplitSeq(t, ",") {
			name := strings.ToLower(strings.TrimSpace(part))
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		out = append(out, TypeTracks)
	}
	return out
}
