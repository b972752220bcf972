package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
)

const cachedTrackColumns = `id, sequence, track_id, title, artist, featured_artists, album, duration, file_path, size, play_count, created_at, updated_at`

// CachedTrackRepository implements models.Repository[*models.CachedTrack] for the track catalog.
type CachedTrackRepository struct {
	db *sql.DB
}

// NewCachedTrackRepository creates a new CachedTrackRepository with the given database connection
func NewCachedTrackRepository(db *sql.DB) *CachedTrackRepository {
	return &CachedTrackRepository{db: db}
}

// Create inserts a new [models.CachedTrack] with generated ID and sequence
func (r *CachedTrackRepository) Create(track *models.CachedTrack) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(r.db, "cached_tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	track.SetID(id)
	track.SetSequence(sequence)

	query := `
		INSERT INTO cached_tracks (` + cachedTrackColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		track.TrackID(),
		track.Title(),
		track.Artist(),
		models.JoinArtists(track.FeaturedArtists()),
		track.Album(),
		int64(track.Duration()/time.Second),
		track.FilePath(),
		track.Size(),
		track.PlayCount(),
		track.CreatedAt(),
		track.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cached track: %w", err)
	}

	return nil
}

// Get retrieves a catalog row by ID
func (r *CachedTrackRepository) Get(id string) (*models.CachedTrack, error) {
	query := `SELECT ` + cachedTrackColumns + ` FROM cached_tracks WHERE id = ?`
	return r.scan(r.db.QueryRow(query, id))
}

// GetByTrackID retrieves a catalog row by its music service track id
func (r *CachedTrackRepository) GetByTrackID(trackID string) (*models.CachedTrack, error) {
	query := `SELECT ` + cachedTrackColumns + ` FROM cached_tracks WHERE track_id = ?`
	return r.scan(r.db.QueryRow(query, trackID))
}

// Update modifies an existing catalog row
func (r *CachedTrackRepository) Update(track *models.CachedTrack) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	track.SetUpdatedAt(now)

	query := `
		UPDATE cached_tracks
		SET title = ?, artist = ?, featured_artists = ?, album = ?, duration = ?,
			file_path = ?, size = ?, play_count = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		track.Title(),
		track.Artist(),
		models.JoinArtists(track.FeaturedArtists()),
		track.Album(),
		int64(track.Duration()/time.Second),
		track.FilePath(),
		track.Size(),
		track.PlayCount(),
		now,
		track.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update cached track: %w", err)
	}

	return expectOne(result, track.ID())
}

// Delete removes a catalog row by ID
func (r *CachedTrackRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM cached_tracks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cached track: %w", err)
	}
	return expectOne(result, id)
}

// List retrieves catalog rows matching the given criteria ordered by sequence.
//
// Supported criteria: "artist" (exact match), "query" (substring of title or artist), "limit" (int).
func (r *CachedTrackRepository) List(criteria map[string]any) ([]*models.CachedTrack, error) {
	query := `SELECT ` + cachedTrackColumns + ` FROM cached_tracks WHERE 1 = 1`
	args := []any{}

	if artist, ok := criteria["artist"].(string); ok && artist != "" {
		query += " AND artist = ?"
		args = append(args, artist)
	}

	if q, ok := criteria["query"].(string); ok && q != "" {
		query += " AND (title LIKE ? OR artist LIKE ?)"
		like := "%" + strings.ReplaceAll(q, "%", "") + "%"
		args = append(args, like, like)
	}

	query += " ORDER BY sequence ASC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.CachedTrack
	for rows.Next() {
		track, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

// Record creates or refreshes the catalog row for t after its audio was stored at filePath.
func (r *CachedTrackRepository) Record(t models.Track, filePath string, size int64) (*models.CachedTrack, error) {
	existing, err := r.GetByTrackID(t.ID)
	switch {
	case errors.Is(err, shared.ErrTrackNotFound):
		track := models.NewCachedTrack(0, t, filePath, size)
		if err := r.Create(track); err != nil {
			return nil, err
		}
		return track, nil
	case err != nil:
		return nil, err
	}

	refreshed := models.NewCachedTrack(existing.Sequence(), t, filePath, size)
	refreshed.SetID(existing.ID())
	refreshed.SetCreatedAt(existing.CreatedAt())
	refreshed.SetPlayCount(existing.PlayCount())

	if err := r.Update(refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

// IncrementPlayCount bumps the play counter for trackID.
func (r *CachedTrackRepository) IncrementPlayCount(trackID string) error {
	result, err := r.db.Exec(
		`UPDATE cached_tracks SET play_count = play_count + 1, updated_at = ? WHERE track_id = ?`,
		time.Now(), trackID,
	)
	if err != nil {
		return fmt.Errorf("failed to update play count: %w", err)
	}
	return expectOne(result, trackID)
}

// Prune deletes every row whose track is no longer present according to exists and returns how many
// rows were removed.
func (r *CachedTrackRepository) Prune(exists func(trackID string) bool) (int, error) {
	all, err := r.List(map[string]any{})
	if err != nil {
		return 0, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	removed := 0
	for _, track := range all {
		if exists(track.TrackID()) {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM cached_tracks WHERE id = ?`, track.ID()); err != nil {
			return 0, fmt.Errorf("failed to prune %s: %w", track.TrackID(), err)
		}
		removed++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return removed, nil
}

// scan reads one row into a [models.CachedTrack]
func (r *CachedTrackRepository) scan(row scanner) (*models.CachedTrack, error) {
	var (
		id        string
		sequence  int
		trackID   string
		title     string
		artist    string
		featured  string
		album     string
		duration  int64
		filePath  string
		size      int64
		playCount int
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&id, &sequence, &trackID, &title, &artist, &featured, &album, &duration, &filePath, &size, &playCount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cached track: %w", err)
	}

	dto := models.Track{
		ID:              trackID,
		Title:           title,
		Artist:          artist,
		FeaturedArtists: models.SplitArtists(featured),
		Album:           album,
		Duration:        time.Duration(duration) * time.Second,
	}

	track := models.NewCachedTrack(sequence, dto, filePath, size)
	track.SetID(id)
	track.SetPlayCount(playCount)
	track.SetCreatedAt(createdAt)
	track.SetUpdatedAt(updatedAt)

	return track, nil
}

func expectOne(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	return nil
}
