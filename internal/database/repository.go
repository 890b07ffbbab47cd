package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"medialink/models"
)

// Repository provides read/write access to the catalog and its companion
// tables. All methods are safe for concurrent use.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository on an open connection.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const movieColumns = `id, title, release_date, videourl, video_host,
	original_videourl, video_public_id, video_uploaded_at, stream_fingerprint`

func scanMovie(row interface{ Scan(...any) error }) (*models.Movie, error) {
	var m models.Movie
	var releaseDate, videoURL, videoHost, originalURL, publicID, fingerprint sql.NullString
	var uploadedAt sql.NullTime

	err := row.Scan(&m.ID, &m.Title, &releaseDate, &videoURL, &videoHost,
		&originalURL, &publicID, &uploadedAt, &fingerprint)
	if err != nil {
		return nil, err
	}

	m.ReleaseDate = releaseDate.String
	if videoURL.Valid {
		m.VideoURL = &videoURL.String
	}
	if videoHost.Valid {
		m.VideoHost = &videoHost.String
	}
	if originalURL.Valid {
		m.OriginalVideoURL = &originalURL.String
	}
	if publicID.Valid {
		m.VideoPublicID = &publicID.String
	}
	if uploadedAt.Valid {
		m.VideoUploadedAt = &uploadedAt.Time
	}
	if fingerprint.Valid {
		m.StreamFingerprint = &fingerprint.String
	}
	return &m, nil
}

// GetMovie fetches a movie by id. Returns (nil, nil) when absent.
func (r *Repository) GetMovie(id int64) (*models.Movie, error) {
	row := r.db.QueryRow(`SELECT `+movieColumns+` FROM movies WHERE id = ?`, id)
	m, err := scanMovie(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get movie %d: %w", id, err)
	}
	return m, nil
}

// InsertMovie stores a new catalog row and fills in its id.
func (r *Repository) InsertMovie(m *models.Movie) error {
	res, err := r.db.Exec(`
		INSERT INTO movies (title, release_date, videourl, video_host,
			original_videourl, video_public_id, video_uploaded_at, stream_fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Title, nullString(m.ReleaseDate), m.VideoURL, m.VideoHost,
		m.OriginalVideoURL, m.VideoPublicID, m.VideoUploadedAt, m.StreamFingerprint)
	if err != nil {
		return fmt.Errorf("insert movie: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert movie id: %w", err)
	}
	m.ID = id
	return nil
}

// FindMovieByVideoURL looks up the movie currently linked to the given
// stream URL. Returns (nil, nil) when no movie holds it.
func (r *Repository) FindMovieByVideoURL(url string) (*models.Movie, error) {
	row := r.db.QueryRow(`SELECT `+movieColumns+` FROM movies WHERE videourl = ?`, url)
	m, err := scanMovie(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find movie by videourl: %w", err)
	}
	return m, nil
}

// SearchMovies queries the catalog with up to three OR'd case-insensitive
// title substring filters and an optional one-year release date range.
func (r *Repository) SearchMovies(tokens []string, year int, limit int) ([]models.Movie, error) {
	if limit <= 0 {
		limit = 200
	}

	var clauses []string
	var args []any
	for i, token := range tokens {
		if i >= 3 {
			break
		}
		clauses = append(clauses, "lower(title) LIKE '%' || lower(?) || '%'")
		args = append(args, token)
	}

	query := `SELECT ` + movieColumns + ` FROM movies`
	var where []string
	if len(clauses) > 0 {
		where = append(where, "("+strings.Join(clauses, " OR ")+")")
	}
	if year > 0 {
		where = append(where, "release_date >= ? AND release_date <= ?")
		args = append(args, fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-12-31", year))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	return r.queryMovies(query, args...)
}

// ListMovies returns up to limit catalog rows with no filtering. Used as the
// fallback when a filtered search fails.
func (r *Repository) ListMovies(limit int) ([]models.Movie, error) {
	if limit <= 0 {
		limit = 200
	}
	return r.queryMovies(`SELECT `+movieColumns+` FROM movies ORDER BY id LIMIT ?`, limit)
}

func (r *Repository) queryMovies(query string, args ...any) ([]models.Movie, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	var movies []models.Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		movies = append(movies, *m)
	}
	return movies, rows.Err()
}

// UpdateMovieLink attaches a stream URL to a movie. The original URL is
// preserved on first write only; any stale public id is cleared.
func (r *Repository) UpdateMovieLink(id int64, url, host string, uploadedAt time.Time) error {
	res, err := r.db.Exec(`
		UPDATE movies SET
			videourl = ?,
			video_host = ?,
			video_public_id = NULL,
			video_uploaded_at = ?,
			original_videourl = COALESCE(original_videourl, ?)
		WHERE id = ?`,
		url, host, uploadedAt, url, id)
	if err != nil {
		return fmt.Errorf("update movie link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update movie link: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update movie link: movie %d not found", id)
	}
	return nil
}

// UpdateStreamFingerprint stores the compact fingerprint string on the movie row.
func (r *Repository) UpdateStreamFingerprint(id int64, fingerprint string) error {
	_, err := r.db.Exec(`UPDATE movies SET stream_fingerprint = ? WHERE id = ?`, fingerprint, id)
	if err != nil {
		return fmt.Errorf("update stream fingerprint: %w", err)
	}
	return nil
}

// UpsertSignature stores or replaces a movie's content signature.
func (r *Repository) UpsertSignature(sig models.ContentSignature) error {
	_, err := r.db.Exec(`
		INSERT INTO movie_file_signatures (movie_id, size_bytes, head_sha256, tail_sha256)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (movie_id) DO UPDATE SET
			size_bytes = excluded.size_bytes,
			head_sha256 = excluded.head_sha256,
			tail_sha256 = excluded.tail_sha256`,
		sig.MovieID, sig.SizeBytes, sig.HeadSHA256, sig.TailSHA256)
	if err != nil {
		return fmt.Errorf("upsert signature: %w", err)
	}
	return nil
}

// FindSignatures returns stored signatures whose head or tail hash equals
// one of the given hashes. Field-by-field compatibility is decided by the
// caller; this only narrows the candidate set.
func (r *Repository) FindSignatures(headSHA256, tailSHA256 *string) ([]models.ContentSignature, error) {
	var clauses []string
	var args []any
	if headSHA256 != nil {
		clauses = append(clauses, "head_sha256 = ?")
		args = append(args, *headSHA256)
	}
	if tailSHA256 != nil {
		clauses = append(clauses, "tail_sha256 = ?")
		args = append(args, *tailSHA256)
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(`
		SELECT movie_id, size_bytes, head_sha256, tail_sha256
		FROM movie_file_signatures
		WHERE `+strings.Join(clauses, " OR "), args...)
	if err != nil {
		return nil, fmt.Errorf("find signatures: %w", err)
	}
	defer rows.Close()

	var sigs []models.ContentSignature
	for rows.Next() {
		var sig models.ContentSignature
		var size sql.NullInt64
		var head, tail sql.NullString
		if err := rows.Scan(&sig.MovieID, &size, &head, &tail); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		if size.Valid {
			sig.SizeBytes = &size.Int64
		}
		if head.Valid {
			sig.HeadSHA256 = &head.String
		}
		if tail.Valid {
			sig.TailSHA256 = &tail.String
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// UpsertProviderMapping registers (provider_host, provider_id) -> movie_id.
func (r *Repository) UpsertProviderMapping(host, providerID string, movieID int64) error {
	_, err := r.db.Exec(`
		INSERT INTO external_stream_map (provider_host, provider_id, movie_id)
		VALUES (?, ?, ?)
		ON CONFLICT (provider_host, provider_id) DO UPDATE SET movie_id = excluded.movie_id`,
		host, providerID, movieID)
	if err != nil {
		return fmt.Errorf("upsert provider mapping: %w", err)
	}
	return nil
}

// LookupProviderMapping resolves a provider identifier to a movie id.
func (r *Repository) LookupProviderMapping(host, providerID string) (int64, bool, error) {
	var movieID int64
	err := r.db.QueryRow(`
		SELECT movie_id FROM external_stream_map
		WHERE provider_host = ? AND provider_id = ?`,
		host, providerID).Scan(&movieID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup provider mapping: %w", err)
	}
	return movieID, true, nil
}

// EnqueueSync adds a movie to the pending sync queue. The link service never
// schedules work itself; this exists for the external producer and tests.
func (r *Repository) EnqueueSync(movieID int64) error {
	_, err := r.db.Exec(`
		INSERT INTO videos_sync_queue (movie_id) VALUES (?)
		ON CONFLICT (movie_id) DO NOTHING`, movieID)
	if err != nil {
		return fmt.Errorf("enqueue sync: %w", err)
	}
	return nil
}

// DeleteSyncQueueEntry removes a movie's pending sync job, if any.
func (r *Repository) DeleteSyncQueueEntry(movieID int64) error {
	_, err := r.db.Exec(`DELETE FROM videos_sync_queue WHERE movie_id = ?`, movieID)
	if err != nil {
		return fmt.Errorf("delete sync queue entry: %w", err)
	}
	return nil
}

// SyncQueueContains reports whether a movie still has a pending sync job.
func (r *Repository) SyncQueueContains(movieID int64) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM videos_sync_queue WHERE movie_id = ?`, movieID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sync queue: %w", err)
	}
	return count > 0, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
