package models

import (
	"strconv"
	"time"
)

// Movie is a catalog row. Nullable columns are pointers; a nil VideoURL means
// the movie has no hosted stream yet.
type Movie struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	ReleaseDate       string     `json:"release_date,omitempty"`
	VideoURL          *string    `json:"videourl,omitempty"`
	VideoHost         *string    `json:"video_host,omitempty"`
	OriginalVideoURL  *string    `json:"original_videourl,omitempty"`
	VideoPublicID     *string    `json:"video_public_id,omitempty"`
	VideoUploadedAt   *time.Time `json:"video_uploaded_at,omitempty"`
	StreamFingerprint *string    `json:"stream_fingerprint,omitempty"`
}

// ReleaseYear parses the year out of the release date. Returns 0 when the
// date is absent or malformed.
func (m *Movie) ReleaseYear() int {
	if len(m.ReleaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(m.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

// HasVideoURL reports whether the movie is already linked to a stream.
func (m *Movie) HasVideoURL() bool {
	return m.VideoURL != nil && *m.VideoURL != ""
}
