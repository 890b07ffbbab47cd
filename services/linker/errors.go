package linker

import (
	"errors"

	"medialink/models"
)

// Conflict codes surfaced to operators with enough payload to decide.
const (
	ConflictURLLinkedToOther = "url_already_linked_to_other_movie"
	ConflictMovieHasVideoURL = "movie_already_has_videourl"
)

var (
	// ErrMovieNotFound means the referenced catalog row does not exist.
	ErrMovieNotFound = errors.New("movie_not_found")

	// ErrSignatureUnavailable means no byte range of the remote file could
	// be fetched, so there is nothing to register.
	ErrSignatureUnavailable = errors.New("signature_unavailable")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string { return e.Code }

// ConflictError reports a commit precondition failure. ExistingURL and
// OtherMovieID carry whatever is known about the conflicting state.
type ConflictError struct {
	Code         string
	ExistingURL  string
	OtherMovieID int64
}

func (e *ConflictError) Error() string { return e.Code }

// NoMatchError reports that fuzzy matching found nothing above the score
// threshold. The best candidate is attached for manual review.
type NoMatchError struct {
	BestScore float64
	Best      *models.MatchCandidate
}

func (e *NoMatchError) Error() string { return "no_confident_match" }
