package linker

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"medialink/internal/database"
	"medialink/models"
)

// Host values written to movies.video_host.
const (
	HostR2       = "r2"
	HostExternal = "external"
)

// Service links externally-hosted stream URLs to catalog rows. Matching runs
// three strategies in priority order — provider-id registry, content
// signature, fuzzy title scoring — and the commit engine applies the chosen
// mapping under conflict-safety rules. The service itself is stateless; all
// state lives in the repository.
type Service struct {
	log             *slog.Logger
	repo            *database.Repository
	signatures      *SignatureEngine
	hostingBaseURL  string
	defaultMinScore float64
}

// NewService wires the link service.
func NewService(repo *database.Repository, signatures *SignatureEngine, hostingBaseURL string, defaultMinScore float64) *Service {
	if defaultMinScore <= 0 || defaultMinScore > 1 {
		defaultMinScore = 0.6
	}
	return &Service{
		log:             slog.Default().With("component", "linker"),
		repo:            repo,
		signatures:      signatures,
		hostingBaseURL:  hostingBaseURL,
		defaultMinScore: defaultMinScore,
	}
}

// PreviewRequest asks for ranked candidates without mutating storage.
type PreviewRequest struct {
	URL       string
	Headers   map[string]string
	TitleHint string
	YearHint  int
	MovieID   int64
}

// PreviewResult is the ranked candidate list for a submitted URL.
type PreviewResult struct {
	NormalizedURL string                  `json:"normalizedUrl"`
	Candidates    []models.MatchCandidate `json:"candidates"`
}

// Preview runs all three matching strategies and returns the full ranked
// list. Exact hits (provider registry, content signature) rank ahead of
// fuzzy candidates with score 1.0.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, &ValidationError{Code: "missing_url"}
	}
	normalized := NormalizeURL(req.URL)

	var candidates []models.MatchCandidate
	seen := map[int64]bool{}

	appendExact := func(movieID int64, reason string) error {
		if seen[movieID] {
			return nil
		}
		movie, err := s.repo.GetMovie(movieID)
		if err != nil {
			return err
		}
		if movie == nil {
			return nil
		}
		seen[movieID] = true
		candidates = append(candidates, models.MatchCandidate{
			Movie:   *movie,
			Score:   1.0,
			Reasons: []string{reason},
		})
		return nil
	}

	if movieID, ok, err := s.lookupProvider(normalized); err != nil {
		return nil, err
	} else if ok {
		if err := appendExact(movieID, "provider_map_match"); err != nil {
			return nil, err
		}
	}

	sig := s.signatures.Compute(ctx, req.URL, req.Headers)
	matches, err := s.lookupSignature(sig)
	if err != nil {
		return nil, err
	}
	for _, movieID := range matches {
		if err := appendExact(movieID, "signature_match"); err != nil {
			return nil, err
		}
	}

	tokens, year := s.searchHints(req.URL, req.TitleHint, req.YearHint)
	scored, err := s.fuzzyCandidates(tokens, year, hostOf(req.URL))
	if err != nil {
		return nil, err
	}
	for _, candidate := range scored {
		if seen[candidate.Movie.ID] {
			continue
		}
		seen[candidate.Movie.ID] = true
		candidates = append(candidates, candidate)
	}

	// A requested movie must exist and must appear in the list even when it
	// scored below the cut.
	if req.MovieID > 0 && !seen[req.MovieID] {
		movie, err := s.repo.GetMovie(req.MovieID)
		if err != nil {
			return nil, err
		}
		if movie == nil {
			return nil, ErrMovieNotFound
		}
		candidates = append(candidates, scoreCandidate(*movie, tokens, year, hostOf(req.URL)))
	}

	return &PreviewResult{NormalizedURL: normalized, Candidates: candidates}, nil
}

// AutoRequest asks the orchestrator to pick a winner and commit it.
type AutoRequest struct {
	URL      string
	Headers  map[string]string
	MinScore float64
	Force    bool
}

// AutoResult describes the committed match.
type AutoResult struct {
	MovieID       int64
	Title         string
	Score         float64
	Host          string
	NormalizedURL string
}

// Auto sequences the three matching strategies, first confident hit wins,
// then commits the winner. Fuzzy winners must meet the minimum score.
func (s *Service) Auto(ctx context.Context, req AutoRequest) (*AutoResult, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, &ValidationError{Code: "missing_url"}
	}
	normalized := NormalizeURL(req.URL)

	winnerID, score, err := s.matchExact(ctx, req.URL, normalized, req.Headers)
	if err != nil {
		return nil, err
	}

	if winnerID == 0 {
		tokens, year := s.searchHints(req.URL, "", 0)
		scored, err := s.fuzzyCandidates(tokens, year, hostOf(req.URL))
		if err != nil {
			return nil, err
		}

		minScore := req.MinScore
		if minScore <= 0 {
			minScore = s.defaultMinScore
		}
		if len(scored) == 0 {
			return nil, &NoMatchError{}
		}
		best := scored[0]
		if best.Score < minScore {
			return nil, &NoMatchError{BestScore: best.Score, Best: &best}
		}
		winnerID, score = best.Movie.ID, best.Score
	}

	committed, err := s.Commit(ctx, CommitRequest{MovieID: winnerID, URL: req.URL, Force: req.Force})
	if err != nil {
		return nil, err
	}

	movie, err := s.repo.GetMovie(winnerID)
	if err != nil {
		return nil, err
	}
	title := ""
	if movie != nil {
		title = movie.Title
	}
	return &AutoResult{
		MovieID:       winnerID,
		Title:         title,
		Score:         score,
		Host:          committed.Host,
		NormalizedURL: normalized,
	}, nil
}

// matchExact runs the provider-id and content-signature strategies. Returns
// (0, 0, nil) when neither produced a hit.
func (s *Service) matchExact(ctx context.Context, rawURL, normalized string, headers map[string]string) (int64, float64, error) {
	if movieID, ok, err := s.lookupProvider(normalized); err != nil {
		return 0, 0, err
	} else if ok {
		return movieID, 1.0, nil
	}

	sig := s.signatures.Compute(ctx, rawURL, headers)
	matches, err := s.lookupSignature(sig)
	if err != nil {
		return 0, 0, err
	}
	if len(matches) > 0 {
		return matches[0], 1.0, nil
	}
	return 0, 0, nil
}

// CommitRequest applies an explicit (movie, url) mapping.
type CommitRequest struct {
	MovieID int64
	URL     string
	Headers map[string]string
	Force   bool
}

// CommitResult reports where the stream was attached.
type CommitResult struct {
	MovieID int64
	Host    string
}

// Commit attaches a stream URL to a movie after checking, in order, that the
// URL is not linked to a different movie (never overridable) and that the
// movie is not already hosted (overridable with force). On success the
// mapping is persisted, a provider id in the URL is implicitly trusted into
// the registry, and any pending sync-queue job is cleared best-effort.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	if req.MovieID <= 0 {
		return nil, &ValidationError{Code: "missing_movie_id"}
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, &ValidationError{Code: "missing_url"}
	}

	movie, err := s.repo.GetMovie(req.MovieID)
	if err != nil {
		return nil, err
	}
	if movie == nil {
		return nil, ErrMovieNotFound
	}

	existing, err := s.repo.FindMovieByVideoURL(req.URL)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != movie.ID {
		return nil, &ConflictError{
			Code:         ConflictURLLinkedToOther,
			ExistingURL:  req.URL,
			OtherMovieID: existing.ID,
		}
	}
	if movie.HasVideoURL() && !req.Force {
		return nil, &ConflictError{
			Code:        ConflictMovieHasVideoURL,
			ExistingURL: *movie.VideoURL,
		}
	}

	host := s.hostFor(req.URL)
	if err := s.repo.UpdateMovieLink(movie.ID, req.URL, host, time.Now().UTC()); err != nil {
		return nil, err
	}

	// A provider id embedded in a committed URL is trusted into the
	// exact-match registry for future submissions.
	if providerHost, providerID, ok := ExtractProviderID(NormalizeURL(req.URL)); ok {
		if err := s.repo.UpsertProviderMapping(providerHost, providerID, movie.ID); err != nil {
			s.log.Warn("provider mapping registration failed",
				"non_critical", true, "movie_id", movie.ID, "error", err)
		}
	}

	if err := s.repo.DeleteSyncQueueEntry(movie.ID); err != nil {
		s.log.Warn("sync queue cleanup failed",
			"non_critical", true, "movie_id", movie.ID, "error", err)
	}

	s.log.Info("stream linked", "movie_id", movie.ID, "host", host)
	return &CommitResult{MovieID: movie.ID, Host: host}, nil
}

// RegisterSignature computes and persists the content signature of the given
// URL for a movie, and refreshes the movie's compact fingerprint column.
func (s *Service) RegisterSignature(ctx context.Context, movieID int64, rawURL string, headers map[string]string) (*Signature, error) {
	if movieID <= 0 {
		return nil, &ValidationError{Code: "missing_movie_id"}
	}
	if strings.TrimSpace(rawURL) == "" {
		return nil, &ValidationError{Code: "missing_url"}
	}

	movie, err := s.repo.GetMovie(movieID)
	if err != nil {
		return nil, err
	}
	if movie == nil {
		return nil, ErrMovieNotFound
	}

	sig := s.signatures.Compute(ctx, rawURL, headers)
	if sig.Empty() {
		return nil, ErrSignatureUnavailable
	}

	if err := s.repo.UpsertSignature(models.ContentSignature{
		MovieID:    movieID,
		SizeBytes:  sig.SizeBytes,
		HeadSHA256: sig.HeadSHA256,
		TailSHA256: sig.TailSHA256,
	}); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStreamFingerprint(movieID, sig.Fingerprint()); err != nil {
		return nil, err
	}
	return &sig, nil
}

// RegisterProviderID records an explicit (provider_host, provider_id) ->
// movie mapping. The id pair may be given directly or extracted from a URL.
func (s *Service) RegisterProviderID(ctx context.Context, movieID int64, rawURL, providerHost, providerID string) (string, string, error) {
	if movieID <= 0 {
		return "", "", &ValidationError{Code: "missing_movie_id"}
	}
	if providerHost == "" || providerID == "" {
		if rawURL != "" {
			if host, id, ok := ExtractProviderID(NormalizeURL(rawURL)); ok {
				providerHost, providerID = host, id
			}
		}
	}
	if providerHost == "" || providerID == "" {
		return "", "", &ValidationError{Code: "missing_provider_info"}
	}

	movie, err := s.repo.GetMovie(movieID)
	if err != nil {
		return "", "", err
	}
	if movie == nil {
		return "", "", ErrMovieNotFound
	}

	if err := s.repo.UpsertProviderMapping(providerHost, providerID, movieID); err != nil {
		return "", "", err
	}
	return providerHost, providerID, nil
}

// lookupProvider resolves the URL's embedded provider id against the
// registry.
func (s *Service) lookupProvider(normalizedURL string) (int64, bool, error) {
	providerHost, providerID, ok := ExtractProviderID(normalizedURL)
	if !ok {
		return 0, false, nil
	}
	return s.repo.LookupProviderMapping(providerHost, providerID)
}

// lookupSignature finds stored signatures compatible with the computed one:
// every field present on both sides must agree, and at least one hash must
// overlap. This is a probabilistic shortcut, not proof of full-content
// equality.
func (s *Service) lookupSignature(sig Signature) ([]int64, error) {
	if sig.Empty() {
		return nil, nil
	}
	rows, err := s.repo.FindSignatures(sig.HeadSHA256, sig.TailSHA256)
	if err != nil {
		return nil, err
	}

	var matches []int64
	for _, row := range rows {
		if signaturesCompatible(row, sig) {
			matches = append(matches, row.MovieID)
		}
	}
	return matches, nil
}

func signaturesCompatible(stored models.ContentSignature, computed Signature) bool {
	if stored.SizeBytes != nil && computed.SizeBytes != nil && *stored.SizeBytes != *computed.SizeBytes {
		return false
	}

	overlap := false
	if stored.HeadSHA256 != nil && computed.HeadSHA256 != nil {
		if *stored.HeadSHA256 != *computed.HeadSHA256 {
			return false
		}
		overlap = true
	}
	if stored.TailSHA256 != nil && computed.TailSHA256 != nil {
		if *stored.TailSHA256 != *computed.TailSHA256 {
			return false
		}
		overlap = true
	}
	return overlap
}

// searchHints merges URL-derived tokens with the caller's hints.
func (s *Service) searchHints(rawURL, titleHint string, yearHint int) ([]string, int) {
	tokens, year := ExtractTokens(rawURL)
	if titleHint != "" {
		seen := make(map[string]bool, len(tokens))
		for _, token := range tokens {
			seen[token] = true
		}
		for _, token := range TokenizeTitle(titleHint) {
			if !seen[token] {
				seen[token] = true
				tokens = append(tokens, token)
			}
		}
	}
	if yearHint > 0 {
		year = yearHint
	}
	return tokens, year
}

// fuzzyCandidates queries the catalog and scores the rows. A failing
// filtered query falls back to an unfiltered capped fetch.
func (s *Service) fuzzyCandidates(tokens []string, year int, urlHost string) ([]models.MatchCandidate, error) {
	movies, err := s.repo.SearchMovies(tokens, year, 200)
	if err != nil {
		s.log.Warn("filtered catalog query failed, falling back to unfiltered fetch",
			"non_critical", true, "error", err)
		movies, err = s.repo.ListMovies(200)
		if err != nil {
			return nil, err
		}
	}
	return ScoreCandidates(movies, tokens, year, urlHost), nil
}

// hostFor classifies a URL as hosted on the configured base ("r2") or
// externally.
func (s *Service) hostFor(rawURL string) string {
	if s.hostingBaseURL != "" && strings.HasPrefix(rawURL, s.hostingBaseURL) {
		return HostR2
	}
	return HostExternal
}
