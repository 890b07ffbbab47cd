package linker

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"medialink/internal/database"
	"medialink/models"
)

// setupTestService creates a link service over a fresh sqlite database.
func setupTestService(t *testing.T) (*Service, *database.Repository) {
	t.Helper()
	db, err := database.NewDB(database.Config{DatabasePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := NewService(db.Repository, NewSignatureEngine(time.Second), "https://media.example.com/", 0.6)
	return svc, db.Repository
}

func insertMovie(t *testing.T, repo *database.Repository, title, releaseDate string) *models.Movie {
	t.Helper()
	movie := &models.Movie{Title: title, ReleaseDate: releaseDate}
	if err := repo.InsertMovie(movie); err != nil {
		t.Fatalf("failed to insert movie: %v", err)
	}
	return movie
}

func TestAuto_FuzzyMatchCommits(t *testing.T) {
	svc, repo := setupTestService(t)
	movie := insertMovie(t, repo, "Badland Hunters", "2023-01-26")
	insertMovie(t, repo, "Something Else Entirely", "2019-05-05")

	result, err := svc.Auto(context.Background(), AutoRequest{
		URL: "https://streams.example.net/files/Badland.Hunters.2023.1080p.mp4",
	})
	if err != nil {
		t.Fatalf("Auto failed: %v", err)
	}
	if result.MovieID != movie.ID {
		t.Errorf("expected movie %d, got %d", movie.ID, result.MovieID)
	}
	if result.Score < 0.6 {
		t.Errorf("expected confident score, got %f", result.Score)
	}
	if result.Host != HostExternal {
		t.Errorf("expected external host, got %q", result.Host)
	}

	updated, err := repo.GetMovie(movie.ID)
	if err != nil {
		t.Fatalf("GetMovie failed: %v", err)
	}
	if !updated.HasVideoURL() {
		t.Fatal("expected videourl to be set")
	}
}

func TestAuto_NoConfidentMatch(t *testing.T) {
	svc, repo := setupTestService(t)
	insertMovie(t, repo, "Completely Different", "1999-03-03")

	_, err := svc.Auto(context.Background(), AutoRequest{
		URL: "https://streams.example.net/files/Badland.Hunters.2023.1080p.mp4",
	})

	var noMatch *NoMatchError
	if !errors.As(err, &noMatch) {
		t.Fatalf("expected NoMatchError, got %v", err)
	}
	if noMatch.BestScore >= 0.6 {
		t.Errorf("expected best score below threshold, got %f", noMatch.BestScore)
	}
}

func TestAuto_CustomMinScore(t *testing.T) {
	svc, repo := setupTestService(t)
	insertMovie(t, repo, "Badland Hunters", "2023-01-26")

	// An impossible threshold turns a confident match into a miss.
	_, err := svc.Auto(context.Background(), AutoRequest{
		URL:      "https://streams.example.net/files/Badland.Hunters.2023.1080p.mp4",
		MinScore: 0.99,
	})
	var noMatch *NoMatchError
	if !errors.As(err, &noMatch) {
		t.Fatalf("expected NoMatchError, got %v", err)
	}
	if noMatch.Best == nil {
		t.Fatal("expected best candidate attached for review")
	}
}

func TestAuto_ProviderMappingShortCircuits(t *testing.T) {
	svc, repo := setupTestService(t)
	movie := insertMovie(t, repo, "Some Obscure Title", "2010-01-01")

	url := "https://cdn.host.example/v/d8e41ad0-e273-d7d4-a92a-2579bcc6c8a9/stream.mp4"
	if err := repo.UpsertProviderMapping("cdn.host.example", "d8e41ad0-e273-d7d4-a92a-2579bcc6c8a9", movie.ID); err != nil {
		t.Fatalf("UpsertProviderMapping failed: %v", err)
	}

	result, err := svc.Auto(context.Background(), AutoRequest{URL: url})
	if err != nil {
		t.Fatalf("Auto failed: %v", err)
	}
	if result.MovieID != movie.ID {
		t.Errorf("expected provider-mapped movie %d, got %d", movie.ID, result.MovieID)
	}
	if result.Score != 1.0 {
		t.Errorf("expected score 1.0 for exact match, got %f", result.Score)
	}
}

func TestAuto_SignatureMatchBeatsFuzzyMiss(t *testing.T) {
	svc, repo := setupTestService(t)
	movie := insertMovie(t, repo, "Totally Unrelated Name", "2001-01-01")

	content := testContent(64 << 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "s.bin", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)

	if _, err := svc.RegisterSignature(context.Background(), movie.ID, srv.URL+"/first.mp4", nil); err != nil {
		t.Fatalf("RegisterSignature failed: %v", err)
	}

	// Same bytes under a name with zero token overlap.
	result, err := svc.Auto(context.Background(), AutoRequest{URL: srv.URL + "/zz.mp4"})
	if err != nil {
		t.Fatalf("Auto failed: %v", err)
	}
	if result.MovieID != movie.ID {
		t.Errorf("expected signature-matched movie %d, got %d", movie.ID, result.MovieID)
	}
	if result.Score != 1.0 {
		t.Errorf("expected score 1.0, got %f", result.Score)
	}
}

func TestCommit_ConflictSafety(t *testing.T) {
	svc, repo := setupTestService(t)
	m1 := insertMovie(t, repo, "First Movie", "2020-01-01")
	m2 := insertMovie(t, repo, "Second Movie", "2021-01-01")
	url := "https://streams.example.net/files/first.mp4"

	// First commit succeeds.
	if _, err := svc.Commit(context.Background(), CommitRequest{MovieID: m1.ID, URL: url}); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	// Same URL to a different movie fails regardless of force.
	for _, force := range []bool{false, true} {
		_, err := svc.Commit(context.Background(), CommitRequest{MovieID: m2.ID, URL: url, Force: force})
		var conflict *ConflictError
		if !errors.As(err, &conflict) || conflict.Code != ConflictURLLinkedToOther {
			t.Fatalf("force=%v: expected %s, got %v", force, ConflictURLLinkedToOther, err)
		}
		if conflict.OtherMovieID != m1.ID {
			t.Errorf("expected conflicting movie %d, got %d", m1.ID, conflict.OtherMovieID)
		}
	}

	// Re-commit to the same movie without force is rejected with the
	// existing URL attached.
	_, err := svc.Commit(context.Background(), CommitRequest{MovieID: m1.ID, URL: url})
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Code != ConflictMovieHasVideoURL {
		t.Fatalf("expected %s, got %v", ConflictMovieHasVideoURL, err)
	}
	if conflict.ExistingURL != url {
		t.Errorf("expected existing URL %q, got %q", url, conflict.ExistingURL)
	}

	// With force it overwrites.
	if _, err := svc.Commit(context.Background(), CommitRequest{MovieID: m1.ID, URL: url, Force: true}); err != nil {
		t.Fatalf("forced commit failed: %v", err)
	}
}

func TestCommit_PreservesOriginalVideoURL(t *testing.T) {
	svc, repo := setupTestService(t)
	movie := insertMovie(t, repo, "A Movie", "2020-01-01")

	first := "https://streams.example.net/v1.mp4"
	second := "https://streams.example.net/v2.mp4"

	if _, err := svc.Commit(context.Background(), CommitRequest{MovieID: movie.ID, URL: first}); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	if _, err := svc.Commit(context.Background(), CommitRequest{MovieID: movie.ID, URL: second, Force: true}); err != nil {
		t.Fatalf("second commit failed: %v", err)
	}

	updated, _ := repo.GetMovie(movie.ID)
	if updated.OriginalVideoURL == nil || *updated.OriginalVideoURL != first {
		t.Errorf("expected original_videourl to stay %q, got %v", first, updated.OriginalVideoURL)
	}
	if updated.VideoURL == nil || *updated.VideoURL != second {
		t.Errorf("expected videourl %q, got %v", second, updated.VideoURL)
	}
	if updated.VideoUploadedAt == nil {
		t.Error("expected video_uploaded_at to be stamped")
	}
}

func TestCommit_HostClassification(t *testing.T) {
	svc, repo := setupTestService(t)
	hosted := insertMovie(t, repo, "Hosted Movie", "2020-01-01")
	external := insertMovie(t, repo, "External Movie", "2020-01-01")

	result, err := svc.Commit(context.Background(), CommitRequest{
		MovieID: hosted.ID, URL: "https://media.example.com/v/hosted.mp4",
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if result.Host != HostR2 {
		t.Errorf("expected %q, got %q", HostR2, result.Host)
	}

	result, err = svc.Commit(context.Background(), CommitRequest{
		MovieID: external.ID, URL: "https://elsewhere.example.net/v/ext.mp4",
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if result.Host != HostExternal {
		t.Errorf("expected %q, got %q", HostExternal, result.Host)
	}
}

func TestCommit_ClearsSyncQueue(t *testing.T) {
	svc, repo := setupTestService(t)
	movie := insertMovie(t, repo, "Queued Movie", "2020-01-01")
	if err := repo.EnqueueSync(movie.ID); err != nil {
		t.Fatalf("EnqueueSync failed: %v", err)
	}

	if _, err := svc.Commit(context.Background(), CommitRequest{
		MovieID: movie.ID, URL: "https://streams.example.net/q.mp4",
	}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	pending, err := repo.SyncQueueContains(movie.ID)
	if err != nil {
		t.Fatalf("SyncQueueContains failed: %v", err)
	}
	if pending {
		t.Error("expected sync queue entry to be cleared")
	}
}

func TestCommit_TrustsProviderIDFromURL(t *testing.T) {
	svc, repo := setupTestService(t)
	movie := insertMovie(t, repo, "Trusted Movie", "2020-01-01")

	url := "https://cdn.host.example/v/d8e41ad0-e273-d7d4-a92a-2579bcc6c8a9/stream.mp4"
	if _, err := svc.Commit(context.Background(), CommitRequest{MovieID: movie.ID, URL: url}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	movieID, found, err := repo.LookupProviderMapping("cdn.host.example", "d8e41ad0-e273-d7d4-a92a-2579bcc6c8a9")
	if err != nil {
		t.Fatalf("LookupProviderMapping failed: %v", err)
	}
	if !found || movieID != movie.ID {
		t.Errorf("expected implicit mapping to movie %d, got found=%v id=%d", movie.ID, found, movieID)
	}
}

func TestCommit_MovieNotFound(t *testing.T) {
	svc, _ := setupTestService(t)
	_, err := svc.Commit(context.Background(), CommitRequest{MovieID: 999, URL: "https://x.example/v.mp4"})
	if !errors.Is(err, ErrMovieNotFound) {
		t.Errorf("expected ErrMovieNotFound, got %v", err)
	}
}

func TestCommit_Validation(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.Commit(context.Background(), CommitRequest{URL: "https://x.example/v.mp4"})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	_, err = svc.Commit(context.Background(), CommitRequest{MovieID: 1})
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPreview_RanksCandidatesWithoutMutating(t *testing.T) {
	svc, repo := setupTestService(t)
	best := insertMovie(t, repo, "Badland Hunters", "2023-01-26")
	insertMovie(t, repo, "Badland", "2019-01-01")

	result, err := svc.Preview(context.Background(), PreviewRequest{
		URL: "https://streams.example.net/files/Badland.Hunters.2023.1080p.mp4",
	})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if result.NormalizedURL != "https://streams.example.net/files/Badland.Hunters.2023.1080p.mp4" {
		t.Errorf("unexpected normalized URL %q", result.NormalizedURL)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Movie.ID != best.ID {
		t.Fatalf("expected %d ranked first, got %+v", best.ID, result.Candidates)
	}

	// Preview never commits.
	updated, _ := repo.GetMovie(best.ID)
	if updated.HasVideoURL() {
		t.Error("preview must not mutate the catalog")
	}
}

func TestPreview_MovieIDMustExist(t *testing.T) {
	svc, _ := setupTestService(t)
	_, err := svc.Preview(context.Background(), PreviewRequest{
		URL:     "https://streams.example.net/files/whatever.mp4",
		MovieID: 12345,
	})
	if !errors.Is(err, ErrMovieNotFound) {
		t.Errorf("expected ErrMovieNotFound, got %v", err)
	}
}

func TestPreview_RequestedMovieAlwaysListed(t *testing.T) {
	svc, repo := setupTestService(t)
	insertMovie(t, repo, "Badland Hunters", "2023-01-26")
	requested := insertMovie(t, repo, "Nothing Alike", "1980-01-01")

	result, err := svc.Preview(context.Background(), PreviewRequest{
		URL:     "https://streams.example.net/files/Badland.Hunters.2023.1080p.mp4",
		MovieID: requested.ID,
	})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	found := false
	for _, candidate := range result.Candidates {
		if candidate.Movie.ID == requested.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected requested movie in candidate list")
	}
}

func TestPreview_TitleAndYearHints(t *testing.T) {
	svc, repo := setupTestService(t)
	movie := insertMovie(t, repo, "Badland Hunters", "2023-01-26")

	// The URL alone carries nothing useful; hints must drive the match.
	result, err := svc.Preview(context.Background(), PreviewRequest{
		URL:       "https://streams.example.net/files/xyz.mp4",
		TitleHint: "Badland Hunters",
		YearHint:  2023,
	})
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Movie.ID != movie.ID {
		t.Fatalf("expected hint-driven match, got %+v", result.Candidates)
	}
	if result.Candidates[0].Score < 0.6 {
		t.Errorf("expected confident score from hints, got %f", result.Candidates[0].Score)
	}
}

func TestRegisterSignature_PersistsAndFingerprints(t *testing.T) {
	svc, repo := setupTestService(t)
	movie := insertMovie(t, repo, "Signed Movie", "2020-01-01")

	content := testContent(8192)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "s.bin", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)

	sig, err := svc.RegisterSignature(context.Background(), movie.ID, srv.URL+"/s.mp4", nil)
	if err != nil {
		t.Fatalf("RegisterSignature failed: %v", err)
	}
	if sig.HeadSHA256 == nil || sig.SizeBytes == nil {
		t.Fatalf("expected a populated signature, got %+v", sig)
	}

	updated, _ := repo.GetMovie(movie.ID)
	if updated.StreamFingerprint == nil || *updated.StreamFingerprint != sig.Fingerprint() {
		t.Errorf("expected stream_fingerprint %q, got %v", sig.Fingerprint(), updated.StreamFingerprint)
	}
}

func TestRegisterSignature_UnavailableUpstream(t *testing.T) {
	svc, repo := setupTestService(t)
	movie := insertMovie(t, repo, "Unreachable Movie", "2020-01-01")

	_, err := svc.RegisterSignature(context.Background(), movie.ID, "http://127.0.0.1:1/gone.mp4", nil)
	if !errors.Is(err, ErrSignatureUnavailable) {
		t.Errorf("expected ErrSignatureUnavailable, got %v", err)
	}
}

func TestRegisterProviderID_FromURL(t *testing.T) {
	svc, repo := setupTestService(t)
	movie := insertMovie(t, repo, "Mapped Movie", "2020-01-01")

	host, id, err := svc.RegisterProviderID(context.Background(), movie.ID,
		"https://cdn.host.example/v/d8e41ad0-e273-d7d4-a92a-2579bcc6c8a9/stream.mp4", "", "")
	if err != nil {
		t.Fatalf("RegisterProviderID failed: %v", err)
	}
	if host != "cdn.host.example" || id != "d8e41ad0-e273-d7d4-a92a-2579bcc6c8a9" {
		t.Errorf("unexpected mapping %q/%q", host, id)
	}

	movieID, found, _ := repo.LookupProviderMapping(host, id)
	if !found || movieID != movie.ID {
		t.Errorf("expected mapping persisted for movie %d", movie.ID)
	}
}

func TestRegisterProviderID_MissingInfo(t *testing.T) {
	svc, repo := setupTestService(t)
	movie := insertMovie(t, repo, "Unmappable Movie", "2020-01-01")

	_, _, err := svc.RegisterProviderID(context.Background(), movie.ID,
		"https://host.example/short/movie.mp4", "", "")
	var validation *ValidationError
	if !errors.As(err, &validation) || validation.Code != "missing_provider_info" {
		t.Errorf("expected missing_provider_info, got %v", err)
	}
}
