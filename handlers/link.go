package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"medialink/api"
	"medialink/services/linker"
)

// LinkHandler exposes the direct-link endpoints.
type LinkHandler struct {
	log *slog.Logger
	svc *linker.Service
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(svc *linker.Service) *LinkHandler {
	return &LinkHandler{
		log: slog.Default().With("component", "link-handler"),
		svc: svc,
	}
}

// RegisterLinkRoutes installs the explicit method+path route table. Bare
// GETs anywhere are liveness probes; everything else under /link requires
// the admin secret. Unknown routes echo the path back.
func RegisterLinkRoutes(r *mux.Router, h *LinkHandler, auth api.Authenticator, limiter *api.ClientRateLimiter) {
	link := r.PathPrefix("/link").Subrouter()
	link.Use(api.RateLimitMiddleware(limiter))
	link.Use(api.AdminAuthMiddleware(auth))
	link.HandleFunc("/preview", h.Preview).Methods(http.MethodPost)
	link.HandleFunc("/commit", h.Commit).Methods(http.MethodPost)
	link.HandleFunc("/bulk-commit", h.BulkCommit).Methods(http.MethodPost)
	link.HandleFunc("/auto", h.Auto).Methods(http.MethodPost)
	link.HandleFunc("/register-signature", h.RegisterSignature).Methods(http.MethodPost)
	link.HandleFunc("/register-provider-id", h.RegisterProviderID).Methods(http.MethodPost)

	// Liveness: a bare GET to any path answers without auth.
	r.PathPrefix("/").Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.NotFoundHandler = unknownRouteHandler(auth)
	r.MethodNotAllowedHandler = unknownRouteHandler(auth)
}

// unknownRouteHandler still enforces auth before revealing anything about
// the route table.
func unknownRouteHandler(auth api.Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodOptions {
			if err := auth.Authenticate(r); err != nil {
				respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		respondJSON(w, http.StatusNotFound, map[string]string{
			"error": "unknown_route",
			"path":  r.URL.Path,
		})
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errorBody maps a service error onto an HTTP status and JSON payload
// following the boundary taxonomy: validation 400, not-found 404, conflict
// 409 (with conflicting state attached), unavailable signature 422, no
// confident match 404 with diagnostics, anything else 500 verbatim.
func errorBody(err error) (int, map[string]any) {
	var validation *linker.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, map[string]any{"error": validation.Code}
	}
	if errors.Is(err, linker.ErrMovieNotFound) {
		return http.StatusNotFound, map[string]any{"error": "movie_not_found"}
	}
	if errors.Is(err, linker.ErrSignatureUnavailable) {
		return http.StatusUnprocessableEntity, map[string]any{"error": "signature_unavailable"}
	}

	var conflict *linker.ConflictError
	if errors.As(err, &conflict) {
		body := map[string]any{"error": conflict.Code}
		if conflict.ExistingURL != "" {
			body["existingUrl"] = conflict.ExistingURL
		}
		if conflict.OtherMovieID != 0 {
			body["otherMovieId"] = conflict.OtherMovieID
		}
		return http.StatusConflict, body
	}

	var noMatch *linker.NoMatchError
	if errors.As(err, &noMatch) {
		body := map[string]any{
			"error":     "no_confident_match",
			"bestScore": noMatch.BestScore,
		}
		if noMatch.Best != nil {
			body["bestCandidate"] = noMatch.Best
		}
		return http.StatusNotFound, body
	}

	return http.StatusInternalServerError, map[string]any{"error": err.Error()}
}

func (h *LinkHandler) respondError(w http.ResponseWriter, err error) {
	status, body := errorBody(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
	}
	respondJSON(w, status, body)
}

type previewRequest struct {
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	TitleHint string            `json:"titleHint"`
	YearHint  int               `json:"yearHint"`
	MovieID   int64             `json:"movieId"`
}

// Preview returns ranked candidates for a URL without mutating storage.
func (h *LinkHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.Preview(r.Context(), linker.PreviewRequest{
		URL:       req.URL,
		Headers:   req.Headers,
		TitleHint: req.TitleHint,
		YearHint:  req.YearHint,
		MovieID:   req.MovieID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type commitRequest struct {
	MovieID int64             `json:"movieId"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Force   bool              `json:"force"`
}

// Commit applies an explicit (movie, url) mapping.
func (h *LinkHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.Commit(r.Context(), linker.CommitRequest{
		MovieID: req.MovieID,
		URL:     req.URL,
		Headers: req.Headers,
		Force:   req.Force,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"movieId": result.MovieID,
		"host":    result.Host,
	})
}

type bulkCommitRequest struct {
	Items []commitRequest `json:"items"`
}

type bulkCommitItemResult struct {
	MovieID int64  `json:"movieId"`
	OK      bool   `json:"ok"`
	Status  int    `json:"status"`
	Host    string `json:"host,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BulkCommit applies commits per item independently; partial failure is
// expected and each item reports its own status.
func (h *LinkHandler) BulkCommit(w http.ResponseWriter, r *http.Request) {
	var req bulkCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Items) == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "empty_items"})
		return
	}

	results := make([]bulkCommitItemResult, 0, len(req.Items))
	for _, item := range req.Items {
		result, err := h.svc.Commit(r.Context(), linker.CommitRequest{
			MovieID: item.MovieID,
			URL:     item.URL,
			Headers: item.Headers,
			Force:   item.Force,
		})
		if err != nil {
			status, body := errorBody(err)
			message, _ := body["error"].(string)
			results = append(results, bulkCommitItemResult{
				MovieID: item.MovieID,
				Status:  status,
				Error:   message,
			})
			continue
		}
		results = append(results, bulkCommitItemResult{
			MovieID: result.MovieID,
			OK:      true,
			Status:  http.StatusOK,
			Host:    result.Host,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "results": results})
}

type autoRequest struct {
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers"`
	MinScore float64           `json:"minScore"`
	Force    bool              `json:"force"`
}

// Auto matches and commits in one call.
func (h *LinkHandler) Auto(w http.ResponseWriter, r *http.Request) {
	var req autoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.Auto(r.Context(), linker.AutoRequest{
		URL:      req.URL,
		Headers:  req.Headers,
		MinScore: req.MinScore,
		Force:    req.Force,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"movieId":       result.MovieID,
		"title":         result.Title,
		"score":         result.Score,
		"host":          result.Host,
		"normalizedUrl": result.NormalizedURL,
	})
}

type registerSignatureRequest struct {
	MovieID int64             `json:"movieId"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// RegisterSignature fingerprints a URL and stores the signature for a movie.
func (h *LinkHandler) RegisterSignature(w http.ResponseWriter, r *http.Request) {
	var req registerSignatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sig, err := h.svc.RegisterSignature(r.Context(), req.MovieID, req.URL, req.Headers)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"movieId":   req.MovieID,
		"signature": sig,
	})
}

type registerProviderIDRequest struct {
	MovieID      int64  `json:"movieId"`
	URL          string `json:"url"`
	ProviderHost string `json:"providerHost"`
	ProviderID   string `json:"providerId"`
}

// RegisterProviderID records an explicit provider mapping for a movie.
func (h *LinkHandler) RegisterProviderID(w http.ResponseWriter, r *http.Request) {
	var req registerProviderIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	providerHost, providerID, err := h.svc.RegisterProviderID(
		r.Context(), req.MovieID, req.URL, req.ProviderHost, req.ProviderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"movieId":      req.MovieID,
		"providerHost": providerHost,
		"providerId":   providerID,
	})
}
