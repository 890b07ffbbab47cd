package linker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sourcegraph/conc/pool"

	"medialink/utils"
)

// chunkSize is how much of the remote file is hashed at each end.
const chunkSize int64 = 1 << 20 // 1 MiB

// Signature is a request-scoped content fingerprint: the remote file's size
// plus SHA-256 hashes of its first and last byte ranges. Every field is
// best-effort; a failed fetch leaves it absent rather than failing the
// request.
type Signature struct {
	SizeBytes   *int64  `json:"sizeBytes,omitempty"`
	HeadSHA256  *string `json:"headSha256,omitempty"`
	TailSHA256  *string `json:"tailSha256,omitempty"`
	ContentType string  `json:"contentType,omitempty"`
}

// Empty reports whether no hash could be computed at all.
func (s Signature) Empty() bool {
	return s.HeadSHA256 == nil && s.TailSHA256 == nil
}

// Fingerprint renders the signature as a compact string for the
// movies.stream_fingerprint column.
func (s Signature) Fingerprint() string {
	size, head, tail := "-", "-", "-"
	if s.SizeBytes != nil {
		size = strconv.FormatInt(*s.SizeBytes, 10)
	}
	if s.HeadSHA256 != nil {
		head = *s.HeadSHA256
	}
	if s.TailSHA256 != nil {
		tail = *s.TailSHA256
	}
	return fmt.Sprintf("%s:%s:%s", size, head, tail)
}

// SignatureEngine computes partial byte-range fingerprints of remote files
// without downloading them fully.
type SignatureEngine struct {
	log    *slog.Logger
	client *http.Client
}

// NewSignatureEngine creates an engine with the given per-call timeout
// (15s when unset).
func NewSignatureEngine(timeout time.Duration) *SignatureEngine {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SignatureEngine{
		log:    slog.Default().With("component", "signature"),
		client: &http.Client{Timeout: timeout},
	}
}

// Compute fingerprints the file behind rawURL. A HEAD request learns the
// size; head and tail chunks are then fetched concurrently with ranged GETs
// and hashed independently. When the server does not cooperate the result
// degrades to a head-only hash or to nothing — never an error.
func (e *SignatureEngine) Compute(ctx context.Context, rawURL string, headers map[string]string) Signature {
	var sig Signature

	if err := utils.ValidateMediaURL(rawURL); err != nil {
		e.log.Debug("refusing to fingerprint url", "url", rawURL, "error", err)
		return sig
	}

	fetchURL := rawURL
	if encoded, err := utils.EncodeURLWithSpaces(rawURL); err == nil {
		fetchURL = encoded
	}

	size, known := e.probeSize(ctx, fetchURL, headers)
	if !known {
		// Size unknown: hash only the first chunk.
		if head := e.fetchRange(ctx, fetchURL, headers, 0, chunkSize-1); len(head) > 0 {
			sig.HeadSHA256 = hashChunk(head)
			sig.ContentType = mimetype.Detect(head).String()
		}
		return sig
	}
	sig.SizeBytes = &size

	span := min(chunkSize, size)
	var headBytes, tailBytes []byte

	p := pool.New()
	p.Go(func() {
		headBytes = e.fetchRange(ctx, fetchURL, headers, 0, span-1)
	})
	p.Go(func() {
		tailBytes = e.fetchRange(ctx, fetchURL, headers, size-span, size-1)
	})
	p.Wait()

	if len(headBytes) > 0 {
		sig.HeadSHA256 = hashChunk(headBytes)
		sig.ContentType = mimetype.Detect(headBytes).String()
	}
	if len(tailBytes) > 0 {
		sig.TailSHA256 = hashChunk(tailBytes)
	}
	return sig
}

// probeSize issues a HEAD request to learn the remote file size.
func (e *SignatureEngine) probeSize(ctx context.Context, rawURL string, headers map[string]string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, false
	}
	applyHeaders(req, headers)

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Debug("head probe failed", "url", rawURL, "error", err)
		return 0, false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 || resp.ContentLength <= 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

// fetchRange fetches the byte range [start, end] of the file. Returns nil on
// any failure, or when the server ignores a non-zero-offset range request
// (reading the whole body would defeat the point of a partial fingerprint).
func (e *SignatureEngine) fetchRange(ctx context.Context, rawURL string, headers map[string]string, start, end int64) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil
	}
	applyHeaders(req, headers)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Debug("range fetch failed", "url", rawURL, "start", start, "error", err)
		return nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if start != 0 {
			e.log.Debug("server ignored range request, skipping tail", "url", rawURL)
			return nil
		}
	default:
		e.log.Debug("range fetch rejected", "url", rawURL, "status", resp.StatusCode)
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, end-start+1))
	if err != nil {
		e.log.Debug("range read failed", "url", rawURL, "error", err)
		return nil
	}
	return data
}

func applyHeaders(req *http.Request, headers map[string]string) {
	for key, value := range headers {
		req.Header.Set(key, value)
	}
}

func hashChunk(data []byte) *string {
	sum := sha256.Sum256(data)
	encoded := hex.EncodeToString(sum[:])
	return &encoded
}
