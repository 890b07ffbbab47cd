package models

// ContentSignature is a persisted partial-content fingerprint of a stream
// previously linked to a movie. At least one of the two hashes is present on
// a stored row; size may be unknown when the host never reported one.
type ContentSignature struct {
	MovieID    int64   `json:"movieId"`
	SizeBytes  *int64  `json:"sizeBytes,omitempty"`
	HeadSHA256 *string `json:"headSha256,omitempty"`
	TailSHA256 *string `json:"tailSha256,omitempty"`
}

// ProviderMapping is an exact-match registry entry: a hosting provider's
// stable per-asset identifier resolved to a movie.
type ProviderMapping struct {
	ProviderHost string `json:"providerHost"`
	ProviderID   string `json:"providerId"`
	MovieID      int64  `json:"movieId"`
}

// MatchCandidate pairs a catalog row with a match score and the reasons the
// score was awarded. Never persisted; scoring output only.
type MatchCandidate struct {
	Movie   Movie    `json:"movie"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}
