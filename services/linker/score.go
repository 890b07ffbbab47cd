package linker

import (
	"fmt"
	"sort"

	"medialink/models"
)

const (
	yearBoost            = 0.15
	alreadyHostedPenalty = 0.1
	maxCandidates        = 20
)

// ScoreCandidates ranks catalog rows against the tokens extracted from a
// submitted URL. Jaccard title overlap is the base score, a matching release
// year adds a boost, and rows already linked on the same host are
// de-prioritized. Scores are clamped to [0,1]; the top 20 are returned in
// descending order.
func ScoreCandidates(movies []models.Movie, tokens []string, yearHint int, urlHost string) []models.MatchCandidate {
	candidates := make([]models.MatchCandidate, 0, len(movies))
	for _, movie := range movies {
		candidates = append(candidates, scoreCandidate(movie, tokens, yearHint, urlHost))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

func scoreCandidate(movie models.Movie, tokens []string, yearHint int, urlHost string) models.MatchCandidate {
	overlap := jaccard(TokenizeTitle(movie.Title), tokens)
	score := overlap
	reasons := []string{fmt.Sprintf("title_overlap:%.2f", overlap)}

	if yearHint > 0 && movie.ReleaseYear() == yearHint {
		score += yearBoost
		reasons = append(reasons, fmt.Sprintf("year_hint:%d", yearHint))
	}
	if movie.HasVideoURL() && urlHost != "" && hostOf(*movie.VideoURL) == urlHost {
		score -= alreadyHostedPenalty
		reasons = append(reasons, "already_hosted")
	}

	return models.MatchCandidate{Movie: movie, Score: clamp01(score), Reasons: reasons}
}

// jaccard computes |intersection| / |union| over two token lists treated as
// sets. An empty union scores 0.
func jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, token := range a {
		setA[token] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, token := range b {
		setB[token] = struct{}{}
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
