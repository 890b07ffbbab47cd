package linker

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

var (
	reYear          = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	reSeasonEpisode = regexp.MustCompile(`(?i)^(s\d{1,2}(e\d{1,2})?|e\d{1,3}|\d{1,2}x\d{1,2})$`)
	reSeparators    = regexp.MustCompile(`[._\-+,;:!'"&()\[\]{}~#@=]+`)
)

// stopTokens are release-quality, codec, source and container tags that
// carry no title information.
var stopTokens = map[string]struct{}{
	"480p":     {},
	"576p":     {},
	"720p":     {},
	"1080p":    {},
	"2160p":    {},
	"4k":       {},
	"8k":       {},
	"hdr":      {},
	"hdr10":    {},
	"hdr10+":   {},
	"sdr":      {},
	"dv":       {},
	"10bit":    {},
	"8bit":     {},
	"x264":     {},
	"x265":     {},
	"h264":     {},
	"h265":     {},
	"hevc":     {},
	"avc":      {},
	"av1":      {},
	"aac":      {},
	"ac3":      {},
	"eac3":     {},
	"dts":      {},
	"truehd":   {},
	"atmos":    {},
	"dd5":      {},
	"ddp5":     {},
	"web":      {},
	"webrip":   {},
	"web-dl":   {},
	"webdl":    {},
	"hdtv":     {},
	"bluray":   {},
	"bdrip":    {},
	"brrip":    {},
	"dvdrip":   {},
	"remux":    {},
	"proper":   {},
	"repack":   {},
	"extended": {},
	"unrated":  {},
	"imax":     {},
	"multi":    {},
	"dual":     {},
	"dubbed":   {},
	"subbed":   {},
	"mkv":      {},
	"mp4":      {},
	"avi":      {},
	"mov":      {},
	"webm":     {},
	"m4v":      {},
	"mpg":      {},
	"mpeg":     {},
	"wmv":      {},
	"flv":      {},
	"yify":     {},
	"yts":      {},
	"rarbg":    {},
	"galaxyrg": {},
}

// ExtractTokens derives lower-cased search tokens and a release-year hint
// from a stream URL or bare filename. Deterministic and pure: release tags,
// season/episode markers and tokens shorter than two characters are dropped.
func ExtractTokens(rawURL string) ([]string, int) {
	segment := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		segment = path.Base(u.Path)
	}
	if decoded, err := url.PathUnescape(segment); err == nil {
		segment = decoded
	}

	// Strip a file extension before tokenizing so "Movie.2021.mkv" and
	// "Movie 2021" produce the same tokens.
	if ext := path.Ext(segment); len(ext) > 1 && len(ext) <= 5 {
		segment = strings.TrimSuffix(segment, ext)
	}

	year := extractYear(segment)
	return tokenize(segment), year
}

// TokenizeTitle applies the same token pipeline to a catalog title.
func TokenizeTitle(title string) []string {
	return tokenize(title)
}

func tokenize(s string) []string {
	s = strings.ToLower(unidecode.Unidecode(s))
	s = reSeparators.ReplaceAllString(s, " ")

	var tokens []string
	for _, token := range strings.Fields(s) {
		if len(token) < 2 {
			continue
		}
		if _, stop := stopTokens[token]; stop {
			continue
		}
		if reSeasonEpisode.MatchString(token) {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// extractYear finds a 4-digit year in 1900-2099. When several appear (a
// title containing a year plus the release year) the last one wins, since
// release years follow the title in scene naming.
func extractYear(s string) int {
	matches := reYear.FindAllString(s, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		year, err := strconv.Atoi(matches[i])
		if err == nil && year >= 1900 && year <= 2099 {
			return year
		}
	}
	return 0
}
