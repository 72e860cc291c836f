package matching

import (
	"math"
	"sort"
	"strings"

	"github.com/desertthunder/libsync/internal/models"
)

// Component weights. Missing components are dropped and the rest renormalized.
const (
	weightTitle     = 0.6
	weightArtist    = 0.3
	weightSecondary = 0.1
	weightAlbum     = 0.1

	weightArtistName      = 0.9
	weightArtistFollowers = 0.1

	// variantPenalty scales the title score when only one side is a live/remix/etc. variant.
	variantPenalty = 0.5
)

var variantMarkers = []string{"live", "remix", "instrumental", "acapella", "a cappella", "karaoke"}

// Config holds the acceptance thresholds and tolerances used by [Matcher].
type Config struct {
	FuzzyThresholdTrack  float64
	FuzzyThresholdAlbum  float64
	FuzzyThresholdArtist float64
	// ExactThreshold applies instead of the fuzzy thresholds when normalized titles are equal.
	ExactThreshold      float64
	EnableFuzzy         bool
	DurationToleranceMs int
}

// DefaultConfig returns the thresholds shipped in the example config.
func DefaultConfig() Config {
	return Config{
		FuzzyThresholdTrack:  0.85,
		FuzzyThresholdAlbum:  0.85,
		FuzzyThresholdArtist: 0.9,
		ExactThreshold:       0.6,
		EnableFuzzy:          true,
		DurationToleranceMs:  3000,
	}
}

func (c Config) threshold(t models.EntityType, exact bool) float64 {
	if exact {
		return c.ExactThreshold
	}
	switch t {
	case models.EntityTrack:
		return c.FuzzyThresholdTrack
	case models.EntityAlbum:
		return c.FuzzyThresholdAlbum
	case models.EntityArtist:
		return c.FuzzyThresholdArtist
	default:
		panic("matching: unknown entity type " + t.String())
	}
}

// Scored is one candidate with its combined score.
type Scored struct {
	Candidate models.Candidate
	Score     float64
	// Exact is true when the normalized titles are equal (or ISRCs match).
	Exact bool
	Title string // normalized candidate title
}

// Matcher scores and ranks candidates. It is safe for concurrent use.
type Matcher struct {
	cfg Config
}

// NewMatcher creates a [Matcher] with the given thresholds.
func NewMatcher(cfg Config) *Matcher {
	return &Matcher{cfg: cfg}
}

// Config returns the matcher's thresholds.
func (m *Matcher) Config() Config { return m.cfg }

// Match picks the best candidate for source.
//
// The accepted candidate is the first in rank order that clears its own threshold: exact titles against
// ExactThreshold, the rest against the fuzzy threshold of the type. Without one the result has no TargetID
// and Confidence carries the top score.
func (m *Matcher) Match(source models.SourceEntity, candidates []models.Candidate) models.MatchResult {
	result := models.MatchResult{SourceID: source.ID, MatchedVia: models.ViaNone}

	ranked := m.Rank(source, candidates)
	if len(ranked) == 0 {
		return result
	}
	result.Confidence = ranked[0].Score

	for _, s := range ranked {
		if !s.Exact && !m.cfg.EnableFuzzy {
			continue
		}
		if s.Score >= m.cfg.threshold(source.Type, s.Exact) {
			result.TargetID = s.Candidate.ID
			result.Confidence = s.Score
			result.MatchedVia = models.ViaFresh
			break
		}
	}
	return result
}

// Rank scores every candidate of the same type and returns the admissible ones best first.
//
// Ties fall back to exact titles first, then the normalized title, then the target id, so ranking is reproducible.
func (m *Matcher) Rank(source models.SourceEntity, candidates []models.Candidate) []Scored {
	srcTitle := Normalize(source.Title)

	ranked := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if c.Type != source.Type || c.ID == "" {
			continue
		}
		if s, ok := m.Score(source, srcTitle, c); ok {
			ranked = append(ranked, s)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		switch {
		case a.Score != b.Score:
			return a.Score > b.Score
		case a.Exact != b.Exact:
			return a.Exact
		case a.Title != b.Title:
			return a.Title < b.Title
		default:
			return a.Candidate.ID < b.Candidate.ID
		}
	})
	return ranked
}

// Score combines the per-type signals for one candidate. It returns false when a hard rule excludes the candidate.
//
// srcTitle is the already normalized source title.
func (m *Matcher) Score(source models.SourceEntity, srcTitle string, c models.Candidate) (Scored, bool) {
	candTitle := Normalize(c.Title)
	out := Scored{Candidate: c, Title: candTitle}

	switch source.Type {
	case models.EntityTrack:
		if source.ISRC != "" && strings.EqualFold(source.ISRC, c.ISRC) {
			out.Score, out.Exact = 1, true
			return out, true
		}
		title, exact := titleScore(source.Title, srcTitle, c.Title, candTitle)
		artist, hasArtist := ArtistOverlap(source.ArtistNames, c.ArtistNames)
		if hasArtist && artist == 0 {
			return out, false
		}
		duration, hasDuration, ok := m.durationScore(source.DurationMs, c.DurationMs)
		if !ok {
			return out, false
		}
		album, hasAlbum := albumScore(source.AlbumName, c.AlbumName)
		out.Score = combine(
			part{title, weightTitle, true},
			part{artist, weightArtist, hasArtist},
			part{duration, weightSecondary, hasDuration},
			part{album, weightAlbum, hasAlbum},
		)
		out.Exact = exact

	case models.EntityAlbum:
		title, exact := titleScore(source.Title, srcTitle, c.Title, candTitle)
		artist, hasArtist := ArtistOverlap(source.ArtistNames, c.ArtistNames)
		if hasArtist && artist == 0 {
			return out, false
		}
		count, hasCount := ratioScore(source.TrackCount, c.TrackCount)
		out.Score = combine(
			part{title, weightTitle, true},
			part{artist, weightArtist, hasArtist},
			part{count, weightSecondary, hasCount},
		)
		out.Exact = exact

	case models.EntityArtist:
		name := math.Max(TitleSimilarity(srcTitle, candTitle), NameSimilarity(srcTitle, candTitle))
		out.Exact = srcTitle != "" && srcTitle == candTitle
		if followers, ok := ratioScore(source.FollowerCount, c.FollowerCount); ok {
			out.Score = weightArtistName*name + weightArtistFollowers*followers
		} else {
			out.Score = name
		}

	default:
		panic("matching: unknown entity type " + source.Type.String())
	}

	out.Score = clamp(out.Score)
	return out, true
}

// titleScore compares normalized titles and applies the variant guard on the raw ones.
func titleScore(rawSrc, src, rawCand, cand string) (float64, bool) {
	score := TitleSimilarity(src, cand)
	exact := src != "" && src == cand
	if isVariant(rawSrc) != isVariant(rawCand) {
		score *= variantPenalty
		exact = false
	}
	return score, exact
}

func isVariant(raw string) bool {
	lower := strings.ToLower(raw)
	for _, marker := range variantMarkers {
		if containsWord(lower, marker) {
			return true
		}
	}
	return false
}

func containsWord(s, word string) bool {
	for i := strings.Index(s, word); i >= 0; {
		end := i + len(word)
		before := i == 0 || !isWordByte(s[i-1])
		after := end == len(s) || !isWordByte(s[end])
		if before && after {
			return true
		}
		next := strings.Index(s[end:], word)
		if next < 0 {
			return false
		}
		i = end + next
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// durationScore returns (score, known, admissible). A difference beyond the tolerance is inadmissible.
func (m *Matcher) durationScore(src, cand int) (float64, bool, bool) {
	if src <= 0 || cand <= 0 {
		return 0, false, true
	}
	diff := math.Abs(float64(src - cand))
	tol := float64(m.cfg.DurationToleranceMs)
	if diff > tol {
		return 0, true, false
	}
	if tol == 0 {
		return 1, true, true
	}
	return 1 - diff/tol, true, true
}

// ratioScore compares two positive counts as min/max.
func ratioScore(a, b int) (float64, bool) {
	if a <= 0 || b <= 0 {
		return 0, false
	}
	return float64(min(a, b)) / float64(max(a, b)), true
}

// albumScore compares the albums two tracks appear on. Unknown on either side means no signal.
func albumScore(src, cand string) (float64, bool) {
	a, b := Normalize(src), Normalize(cand)
	if a == "" || b == "" {
		return 0, false
	}
	return TitleSimilarity(a, b), true
}

type part struct {
	score, weight float64
	known         bool
}

// combine is the weighted mean of the known parts.
func combine(parts ...part) float64 {
	var total, weight float64
	for _, p := range parts {
		if p.known {
			total += p.weight * p.score
			weight += p.weight
		}
	}
	if weight == 0 {
		return 0
	}
	return total / weight
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
