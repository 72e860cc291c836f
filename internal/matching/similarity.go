package matching

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/hbollon/go-edlib"
)

// artistMatchFloor is the Jaro-Winkler similarity at which two artist names count as the same artist.
const artistMatchFloor = 0.9

// Ratio is the Levenshtein similarity of a and b in [0,1].
func Ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// TokenSortRatio compares a and b with their words sorted, so word order does not matter.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// TitleSimilarity scores two already normalized strings.
func TitleSimilarity(a, b string) float64 {
	return math.Max(Ratio(a, b), TokenSortRatio(a, b))
}

// NameSimilarity scores two normalized names with Jaro-Winkler, which favors shared prefixes.
func NameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	sim, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(sim)
}

// splitArtists expands credits such as "Simon & Garfunkel, Paul Simon" into normalized individual names.
func splitArtists(names []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range names {
		for _, part := range strings.FieldsFunc(name, func(r rune) bool {
			return r == ',' || r == '&' || r == ';' || r == '/'
		}) {
			n := Normalize(part)
			if n != "" && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// ArtistOverlap returns the fraction of artists on one side that appear on the other, taking the better direction.
//
// The boolean is false when either side has no artists and the overlap is unknown.
func ArtistOverlap(source, candidate []string) (float64, bool) {
	src, cand := splitArtists(source), splitArtists(candidate)
	if len(src) == 0 || len(cand) == 0 {
		return 0, false
	}
	return math.Max(overlap(src, cand, candidate), overlap(cand, src, source)), true
}

// overlap counts names found among others, either by Jaro-Winkler or as whole words inside an unsplit credit.
func overlap(names, others, credits []string) float64 {
	padded := make([]string, len(credits))
	for i, c := range credits {
		padded[i] = " " + Normalize(c) + " "
	}

	found := 0
	for _, n := range names {
		if containsWords(padded, n) {
			found++
			continue
		}
		for _, o := range others {
			if NameSimilarity(n, o) >= artistMatchFloor {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(names))
}

func containsWords(padded []string, name string) bool {
	for _, p := range padded {
		if strings.Contains(p, " "+name+" ") {
			return true
		}
	}
	return false
}
