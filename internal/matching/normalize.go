package matching

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/desertthunder/libsync/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	bracketed = regexp.MustCompile(`[\(\[\{][^\(\)\[\]\{\}]*[\)\]\}]`)
	dashSplit = regexp.MustCompile(`\s+[-–—]\s+`)

	// Whole words that mark a dash suffix as an edition qualifier rather than part of the title.
	qualifierWords = map[string]bool{
		"remaster": true, "remastered": true, "version": true, "edit": true, "edited": true, "edition": true,
		"mono": true, "stereo": true, "deluxe": true, "anniversary": true, "bonus": true, "single": true,
		"radio": true, "live": true, "mix": true, "mixed": true, "explicit": true,
	}

	featTokens = map[string]bool{"feat": true, "ft": true, "featuring": true}
)

// foldDiacritics removes combining marks after canonical decomposition.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// stripBrackets removes bracketed segments, innermost first, until none remain.
func stripBrackets(s string) string {
	for {
		next := bracketed.ReplaceAllString(s, " ")
		if next == s {
			return s
		}
		s = next
	}
}

// stripDashQualifiers drops " - Remastered 2011" style suffixes but keeps dash segments that are part of the title.
func stripDashQualifiers(s string) string {
	parts := dashSplit.Split(s, -1)
	kept := parts[:1]
	for _, p := range parts[1:] {
		if !hasQualifier(p) {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func hasQualifier(s string) bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, word := range words {
		if qualifierWords[word] {
			return true
		}
	}
	return false
}

// Normalize canonicalizes free-text metadata for comparison.
//
// It lower-cases, folds diacritics, strips bracketed and dash-suffix qualifiers and featured artist tails,
// spells "&" as "and", drops apostrophes and turns remaining punctuation into spaces. Digits are kept.
// Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(text string) string {
	s := foldDiacritics(strings.ToLower(text))
	s = stripBrackets(s)
	s = stripDashQualifiers(s)
	s = strings.ReplaceAll(s, "&", " and ")

	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\'' || r == '’' || r == '‘' || r == '`':
			return -1
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		default:
			return ' '
		}
	}, s)

	tokens := strings.Fields(s)
	for i, tok := range tokens {
		if i > 0 && featTokens[tok] {
			tokens = tokens[:i]
			break
		}
	}
	return strings.Join(tokens, " ")
}

// Simple keeps the part of a title before the first dash or bracket.
//
// Search engines rank the bare title better than one carrying edition qualifiers.
func Simple(text string) string {
	cut := len(text)
	for _, sep := range []string{" - ", " – ", "(", "["} {
		if i := strings.Index(text, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	if cut == 0 {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:cut])
}

// SearchQuery builds the primary search text for an entity.
func SearchQuery(e models.SourceEntity) string {
	switch e.Type {
	case models.EntityArtist:
		return e.Title
	case models.EntityAlbum, models.EntityTrack:
		if len(e.ArtistNames) == 0 {
			return Simple(e.Title)
		}
		return Simple(e.Title) + " " + e.ArtistNames[0]
	default:
		panic("matching: unknown entity type " + e.Type.String())
	}
}

// AlbumQuery searches a track through its album: the bare album title and the primary artist.
//
// Returns "" for non-tracks, tracks without an album or artist, and when it would repeat the primary query.
func AlbumQuery(e models.SourceEntity) string {
	if e.Type != models.EntityTrack || e.AlbumName == "" || len(e.ArtistNames) == 0 {
		return ""
	}
	q := Simple(e.AlbumName) + " " + e.ArtistNames[0]
	if q == SearchQuery(e) {
		return ""
	}
	return q
}

// FallbackQuery is tried when [SearchQuery] returns nothing: the full title and every artist.
//
// Returns "" when it would repeat the primary query.
func FallbackQuery(e models.SourceEntity) string {
	if e.Type == models.EntityArtist {
		if q := Normalize(e.Title); q != strings.ToLower(e.Title) {
			return q
		}
		return ""
	}
	q := strings.TrimSpace(e.Title + " " + strings.Join(e.ArtistNames, " "))
	if q == SearchQuery(e) {
		return ""
	}
	return q
}
