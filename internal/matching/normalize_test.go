package matching

import (
	"testing"

	"github.com/desertthunder/libsync/internal/models"
)

func TestNormalize(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  string
	}{
		{name: "dash remaster suffix", input: "Bohemian Rhapsody - Remastered 2011", want: "bohemian rhapsody"},
		{name: "bracketed live", input: "Bohemian Rhapsody (Live)", want: "bohemian rhapsody"},
		{name: "diacritics", input: "Café del Mar", want: "cafe del mar"},
		{name: "umlaut", input: "Motörhead", want: "motorhead"},
		{name: "bracketed feat", input: "Señorita (feat. Camila Cabello)", want: "senorita"},
		{name: "bare feat tail", input: "Love Me feat. Drake", want: "love me"},
		{name: "ft tail", input: "Work ft Drake", want: "work"},
		{name: "ampersand", input: "Rock & Roll", want: "rock and roll"},
		{name: "apostrophe", input: "Don't Stop Me Now", want: "dont stop me now"},
		{name: "curly apostrophe", input: "Don’t Stop", want: "dont stop"},
		{name: "keeps digits", input: "99 Problems", want: "99 problems"},
		{name: "dash that is part of the title", input: "Hello - World", want: "hello world"},
		{name: "whitespace", input: "  Multiple   Spaces  ", want: "multiple spaces"},
		{name: "several brackets", input: "[Intro] Song {Bonus}", want: "song"},
		{name: "nested brackets", input: "Song (Remix (Extended))", want: "song"},
		{name: "leading feat token kept", input: "Feat", want: "feat"},
		{name: "radio edit suffix", input: "Take On Me - Radio Edit", want: "take on me"},
		{name: "edition suffix", input: "Abbey Road - 50th Anniversary Edition", want: "abbey road"},
		{name: "place name after dash", input: "Ferry Cross the Mersey - Liverpool", want: "ferry cross the mersey liverpool"},
		{name: "word sharing a qualifier prefix", input: "Notes - Editor", want: "notes editor"},
		{name: "plural of a qualifier", input: "Sounds - Singles Club", want: "sounds singles club"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Bohemian Rhapsody - Remastered 2011",
		"a - live - b",
		"((unbalanced)",
		"unbalanced)) (",
		"- Live",
		"Song – Mono Version — Deluxe",
		"Beyoncé & JAY-Z feat. Someone (Remix) [2014]",
		"Ｆｕｌｌｗｉｄｔｈ",
		"İstanbul",
		"x feat y feat z",
		"Rock'n'Roll & Blues",
		"!!!",
		"   ",
		"Sigur Rós - Hoppípolla",
		"日本語のタイトル (Live)",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			once := Normalize(in)
			if twice := Normalize(once); twice != once {
				t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
			}
		})
	}
}

func TestSimple(t *testing.T) {
	tc := []struct {
		input string
		want  string
	}{
		{"Bohemian Rhapsody - Remastered 2011", "Bohemian Rhapsody"},
		{"Señorita (feat. Camila Cabello)", "Señorita"},
		{"Song [Bonus Track]", "Song"},
		{"(Intro)", "(Intro)"},
		{"Plain", "Plain"},
	}

	for _, tt := range tc {
		t.Run(tt.input, func(t *testing.T) {
			if got := Simple(tt.input); got != tt.want {
				t.Errorf("Simple(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSearchQueries(t *testing.T) {
	track := models.SourceEntity{
		Type:        models.EntityTrack,
		Title:       "Bohemian Rhapsody - Remastered 2011",
		ArtistNames: []string{"Queen", "Freddie Mercury"},
	}
	if got := SearchQuery(track); got != "Bohemian Rhapsody Queen" {
		t.Errorf("SearchQuery(track) = %q", got)
	}
	if got := FallbackQuery(track); got != "Bohemian Rhapsody - Remastered 2011 Queen Freddie Mercury" {
		t.Errorf("FallbackQuery(track) = %q", got)
	}

	artist := models.SourceEntity{Type: models.EntityArtist, Title: "Boards of Canada"}
	if got := SearchQuery(artist); got != "Boards of Canada" {
		t.Errorf("SearchQuery(artist) = %q", got)
	}
	if got := FallbackQuery(artist); got != "" {
		t.Errorf("FallbackQuery(artist) = %q, want empty", got)
	}

	bare := models.SourceEntity{Type: models.EntityAlbum, Title: "Discovery"}
	if got := FallbackQuery(bare); got != "" {
		t.Errorf("FallbackQuery should not repeat the primary query, got %q", got)
	}
}

func TestAlbumQuery(t *testing.T) {
	tc := []struct {
		name   string
		entity models.SourceEntity
		want   string
	}{
		{
			name: "track with album",
			entity: models.SourceEntity{
				Type: models.EntityTrack, Title: "Bohemian Rhapsody", ArtistNames: []string{"Queen"},
				AlbumName: "A Night at the Opera (Deluxe Remastered Version)",
			},
			want: "A Night at the Opera Queen",
		},
		{
			name:   "track without album",
			entity: models.SourceEntity{Type: models.EntityTrack, Title: "Heroes", ArtistNames: []string{"David Bowie"}},
		},
		{
			name:   "track without artist",
			entity: models.SourceEntity{Type: models.EntityTrack, Title: "Heroes", AlbumName: "Heroes"},
		},
		{
			name:   "title track repeats the primary query",
			entity: models.SourceEntity{Type: models.EntityTrack, Title: "Heroes", ArtistNames: []string{"David Bowie"}, AlbumName: "Heroes"},
		},
		{
			name:   "albums are searched directly",
			entity: models.SourceEntity{Type: models.EntityAlbum, Title: "Discovery", ArtistNames: []string{"Daft Punk"}, AlbumName: "Discovery"},
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := AlbumQuery(tt.entity); got != tt.want {
				t.Errorf("AlbumQuery = %q, want %q", got, tt.want)
			}
		})
	}
}
