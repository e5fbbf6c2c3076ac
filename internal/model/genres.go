package model

import (
	"sort"
	"strings"
)

// KnownGenres is the canonical genre vocabulary of the music schedule.
var KnownGenres = []string{
	"HipHop", "Pop", "Soul", "Rap", "House", "Latin", "EDM", "Jazz",
	"Country", "Blues", "DanceHall", "Afrobeats", "Top 40", "Amapiano",
	"90's", "2000's", "2010's", "R&B",
}

// genreAliases maps scraped or free-form labels onto KnownGenres.
var genreAliases = map[string]string{
	"hip hop":     "HipHop",
	"hip-hop":     "HipHop",
	"afro-pop":    "Pop",
	"reggae":      "DanceHall",
	"swing":       "Jazz",
	"techno":      "EDM",
	"dubstep":     "EDM",
	"bass":        "EDM",
	"arabic":      "Latin",
	"soca":        "Latin",
	"reggaeton":   "Latin",
	"latino":      "Latin",
	"lounge":      "Jazz",
	"upbeat":      "Pop",
	"jazz-fusion": "Jazz",
}

// CanonicalGenre maps a label onto the canonical vocabulary. Unknown labels
// are returned trimmed but otherwise unchanged.
func CanonicalGenre(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	if g, ok := genreAliases[strings.ToLower(label)]; ok {
		return g
	}
	for _, g := range KnownGenres {
		if strings.EqualFold(g, label) {
			return g
		}
	}
	return label
}

// CanonicalGenres canonicalizes, de-duplicates and sorts labels.
func CanonicalGenres(labels []string) []string {
	set := GenreSet(nil)
	for _, l := range labels {
		if g := CanonicalGenre(l); g != "" {
			set[g] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// GenreSet builds a set from a genre list, ignoring empty entries.
func GenreSet(genres []string) map[string]struct{} {
	set := make(map[string]struct{}, len(genres))
	for _, g := range genres {
		if g == "" {
			continue
		}
		set[g] = struct{}{}
	}
	return set
}

// SameGenres compares two genre lists as sets.
func SameGenres(a, b []string) bool {
	sa, sb := GenreSet(a), GenreSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for g := range sa {
		if _, ok := sb[g]; !ok {
			return false
		}
	}
	return true
}
