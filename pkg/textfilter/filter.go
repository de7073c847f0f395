// Package textfilter keeps player-facing reveal and narrative text inside
// a session's content rating. The unlock engine runs unlock narratives
// through a Filter before they are broadcast.
package textfilter

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Words replaced for G/PG/PG-13 sessions, mapped to tamer alternatives.
var replacements = map[string]string{
	"fuck":        "fudge",
	"shit":        "shoot",
	"damn":        "dang",
	"hell":        "heck",
	"ass":         "butt",
	"bitch":       "jerk",
	"bastard":     "jerk",
	"crap":        "crud",
	"goddamn":     "gosh-dang",
	"asshole":     "jerk",
	"bullshit":    "baloney",
	"dumbass":     "dummy",
	"jackass":     "jerk",
	"prick":       "jerk",
	"dickhead":    "jerk",
	"shithead":    "jerk",
	"piss":        "ticked",
	"motherfucker": "mother-trucker",
}

// Filter rewrites profanity in narrative text. A nil Filter passes text
// through unchanged, so callers can hold one unconditionally.
type Filter struct {
	regexes map[string]*regexp.Regexp
}

// ForRating returns a Filter for the session's content rating, or nil when
// the rating allows unfiltered text.
func ForRating(rating string) *Filter {
	switch strings.ToUpper(strings.TrimSpace(rating)) {
	case "G", "PG", "PG13", "PG-13":
		return New()
	default:
		return nil
	}
}

// New creates a Filter with patterns compiled for every known word.
func New() *Filter {
	f := &Filter{regexes: make(map[string]*regexp.Regexp, len(replacements))}
	for word := range replacements {
		f.regexes[word] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	}
	return f
}

// Clean replaces profanity with rating-safe alternatives, preserving the
// case pattern of the original word.
func (f *Filter) Clean(text string) string {
	if f == nil {
		return text
	}
	result := text
	for word, replacement := range replacements {
		result = f.regexes[word].ReplaceAllStringFunc(result, func(match string) string {
			return preserveCase(match, replacement)
		})
	}
	return result
}

// IsClean reports whether the text contains no filtered words.
func (f *Filter) IsClean(text string) bool {
	if f == nil {
		return true
	}
	for _, regex := range f.regexes {
		if regex.MatchString(text) {
			return false
		}
	}
	return true
}

// preserveCase applies the case pattern of the original word to the replacement
func preserveCase(original, replacement string) string {
	if len(original) == 0 {
		return replacement
	}

	if strings.ToUpper(original) == original {
		return strings.ToUpper(replacement)
	}
	if strings.ToLower(original) == original {
		return strings.ToLower(replacement)
	}

	titleCaser := cases.Title(language.English)
	if titleCaser.String(strings.ToLower(original)) == original {
		return titleCaser.String(replacement)
	}

	// Mixed case - mirror the original's pattern character by character
	result := make([]rune, 0, len(replacement))
	originalRunes := []rune(original)
	for i, r := range []rune(replacement) {
		if i < len(originalRunes) && unicode.IsUpper(originalRunes[i]) {
			result = append(result, unicode.ToUpper(r))
		} else {
			result = append(result, unicode.ToLower(r))
		}
	}
	return string(result)
}
