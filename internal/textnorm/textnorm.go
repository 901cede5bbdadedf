// Package textnorm normalises human-entered names so configuration written by
// operators can be matched against upstream dataset labels.
//
// Matching is case-insensitive, accent-folded and abbreviation-aware:
// "Bogotá D.C." matches "bogota dc", "Col. San José" matches
// "Colegio San Jose", and "Nac." stands for "Nacional". A bare "Cali" does
// not match "Calima".
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// abbreviations expands common Spanish institution and place abbreviations.
// Keys and values are already normalised.
var abbreviations = map[string]string{
	"col":   "colegio",
	"cole":  "colegio",
	"inst":  "institucion",
	"ie":    "institucion educativa",
	"iet":   "institucion educativa tecnica",
	"univ":  "universidad",
	"u":     "universidad",
	"esc":   "escuela",
	"lic":   "liceo",
	"gimn":  "gimnasio",
	"gim":   "gimnasio",
	"tec":   "tecnico",
	"sta":   "santa",
	"sto":   "santo",
	"sn":    "san",
	"gral":  "general",
	"dept":  "departamento",
	"depto": "departamento",
	"dc":    "distrito capital",
}

// stopwords are dropped before token comparison.
var stopwords = map[string]bool{
	"de": true, "del": true, "la": true, "el": true, "los": true, "las": true, "y": true,
}

// minPrefix is the shortest dotted token accepted as an abbreviation of a
// longer one ("Nac." for "Nacional"). Undotted tokens must match exactly
// unless they are listed in abbreviations.
const minPrefix = 3

// Fold strips diacritics and lowercases s. Punctuation is kept.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Normalize folds s and collapses every run of non-alphanumeric characters
// into a single space.
func Normalize(s string) string {
	folded := Fold(s)
	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Equal reports whether a and b name the same thing: identical after
// normalisation, abbreviation expansion and stopword removal.
func Equal(a, b string) bool {
	if Normalize(a) == Normalize(b) {
		return true
	}
	return joined(tokens(a)) == joined(tokens(b))
}

// Contains reports whether the normalised haystack contains the normalised needle.
// An empty needle never matches.
func Contains(haystack, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Normalize(haystack), n)
}

// Matches reports whether pattern names the same thing as any of the
// candidates. Candidates are usually an option's code and label.
func Matches(pattern string, candidates ...string) bool {
	p := tokens(pattern)
	if len(p) == 0 {
		return false
	}
	for _, c := range candidates {
		if tokensMatch(p, tokens(c)) {
			return true
		}
	}
	return false
}

// MatchesAny reports whether any pattern matches any candidate.
func MatchesAny(patterns []string, candidates ...string) bool {
	for _, p := range patterns {
		if Matches(p, candidates...) {
			return true
		}
	}
	return false
}

// token is one normalised word. abbr marks a word written with a trailing
// period, the only kind allowed to stand for a longer word by prefix.
type token struct {
	text string
	abbr bool
}

func tokens(s string) []token {
	raw := joinInitials(words(Fold(s)))
	out := make([]token, 0, len(raw))
	for _, tok := range raw {
		if exp, ok := abbreviations[tok.text]; ok {
			for _, e := range strings.Fields(exp) {
				out = append(out, token{text: e})
			}
			continue
		}
		if stopwords[tok.text] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// words splits folded text into alphanumeric runs.
func words(folded string) []token {
	var out []token
	var b strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, token{text: b.String(), abbr: r == '.'})
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, token{text: b.String()})
	}
	return out
}

func joined(toks []token) string {
	texts := make([]string, len(toks))
	for i, t := range toks {
		texts[i] = t.text
	}
	return strings.Join(texts, " ")
}

func tokensMatch(a, b []token) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for i := range a {
		if !tokenMatch(a[i], b[i]) {
			return false
		}
	}
	return true
}

func tokenMatch(a, b token) bool {
	if a.text == b.text {
		return true
	}
	short, long := a, b
	if len(short.text) > len(long.text) {
		short, long = long, short
	}
	return short.abbr && len(short.text) >= minPrefix && strings.HasPrefix(long.text, short.text)
}

// joinInitials merges runs of single-letter tokens, so "D.C." reads as "dc".
func joinInitials(toks []token) []token {
	out := make([]token, 0, len(toks))
	run := ""
	for _, tok := range toks {
		if r := []rune(tok.text); len(r) == 1 && !unicode.IsDigit(r[0]) {
			run += tok.text
			continue
		}
		if run != "" {
			out = append(out, token{text: run})
			run = ""
		}
		out = append(out, tok)
	}
	if run != "" {
		out = append(out, token{text: run})
	}
	return out
}
