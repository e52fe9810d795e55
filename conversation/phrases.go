package conversation

import (
	"sort"
	"strings"
	"unicode"
)

// normalize lowercases text and reduces it to words separated by single
// spaces. Apostrophes survive so "don't" stays one word.
func normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

// containsPhrase matches whole words only, so "no" does not match "now".
func containsPhrase(text, phrase string) bool {
	phrase = normalize(phrase)
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// matchAny returns the first phrase contained in text.
func matchAny(text string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return p, true
		}
	}
	return "", false
}

var negators = map[string]bool{"not": true, "never": true, "isn't": true, "isnt": true, "hardly": true}

// negatesAny reports whether a phrase occurs within two words after a negator,
// as in "not sure" or "not really okay".
func negatesAny(text string, phrases []string) bool {
	words := strings.Fields(text)
	for i, w := range words {
		if !negators[w] {
			continue
		}
		for j := i + 1; j <= i+3 && j <= len(words); j++ {
			window := strings.Join(words[i+1:j], " ")
			for _, p := range phrases {
				if containsPhrase(window, p) {
					return true
				}
			}
		}
	}
	return false
}

// stripPhrase removes the first whole-word occurrence of phrase from text.
func stripPhrase(text, phrase string) string {
	phrase = normalize(phrase)
	padded := " " + text + " "
	idx := strings.Index(padded, " "+phrase+" ")
	if idx < 0 {
		return text
	}
	rest := padded[:idx] + " " + padded[idx+len(phrase)+2:]
	return strings.Join(strings.Fields(rest), " ")
}

// longestFirst orders phrases so "hey sage" is tried before "sage".
func longestFirst(phrases []string) []string {
	out := append([]string(nil), phrases...)
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i]) > len(out[j])
	})
	return out
}
