package keyword

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Set is an immutable list of keywords.
type Set struct {
	words []string
}

// NewSet builds a Set. Empty entries are ignored and matching is case-insensitive.
func NewSet(words ...string) *Set {
	s := &Set{}
	for _, w := range words {
		if w = Normalize(w); w != "" {
			s.words = append(s.words, w)
		}
	}
	return s
}

// Len returns the number of keywords.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.words)
}

// Match returns the first keyword found in any of texts.
func (s *Set) Match(texts ...string) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, text := range texts {
		t := Normalize(text)
		if t == "" {
			continue
		}
		for _, w := range s.words {
			if contains(t, w) {
				return w, true
			}
		}
	}
	return "", false
}

// Normalize applies NFKC and case folding so that full-width and half-width
// forms (ＰＤＦ, ｱｸｾｽ) compare equal to their usual spelling.
func Normalize(s string) string {
	// A Caser keeps state, so one is created per call.
	return strings.TrimSpace(cases.Fold().String(norm.NFKC.String(s)))
}

func contains(text, word string) bool {
	if !isASCII(word) {
		return strings.Contains(text, word)
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

// isWordRune treats only ASCII letters and digits as word characters, so a
// Japanese character next to an ASCII keyword still counts as a boundary.
func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
