// Package lemma turns text into normalized word forms and builds
// highlighted snippets around them.
package lemma

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball"
)

const (
	minWordRunes = 2
	// MaxWordRunes matches the width of the stored lemma column.
	MaxWordRunes = 255
)

// Lemmatizer reduces words to stems with the Snowball English and Russian
// stemmers. Function words (prepositions, conjunctions, particles,
// interjections) are dropped. The zero value is ready to use.
type Lemmatizer struct{}

// New returns a Lemmatizer.
func New() *Lemmatizer {
	return &Lemmatizer{}
}

// Lemmas counts the lemmas of text.
func (l *Lemmatizer) Lemmas(text string) map[string]int {
	counts := make(map[string]int)
	for _, word := range Words(text) {
		if lemma, ok := l.Lemma(word); ok {
			counts[lemma]++
		}
	}
	return counts
}

// Set returns the distinct lemmas of text.
func (l *Lemmatizer) Set(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range Words(text) {
		if lemma, ok := l.Lemma(word); ok {
			set[lemma] = struct{}{}
		}
	}
	return set
}

// Lemma normalizes a single word. It returns false for stop words, for words
// too short to carry meaning, and for words longer than MaxWordRunes.
func (l *Lemmatizer) Lemma(word string) (string, bool) {
	word = normalize(word)
	if n := utf8.RuneCountInString(word); n < minWordRunes || n > MaxWordRunes {
		return "", false
	}
	if _, stop := stopWords[word]; stop {
		return "", false
	}
	language := languageOf(word)
	if language == "" {
		return word, true
	}
	stemmed, err := snowball.Stem(word, language, true)
	if err != nil || stemmed == "" {
		return word, true
	}
	return stemmed, true
}

// Words splits text into runs of letters.
func Words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func normalize(word string) string {
	return strings.ReplaceAll(strings.ToLower(word), "ё", "е")
}

// languageOf picks a stemmer by script. Mixed or other scripts are not stemmed.
func languageOf(word string) string {
	var latin, cyrillic bool
	for _, r := range word {
		switch {
		case unicode.Is(unicode.Latin, r):
			latin = true
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic = true
		default:
			return ""
		}
	}
	switch {
	case latin && !cyrillic:
		return "english"
	case cyrillic && !latin:
		return "russian"
	default:
		return ""
	}
}
