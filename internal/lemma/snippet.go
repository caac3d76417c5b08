package lemma

import (
	"html"
	"strings"
)

const ellipsis = "..."

// Snippet picks the window of at most maxWords words of text holding the most
// words whose lemma is in query, and wraps those words in <b></b>. Text
// outside the window is replaced by an ellipsis. Words are HTML-escaped.
func (l *Lemmatizer) Snippet(text string, query map[string]struct{}, maxWords int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if maxWords <= 0 || maxWords > len(words) {
		maxWords = len(words)
	}

	hits := make([]bool, len(words))
	for i, w := range words {
		hits[i] = l.matches(w, query)
	}

	// Slide a fixed window and keep the earliest one with the most hits.
	best, count := 0, 0
	for i := 0; i < maxWords; i++ {
		if hits[i] {
			count++
		}
	}
	bestCount := count
	for start := 1; start+maxWords <= len(words); start++ {
		if hits[start-1] {
			count--
		}
		if hits[start+maxWords-1] {
			count++
		}
		if count > bestCount {
			best, bestCount = start, count
		}
	}

	var b strings.Builder
	if best > 0 {
		b.WriteString(ellipsis)
		b.WriteByte(' ')
	}
	for i := best; i < best+maxWords; i++ {
		if i > best {
			b.WriteByte(' ')
		}
		escaped := html.EscapeString(words[i])
		if hits[i] {
			b.WriteString("<b>")
			b.WriteString(escaped)
			b.WriteString("</b>")
		} else {
			b.WriteString(escaped)
		}
	}
	if best+maxWords < len(words) {
		b.WriteByte(' ')
		b.WriteString(ellipsis)
	}
	return b.String()
}

func (l *Lemmatizer) matches(field string, query map[string]struct{}) bool {
	for _, word := range Words(field) {
		lemma, ok := l.Lemma(word)
		if !ok {
			continue
		}
		if _, hit := query[lemma]; hit {
			return true
		}
	}
	return false
}
