package lemma

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnippetPicksDensestWindow(t *testing.T) {
	t.Parallel()

	l := New()
	query := l.Set("test")
	got := l.Snippet("one two three test four tests five six", query, 3)
	require.Equal(t, "... <b>test</b> four <b>tests</b> ...", got)
}

func TestSnippetWithoutMatchesTakesPrefix(t *testing.T) {
	t.Parallel()

	l := New()
	got := l.Snippet("alpha beta gamma delta", l.Set("omega"), 2)
	require.Equal(t, "alpha beta ...", got)
}

func TestSnippetWholeTextFits(t *testing.T) {
	t.Parallel()

	l := New()
	got := l.Snippet("Testing is fun", l.Set("test"), 30)
	require.Equal(t, "<b>Testing</b> is fun", got)
}

func TestSnippetEscapesMarkup(t *testing.T) {
	t.Parallel()

	l := New()
	got := l.Snippet("<script>alert(1)</script> test", l.Set("test"), 0)
	require.Equal(t, "&lt;script&gt;alert(1)&lt;/script&gt; <b>test</b>", got)
}

func TestSnippetEmptyText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", New().Snippet("   ", nil, 10))
}
