package siteurl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want bool
	}{
		{"https://example.com", true},
		{"http://www.example.com", true},
		{"https://example.com:8080", true},
		{"not-a-url", false},
		{"", false},
		{"ftp://example.com", false},
		{"https://example.com/path", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Valid(tt.raw), tt.raw)
	}
}

func TestRelativePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		root, page string
		want       string
		ok         bool
	}{
		{"https://example.com", "https://example.com/a/b", "/a/b", true},
		{"https://example.com/", "https://EXAMPLE.com/a", "/a", true},
		{"https://example.com", "https://example.com", "/", true},
		{"https://example.com", "https://example.com.evil/a", "", false},
		{"https://example.com", "https://other.com/a", "", false},
	}
	for _, tt := range tests {
		got, ok := RelativePath(tt.root, tt.page)
		require.Equal(t, tt.ok, ok, tt.page)
		require.Equal(t, tt.want, got, tt.page)
	}
}

func TestJoinAndHost(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://example.com/a", Join("https://example.com/", "/a"))
	require.Equal(t, "https://example.com/a", Join("https://example.com", "a"))
	require.Equal(t, "https://example.com/", Join("https://example.com", ""))
	require.Equal(t, "example.com", Host("https://Example.com/a"))
}
