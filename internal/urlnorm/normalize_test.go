package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webscout/internal/failure"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare host gets https", "example.com", "https://example.com"},
		{"explicit https unchanged", "https://example.com", "https://example.com"},
		{"bare host with path", "vivatechnology.com/partners", "https://vivatechnology.com/partners"},
		{"protocol relative", "//example.com/a", "https://example.com/a"},
		{"uppercase host and scheme", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"default https port", "https://example.com:443/x", "https://example.com/x"},
		{"default http port", "http://example.com:80/x", "http://example.com/x"},
		{"custom port kept", "example.com:8080/x", "https://example.com:8080/x"},
		{"double encoded space", "https://example.com/a%2520b", "https://example.com/a%20b"},
		{"raw space escaped", "https://example.com/my page", "https://example.com/my%20page"},
		{"existing escape kept single", "https://example.com/caf%C3%A9", "https://example.com/caf%C3%A9"},
		{"malformed escape escaped", "https://example.com/100%zz", "https://example.com/100%25zz"},
		{"fragment dropped", "https://example.com/a#top", "https://example.com/a"},
		{"query kept", "https://example.com/s?q=a+b&x=1", "https://example.com/s?q=a+b&x=1"},
		{"query space escaped", "https://example.com/s?q=a b", "https://example.com/s?q=a%20b"},
		{"surrounding whitespace", "  example.com/x  ", "https://example.com/x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)
		})
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "ftp://example.com/file", "https://", "http://exa mple.com"} {
		_, err := Normalize(raw)
		require.Error(t, err, "input %q", raw)
		require.True(t, failure.Is(err, failure.KindValidation), "input %q: %v", raw, err)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"example.com",
		"vivatechnology.com/partners",
		"https://example.com/a%2520b/c d",
		"https://example.com/100%zz/%41",
		"http://Example.com:80/x?y=z w",
	}
	for _, in := range inputs {
		once, err := Normalize(in)
		require.NoError(t, err)
		twice, err := Normalize(once)
		require.NoError(t, err)
		require.Equal(t, once, twice, "input %q", in)
	}
}

func TestNormalizeSchemeInference(t *testing.T) {
	t.Parallel()

	a, err := Normalize("example.com")
	require.NoError(t, err)
	b, err := Normalize("https://example.com")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func FuzzNormalizeIdempotent(f *testing.F) {
	for _, seed := range []string{"example.com", "https://example.com/a%2520b", "http://x.org/p q?r=s"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		once, err := Normalize(raw)
		if err != nil {
			return
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(%q) = %q, renormalize failed: %v", raw, once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", raw, once, twice)
		}
	})
}
