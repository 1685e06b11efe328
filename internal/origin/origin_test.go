package origin

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecker(t *testing.T) {
	t.Parallel()

	const pollURL = "http://localhost:5000/realtime/poll"

	testCases := []struct {
		name     string
		origin   string
		url      string
		patterns []string
		allowed  bool
	}{
		{name: "no origin header", url: pollURL, allowed: true},
		{name: "same host", origin: "http://localhost:5000", url: pollURL, allowed: true},
		{name: "same host other case", origin: "http://LocalHost:5000", url: pollURL, allowed: true},
		{name: "not a url", origin: "garbage", url: pollURL},
		{name: "other host", origin: "https://app.coliv.example", url: pollURL},
		{name: "other port", origin: "http://localhost:3000", url: pollURL},
		{
			name:     "glob match",
			origin:   "https://App.Coliv.example",
			url:      pollURL,
			patterns: []string{"https://*.coliv.example"},
			allowed:  true,
		},
		{
			name:     "exact pattern",
			origin:   "http://localhost:3000",
			url:      pollURL,
			patterns: []string{"https://*.coliv.example", "http://localhost:3000"},
			allowed:  true,
		},
		{
			name:     "lookalike host",
			origin:   "https://app.cоliv.example",
			url:      pollURL,
			patterns: []string{"https://*.coliv.example"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", tc.url, nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			c, err := NewChecker(tc.patterns)
			require.NoError(t, err)
			require.Equal(t, tc.allowed, c.Allowed(r))
			if tc.allowed {
				require.NoError(t, c.Check(r))
			} else {
				require.Error(t, c.Check(r))
			}
		})
	}
}

func TestMalformedPattern(t *testing.T) {
	_, err := NewChecker([]string{"[a-"})
	require.Error(t, err)
}
