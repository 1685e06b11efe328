package tools

import (
	"net/url"
	"strings"
)

// RedactedLogURLs strips passwords from URLs before they are logged. Each
// input may hold several comma separated URLs.
func RedactedLogURLs(urls ...string) []string {
	var result []string
	for _, input := range urls {
		parts := strings.Split(input, ",")
		cleaned := make([]string, 0, len(parts))
		for _, raw := range parts {
			u, err := url.Parse(strings.TrimSpace(raw))
			if err != nil {
				cleaned = append(cleaned, "<invalid_url>")
				continue
			}
			cleaned = append(cleaned, u.Redacted())
		}
		result = append(result, strings.Join(cleaned, ","))
	}
	return result
}
