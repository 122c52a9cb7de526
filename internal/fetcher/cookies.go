package fetcher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

type sessionCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// loadSessionCookies reads an exported browser session, a JSON array
// of name/value pairs, and turns it into cookies for the jar. The
// file is read once at construction; the session is immutable after
// that.
func loadSessionCookies(path string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file %s: %w", path, err)
	}

	var stored []sessionCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse cookie file %s: %w", path, err)
	}

	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}
