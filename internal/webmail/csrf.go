package webmail

import (
	"context"
	"io"
	"net/http"
	"regexp"
)

// tokenPattern matches the csrf-token meta tag the server embeds in its
// rendered pages. The token is single-use: it is fetched immediately before
// the request that consumes it and never cached.
var tokenPattern = regexp.MustCompile(`<meta +name="csrf-token" +content="(.+?)">`)

// fetchCSRFToken retrieves page with the session's cookies and user agent
// and extracts the embedded security token.
func (c *Client) fetchCSRFToken(ctx context.Context, page string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newError(KindCSRFToken, "unexpected response status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	match := tokenPattern.FindSubmatch(body)
	if match == nil {
		return "", newError(KindCSRFToken, "csrf-token not found")
	}
	return string(match[1]), nil
}
