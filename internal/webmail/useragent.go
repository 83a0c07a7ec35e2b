package webmail

import "math/rand"

// userAgents are User-Agent values used by popular web browsers. The webmail
// front end only expects browsers, so every session presents itself as one.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/59.0.3071.115 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_12_5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/59.0.3071.115 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; WOW64; rv:54.0) Gecko/20100101 Firefox/54.0",
}

// RandomUserAgent returns one browser User-Agent string from the pool.
// Callers pick one per session and keep it for the session's lifetime.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}
