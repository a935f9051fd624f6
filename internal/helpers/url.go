package helpers

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Query parameters that identify a click, not an article. Stripped before
// the URL is used as a deduplication key.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"utm_id":       {},
	"utm_name":     {},
	"utm_reader":   {},
	"gclid":        {},
	"dclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"igshid":       {},
	"mc_cid":       {},
	"mc_eid":       {},
}

// NormalizeURL reduces an article URL to its canonical form so that the same
// story reached via different share links compares equal. It lowercases the
// scheme and host, drops default ports, fragments and tracking parameters,
// cleans the path and sorts the remaining query parameters. A schemeless
// input is assumed to be https.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		if strings.HasPrefix(raw, "//") {
			parsed, err = url.Parse("https:" + raw)
		} else {
			parsed, err = url.Parse("https://" + raw)
		}
		if err != nil {
			return "", err
		}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	host := strings.ToLower(parsed.Host)
	if host == "" {
		return "", errors.New("url missing host")
	}
	if h, port, ok := strings.Cut(host, ":"); ok {
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			host = h
		}
	}

	cleaned := path.Clean(parsed.Path)
	if cleaned == "." || cleaned == "" {
		cleaned = "/"
	}
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}

	query := parsed.Query()
	for key := range query {
		if _, drop := trackingParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(cleaned)
	if len(query) > 0 {
		keys := make([]string, 0, len(query))
		for key := range query {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		b.WriteByte('?')
		first := true
		for _, key := range keys {
			values := append([]string(nil), query[key]...)
			sort.Strings(values)
			for _, value := range values {
				if !first {
					b.WriteByte('&')
				}
				first = false
				b.WriteString(url.QueryEscape(key))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(value))
			}
		}
	}
	return b.String(), nil
}
