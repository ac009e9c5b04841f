// Package urlnorm canonicalizes user supplied URLs before any network action.
package urlnorm

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/webscout/internal/failure"
)

const op = "urlnorm.normalize"

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// Normalize infers a missing scheme, repairs double percent-encoding,
// re-encodes each path segment exactly once, and validates the result.
// It lowercases scheme and host, removes default ports and drops fragments.
// The query string is preserved apart from escaping raw spaces.
//
// Normalize is pure: Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", failure.New(failure.KindValidation, op, "url is empty")
	}
	s = collapseDoubleEncoding(s)
	if !schemePattern.MatchString(s) {
		s = "https://" + strings.TrimPrefix(s, "//")
	}

	if idx := strings.IndexByte(s, '#'); idx >= 0 {
		s = s[:idx]
	}
	query := ""
	if idx := strings.IndexByte(s, '?'); idx >= 0 {
		query = s[idx+1:]
		s = s[:idx]
	}

	schemeEnd := strings.Index(s, "://") + len("://")
	authority, path := s, ""
	if idx := strings.IndexByte(s[schemeEnd:], '/'); idx >= 0 {
		authority = s[:schemeEnd+idx]
		path = s[schemeEnd+idx:]
	}

	base, err := url.Parse(authority)
	if err != nil {
		return "", failure.Newf(failure.KindValidation, op, "unparseable url %q", raw)
	}
	scheme := strings.ToLower(base.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", failure.Newf(failure.KindValidation, op, "unsupported scheme %q", base.Scheme)
	}
	if base.Hostname() == "" {
		return "", failure.Newf(failure.KindValidation, op, "missing host in %q", raw)
	}
	host := strings.ToLower(base.Host)
	if scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	if base.User != nil {
		b.WriteString(base.User.String())
		b.WriteByte('@')
	}
	b.WriteString(host)
	b.WriteString(encodePath(path))
	if query != "" {
		b.WriteByte('?')
		b.WriteString(strings.ReplaceAll(query, " ", "%20"))
	}
	out := collapseDoubleEncoding(b.String())

	parsed, err := url.Parse(out)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", failure.Newf(failure.KindValidation, op, "invalid url %q", raw)
	}
	return out, nil
}

// collapseDoubleEncoding rewrites %2520 (an escaped "%20") back to %20.
func collapseDoubleEncoding(s string) string {
	for strings.Contains(s, "%2520") {
		s = strings.ReplaceAll(s, "%2520", "%20")
	}
	return s
}

func encodePath(path string) string {
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(lenientUnescape(seg))
	}
	return strings.Join(segments, "/")
}

// lenientUnescape decodes valid %XX escapes and keeps malformed ones literal.
func lenientUnescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
