package validation

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxKeywordLength is the longest keyword accepted, in characters.
const MaxKeywordLength = 200

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)
	blankLine   = regexp.MustCompile(`^\s*(#.*)?$`)
)

// NormalizeKeyword trims a keyword, collapses inner whitespace to single
// spaces and lowercases it, so "  Coffee   Beans " and "coffee beans" are the
// same keyword.
func NormalizeKeyword(keyword string) string {
	return strings.ToLower(strings.Join(strings.Fields(keyword), " "))
}

// ValidateKeyword checks a normalized keyword.
func ValidateKeyword(keyword string) (bool, string) {
	if keyword == "" {
		return false, "keyword is empty"
	}
	if !utf8.ValidString(keyword) {
		return false, "keyword is not valid UTF-8"
	}
	if utf8.RuneCountInString(keyword) > MaxKeywordLength {
		return false, "keyword is too long"
	}
	for _, r := range keyword {
		if r < 0x20 || r == 0x7f {
			return false, "keyword contains control characters"
		}
	}
	return true, ""
}

// DedupeKeywords normalizes keywords and drops later duplicates. The first
// occurrence of each keyword keeps its relative position. Blank entries are
// skipped.
func DedupeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		n := NormalizeKeyword(kw)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// ParseKeywordLines splits text into keywords, one per line. Blank lines and
// lines starting with # are ignored.
func ParseKeywordLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if blankLine.MatchString(line) {
			continue
		}
		out = append(out, strings.TrimSpace(line))
	}
	return out
}

// Slug turns a keyword into a lowercase, hyphen-separated token safe to use
// inside cache keys.
func Slug(keyword string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(keyword), "-")
	s = strings.Trim(s, "-")
	if len(s) > 64 {
		s = strings.TrimRight(s[:64], "-")
	}
	if s == "" {
		return "_"
	}
	return s
}

// ValidateURL checks if a URL is valid and uses an allowed scheme (http/https only).
func ValidateURL(urlStr string) (bool, string) {
	if urlStr == "" {
		return false, "URL is required"
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return false, "Invalid URL format"
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false, "URL must use http:// or https:// scheme"
	}

	if u.Host == "" {
		return false, "URL must have a valid host"
	}

	return true, ""
}
