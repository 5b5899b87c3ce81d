// Package httpparse implements the small HTTP text-parsing helpers the
// pipeline needs to interoperate with the (externally owned) dashboard
// HTTP surface, without pulling in an HTTP server of its own: status-line
// parsing, request-body size capping, and query-parameter extraction.
package httpparse

import "strings"

// MaxBodySize is the POST body cap from spec.md §6: bodies strictly
// larger than this receive 413; the cap itself is allowed.
const MaxBodySize = 1 << 20 // 1 MiB

// ExceedsBodyLimit reports whether a body of the given size should be
// rejected with 413. The comparison is strictly-greater so a body of
// exactly MaxBodySize is accepted.
func ExceedsBodyLimit(size int) bool {
	return size > MaxBodySize
}

// StatusCode extracts the numeric status code from an HTTP status line
// such as "HTTP/1.1 200 OK". It guards against short input before
// slicing the fixed [9:12] status-code window, returning ok=false for
// any line shorter than 12 bytes or whose status field isn't 3 digits.
func StatusCode(statusLine string) (code int, ok bool) {
	if len(statusLine) < 12 {
		return 0, false
	}
	field := statusLine[9:12]
	n := 0
	for _, c := range []byte(field) {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// QueryParam extracts the value of key from a raw query string (the part
// of a URL after "?", without the leading "?"). Extraction stops at the
// next "&" or end-of-string; no other delimiter (such as "#") ends the
// value.
func QueryParam(rawQuery, key string) (value string, present bool) {
	if rawQuery == "" {
		return "", false
	}
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		name, val, found := strings.Cut(pair, "=")
		if name != key {
			continue
		}
		if !found {
			return "", true
		}
		return val, true
	}
	return "", false
}

// ChatThreadID applies the dashboard's thread-id resolution rule for
// /api/chat/messages?thread=<id>: absent thread param -> "web:dashboard",
// present-but-empty -> "".
func ChatThreadID(rawQuery string) string {
	value, present := QueryParam(rawQuery, "thread")
	if !present {
		return "web:dashboard"
	}
	return value
}
