// Copyright (c) Edgebird
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"encoding/base64"
	"net/url"
	"strings"
)

// extractAuth extracts authentication credentials from the upgrade request.
// It tries multiple sources in order:
// 1. Basic Authentication header
// 2. "authorization" query parameter
// 3. "Authorization" header (Bearer token, etc.)
//
// Unlike the upgrade validation, which matches header names exactly, the
// credential sweep is case-insensitive.
func extractAuth(head []byte) (username, password string) {
	auth := headerValue(head, "Authorization")

	if user, pass, ok := parseBasicAuth(auth); ok {
		return user, pass
	}

	if q := queryParam(head, "authorization"); q != "" {
		return "", q
	}

	if auth != "" {
		return "", auth
	}

	return "", ""
}

// requestedSubprotocol returns the first subprotocol the client offered, if
// any. The server records it for handlers but never negotiates it on the
// wire: the accept response is fixed.
func requestedSubprotocol(head []byte) string {
	v := headerValue(head, "Sec-WebSocket-Protocol")
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// parseBasicAuth decodes an HTTP Basic Authentication header value.
func parseBasicAuth(auth string) (username, password string, ok bool) {
	const prefix = "Basic "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", false
	}
	return username, password, true
}

// headerValue scans the request head for a header by case-insensitive name
// and returns its value, or "" when absent.
func headerValue(head []byte, name string) string {
	lines := strings.Split(string(head), "\r\n")
	if len(lines) < 2 {
		return ""
	}
	for _, line := range lines[1:] {
		n, v, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(n), name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// queryParam returns the named query parameter from the request target, or
// "" when the request line or query cannot be parsed.
func queryParam(head []byte, name string) string {
	line, _, _ := strings.Cut(string(head), "\r\n")

	// Request line: METHOD SP target SP version
	_, after, ok := strings.Cut(line, " ")
	if !ok {
		return ""
	}
	target, _, ok := strings.Cut(after, " ")
	if !ok {
		return ""
	}

	u, err := url.ParseRequestURI(target)
	if err != nil {
		return ""
	}
	return u.Query().Get(name)
}
