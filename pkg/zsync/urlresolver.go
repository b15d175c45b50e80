// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package zsync

import "net/url"

// IsAbsoluteURL reports whether s begins with a scheme, i.e. matches
// `<alpha>[<alnum>+-.]*:`.
func IsAbsoluteURL(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ':':
			return i > 0
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.':
			continue
		default:
			return false
		}
	}
	return false
}

// ResolveURL resolves maybeRelative against referrer (spec §4.1). It fails
// with ErrNoReferrerForRelativeURL when maybeRelative is relative and
// referrer is empty. An absolute maybeRelative is returned unchanged
// regardless of referrer.
func ResolveURL(referrer, maybeRelative string) (string, error) {
	if IsAbsoluteURL(maybeRelative) {
		return maybeRelative, nil
	}
	if referrer == "" {
		return "", ErrNoReferrerForRelativeURL
	}
	base, err := url.Parse(referrer)
	if err != nil {
		return "", ErrNoReferrerForRelativeURL
	}
	rel, err := url.Parse(maybeRelative)
	if err != nil {
		return "", ErrNoReferrerForRelativeURL
	}
	return base.ResolveReference(rel).String(), nil
}
