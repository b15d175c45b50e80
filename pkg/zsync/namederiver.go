// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package zsync

import (
	"log/slog"
	"strings"
)

const fallbackName = "zsync-download"

// DeriveName picks a safe local output filename from the control
// document's advisory filename and the source the control document came
// from (spec §4.2). It never returns a string containing a path
// separator.
func DeriveName(logger *slog.Logger, adv string, sourceName string) string {
	base := fileComponent(sourceName)
	prefix := alnumPrefix(base)

	if adv != "" {
		if strings.ContainsAny(adv, "/\\") {
			logger.Warn("rejecting unsafe advised filename", "advised", adv)
		} else if prefix != "" && strings.HasPrefix(adv, prefix) {
			return adv
		} else {
			logger.Warn("rejecting advised filename: does not match source prefix", "advised", adv, "prefix", prefix)
		}
	}

	if prefix != "" {
		return prefix
	}
	return fallbackName
}

// fileComponent strips any leading path (URL or filesystem) from
// sourceName, leaving just the final component.
func fileComponent(sourceName string) string {
	s := sourceName
	if i := strings.LastIndexAny(s, "/\\"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// alnumPrefix returns the longest leading run of ASCII letters and digits.
func alnumPrefix(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return s[:i]
		}
	}
	return s
}
