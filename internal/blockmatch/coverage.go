// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package blockmatch

import "sort"

// coverage tracks the set of byte ranges of the target already populated
// in the scratch file, whether sourced from a matched seed block or a
// fetched HTTP range. It answers both Progress (bytes covered) and
// NeededRanges (the complement within [0, total)).
type coverage struct {
	ranges []rangeSpan // sorted, merged, non-overlapping
}

type rangeSpan struct {
	start, end int64
}

func (c *coverage) add(start, end int64) {
	if start >= end {
		return
	}
	c.ranges = append(c.ranges, rangeSpan{start, end})
	sort.Slice(c.ranges, func(i, j int) bool { return c.ranges[i].start < c.ranges[j].start })

	merged := c.ranges[:0]
	for _, r := range c.ranges {
		if len(merged) > 0 && r.start <= merged[len(merged)-1].end {
			if r.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = r.end
			}
			continue
		}
		merged = append(merged, r)
	}
	c.ranges = merged
}

func (c *coverage) bytesCovered() int64 {
	var total int64
	for _, r := range c.ranges {
		total += r.end - r.start
	}
	return total
}

// gaps returns the complement of the covered ranges within [0, total).
func (c *coverage) gaps(total int64) []rangeSpan {
	var gaps []rangeSpan
	var cursor int64
	for _, r := range c.ranges {
		if r.start > cursor {
			gaps = append(gaps, rangeSpan{cursor, r.start})
		}
		if r.end > cursor {
			cursor = r.end
		}
	}
	if cursor < total {
		gaps = append(gaps, rangeSpan{cursor, total})
	}
	return gaps
}
