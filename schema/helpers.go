package schema

import (
	"maps"
	"slices"
	"strings"
)

// SortedPillars returns the keys of a pillar map in lexical order.
func SortedPillars[V any](m map[PillarID]V) []PillarID {
	return slices.Sorted(maps.Keys(m))
}

// JoinFlags renders report flags as a pipe-separated string.
func JoinFlags(flags []ReportFlag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, "|")
}

// ParseFlags is the inverse of JoinFlags.
func ParseFlags(s string) []ReportFlag {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]ReportFlag, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, ReportFlag(p))
		}
	}
	return out
}
