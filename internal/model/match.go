package model

import "strings"

// MatchOption finds the option for candidate: exact value or label, then
// case-insensitive, then substring in either direction. The first option
// satisfying the earliest tier wins.
func MatchOption(options []Option, candidate string) (int, bool) {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return -1, false
	}
	for i, o := range options {
		if o.Value == c || o.Label == c {
			return i, true
		}
	}
	for i, o := range options {
		if strings.EqualFold(strings.TrimSpace(o.Value), c) || strings.EqualFold(strings.TrimSpace(o.Label), c) {
			return i, true
		}
	}
	lc := strings.ToLower(c)
	for i, o := range options {
		for _, s := range []string{o.Label, o.Value} {
			ls := strings.ToLower(strings.TrimSpace(s))
			if ls == "" {
				continue
			}
			if strings.Contains(ls, lc) || strings.Contains(lc, ls) {
				return i, true
			}
		}
	}
	return -1, false
}

// MatchOptions matches every candidate and returns the distinct option
// indexes in option order.
func MatchOptions(options []Option, candidates []string) []int {
	hit := make(map[int]bool)
	for _, c := range candidates {
		if i, ok := MatchOption(options, c); ok {
			hit[i] = true
		}
	}
	var out []int
	for i := range options {
		if hit[i] {
			out = append(out, i)
		}
	}
	return out
}

// FieldMatch is one AI suggestion for a field.
type FieldMatch struct {
	FieldName  string  `json:"fieldName"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Suggestions is the AI matcher output for one fill cycle.
type Suggestions []FieldMatch

// For returns the best suggestion naming any of keys, case-insensitively.
func (s Suggestions) For(keys ...string) (FieldMatch, bool) {
	var best FieldMatch
	found := false
	for _, m := range s {
		for _, k := range keys {
			if k == "" || !strings.EqualFold(m.FieldName, k) {
				continue
			}
			if !found || m.Confidence > best.Confidence {
				best = m
				found = true
			}
		}
	}
	return best, found
}
