// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package planner

// LastResultPlaceholder marks a plan input value to be replaced with the
// previous step's extracted answer at execution time.
const LastResultPlaceholder = "<LAST_RESULT>"

// SubstituteLastResult returns a copy of input where every string leaf that
// exactly equals LastResultPlaceholder is replaced by value, recursing into
// nested maps and slices. Partial matches and non-string values pass
// through verbatim.
func SubstituteLastResult(input map[string]any, value any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = substituteValue(v, value)
	}
	return out
}

func substituteValue(v, value any) any {
	switch t := v.(type) {
	case string:
		if t == LastResultPlaceholder {
			return value
		}
		return t
	case map[string]any:
		return SubstituteLastResult(t, value)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = substituteValue(item, value)
		}
		return out
	default:
		return v
	}
}
