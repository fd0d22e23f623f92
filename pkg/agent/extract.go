// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"strconv"
	"strings"
)

// answerKeys are scanned in priority order when extracting a candidate
// answer from a skill's output payload.
var answerKeys = [...]string{"final_answer", "summary", "answer", "output"}

// extractCandidate scans the payload for the first answer key holding a
// scalar value. Maps, slices and empty strings do not qualify; the scan
// moves on to the next key.
func extractCandidate(payload map[string]any) (string, bool) {
	for _, key := range answerKeys {
		v, ok := payload[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val, true
			}
		case int:
			return strconv.Itoa(val), true
		case int64:
			return strconv.FormatInt(val, 10), true
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64), true
		case float32:
			return strconv.FormatFloat(float64(val), 'f', -1, 32), true
		}
	}
	return "", false
}

// resolveMemoryMatch picks the best usable text from a memory_search
// matches list. Matches echoing the query back and previously serialized
// debug objects are skipped; if filtering removes everything, the first
// raw match wins.
func resolveMemoryMatch(matches []any, normalizedQuery string) (string, bool) {
	queryClean := strings.TrimSpace(normalizedQuery)
	for _, m := range matches {
		txt, ok := matchText(m)
		if !ok {
			continue
		}
		clean := strings.TrimSpace(txt)
		if clean == queryClean {
			continue
		}
		if strings.HasPrefix(clean, "{") && strings.Contains(clean, "summary") {
			continue
		}
		return clean, true
	}
	if len(matches) > 0 {
		if txt, ok := matchText(matches[0]); ok {
			return strings.TrimSpace(txt), true
		}
	}
	return "", false
}

// matchText pulls the text field out of a single match entry.
func matchText(m any) (string, bool) {
	entry, ok := m.(map[string]any)
	if !ok {
		return "", false
	}
	txt, ok := entry["text"].(string)
	if !ok || txt == "" {
		return "", false
	}
	return txt, true
}

// asMatchList normalizes the matches payload value into a slice.
func asMatchList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []map[string]any:
		out := make([]any, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

// stringifyPayload renders a skill output payload as the next working
// query for router-driven continuation.
func stringifyPayload(payload map[string]any) string {
	return fmt.Sprintf("%v", payload)
}
