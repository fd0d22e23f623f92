// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package screening

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

type denyEntry struct {
	label string
	re    *regexp.Regexp
}

// DenylistRule blocks tasks mentioning operator-configured terms. Terms
// match as case-insensitive whole words or phrases; a rule with no
// entries never blocks.
type DenylistRule struct {
	entries []denyEntry
}

// NewDenylistRule builds the rule from literal terms. Blank terms are
// skipped.
func NewDenylistRule(terms ...string) *DenylistRule {
	r := &DenylistRule{}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		r.entries = append(r.entries, denyEntry{
			label: t,
			re:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(t) + `\b`),
		})
	}
	return r
}

// AddExpression installs a prebuilt expression under the given label.
// Install entries before handing the rule to a Screen; a DenylistRule
// must not change once inspections run.
func (r *DenylistRule) AddExpression(label string, re *regexp.Regexp) {
	if re == nil {
		return
	}
	r.entries = append(r.entries, denyEntry{label: label, re: re})
}

// Name identifies the rule in verdicts and logs.
func (r *DenylistRule) Name() string { return "denylist" }

// Inspect returns a blocking verdict naming the first matching term.
func (r *DenylistRule) Inspect(ctx context.Context, text string) Verdict {
	if text == "" {
		return Verdict{}
	}

	for _, e := range r.entries {
		if ctx.Err() != nil {
			return Verdict{}
		}
		if e.re.MatchString(text) {
			return Verdict{
				Blocked: true,
				Rule:    r.Name(),
				Reason:  fmt.Sprintf("task mentions denied term %q", e.label),
				Score:   1,
			}
		}
	}
	return Verdict{}
}

var _ Rule = (*DenylistRule)(nil)
