// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package screening

import (
	"context"
	"regexp"
)

// Families of phrasing that try to smuggle instructions to the model:
// overriding earlier instructions, hijacking the persona, extracting the
// system prompt, or embedding chat-template delimiters in a task.
var injectionPatterns = []*regexp.Regexp{
	// Instruction override
	regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override)\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|messages?)`),

	// Persona hijack
	regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(a|an|in)\b`),
	regexp.MustCompile(`(?i)\bpretend\s+(you\s+are|to\s+be)\b`),
	regexp.MustCompile(`(?i)\b(developer|debug|sudo|admin|dan|god)\s+mode\b`),

	// System prompt extraction
	regexp.MustCompile(`(?i)\b(show|reveal|print|display|repeat)\s+(me\s+)?your\s+(system\s+)?(prompt|instructions?)\b`),
	regexp.MustCompile(`(?i)\bwhat\s+(is|are)\s+your\s+(system\s+)?(prompt|instructions)\b`),

	// Chat-template delimiters never belong in a task
	regexp.MustCompile(`(?i)\[\s*/?INST\s*\]`),
	regexp.MustCompile(`<<\s*/?SYS\s*>>`),
	regexp.MustCompile(`<\|[^|]+\|>`),
	regexp.MustCompile(`(?i)\]\]\s*system\s*:`),
}

// InjectionRule blocks tasks that look like prompt injection attempts.
// Detection is pattern based and catches common phrasings, not
// paraphrased attacks; treat it as a tripwire rather than a proof.
type InjectionRule struct {
	patterns []*regexp.Regexp
}

// InjectionOption configures an InjectionRule.
type InjectionOption func(*InjectionRule)

// WithInjectionPatterns extends the default pattern set. Callers compile
// their own expressions so a bad pattern fails loudly at the call site.
func WithInjectionPatterns(exprs ...*regexp.Regexp) InjectionOption {
	return func(r *InjectionRule) {
		for _, re := range exprs {
			if re != nil {
				r.patterns = append(r.patterns, re)
			}
		}
	}
}

// NewInjectionRule builds the rule with the default patterns.
func NewInjectionRule(opts ...InjectionOption) *InjectionRule {
	r := &InjectionRule{
		patterns: append([]*regexp.Regexp(nil), injectionPatterns...),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name identifies the rule in verdicts and logs.
func (r *InjectionRule) Name() string { return "injection" }

// Inspect matches the text against every pattern. Any match blocks; the
// score rises with the number of distinct pattern families hit.
func (r *InjectionRule) Inspect(ctx context.Context, text string) Verdict {
	if text == "" {
		return Verdict{}
	}

	hits := 0
	for _, p := range r.patterns {
		if ctx.Err() != nil {
			return Verdict{}
		}
		if p.MatchString(text) {
			hits++
		}
	}
	if hits == 0 {
		return Verdict{}
	}

	score := 0.7 + float64(hits-1)*0.1
	if score > 1 {
		score = 1
	}
	return Verdict{
		Blocked: true,
		Rule:    r.Name(),
		Reason:  "task looks like a prompt injection attempt",
		Score:   score,
	}
}

var _ Rule = (*InjectionRule)(nil)
