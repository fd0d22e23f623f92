// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package screening

import (
	"context"
	"fmt"
	"regexp"
)

// secretPattern describes one detectable kind of sensitive text.
// Credential kinds additionally block inbound tasks.
type secretPattern struct {
	kind        string
	re          *regexp.Regexp
	placeholder string
	credential  bool
}

// The default detection table. Order matters: a 16-digit card number
// would otherwise be consumed piecewise by the phone pattern.
var defaultSecretPatterns = []secretPattern{
	{"api_key", regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}\b`), "[API_KEY]", true},
	{"aws_key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), "[AWS_KEY]", true},
	{"bearer_token", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{16,}=*`), "[TOKEN]", true},
	{"credit_card", regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`), "[CARD]", false},
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), "[EMAIL]", false},
	{"phone", regexp.MustCompile(`\+?1?[-. ]?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`), "[PHONE]", false},
}

// SecretRedactor finds credentials and contact details in text. As a
// Redactor it replaces every find with a bracketed placeholder. As a
// Rule it blocks inbound tasks carrying credential kinds, so a key
// pasted into a task never reaches a model or a transcript; contact
// details stay inbound because plenty of legitimate tasks mention them.
type SecretRedactor struct {
	patterns []secretPattern
	enabled  map[string]bool
}

// RedactorOption configures a SecretRedactor.
type RedactorOption func(*SecretRedactor)

// WithKinds restricts detection to the named kinds.
func WithKinds(kinds ...string) RedactorOption {
	return func(r *SecretRedactor) {
		for k := range r.enabled {
			r.enabled[k] = false
		}
		for _, k := range kinds {
			r.enabled[k] = true
		}
	}
}

// WithoutKinds disables detection of the named kinds.
func WithoutKinds(kinds ...string) RedactorOption {
	return func(r *SecretRedactor) {
		for _, k := range kinds {
			r.enabled[k] = false
		}
	}
}

// WithSecretPattern installs an additional detectable kind. The caller
// compiles the expression; credential marks the kind as inbound
// blocking.
func WithSecretPattern(kind string, re *regexp.Regexp, placeholder string, credential bool) RedactorOption {
	return func(r *SecretRedactor) {
		if re == nil {
			return
		}
		r.patterns = append(r.patterns, secretPattern{
			kind:        kind,
			re:          re,
			placeholder: placeholder,
			credential:  credential,
		})
		r.enabled[kind] = true
	}
}

// NewSecretRedactor builds the redactor with the default table and all
// kinds enabled.
func NewSecretRedactor(opts ...RedactorOption) *SecretRedactor {
	r := &SecretRedactor{
		patterns: append([]secretPattern(nil), defaultSecretPatterns...),
		enabled:  make(map[string]bool, len(defaultSecretPatterns)),
	}
	for _, p := range r.patterns {
		r.enabled[p.kind] = true
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name identifies the redactor in verdicts and logs.
func (r *SecretRedactor) Name() string { return "secrets" }

// Redact replaces every enabled find with its placeholder. Spans do not
// carry the original text, so they are safe to log.
func (r *SecretRedactor) Redact(ctx context.Context, text string) (string, []Span) {
	if text == "" {
		return text, nil
	}

	var spans []Span
	for _, p := range r.patterns {
		if !r.enabled[p.kind] {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		matches := p.re.FindAllStringIndex(text, -1)
		// Replace right to left so earlier offsets stay valid.
		for i := len(matches) - 1; i >= 0; i-- {
			m := matches[i]
			spans = append(spans, Span{Kind: p.kind, Replacement: p.placeholder, Offset: m[0]})
			text = text[:m[0]] + p.placeholder + text[m[1]:]
		}
	}
	return text, spans
}

// Inspect blocks tasks containing enabled credential kinds.
func (r *SecretRedactor) Inspect(ctx context.Context, text string) Verdict {
	if text == "" {
		return Verdict{}
	}

	for _, p := range r.patterns {
		if !p.credential || !r.enabled[p.kind] {
			continue
		}
		if ctx.Err() != nil {
			return Verdict{}
		}
		if p.re.MatchString(text) {
			return Verdict{
				Blocked: true,
				Rule:    r.Name(),
				Reason:  fmt.Sprintf("task contains a credential (%s); remove it and reference the secret by name", p.kind),
				Score:   1,
			}
		}
	}
	return Verdict{}
}

var (
	_ Rule     = (*SecretRedactor)(nil)
	_ Redactor = (*SecretRedactor)(nil)
)
