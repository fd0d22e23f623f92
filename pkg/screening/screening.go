// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

// Package screening filters the text crossing the engine boundary.
// Rules inspect an inbound task before any planning or skill dispatch;
// redactors scrub the outbound answer before it leaves the process.
//
// A Screen is assembled once at startup and is immutable afterwards:
//
//	screen := screening.New(
//	    screening.WithRule(screening.NewInjectionRule()),
//	    screening.WithRule(screening.NewDenylistRule("launch codes")),
//	    screening.WithRedactor(screening.NewSecretRedactor()),
//	)
//
//	if v := screen.Inspect(ctx, task); v.Blocked {
//	    return v.Reason
//	}
//	answer, _ = screen.Redact(ctx, answer)
//
// What happens between the two calls, memory writes included, is not
// screened; the package guards the boundary, not the internals.
package screening

import "context"

// Verdict is the outcome of inspecting one piece of inbound text.
type Verdict struct {
	// Blocked means the text must not proceed into the run.
	Blocked bool

	// Rule names the rule that blocked; empty when nothing did.
	Rule string

	// Reason is a short operator-readable explanation for the block.
	Reason string

	// Score is the rule's confidence in the block, 0 to 1.
	Score float64
}

// Span records one replaced region of scrubbed text. Offsets refer to
// the text the redactor received, which for chained redactors is the
// output of the one before.
type Span struct {
	// Kind categorizes the replaced region ("email", "api_key").
	Kind string

	// Replacement is the placeholder now occupying the region.
	Replacement string

	// Offset is the byte position where the region started.
	Offset int
}

// Rule inspects inbound text before the engine acts on it.
type Rule interface {
	// Name identifies the rule in verdicts and logs.
	Name() string

	// Inspect examines the text and returns a blocking verdict or the
	// zero Verdict.
	Inspect(ctx context.Context, text string) Verdict
}

// Redactor rewrites outbound text, replacing sensitive regions with
// placeholders.
type Redactor interface {
	// Name identifies the redactor in logs.
	Name() string

	// Redact returns the scrubbed text and one span per replacement.
	Redact(ctx context.Context, text string) (string, []Span)
}

// Screen runs a fixed set of rules over inbound text and redactors over
// outbound text. The set cannot change after New, so a Screen is safe
// for concurrent use without locking.
type Screen struct {
	rules      []Rule
	redactors  []Redactor
	permissive bool
}

// Option configures a Screen.
type Option func(*Screen)

// WithRule appends an inbound rule. Rules run in the order added.
func WithRule(r Rule) Option {
	return func(s *Screen) {
		if r != nil {
			s.rules = append(s.rules, r)
		}
	}
}

// WithRedactor appends an outbound redactor. Redactors chain in the
// order added.
func WithRedactor(r Redactor) Option {
	return func(s *Screen) {
		if r != nil {
			s.redactors = append(s.redactors, r)
		}
	}
}

// WithPermissive lets inbound text through unchecked when the context
// is cancelled mid-inspection. The default treats a cancelled
// inspection as a block.
func WithPermissive(permissive bool) Option {
	return func(s *Screen) { s.permissive = permissive }
}

// New builds a Screen from the given options.
func New(opts ...Option) *Screen {
	s := &Screen{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Inspect runs every rule in order and returns the first blocking
// verdict. With no rules, or none blocking, it returns the zero
// Verdict.
func (s *Screen) Inspect(ctx context.Context, text string) Verdict {
	for _, r := range s.rules {
		if ctx.Err() != nil {
			if s.permissive {
				return Verdict{}
			}
			return Verdict{
				Blocked: true,
				Rule:    "screen",
				Reason:  "inspection cancelled before all rules ran",
			}
		}
		if v := r.Inspect(ctx, text); v.Blocked {
			if v.Rule == "" {
				v.Rule = r.Name()
			}
			return v
		}
	}
	return Verdict{}
}

// Redact chains every redactor over the text, each receiving the output
// of the one before. Redactors still pending when the context is
// cancelled are skipped; the text scrubbed so far is returned.
func (s *Screen) Redact(ctx context.Context, text string) (string, []Span) {
	var spans []Span
	for _, r := range s.redactors {
		if ctx.Err() != nil {
			break
		}
		out, replaced := r.Redact(ctx, text)
		if len(replaced) > 0 {
			text = out
			spans = append(spans, replaced...)
		}
	}
	return text, spans
}

// RuleCount returns the number of installed rules.
func (s *Screen) RuleCount() int { return len(s.rules) }

// RedactorCount returns the number of installed redactors.
func (s *Screen) RedactorCount() int { return len(s.redactors) }
