// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	"strings"

	"github.com/metis-ai/metis/pkg/errors"
)

// Decision is the router's pick for the next unit of work.
type Decision struct {
	SkillName  string
	Confidence float64
	Params     map[string]any
}

// Router decides which skill should handle a query when no plan dictates
// the next step.
type Router interface {
	Route(ctx context.Context, query string) (Decision, error)
}

// KeywordRule maps trigger keywords to a skill. A rule matches when any of
// its keywords appears in the lowercased query.
type KeywordRule struct {
	Keywords []string
	Skill    string
}

// KeywordRouter routes by substring rules, in registration order, with an
// optional default skill when nothing matches.
type KeywordRouter struct {
	rules        []KeywordRule
	defaultSkill string
}

// NewKeywordRouter creates a router that falls back to defaultSkill when no
// rule matches. An empty defaultSkill makes unmatched queries a routing
// failure.
func NewKeywordRouter(defaultSkill string) *KeywordRouter {
	return &KeywordRouter{defaultSkill: defaultSkill}
}

// AddRule appends a rule mapping the given keywords to a skill. Returns the
// router for chaining.
func (r *KeywordRouter) AddRule(skill string, keywords ...string) *KeywordRouter {
	r.rules = append(r.rules, KeywordRule{Skill: skill, Keywords: keywords})
	return r
}

// Route implements Router.
func (r *KeywordRouter) Route(_ context.Context, query string) (Decision, error) {
	lowered := strings.ToLower(query)

	for _, rule := range r.rules {
		for _, keyword := range rule.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				return Decision{
					SkillName:  rule.Skill,
					Confidence: 0.8,
					Params:     map[string]any{"query": query},
				}, nil
			}
		}
	}

	if r.defaultSkill != "" {
		return Decision{
			SkillName:  r.defaultSkill,
			Confidence: 0.2,
			Params:     map[string]any{"text": query},
		}, nil
	}

	return Decision{}, errors.New(errors.CodeRoutingFailure,
		"no routing rule matched the query", nil).
		WithContext("query", query)
}
