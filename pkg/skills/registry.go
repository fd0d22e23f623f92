// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/metis-ai/metis/pkg/errors"
)

const maxNameLen = 64

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:[_-][a-z0-9]+)*$`)

// Registry maps skill names to instances. There is no package-level
// registry; construct one at startup and pass it to the engine explicitly.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

// NewRegistry creates an empty skill registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Register adds a skill under its own name. Registering a nil skill, an
// invalid name, or a name already taken is an error.
func (r *Registry) Register(s Skill) error {
	if s == nil {
		return errors.New(errors.CodeInvalidInput, "cannot register a nil skill", nil)
	}
	name := strings.TrimSpace(s.Name())
	if err := validateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[name]; exists {
		return errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("skill %q is already registered", name), nil)
	}
	r.skills[name] = s
	return nil
}

// Get returns the named skill or a SkillNotFound error.
func (r *Registry) Get(name string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	if !ok {
		return nil, errors.New(errors.CodeSkillNotFound,
			fmt.Sprintf("skill %q is not registered", name), nil).
			WithContext("skill", name)
	}
	return s, nil
}

// Lookup returns the named skill and whether it exists.
func (r *Registry) Lookup(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Names returns the registered skill names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validateName(name string) error {
	if name == "" {
		return errors.New(errors.CodeInvalidInput, "skill name is required", nil)
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("skill name exceeds %d characters", maxNameLen), nil)
	}
	if !namePattern.MatchString(name) {
		return errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("skill name must match %s", namePattern.String()), nil)
	}
	return nil
}
