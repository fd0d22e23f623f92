// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"testing"
	"time"

	"github.com/metis-ai/metis/pkg/errors"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	s := okSkill("question_answering")

	if err := r.Register(s); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := r.Get("question_answering")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name() != "question_answering" {
		t.Errorf("Get() returned %q", got.Name())
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(okSkill("echo")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	err := r.Register(okSkill("echo"))
	if !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Errorf("duplicate Register() error = %v, want INVALID_INPUT", err)
	}
}

func TestRegistryRejectsInvalidNames(t *testing.T) {
	tests := []struct {
		name  string
		skill string
		valid bool
	}{
		{name: "underscore name", skill: "memory_search", valid: true},
		{name: "hyphen name", skill: "web-fetch", valid: true},
		{name: "uppercase", skill: "WebFetch", valid: false},
		{name: "spaces", skill: "web fetch", valid: false},
		{name: "empty", skill: "", valid: false},
		{name: "leading separator", skill: "_private", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(okSkill(tt.skill))
			if tt.valid && err != nil {
				t.Errorf("Register(%q) error = %v, want nil", tt.skill, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Register(%q) should have failed", tt.skill)
			}
		})
	}
}

func TestRegistryRejectsNilSkill(t *testing.T) {
	if err := NewRegistry().Register(nil); err == nil {
		t.Error("Register(nil) should fail")
	}
}

func TestRegistryGetMissing(t *testing.T) {
	_, err := NewRegistry().Get("absent")
	if !errors.IsCode(err, errors.CodeSkillNotFound) {
		t.Errorf("Get(absent) error = %v, want SKILL_NOT_FOUND", err)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(okSkill("present"))

	if _, ok := r.Lookup("present"); !ok {
		t.Error("Lookup(present) = false, want true")
	}
	if _, ok := r.Lookup("absent"); ok {
		t.Error("Lookup(absent) = true, want false")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mike"} {
		s := &stubSkill{name: name, sla: SLA{Timeout: time.Second}}
		if err := r.Register(s); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"alpha", "mike", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}
