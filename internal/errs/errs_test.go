package errs

import (
	"fmt"
	"testing"
)

func TestClassificationSurvivesWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"not found", NotFound("issue", "i1"), IsNotFound},
		{"forbidden", Forbidden("no project access"), IsForbidden},
		{"validation", Validation("bad"), IsValidation},
		{"conflict", Conflict("dup"), IsConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !tt.is(wrapped) {
				t.Errorf("wrapped %v lost its classification", tt.err)
			}
		})
	}
}

func TestCategoriesAreDistinct(t *testing.T) {
	err := Forbidden("insufficient role")
	if IsNotFound(err) || IsValidation(err) || IsConflict(err) {
		t.Error("forbidden error matched another category")
	}
}

func TestMessages(t *testing.T) {
	if got := NotFound("project", "p1").Error(); got != "project not found: p1" {
		t.Errorf("got %q", got)
	}
	if got := NotFound("reporter", "").Error(); got != "reporter not found" {
		t.Errorf("got %q", got)
	}
	if got := Validationf("invalid type %q", "epic").Error(); got != `invalid type "epic"` {
		t.Errorf("got %q", got)
	}
}
