package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestDocWikiError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DocWikiError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CategoryConfig, SeverityFatal, "configuration invalid"),
			expected: "config (fatal): configuration invalid",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("file not found"), CategoryConfig, SeverityFatal, "failed to load config"),
			expected: "config (fatal): failed to load config: file not found",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.err.Error()
			if result != test.expected {
				t.Errorf("Error() = %q, want %q", result, test.expected)
			}
		})
	}
}

func TestDocWikiError_WithContext(t *testing.T) {
	err := New(CategoryAcquisition, SeverityWarning, "clone failed").
		WithContext("repository", "test-repo").
		WithContext("branch", "main")

	if err.Context["repository"] != "test-repo" {
		t.Errorf("Context[repository] = %v, want test-repo", err.Context["repository"])
	}
	if err.Context["branch"] != "main" {
		t.Errorf("Context[branch] = %v, want main", err.Context["branch"])
	}
}

func TestIsCategory_FollowsWrapChain(t *testing.T) {
	persistErr := PersistenceFailed("complete_node", fmt.Errorf("disk full"))
	wrapped := fmt.Errorf("stage content: %w", persistErr)

	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		expected bool
	}{
		{"direct match", persistErr, CategoryPersistence, true},
		{"wrapped match", wrapped, CategoryPersistence, true},
		{"wrong category", wrapped, CategoryGeneration, false},
		{"standard error", fmt.Errorf("plain"), CategoryPersistence, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsCategory(test.err, test.category); got != test.expected {
				t.Errorf("IsCategory() = %v, want %v", got, test.expected)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"attempt failure", GenerationAttemptFailed("n1", fmt.Errorf("timeout")), true},
		{"exhausted", RetriesExhausted("n1", 5, fmt.Errorf("timeout")), false},
		{"persistence", PersistenceFailed("insert", fmt.Errorf("locked")), false},
		{"standard error", fmt.Errorf("standard error"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsRetryable(test.err); got != test.expected {
				t.Errorf("IsRetryable() = %v, want %v", got, test.expected)
			}
		})
	}
}

func TestConvenienceFunctions(t *testing.T) {
	t.Run("ConfigNotFound", func(t *testing.T) {
		err := ConfigNotFound("/path/to/config.yaml")
		if err.Category != CategoryConfig {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfig)
		}
		if err.Context["path"] != "/path/to/config.yaml" {
			t.Errorf("Context[path] = %v, want /path/to/config.yaml", err.Context["path"])
		}
	})

	t.Run("RetriesExhausted", func(t *testing.T) {
		cause := fmt.Errorf("backend unavailable")
		err := RetriesExhausted("node-2", 5, cause)
		if err.Category != CategoryGeneration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryGeneration)
		}
		if err.Context["attempts"] != 5 {
			t.Errorf("Context[attempts] = %v, want 5", err.Context["attempts"])
		}
		if !stdErrors.Is(err, cause) {
			t.Errorf("Cause should match wrapped cause: %v", cause)
		}
	})
}

func TestCLIErrorAdapter_ExitCodes(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	if code := a.ExitCodeFor(nil); code != 0 {
		t.Fatalf("nil error exit code = %d, want 0", code)
	}
	if code := a.ExitCodeFor(ValidationFailed("flag", "bad")); code != 2 {
		t.Fatalf("validation exit code = %d, want 2", code)
	}
	if code := a.ExitCodeFor(fmt.Errorf("x: %w", ConfigNotFound("docwiki.yaml"))); code != 7 {
		t.Fatalf("wrapped config exit code = %d, want 7", code)
	}
	if msg := a.FormatError(ConfigNotFound("docwiki.yaml")); msg != "configuration file not found" {
		t.Fatalf("FormatError() = %q", msg)
	}
}
