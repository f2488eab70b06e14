package config

import (
	"os"
	"testing"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TK_TEST_VAR_1", "redis://localhost:6379", "default", "redis://localhost:6379"},
		{"uses default when empty", "TK_TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TK_TEST_INT_1", "50", 10, 50},
		{"uses default for empty", "TK_TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TK_TEST_INT_3", "fifty", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("TK_NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("TK_NONEXISTENT_REQUIRED_VAR")
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	os.Setenv("TK_TEST_REQUIRED", "sk-sapling-123")
	defer os.Unsetenv("TK_TEST_REQUIRED")

	result := mustGetEnv("TK_TEST_REQUIRED")
	if result != "sk-sapling-123" {
		t.Errorf("Expected 'sk-sapling-123', got %q", result)
	}
}
