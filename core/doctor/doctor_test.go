package doctor

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestRunFailsWhenSchemaFilesMissing(t *testing.T) {
	workDir := t.TempDir()
	result := Run(Options{WorkDir: workDir, OutputDir: filepath.Join(workDir, "out")})
	if result.Status != statusFail {
		t.Fatalf("expected fail status, got %s", result.Status)
	}
	if !result.NonFixable {
		t.Fatalf("expected non-fixable result for missing schemas")
	}
	if !hasCheck(result.Checks, "schema_files", statusFail) {
		t.Fatalf("expected schema_files fail check, got %#v", result.Checks)
	}
}

func TestRunWarnsWithoutHMACSecret(t *testing.T) {
	workDir := repoRoot(t)
	result := Run(Options{WorkDir: workDir, OutputDir: filepath.Join(t.TempDir(), "out")})
	if !hasCheck(result.Checks, "hmac_secret", statusWarn) {
		t.Fatalf("expected hmac_secret warn check, got %#v", result.Checks)
	}
	if !hasCheck(result.Checks, "schema_files", statusPass) {
		t.Fatalf("expected schema_files pass check against repo root, got %#v", result.Checks)
	}
}

func TestRunPassesWithSecretConfigured(t *testing.T) {
	workDir := repoRoot(t)
	result := Run(Options{
		WorkDir:    workDir,
		OutputDir:  filepath.Join(t.TempDir(), "out"),
		HMACSecret: "a-sufficiently-long-secret-value",
	})
	if result.Status == statusFail {
		t.Fatalf("expected non-failing status, got %s (%s)", result.Status, result.Summary)
	}
	if !hasCheck(result.Checks, "hmac_secret", statusPass) {
		t.Fatalf("expected hmac_secret pass check, got %#v", result.Checks)
	}
	if !hasCheck(result.Checks, "policy_presets", statusPass) {
		t.Fatalf("expected policy_presets pass check, got %#v", result.Checks)
	}
}

func TestShellQuote(t *testing.T) {
	if got := shellQuote(""); got != "''" {
		t.Fatalf("shellQuote empty mismatch: %s", got)
	}
	if got := shellQuote("a'b"); !strings.Contains(got, `\''`) {
		t.Fatalf("shellQuote escape mismatch: %s", got)
	}
}

func hasCheck(checks []Check, name, status string) bool {
	for _, c := range checks {
		if c.Name == name && c.Status == status {
			return true
		}
	}
	return false
}

func repoRoot(t *testing.T) string {
	t.Helper()
	dir, err := filepath.Abs("../..")
	if err != nil {
		t.Fatalf("resolve repo root: %v", err)
	}
	return dir
}
