// Package doctor runs a deployment's local preflight checks for the
// context-slicing kernel: is its working/output directory writable, are
// the wire schemas it validates exports against present, is an HMAC
// signing secret configured, and does every built-in policy preset still
// hash successfully. It never talks to a running graphkernel-service or
// a configured store — those need their own liveness checks.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/graphkernel/core/policy"
)

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

type Options struct {
	WorkDir         string
	OutputDir       string
	ProducerVersion string
	HMACSecret      string
}

type Result struct {
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	Summary     string   `json:"summary"`
	NonFixable  bool     `json:"non_fixable"`
	FixCommands []string `json:"fix_commands"`
	Checks      []Check  `json:"checks"`
}

type Check struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	FixCommand string `json:"fix_command,omitempty"`
	NonFixable bool   `json:"non_fixable,omitempty"`
}

var requiredSchemaPaths = []string{
	"schemas/v1/graphkernel/slice_export.schema.json",
	"schemas/v1/graphkernel/slice_policy.schema.json",
}

func Run(opts Options) Result {
	workDir := strings.TrimSpace(opts.WorkDir)
	if workDir == "" {
		workDir = "."
	}
	outputDir := strings.TrimSpace(opts.OutputDir)
	if outputDir == "" {
		outputDir = "./graphkernel-out"
	}
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(workDir, outputDir)
	}

	checks := []Check{
		checkWorkDirWritable(workDir),
		checkOutputDir(outputDir),
		checkSchemaFiles(workDir),
		checkHMACSecret(opts.HMACSecret),
		checkPolicyPresets(),
	}

	failed, warned := 0, 0
	nonFixable := false
	fixCommands := make([]string, 0, len(checks))
	seenFixes := map[string]struct{}{}
	for _, check := range checks {
		switch check.Status {
		case statusFail:
			failed++
		case statusWarn:
			warned++
		}
		if check.NonFixable {
			nonFixable = true
		}
		if check.FixCommand != "" {
			if _, ok := seenFixes[check.FixCommand]; !ok {
				seenFixes[check.FixCommand] = struct{}{}
				fixCommands = append(fixCommands, check.FixCommand)
			}
		}
	}

	status := statusPass
	if failed > 0 {
		status = statusFail
	} else if warned > 0 {
		status = statusWarn
	}
	sort.Strings(fixCommands)

	return Result{
		Status:      status,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		Summary:     fmt.Sprintf("doctor: status=%s failed=%d warned=%d non_fixable=%t", status, failed, warned, nonFixable),
		NonFixable:  nonFixable,
		FixCommands: fixCommands,
		Checks:      checks,
	}
}

func checkWorkDirWritable(workDir string) Check {
	info, err := os.Stat(workDir)
	if err != nil {
		return Check{Name: "workdir", Status: statusFail, Message: fmt.Sprintf("workdir not accessible: %v", err), FixCommand: fmt.Sprintf("mkdir -p %s", shellQuote(workDir))}
	}
	if !info.IsDir() {
		return Check{Name: "workdir", Status: statusFail, Message: "workdir is not a directory"}
	}
	testPath := filepath.Join(workDir, ".graphkernel-doctor-writecheck")
	if err := os.WriteFile(testPath, []byte("ok"), 0o600); err != nil {
		return Check{Name: "workdir", Status: statusFail, Message: fmt.Sprintf("workdir not writable: %v", err), FixCommand: fmt.Sprintf("chmod u+w %s", shellQuote(workDir))}
	}
	_ = os.Remove(testPath)
	return Check{Name: "workdir", Status: statusPass, Message: "workdir is writable"}
}

func checkOutputDir(outputDir string) Check {
	info, err := os.Stat(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Check{Name: "output_dir", Status: statusWarn, Message: "output directory does not exist", FixCommand: fmt.Sprintf("mkdir -p %s", shellQuote(outputDir))}
		}
		return Check{Name: "output_dir", Status: statusFail, Message: fmt.Sprintf("output directory check failed: %v", err)}
	}
	if !info.IsDir() {
		return Check{Name: "output_dir", Status: statusFail, Message: "output path is not a directory"}
	}
	testPath := filepath.Join(outputDir, ".graphkernel-doctor-writecheck")
	if err := os.WriteFile(testPath, []byte("ok"), 0o600); err != nil {
		return Check{Name: "output_dir", Status: statusFail, Message: fmt.Sprintf("output directory not writable: %v", err), FixCommand: fmt.Sprintf("chmod u+w %s", shellQuote(outputDir))}
	}
	_ = os.Remove(testPath)
	return Check{Name: "output_dir", Status: statusPass, Message: "output directory is writable"}
}

func checkSchemaFiles(workDir string) Check {
	missing := make([]string, 0, len(requiredSchemaPaths))
	for _, relativePath := range requiredSchemaPaths {
		fullPath := filepath.Join(workDir, filepath.FromSlash(relativePath))
		if _, err := os.Stat(fullPath); err != nil {
			missing = append(missing, relativePath)
		}
	}
	if len(missing) > 0 {
		return Check{Name: "schema_files", Status: statusFail, Message: fmt.Sprintf("missing required schema files: %s", strings.Join(missing, ",")), NonFixable: true}
	}
	return Check{Name: "schema_files", Status: statusPass, Message: "required schema files are present"}
}

func checkHMACSecret(secret string) Check {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return Check{
			Name:       "hmac_secret",
			Status:     statusWarn,
			Message:    "no HMAC signing secret configured; slices will export without admissibility tokens",
			FixCommand: "set GRAPHKERNEL_HMAC_SECRET",
		}
	}
	if len(trimmed) < 16 {
		return Check{
			Name:       "hmac_secret",
			Status:     statusWarn,
			Message:    "HMAC signing secret is shorter than 16 bytes",
			FixCommand: "use a longer GRAPHKERNEL_HMAC_SECRET",
		}
	}
	return Check{Name: "hmac_secret", Status: statusPass, Message: "HMAC signing secret is configured"}
}

func checkPolicyPresets() Check {
	for name, p := range map[string]policy.SlicePolicy{
		"default": policy.Default(),
		"lenient": policy.Lenient(),
		"strict":  policy.Strict(),
	} {
		if _, err := p.ParamsHash(); err != nil {
			return Check{Name: "policy_presets", Status: statusFail, Message: fmt.Sprintf("preset %q failed to hash: %v", name, err)}
		}
	}
	return Check{Name: "policy_presets", Status: statusPass, Message: "built-in policy presets hash successfully"}
}

func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
