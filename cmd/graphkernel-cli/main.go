// Command graphkernel-cli is the kernel's offline entrypoint: slice a
// fixture graph, verify a slice's admissibility token, and list the
// built-in policies, without standing up the HTTP service. Subcommand dispatch
// follows cmd/gait's hand-rolled flag-parsing style rather than a
// third-party CLI framework, since the teacher itself never reaches for
// one (cobra/urfave are absent from its dependency closure).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/davidahmann/graphkernel/core/atlas"
	"github.com/davidahmann/graphkernel/core/doctor"
	"github.com/davidahmann/graphkernel/core/fsx"
	"github.com/davidahmann/graphkernel/core/policy"
	"github.com/davidahmann/graphkernel/core/projectconfig"
	"github.com/davidahmann/graphkernel/core/schema/validate"
	"github.com/davidahmann/graphkernel/core/slicer"
	"github.com/davidahmann/graphkernel/core/store/memory"
	"github.com/davidahmann/graphkernel/core/token"
	"github.com/davidahmann/graphkernel/core/turn"
)

const (
	exitOK            = 0
	exitInvalidInput  = 1
	exitSliceFailed   = 2
	exitVerifyFailed  = 3
)

var version = "0.1.0"

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	if len(arguments) < 2 {
		printUsage()
		return exitInvalidInput
	}
	switch arguments[1] {
	case "slice":
		return runSlice(arguments[2:])
	case "batch-slice":
		return runBatchSlice(arguments[2:])
	case "verify":
		return runVerify(arguments[2:])
	case "policy":
		return runPolicy(arguments[2:])
	case "validate":
		return runValidate(arguments[2:])
	case "doctor":
		return runDoctor(arguments[2:])
	case "version", "--version", "-v":
		fmt.Println("graphkernel-cli", version)
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: graphkernel-cli <command> [flags]

commands:
  slice        slice a fixture graph from one anchor turn
  batch-slice  slice a fixture graph from several anchor turns and report overlap
  verify       verify a slice export's admissibility token
  policy       print the built-in policy presets and their params_hash
  validate     validate a JSON file against a graphkernel wire schema
  doctor       run local preflight checks (workdir, schemas, HMAC secret, policy presets)
  version      print the CLI version`)
}

// fixture is the on-disk shape a graphkernel-cli fixture file takes:
// plain turns and edges, loaded into an in-memory store.
type fixture struct {
	Turns []turn.Snapshot `json:"turns"`
	Edges []turn.Edge     `json:"edges"`
}

func loadFixture(path string) (*memory.Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	store := memory.New()
	for _, t := range f.Turns {
		store.PutTurn(t)
	}
	for _, e := range f.Edges {
		store.AddEdge(e)
	}
	return store, nil
}

func resolvePolicyFlag(name string) (policy.SlicePolicy, error) {
	switch name {
	case "", "default":
		return policy.Default(), nil
	case "lenient":
		return policy.Lenient(), nil
	case "strict":
		return policy.Strict(), nil
	default:
		return policy.SlicePolicy{}, fmt.Errorf("unknown policy preset %q (want default|lenient|strict)", name)
	}
}

// defaultPolicyPreset returns the checked-in project config's slice
// policy preset, if one is set at projectconfig.DefaultPath, falling
// back to "default" when the file is absent or silent on it.
func defaultPolicyPreset() string {
	cfg, err := projectconfig.Load(projectconfig.DefaultPath, true)
	if err != nil || cfg.Slice.Policy == "" {
		return "default"
	}
	return cfg.Slice.Policy
}

func signerFromEnv() slicer.Signer {
	secret := os.Getenv("GRAPHKERNEL_HMAC_SECRET")
	if secret == "" {
		return nil
	}
	return token.NewHMACSigner([]byte(secret))
}

func runSlice(arguments []string) int {
	fs := flag.NewFlagSet("slice", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fixturePath := fs.String("fixture", "", "path to a fixture JSON file (turns + edges)")
	anchorRaw := fs.String("anchor", "", "anchor turn id")
	presetName := fs.String("policy", defaultPolicyPreset(), "policy preset: default|lenient|strict")
	outPath := fs.String("out", "", "optional path to atomically write the slice export JSON instead of printing it")
	if err := fs.Parse(arguments); err != nil || *fixturePath == "" || *anchorRaw == "" {
		fmt.Fprintln(os.Stderr, "usage: graphkernel-cli slice --fixture <path> --anchor <turn_id> [--policy default|lenient|strict]")
		return exitInvalidInput
	}

	anchorID, err := turn.ParseID(*anchorRaw)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitInvalidInput
	}
	store, err := loadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitInvalidInput
	}
	p, err := resolvePolicyFlag(*presetName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitInvalidInput
	}
	paramsHash, err := p.ParamsHash()
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitSliceFailed
	}
	ref := policy.Ref{PolicyID: policy.Version, ParamsHash: paramsHash}

	export, fellBack, err := slicer.Slice(context.Background(), store, anchorID, p, ref, signerFromEnv())
	if fellBack {
		fmt.Fprintln(os.Stderr, "graphkernel-cli: warning:", slicer.StatsFallbackMarker)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitSliceFailed
	}
	if *outPath != "" {
		return writeJSONAtomic(*outPath, export)
	}
	return printJSON(export)
}

func runBatchSlice(arguments []string) int {
	fs := flag.NewFlagSet("batch-slice", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fixturePath := fs.String("fixture", "", "path to a fixture JSON file (turns + edges)")
	presetName := fs.String("policy", defaultPolicyPreset(), "policy preset: default|lenient|strict")
	minJaccard := fs.Float64("min-jaccard", 0.0, "minimum Jaccard similarity to report an overlap edge")
	var anchors stringSliceFlag
	fs.Var(&anchors, "anchor", "anchor turn id (repeatable)")
	if err := fs.Parse(arguments); err != nil || *fixturePath == "" || len(anchors) == 0 {
		fmt.Fprintln(os.Stderr, "usage: graphkernel-cli batch-slice --fixture <path> --anchor <turn_id> [--anchor <turn_id> ...] [--policy default|lenient|strict] [--min-jaccard 0.0]")
		return exitInvalidInput
	}

	anchorIDs := make([]turn.ID, 0, len(anchors))
	for _, raw := range anchors {
		id, err := turn.ParseID(raw)
		if err != nil {
			fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
			return exitInvalidInput
		}
		anchorIDs = append(anchorIDs, id)
	}
	store, err := loadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitInvalidInput
	}
	p, err := resolvePolicyFlag(*presetName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitInvalidInput
	}
	paramsHash, err := p.ParamsHash()
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitSliceFailed
	}
	ref := policy.Ref{PolicyID: policy.Version, ParamsHash: paramsHash}

	result := atlas.BatchSlice(context.Background(), store, anchorIDs, p, ref, signerFromEnv())
	exports := make([]slicer.SliceExport, 0, len(result.Entries))
	for _, e := range result.Entries {
		if e.Err == nil {
			exports = append(exports, e.Export)
		}
	}
	overlapGraph, err := atlas.BuildOverlapGraph(exports, *minJaccard)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitSliceFailed
	}

	out := struct {
		Slices       []slicer.SliceExport `json:"slices"`
		SuccessCount int                   `json:"success_count"`
		Errors       []string              `json:"errors"`
		Overlap      atlas.OverlapGraph    `json:"overlap"`
	}{Slices: exports, SuccessCount: result.SuccessCount, Overlap: overlapGraph}
	for _, e := range result.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	return printJSON(out)
}

func runVerify(arguments []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	slicePath := fs.String("slice", "", "path to a SliceExport JSON file")
	if err := fs.Parse(arguments); err != nil || *slicePath == "" {
		fmt.Fprintln(os.Stderr, "usage: graphkernel-cli verify --slice <path> (reads GRAPHKERNEL_HMAC_SECRET)")
		return exitInvalidInput
	}
	secret := os.Getenv("GRAPHKERNEL_HMAC_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "graphkernel-cli: GRAPHKERNEL_HMAC_SECRET must be set to verify")
		return exitInvalidInput
	}

	raw, err := os.ReadFile(*slicePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitInvalidInput
	}
	var export slicer.SliceExport
	if err := json.Unmarshal(raw, &export); err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitInvalidInput
	}

	verifier := token.NewLocalSecretVerifier([]byte(secret))
	outcome, err := verifier.Verify(context.Background(), token.FieldsFromExport(export))
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitVerifyFailed
	}
	result := struct {
		Valid   bool   `json:"valid"`
		Outcome string `json:"outcome"`
	}{Valid: outcome == token.Valid, Outcome: outcome.String()}
	if code := printJSON(result); code != exitOK {
		return code
	}
	if outcome != token.Valid {
		return exitVerifyFailed
	}
	return exitOK
}

func runPolicy(arguments []string) int {
	if len(arguments) == 0 || arguments[0] != "list" {
		fmt.Fprintln(os.Stderr, "usage: graphkernel-cli policy list")
		return exitInvalidInput
	}
	presets := map[string]policy.SlicePolicy{
		"default": policy.Default(),
		"lenient": policy.Lenient(),
		"strict":  policy.Strict(),
	}
	out := make(map[string]any, len(presets))
	for name, p := range presets {
		hash, err := p.ParamsHash()
		if err != nil {
			fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
			return exitSliceFailed
		}
		out[name] = map[string]any{"policy": p, "params_hash": hash}
	}
	return printJSON(out)
}

func runValidate(arguments []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	schemaPath := fs.String("schema", "", "path to a JSON Schema file")
	jsonPath := fs.String("file", "", "path to the JSON document to validate")
	if err := fs.Parse(arguments); err != nil || *schemaPath == "" || *jsonPath == "" {
		fmt.Fprintln(os.Stderr, "usage: graphkernel-cli validate --schema <path> --file <path>")
		return exitInvalidInput
	}
	if err := validate.ValidateJSONFile(*schemaPath, *jsonPath); err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitInvalidInput
	}
	fmt.Println("ok")
	return exitOK
}

func printJSON(v any) int {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitSliceFailed
	}
	fmt.Println(string(encoded))
	return exitOK
}

// writeJSONAtomic marshals v and writes it to path via fsx's
// write-temp-then-rename sequence, so a reader never observes a
// partially-written export file.
func writeJSONAtomic(path string, v any) int {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitSliceFailed
	}
	if err := fsx.WriteFileAtomic(path, encoded, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-cli:", err)
		return exitSliceFailed
	}
	fmt.Println(path)
	return exitOK
}

func runDoctor(arguments []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	workDir := fs.String("workdir", ".", "kernel workspace root (for schema file checks)")
	outputDir := fs.String("output-dir", "", "output directory to check (default <workdir>/graphkernel-out)")
	if err := fs.Parse(arguments); err != nil {
		fmt.Fprintln(os.Stderr, "usage: graphkernel-cli doctor [--workdir <path>] [--output-dir <path>]")
		return exitInvalidInput
	}
	result := doctor.Run(doctor.Options{
		WorkDir:         *workDir,
		OutputDir:       *outputDir,
		ProducerVersion: version,
		HMACSecret:      os.Getenv("GRAPHKERNEL_HMAC_SECRET"),
	})
	code := printJSON(result)
	if code != exitOK {
		return code
	}
	if result.Status == "fail" {
		return exitSliceFailed
	}
	return exitOK
}

// stringSliceFlag collects repeated -anchor flags into a slice.
type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprint([]string(*s))
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, value)
	return nil
}
