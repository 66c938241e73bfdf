package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/cratesig/pkg/build"
	"github.com/matzehuels/cratesig/pkg/errors"
	"github.com/matzehuels/cratesig/pkg/flair"
	"github.com/matzehuels/cratesig/pkg/observability"
	"github.com/matzehuels/cratesig/pkg/toolexec"
)

// =============================================================================
// Fakes
// =============================================================================

// testRegistry serves crates.io endpoints for a fixed set of crates.
// Crates listed in broken get an archive that is not a gzip stream.
type testRegistry struct {
	ranking []string
	broken  map[string]bool
}

func crateArchive(name, version string) ([]byte, error) {
	root := name + "-" + version + "/"
	files := []struct{ path, body string }{
		{root + "Cargo.toml", fmt.Sprintf("[package]\nname = %q\nversion = %q\n", name, version)},
		{root + "src/lib.rs", "pub fn f() {}\n"},
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		hdr := &tar.Header{Name: f.path, Mode: 0o644, Size: int64(len(f.body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(f.body)); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (reg *testRegistry) serve(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/api/v1/crates", func(w http.ResponseWriter, req *http.Request) {
		var resp struct {
			Crates []map[string]string `json:"crates"`
		}
		if req.URL.Query().Get("page") == "1" {
			for _, id := range reg.ranking {
				resp.Crates = append(resp.Crates, map[string]string{"id": id})
			}
		}
		json.NewEncoder(w).Encode(resp)
	})
	r.Get("/api/v1/crates/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		if !slices.Contains(reg.ranking, name) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"crate":{"id":%q,"max_version":"0.1.0","max_stable_version":"0.1.0","downloads":1}}`, name)
	})
	r.Get("/static/{name}/{file}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		version := strings.TrimSuffix(strings.TrimPrefix(chi.URLParam(req, "file"), name+"-"), ".crate")
		if reg.broken[name] {
			w.Write([]byte("definitely not gzip"))
			return
		}
		data, err := crateArchive(name, version)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write(data)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// fakeToolchain stands in for cargo and the FLAIR tools. Cargo builds of
// "<crate>/<target>" listed in cargoFail exit non-zero; every other build
// writes the archive cargo would produce.
type fakeToolchain struct {
	cargoFail map[string]bool
	calls     []toolexec.Command
}

func (f *fakeToolchain) Run(_ context.Context, cmd toolexec.Command) error {
	f.calls = append(f.calls, cmd)
	switch filepath.Base(cmd.Path) {
	case build.DefaultCargo:
		crate, _, _ := strings.Cut(filepath.Base(cmd.Dir), "-")
		dir := filepath.Join(cmd.Dir, "target", "release")
		target, file := "host", "lib"+crate+".a"
		if i := slices.Index(cmd.Args, "--target"); i >= 0 {
			target, file = cmd.Args[i+1], crate+".lib"
			dir = filepath.Join(cmd.Dir, "target", target, "release")
		}
		if f.cargoFail[crate+"/"+target] {
			return &toolexec.ExitError{Command: cmd, ExitCode: 101}
		}
		os.MkdirAll(dir, 0o755)
		return os.WriteFile(filepath.Join(dir, file), []byte("!<arch>\n"), 0o644)
	case flair.ToolPELF, flair.ToolPCF:
		return os.WriteFile(cmd.Args[1], []byte("pattern"), 0o644)
	case flair.ToolSigmake:
		return os.WriteFile(cmd.Args[1], []byte("sig"), 0o644)
	}
	return fmt.Errorf("unexpected command %s", cmd)
}

func (f *fakeToolchain) count(tool string) int {
	n := 0
	for _, c := range f.calls {
		if filepath.Base(c.Path) == tool {
			n++
		}
	}
	return n
}

type testEnv struct {
	runner *Runner
	tools  *fakeToolchain
	opts   Options
}

// newTestEnv wires a runner against reg with the given FLAIR tools present.
func newTestEnv(t *testing.T, reg *testRegistry, tools ...string) *testEnv {
	t.Helper()
	srv := reg.serve(t)
	root := t.TempDir()
	opts := Options{
		FlairDir:    filepath.Join(root, "flair"),
		OutputDir:   filepath.Join(root, "output"),
		CratesDir:   filepath.Join(root, "crates"),
		RegistryURL: srv.URL + "/api/v1",
		StaticURL:   srv.URL + "/static",
	}
	os.MkdirAll(opts.FlairDir, 0o755)
	for _, tool := range tools {
		os.WriteFile(filepath.Join(opts.FlairDir, tool), []byte("#!/bin/sh\n"), 0o755)
	}

	fake := &fakeToolchain{cargoFail: map[string]bool{}}
	runner, err := NewRunner(opts, fake, log.New(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("NewRunner() error: %v", err)
	}
	return &testEnv{runner: runner, tools: fake, opts: runner.Options}
}

func allTools() []string {
	return []string{flair.ToolPELF, flair.ToolPCF, flair.ToolSigmake}
}

func names(names ...string) []Request {
	reqs := make([]Request, len(names))
	for i, n := range names {
		reqs[i] = Request{Name: n}
	}
	return reqs
}

func outputFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var files []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "report-") {
			files = append(files, e.Name())
		}
	}
	return files
}

// =============================================================================
// Tests
// =============================================================================

func TestRunHostOnlyBuild(t *testing.T) {
	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha"}}, allTools()...)
	env.tools.cargoFail["alpha/"+build.DefaultCrossTarget] = true

	report, err := env.runner.Run(context.Background(), names("alpha"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	got := outputFiles(t, env.opts.OutputDir)
	want := []string{"alpha_linux.pat", "alpha_linux.sig"}
	if !slices.Equal(got, want) {
		t.Errorf("output files = %v, want %v", got, want)
	}
	if n := env.tools.count(flair.ToolSigmake); n != 1 {
		t.Errorf("sigmake calls = %d, want 1", n)
	}
	if n := env.tools.count(flair.ToolPCF); n != 0 {
		t.Errorf("pcf calls = %d, want 0", n)
	}
	for _, c := range env.tools.calls {
		if strings.Contains(c.String(), "alpha_win") {
			t.Errorf("unexpected reference to windows pattern: %s", c)
		}
	}

	res := report.Packages[0]
	if res.Status != StatusSigned {
		t.Errorf("Status = %s, want %s", res.Status, StatusSigned)
	}
	if res.Version != "0.1.0" {
		t.Errorf("Version = %q, want resolved 0.1.0", res.Version)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want the cross build failure", res.Warnings)
	}
}

func TestRunBothTargets(t *testing.T) {
	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha"}}, allTools()...)

	report, err := env.runner.Run(context.Background(), names("alpha"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	want := []string{"alpha_linux.pat", "alpha_linux.sig", "alpha_win.pat", "alpha_win.sig"}
	if got := outputFiles(t, env.opts.OutputDir); !slices.Equal(got, want) {
		t.Errorf("output files = %v, want %v", got, want)
	}
	if got := len(report.Signatures()); got != 2 {
		t.Errorf("Signatures() = %d, want 2", got)
	}
}

func TestRunPatchesManifest(t *testing.T) {
	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha"}}, allTools()...)
	if _, err := env.runner.Run(context.Background(), names("alpha")); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(env.opts.CratesDir, "alpha-0.1.0", "Cargo.toml"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`crate-type = ["staticlib"]`, `panic = "abort"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Cargo.toml missing %s:\n%s", want, data)
		}
	}
	if _, err := os.Stat(filepath.Join(env.opts.CratesDir, "alpha-0.1.0.crate")); err != nil {
		t.Errorf("archive not kept: %v", err)
	}
}

func TestRunMissingPatternToolIsolated(t *testing.T) {
	reg := &testRegistry{ranking: []string{"alpha", "beta"}}
	env := newTestEnv(t, reg, flair.ToolPCF, flair.ToolSigmake)
	env.tools.cargoFail["alpha/"+build.DefaultCrossTarget] = true
	env.tools.cargoFail["beta/host"] = true

	report, err := env.runner.Run(context.Background(), names("alpha", "beta"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	alpha, beta := report.Packages[0], report.Packages[1]
	if alpha.Status != StatusFailed || alpha.Stage != StagePatterns {
		t.Errorf("alpha = %s at %s, want failed at %s", alpha.Status, alpha.Stage, StagePatterns)
	}
	if !errors.Is(alpha.Err, errors.ErrCodeToolMissing) {
		t.Errorf("alpha error = %v, want TOOL_MISSING", alpha.Err)
	}
	if beta.Status != StatusSigned {
		t.Errorf("beta = %s (%v), want signed", beta.Status, beta.Err)
	}
	want := []string{"beta_win.pat", "beta_win.sig"}
	if got := outputFiles(t, env.opts.OutputDir); !slices.Equal(got, want) {
		t.Errorf("output files = %v, want %v", got, want)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	reg := &testRegistry{
		ranking: []string{"broken", "alpha"},
		broken:  map[string]bool{"broken": true},
	}
	env := newTestEnv(t, reg, allTools()...)

	report, err := env.runner.Run(context.Background(), names("ghost", "broken", "alpha"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	tests := []struct {
		name   string
		status Status
		stage  string
		code   errors.Code
	}{
		{"ghost", StatusFailed, StageDownload, errors.ErrCodePackageNotFound},
		{"broken", StatusFailed, StageExtract, errors.ErrCodeExtract},
		{"alpha", StatusSigned, StageSignatures, ""},
	}
	if len(report.Packages) != len(tests) {
		t.Fatalf("Packages = %d, want %d", len(report.Packages), len(tests))
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := report.Packages[i]
			if res.Name != tt.name || res.Status != tt.status || res.Stage != tt.stage {
				t.Errorf("got %s %s at %s, want %s %s at %s", res.Name, res.Status, res.Stage, tt.name, tt.status, tt.stage)
			}
			if tt.code != "" && !errors.Is(res.Err, tt.code) {
				t.Errorf("Err = %v, want %s", res.Err, tt.code)
			}
		})
	}
}

func TestRunNoArtifacts(t *testing.T) {
	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha"}}, allTools()...)
	env.tools.cargoFail["alpha/host"] = true
	env.tools.cargoFail["alpha/"+build.DefaultCrossTarget] = true

	report, err := env.runner.Run(context.Background(), names("alpha"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	res := report.Packages[0]
	if res.Status != StatusNoArtifacts {
		t.Errorf("Status = %s, want %s", res.Status, StatusNoArtifacts)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("Warnings = %v, want one per target", res.Warnings)
	}
	if n := env.tools.count(flair.ToolPELF) + env.tools.count(flair.ToolSigmake); n != 0 {
		t.Errorf("FLAIR tools ran %d times, want 0", n)
	}
}

func TestRunWritesReport(t *testing.T) {
	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha"}}, allTools()...)
	report, err := env.runner.Run(context.Background(), names("alpha", "ghost"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(env.opts.OutputDir, report.FileName()))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var got Report
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if got.RunID != report.RunID {
		t.Errorf("RunID = %s, want %s", got.RunID, report.RunID)
	}
	if len(got.Packages) != 2 || got.Packages[1].Error == "" {
		t.Errorf("Packages = %+v, want two entries with ghost's error", got.Packages)
	}
	counts := report.Counts()
	if counts[StatusSigned] != 1 || counts[StatusFailed] != 1 {
		t.Errorf("Counts() = %v", counts)
	}
}

func TestRunTop(t *testing.T) {
	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha", "beta", "gamma"}}, allTools()...)

	report, err := env.runner.RunTop(context.Background(), 2)
	if err != nil {
		t.Fatalf("RunTop() error: %v", err)
	}
	var got []string
	for _, p := range report.Packages {
		got = append(got, p.Name)
	}
	if want := []string{"alpha", "beta"}; !slices.Equal(got, want) {
		t.Errorf("processed %v, want %v", got, want)
	}
}

func TestRunTopListingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	root := t.TempDir()
	runner, err := NewRunner(Options{
		OutputDir:   filepath.Join(root, "output"),
		CratesDir:   filepath.Join(root, "crates"),
		RegistryURL: srv.URL,
	}, &fakeToolchain{}, log.New(&bytes.Buffer{}))
	if err != nil {
		t.Fatal(err)
	}

	report, err := runner.RunTop(context.Background(), 5)
	if err == nil {
		t.Fatal("RunTop() expected error")
	}
	if report != nil {
		t.Errorf("report = %+v, want nil", report)
	}
	if !errors.Is(err, errors.ErrCodeNetwork) {
		t.Errorf("error = %v, want NETWORK_ERROR", err)
	}
}

func TestRunOne(t *testing.T) {
	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha"}}, allTools()...)

	report, err := env.runner.RunOne(context.Background(), "alpha", "0.0.7")
	if err != nil {
		t.Fatalf("RunOne() error: %v", err)
	}
	if v := report.Packages[0].Version; v != "0.0.7" {
		t.Errorf("Version = %q, want pinned 0.0.7", v)
	}
	if _, err := os.Stat(filepath.Join(env.opts.CratesDir, "alpha-0.0.7")); err != nil {
		t.Errorf("pinned source tree missing: %v", err)
	}

	if _, err := env.runner.RunOne(context.Background(), "", ""); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("RunOne(\"\") error = %v, want INVALID_INPUT", err)
	}
}

func TestRunCancelled(t *testing.T) {
	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha"}}, allTools()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := env.runner.Run(ctx, names("alpha"))
	if err != context.Canceled {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if report == nil || len(report.Packages) != 0 {
		t.Errorf("report = %+v, want empty report", report)
	}
}

// =============================================================================
// Stubbed stages
// =============================================================================

type stubSigner struct {
	patterns []flair.Pattern
	sigs     map[string]error
	calls    []string
}

func (s *stubSigner) GeneratePatterns(context.Context, []string, string) ([]flair.Pattern, error) {
	return s.patterns, nil
}

func (s *stubSigner) GenerateSignature(_ context.Context, pat string) (*flair.Signature, error) {
	s.calls = append(s.calls, pat)
	if err := s.sigs[pat]; err != nil {
		return nil, err
	}
	return &flair.Signature{Path: strings.TrimSuffix(pat, ".pat") + ".sig", Pattern: pat}, nil
}

func TestRunCollisionContinuesWithNextPattern(t *testing.T) {
	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha"}}, allTools()...)
	signer := &stubSigner{
		patterns: []flair.Pattern{{Path: "alpha_linux.pat"}, {Path: "alpha_win.pat"}},
		sigs: map[string]error{
			"alpha_linux.pat": errors.New(errors.ErrCodeCollision, "still colliding"),
		},
	}
	env.runner.Signer = signer

	report, err := env.runner.Run(context.Background(), names("alpha"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	res := report.Packages[0]
	if !slices.Equal(signer.calls, []string{"alpha_linux.pat", "alpha_win.pat"}) {
		t.Errorf("sigmake order = %v", signer.calls)
	}
	if res.Status != StatusSigned || len(res.Signatures) != 1 {
		t.Errorf("got %s with %d signatures, want signed with 1", res.Status, len(res.Signatures))
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v, want the collision", res.Warnings)
	}
}

func TestRunSignatureToolMissingIsFatal(t *testing.T) {
	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha"}}, allTools()...)
	signer := &stubSigner{
		patterns: []flair.Pattern{{Path: "alpha_linux.pat"}, {Path: "alpha_win.pat"}},
		sigs: map[string]error{
			"alpha_linux.pat": errors.New(errors.ErrCodeToolMissing, "sigmake not found"),
		},
	}
	env.runner.Signer = signer

	report, _ := env.runner.Run(context.Background(), names("alpha"))
	res := report.Packages[0]
	if res.Status != StatusFailed || res.Stage != StageSignatures {
		t.Errorf("got %s at %s, want failed at %s", res.Status, res.Stage, StageSignatures)
	}
	if len(signer.calls) != 1 {
		t.Errorf("GenerateSignature calls = %d, want 1", len(signer.calls))
	}
}

type panicBuilder struct{ crate string }

func (p panicBuilder) BuildStaticLib(_ context.Context, srcDir, _ string) build.Result {
	if strings.HasPrefix(filepath.Base(srcDir), p.crate+"-") {
		panic("boom")
	}
	return build.Result{}
}

func TestRunRecoversPanic(t *testing.T) {
	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha", "beta"}}, allTools()...)
	env.runner.Builder = panicBuilder{crate: "alpha"}

	report, err := env.runner.Run(context.Background(), names("alpha", "beta"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	alpha, beta := report.Packages[0], report.Packages[1]
	if alpha.Status != StatusFailed || !errors.Is(alpha.Err, errors.ErrCodeInternal) {
		t.Errorf("alpha = %s (%v), want INTERNAL_ERROR failure", alpha.Status, alpha.Err)
	}
	if beta.Status != StatusNoArtifacts {
		t.Errorf("beta = %s, want %s", beta.Status, StatusNoArtifacts)
	}
}

type stageRecorder struct {
	observability.NoopPipelineHooks
	stages []string
}

func (r *stageRecorder) OnStageComplete(_ context.Context, _, stage string, _ time.Duration, _ error) {
	r.stages = append(r.stages, stage)
}

func TestRunCallsStageHooks(t *testing.T) {
	rec := &stageRecorder{}
	observability.SetPipelineHooks(rec)
	t.Cleanup(observability.Reset)

	env := newTestEnv(t, &testRegistry{ranking: []string{"alpha"}}, allTools()...)
	if _, err := env.runner.Run(context.Background(), names("alpha")); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	want := []string{StageDownload, StageExtract, StagePatch, StageBuild, StagePatterns, StageSignatures}
	if !slices.Equal(rec.stages, want) {
		t.Errorf("stages = %v, want %v", rec.stages, want)
	}
}

func TestOptionsValidateAndSetDefaults(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    Options
		wantErr bool
	}{
		{
			name: "defaults",
			want: DefaultOptions(),
		},
		{
			name: "keeps values",
			opts: Options{Top: 5, OutputDir: "sigs", HTTPAttempts: 3},
			want: func() Options {
				o := DefaultOptions()
				o.Top, o.OutputDir, o.HTTPAttempts = 5, "sigs", 3
				return o
			}(),
		},
		{name: "negative top", opts: Options{Top: -1}, wantErr: true},
		{name: "negative attempts", opts: Options{HTTPAttempts: -2}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.ValidateAndSetDefaults()
			if tt.wantErr {
				if !errors.Is(err, errors.ErrCodeInvalidConfig) {
					t.Errorf("error = %v, want INVALID_CONFIG", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.opts != tt.want {
				t.Errorf("got %+v, want %+v", tt.opts, tt.want)
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if o.FlairDir != "flair" || o.OutputDir != "output" || o.CratesDir != "crates" {
		t.Errorf("directories = %q %q %q", o.FlairDir, o.OutputDir, o.CratesDir)
	}
	if o.Top != 100 || o.HTTPAttempts != 1 {
		t.Errorf("Top = %d, HTTPAttempts = %d", o.Top, o.HTTPAttempts)
	}
	if o.CrossTarget != "x86_64-pc-windows-msvc" || o.Cargo != "cargo" {
		t.Errorf("build = %q %q", o.Cargo, o.CrossTarget)
	}
}
