package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/matzehuels/cratesig/pkg/errors"
	"github.com/matzehuels/cratesig/pkg/pipeline"
)

func parseOptions(t *testing.T, args ...string) (pipeline.Options, error) {
	t.Helper()
	var f configFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags(%v) error: %v", args, err)
	}
	return f.options(cmd)
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOptionsDefaults(t *testing.T) {
	got, err := parseOptions(t, "--env-file", "")
	if err != nil {
		t.Fatalf("options() error: %v", err)
	}
	if want := pipeline.DefaultOptions(); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestOptionsPrecedence(t *testing.T) {
	config := writeTemp(t, "cratesig.toml", `
top = 5
output_dir = "from-config"
flair_dir = "from-config"
cargo = "from-config"
`)
	t.Setenv("CRATESIG_TOP", "7")
	t.Setenv("CRATESIG_FLAIR_DIR", "from-env")

	got, err := parseOptions(t, "--config", config, "--env-file", "", "--flair-dir", "from-flag")
	if err != nil {
		t.Fatalf("options() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"config only", got.OutputDir, "from-config"},
		{"env over config", got.Top, 7},
		{"flag over env", got.FlairDir, "from-flag"},
		{"config over default", got.Cargo, "from-config"},
		{"default", got.CratesDir, pipeline.DefaultCratesDir},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestOptionsEnvFile(t *testing.T) {
	envFile := writeTemp(t, ".env", "CRATESIG_OUTPUT_DIR=from-dotenv\nCRATESIG_HTTP_ATTEMPTS=3\n")
	t.Setenv("CRATESIG_HTTP_ATTEMPTS", "2")

	got, err := parseOptions(t, "--env-file", envFile)
	if err != nil {
		t.Fatalf("options() error: %v", err)
	}
	if got.OutputDir != "from-dotenv" {
		t.Errorf("OutputDir = %q, want from-dotenv", got.OutputDir)
	}
	if got.HTTPAttempts != 2 {
		t.Errorf("HTTPAttempts = %d, want process env value 2", got.HTTPAttempts)
	}
}

func TestOptionsErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) []string
	}{
		{
			name: "unknown config key",
			setup: func(t *testing.T) []string {
				return []string{"--env-file", "", "--config", writeTemp(t, "c.toml", "flair = \"x\"\n")}
			},
		},
		{
			name: "malformed config",
			setup: func(t *testing.T) []string {
				return []string{"--env-file", "", "--config", writeTemp(t, "c.toml", "top = \n")}
			},
		},
		{
			name: "missing config",
			setup: func(t *testing.T) []string {
				return []string{"--env-file", "", "--config", filepath.Join(t.TempDir(), "none.toml")}
			},
		},
		{
			name: "missing explicit env file",
			setup: func(t *testing.T) []string {
				return []string{"--env-file", filepath.Join(t.TempDir(), "none.env")}
			},
		},
		{
			name: "non-numeric env",
			setup: func(t *testing.T) []string {
				t.Setenv("CRATESIG_TOP", "many")
				return []string{"--env-file", ""}
			},
		},
		{
			name: "negative top",
			setup: func(t *testing.T) []string {
				return []string{"--env-file", "", "--top=-3"}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOptions(t, tt.setup(t)...)
			if !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("error = %v, want INVALID_CONFIG", err)
			}
		})
	}
}
