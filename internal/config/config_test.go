package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipforge/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, path, exists, err := config.Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected missing config, got exists=true for %s", path)
	}
	if cfg.Workers.Count < 1 {
		t.Fatalf("expected positive worker count, got %d", cfg.Workers.Count)
	}
	if cfg.FastCopy.BoundarySlackSeconds != 0.5 {
		t.Fatalf("unexpected default boundary slack: %v", cfg.FastCopy.BoundarySlackSeconds)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected default log format: %q", cfg.Logging.Format)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[output]
dir = "` + filepath.Join(dir, "out") + `"
template = " {name}.{format} "

[workers]
count = 3

[fastcopy]
boundary_slack_seconds = 0.25

[fastcopy.policy]
AAC = ["M4A", "mp4"]

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be detected")
	}
	if cfg.Workers.Count != 3 {
		t.Fatalf("workers.count = %d, want 3", cfg.Workers.Count)
	}
	if cfg.Output.Template != "{name}.{format}" {
		t.Fatalf("template not trimmed: %q", cfg.Output.Template)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
	containers, ok := cfg.FastCopy.Policy["aac"]
	if !ok {
		t.Fatalf("policy codec not lowercased: %v", cfg.FastCopy.Policy)
	}
	if len(containers) != 2 || containers[0] != "m4a" {
		t.Fatalf("policy containers not normalized: %v", containers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "zero workers",
			mutate: func(c *config.Config) { c.Workers.Count = 0 },
			want:   "workers.count",
		},
		{
			name:   "empty template",
			mutate: func(c *config.Config) { c.Output.Template = "" },
			want:   "output.template",
		},
		{
			name:   "negative slack",
			mutate: func(c *config.Config) { c.FastCopy.BoundarySlackSeconds = -1 },
			want:   "boundary_slack",
		},
		{
			name:   "empty policy entry",
			mutate: func(c *config.Config) { c.FastCopy.Policy = map[string][]string{"aac": {}} },
			want:   "fastcopy.policy",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("Load(sample) exists=%v err=%v", exists, err)
	}
}
