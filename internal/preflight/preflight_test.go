package preflight_test

import (
	"path/filepath"
	"testing"

	"clipforge/internal/preflight"
	"clipforge/internal/testsupport"
)

func TestRunAllPassesWithStubbedEnvironment(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := preflight.RunAll(cfg)
	if len(results) == 0 {
		t.Fatal("no checks ran")
	}
	if !preflight.Passed(results) {
		t.Fatalf("checks failed: %+v", results)
	}
}

func TestRunAllFlagsMissingBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.FFmpeg.Binary = "clipforge-no-such-binary"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := preflight.RunAll(cfg)
	if preflight.Passed(results) {
		t.Fatal("missing binary should fail preflight")
	}
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	if result := preflight.CheckDirectoryAccess("dir", dir); !result.Passed {
		t.Fatalf("existing dir failed: %+v", result)
	}
	if result := preflight.CheckDirectoryAccess("dir", filepath.Join(dir, "missing")); result.Passed {
		t.Fatal("missing dir passed")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := preflight.CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("1 MiB requirement should pass: %+v", result)
	}
	if result := preflight.CheckFreeSpace("space", dir, 1<<30); result.Passed {
		t.Fatal("absurd requirement passed")
	}
}

func TestCheckFileReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.rnnn")
	testsupport.WriteFile(t, path, 16)

	if result := preflight.CheckFileReadable("model", path); !result.Passed {
		t.Fatalf("readable file failed: %+v", result)
	}
	if result := preflight.CheckFileReadable("model", dir); result.Passed {
		t.Fatal("directory passed as file")
	}
}
