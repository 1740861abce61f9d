//nolint:testpackage // Tests require internal access for thorough testing
package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DBPath != filepath.Join(DirName, DefaultDBFile) {
		t.Errorf("db path = %s", cfg.DBPath)
	}
	if !cfg.Strict {
		t.Error("strict should default to true")
	}
}

func TestLoadMissingFiles(t *testing.T) {
	cfg, err := load([]string{filepath.Join(t.TempDir(), "nope.yaml")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != Default().DBPath || !cfg.Strict {
		t.Errorf("missing files should yield defaults, got %+v", cfg)
	}
}

func TestLoadSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "db_path: /tmp/custom.db\nstrict: false\nmax_depends_on: 5\nexport:\n  exclude_fields: [assignee]\n  compress: true\n")

	cfg, err := load([]string{path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/custom.db" || cfg.Strict || cfg.MaxDependsOn != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if !slices.Equal(cfg.Export.ExcludeFields, []string{"assignee"}) || !cfg.Export.Compress {
		t.Errorf("export cfg = %+v", cfg.Export)
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global.yaml")
	project := filepath.Join(dir, "project.yaml")
	writeFile(t, global, "db_path: /tmp/global.db\nmax_depends_on: 3\n")
	writeFile(t, project, "db_path: /tmp/project.db\n")

	cfg, err := load([]string{global, project})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Project overrides db_path; global's max_depends_on survives.
	if cfg.DBPath != "/tmp/project.db" {
		t.Errorf("db path = %s, want project override", cfg.DBPath)
	}
	if cfg.MaxDependsOn != 3 {
		t.Errorf("max_depends_on = %d, want 3 from the global layer", cfg.MaxDependsOn)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	in := Default()
	in.MaxDependsOn = 7
	if err := in.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out, err := load([]string{path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.DBPath != in.DBPath || out.MaxDependsOn != 7 || out.Strict != in.Strict {
		t.Errorf("round trip mismatch: %+v vs %+v", out, in)
	}
}
