package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTaxonomy_MissingFileUsesDefaults(t *testing.T) {
	cfg := &Config{TaxonomyPath: filepath.Join(t.TempDir(), "nope.yaml")}

	tax, err := cfg.LoadTaxonomy()
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if len(tax.Functions) == 0 || len(tax.Levels) == 0 {
		t.Fatal("default taxonomy should carry rules")
	}
}

func TestLoadTaxonomy_CustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	data := `version: "test-1"
functions:
  - name: operations
    keywords: ["operations"]
levels:
  - name: director
    patterns: ['\bdirector\b']
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write taxonomy: %v", err)
	}

	cfg := &Config{TaxonomyPath: path}
	tax, err := cfg.LoadTaxonomy()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if tax.Version != "test-1" {
		t.Fatalf("version = %q, want test-1", tax.Version)
	}
	if len(tax.Functions) != 1 || tax.Functions[0].Name != "operations" {
		t.Fatalf("unexpected functions: %+v", tax.Functions)
	}
}

func TestLoadTaxonomy_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	if err := os.WriteFile(path, []byte("functions: [a: b"), 0o644); err != nil {
		t.Fatalf("write taxonomy: %v", err)
	}

	cfg := &Config{TaxonomyPath: path}
	if _, err := cfg.LoadTaxonomy(); err == nil {
		t.Fatal("expected parse error")
	}
}
