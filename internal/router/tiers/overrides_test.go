package tiers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeTierConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiers.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesMergesFields(t *testing.T) {
	path := writeTierConfig(t, `
frontier:
  models: ["gpt-4.1", "gpt-4o-mini"]
  cost_per_1m_input: 2.00
  cost_per_1m_output: 8.00
sovereign:
  max_tokens: 4096
`)

	r := NewRegistry()
	if err := r.LoadOverrides(path); err != nil {
		t.Fatalf("LoadOverrides: %v", err)
	}

	wantFrontier := Profile{
		Name:         "Frontier (OpenAI)",
		Models:       []string{"gpt-4.1", "gpt-4o-mini"},
		CostPer1MIn:  2.00,
		CostPer1MOut: 8.00,
		MaxTokens:    4096,
	}
	if diff := cmp.Diff(wantFrontier, r.Profile(Frontier)); diff != "" {
		t.Errorf("frontier profile mismatch (-want +got):\n%s", diff)
	}

	got := r.Profile(Sovereign)
	if got.MaxTokens != 4096 {
		t.Errorf("sovereign max_tokens = %d, want 4096", got.MaxTokens)
	}
	if got.Name != "Sovereign (Local)" {
		t.Errorf("sovereign name = %q, want the built-in kept", got.Name)
	}
	if len(got.Models) == 0 {
		t.Error("sovereign models cleared; fields absent from the file must keep their value")
	}

	// Tiers the file never mentions keep their built-in profile.
	if diff := cmp.Diff(NewRegistry().Profile(Budget), r.Profile(Budget)); diff != "" {
		t.Errorf("budget profile changed (-want +got):\n%s", diff)
	}
}

func TestLoadOverridesUnknownTier(t *testing.T) {
	path := writeTierConfig(t, "premium:\n  max_tokens: 1\n")
	if err := NewRegistry().LoadOverrides(path); err == nil {
		t.Fatal("want error for unknown tier name")
	}
}

func TestLoadOverridesMalformedYAML(t *testing.T) {
	path := writeTierConfig(t, "frontier: [unclosed\n")
	if err := NewRegistry().LoadOverrides(path); err == nil {
		t.Fatal("want error for malformed YAML")
	}
}

func TestLoadOverridesMissingFile(t *testing.T) {
	if err := NewRegistry().LoadOverrides(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("want error for missing file")
	}
}
