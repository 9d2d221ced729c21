package responses

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetLanguageFallbackChain(t *testing.T) {
	t.Parallel()

	c := Default()

	en := c.Error("no_results_found", "en")
	if !strings.HasPrefix(en, "Sorry,") {
		t.Fatalf("en message = %q, want English text", en)
	}
	// Unknown language falls back to Arabic.
	fr := c.Error("no_results_found", "fr")
	ar := c.Error("no_results_found", "ar")
	if fr != ar {
		t.Fatalf("fallback = %q, want Arabic default %q", fr, ar)
	}
	// Unknown key falls back to the generic apology.
	if got := c.Error("nonexistent_key", "ar"); got != genericFallback {
		t.Fatalf("unknown key = %q, want generic fallback", got)
	}
	if got := c.Get("nonexistent_category", "x", "ar"); got != genericFallback {
		t.Fatalf("unknown category = %q, want generic fallback", got)
	}
}

func TestLoadMergesOverridesOverDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "responses.yaml")
	override := `
error_messages:
  no_results_found:
    en: "Nothing found, try the forum."
system_messages:
  greeting:
    ar: "أهلاً"
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := c.Error("no_results_found", "en"); got != "Nothing found, try the forum." {
		t.Fatalf("overridden en = %q", got)
	}
	// The Arabic variant of the same key survives the partial override.
	if got := c.Error("no_results_found", "ar"); !strings.Contains(got, "discourse.aosus.org") {
		t.Fatalf("ar default lost after override: %q", got)
	}
	// New keys from the override are reachable.
	if got := c.System("greeting", "ar"); got != "أهلاً" {
		t.Fatalf("new key = %q, want أهلاً", got)
	}
	// Untouched categories keep defaults.
	if got := c.Discourse("no_results", "en"); got != "No relevant topics found." {
		t.Fatalf("untouched default = %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("Load() error = nil, want read error")
	}
}
