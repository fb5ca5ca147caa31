package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestStandardPaths(t *testing.T) {
	paths := StandardPaths()
	if len(paths) < 2 {
		t.Errorf("expected at least 2 standard paths, got %d", len(paths))
	}
	if paths[0] != "credentials.toml" {
		t.Errorf("first path should be credentials.toml, got %s", paths[0])
	}
}

func writeCreds(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.toml")
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeCreds(t, `
[gemini]
api_key = "gem-test123"

[openai]
api_key = "sk-openai-test456"
`, 0400)

	creds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := creds.GetAPIKey("gemini"); got != "gem-test123" {
		t.Errorf("gemini key = %q, want %q", got, "gem-test123")
	}
	if got := creds.GetAPIKey("gemini-sdk"); got != "gem-test123" {
		t.Errorf("gemini-sdk should share the gemini key, got %q", got)
	}
	if got := creds.GetAPIKey("openai"); got != "sk-openai-test456" {
		t.Errorf("openai key = %q, want %q", got, "sk-openai-test456")
	}
}

func TestLoadFile_GenericLLMSection(t *testing.T) {
	path := writeCreds(t, `
[llm]
api_key = "generic-llm-key"
`, 0400)

	creds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := creds.GetAPIKey("anthropic"); got != "generic-llm-key" {
		t.Errorf("expected generic key, got %q", got)
	}
}

func TestLoadFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission check is unix-only")
	}
	path := writeCreds(t, "[llm]\napi_key = \"x\"\n", 0644)

	_, err := LoadFile(path)
	if !errors.Is(err, ErrInsecurePermissions) {
		t.Errorf("expected ErrInsecurePermissions, got %v", err)
	}
}

func TestGetAPIKey_EnvFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-env")

	var creds *Credentials
	if got := creds.GetAPIKey("gemini"); got != "google-env" {
		t.Errorf("expected GOOGLE_API_KEY fallback, got %q", got)
	}

	t.Setenv("GEMINI_API_KEY", "gemini-env")
	if got := creds.GetAPIKey("gemini"); got != "gemini-env" {
		t.Errorf("expected GEMINI_API_KEY to win, got %q", got)
	}
}

func TestEnvVars_Generic(t *testing.T) {
	got := EnvVars("my-vendor")
	if len(got) != 1 || got[0] != "MY_VENDOR_API_KEY" {
		t.Errorf("unexpected env vars: %v", got)
	}
}
