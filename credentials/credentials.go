// Package credentials loads LLM API keys from standard locations.
//
// Keys are never read from requests and never logged. Lookup order for a
// provider is: its own [provider] section, the generic [llm] section, then
// the provider's environment variable.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when credentials file has overly permissive permissions.
var ErrInsecurePermissions = fmt.Errorf("credentials file has insecure permissions")

// Credentials holds API keys loaded from credentials.toml.
type Credentials struct {
	// LLM is the generic key used when no provider section matches.
	LLM *ProviderCreds

	providers map[string]*ProviderCreds
}

// ProviderCreds holds credentials for a single provider.
type ProviderCreds struct {
	APIKey string `toml:"api_key"`
}

// StandardPaths returns the credential file locations in order of priority.
func StandardPaths() []string {
	paths := []string{"credentials.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "pagechat", "credentials.toml"),
			filepath.Join(home, ".pagechat", "credentials.toml"),
		)
	}
	return paths
}

// Load loads credentials from the first available standard location.
// A missing file is not an error; the returned Credentials is then nil and
// GetAPIKey falls through to the environment.
func Load() (*Credentials, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			creds, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return creds, path, nil
		}
	}
	return nil, "", nil
}

// LoadFile loads credentials from a specific file.
// Returns ErrInsecurePermissions unless the file mode is 0400.
func LoadFile(path string) (*Credentials, error) {
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if mode := info.Mode().Perm(); mode != 0400 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0400)",
				ErrInsecurePermissions, path, mode)
		}
	}

	var raw map[string]ProviderCreds
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	creds := &Credentials{providers: make(map[string]*ProviderCreds)}
	for section, pc := range raw {
		if pc.APIKey == "" {
			continue
		}
		pc := pc
		if section == "llm" {
			creds.LLM = &pc
		} else {
			creds.providers[normalize(section)] = &pc
		}
	}
	return creds, nil
}

// GetAPIKey returns the API key for a provider.
func (c *Credentials) GetAPIKey(provider string) string {
	name := normalize(provider)
	if c != nil {
		if pc, ok := c.providers[name]; ok {
			return pc.APIKey
		}
		if c.LLM != nil {
			return c.LLM.APIKey
		}
	}
	for _, env := range EnvVars(provider) {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

// EnvVars returns the environment variables consulted for a provider, in order.
func EnvVars(provider string) []string {
	switch normalize(provider) {
	case "gemini":
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case "openai":
		return []string{"OPENAI_API_KEY"}
	case "anthropic":
		return []string{"ANTHROPIC_API_KEY"}
	default:
		return []string{strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"}
	}
}

// normalize folds backend variants onto the vendor whose key they use.
func normalize(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	switch p {
	case "gemini-sdk", "google":
		return "gemini"
	}
	return p
}
