// Package config builds the immutable runtime configuration and owns the
// vault directory structure. Every stage directory the pipeline relies on
// is created here at process start; a vault that cannot be created is a
// fatal startup error, not something to limp past.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional per-vault settings file.
const ConfigFileName = "config.yaml"

const defaultVaultConfigYAML = `# aide vault configuration
version: 1

# Polling intervals. Go duration strings ("30s", "2m").
intervals:
  planner: 30s
  approval: 15s

# Reasoner (OpenAI-compatible chat completions endpoint). The API key is
# never stored here; set AIDE_REASONER_KEY in the environment.
reasoner:
  base_url: https://openrouter.ai/api/v1
  model: openai/gpt-4o-mini

# Chat producer keyword triggers.
chat:
  keywords: [urgent, invoice, payment, help, asap, meeting, deadline]
  urgent_keywords: [invoice, payment, urgent, asap]
`

// Intervals holds the poll cadences for the cooperative loops.
type Intervals struct {
	Planner  time.Duration `yaml:"planner"`
	Approval time.Duration `yaml:"approval"`
}

// ReasonerConfig points at the external reasoning collaborator.
type ReasonerConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// APIKey is populated from the environment, never from the file.
	APIKey string `yaml:"-"`
}

// Enabled reports whether a reasoner can actually be called.
func (r ReasonerConfig) Enabled() bool {
	return r.APIKey != "" && r.BaseURL != "" && r.Model != ""
}

// ChatConfig configures the chat-message producer's keyword matching.
type ChatConfig struct {
	Keywords       []string `yaml:"keywords"`
	UrgentKeywords []string `yaml:"urgent_keywords"`
}

// VaultConfig models the optional config.yaml inside the vault.
type VaultConfig struct {
	Version   int            `yaml:"version"`
	Intervals Intervals      `yaml:"intervals"`
	Reasoner  ReasonerConfig `yaml:"reasoner"`
	Chat      ChatConfig     `yaml:"chat"`
}

// Config is the immutable runtime configuration, constructed once in main
// and passed explicitly to each component's constructor.
type Config struct {
	// VaultDir is the root holding every stage directory.
	VaultDir string
	Vault    VaultConfig
}

// New resolves the vault location and loads its settings. Resolution
// order: explicit argument, AIDE_VAULT, then ~/AideVault.
func New(vaultDir string) (*Config, error) {
	if vaultDir == "" {
		vaultDir = os.Getenv("AIDE_VAULT")
	}
	if vaultDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolve home directory: %w", err)
		}
		vaultDir = filepath.Join(home, "AideVault")
	}
	abs, err := filepath.Abs(vaultDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve vault path: %w", err)
	}

	cfg := &Config{VaultDir: abs, Vault: defaultVaultConfig()}
	if err := cfg.loadVaultConfig(); err != nil {
		return nil, err
	}
	cfg.Vault.Reasoner.APIKey = os.Getenv("AIDE_REASONER_KEY")
	if model := os.Getenv("AIDE_REASONER_MODEL"); model != "" {
		cfg.Vault.Reasoner.Model = model
	}
	return cfg, nil
}

// InitVaultDirs creates the full vault structure:
//
// AideVault/
// ├── Inbox/             <- drop files here to create tasks
// ├── Needs_Action/      <- producer output, planner input
// ├── Plans/             <- planner artifacts
// ├── Pending_Approval/  <- awaiting a human decision
// ├── Approved/          <- human said yes
// ├── Rejected/          <- human said no
// ├── Done/              <- terminal archive
// ├── Logs/              <- daily event journal + process log
// ├── Briefings/         <- generated daily/weekly summaries
// └── State/             <- producer seen-sets and other durable markers
func InitVaultDirs(vaultDir string) error {
	dirs := []string{
		"Inbox", "Needs_Action", "Plans", "Pending_Approval",
		"Approved", "Rejected", "Done", "Logs", "Briefings", "State",
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(vaultDir, dir), 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureVaultConfig(filepath.Join(vaultDir, ConfigFileName))
}

// LogsDir returns the directory holding the journal and the process log.
func (c *Config) LogsDir() string {
	return filepath.Join(c.VaultDir, "Logs")
}

// StateDir returns the directory for durable producer state.
func (c *Config) StateDir() string {
	return filepath.Join(c.VaultDir, "State")
}

// BriefingsDir returns the directory for generated briefings.
func (c *Config) BriefingsDir() string {
	return filepath.Join(c.VaultDir, "Briefings")
}

// InboxDir returns the drop folder watched by the file producer.
func (c *Config) InboxDir() string {
	return filepath.Join(c.VaultDir, "Inbox")
}

// DashboardPath returns the counters dashboard file.
func (c *Config) DashboardPath() string {
	return filepath.Join(c.VaultDir, "Dashboard.md")
}

func (c *Config) loadVaultConfig() error {
	path := filepath.Join(c.VaultDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var parsed VaultConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	c.Vault = parsed
	return nil
}

func defaultVaultConfig() VaultConfig {
	cfg := VaultConfig{Version: 1}
	cfg.applyDefaults()
	return cfg
}

func (vc *VaultConfig) applyDefaults() {
	if vc.Version == 0 {
		vc.Version = 1
	}
	if vc.Intervals.Planner <= 0 {
		vc.Intervals.Planner = 30 * time.Second
	}
	if vc.Intervals.Approval <= 0 {
		vc.Intervals.Approval = 15 * time.Second
	}
	if vc.Reasoner.BaseURL == "" {
		vc.Reasoner.BaseURL = "https://openrouter.ai/api/v1"
	}
	if vc.Reasoner.Model == "" {
		vc.Reasoner.Model = "openai/gpt-4o-mini"
	}
	if len(vc.Chat.Keywords) == 0 {
		vc.Chat.Keywords = []string{"urgent", "invoice", "payment", "help", "asap", "meeting", "deadline"}
	}
	if len(vc.Chat.UrgentKeywords) == 0 {
		vc.Chat.UrgentKeywords = []string{"invoice", "payment", "urgent", "asap"}
	}
	for i, kw := range vc.Chat.Keywords {
		vc.Chat.Keywords[i] = strings.ToLower(strings.TrimSpace(kw))
	}
	for i, kw := range vc.Chat.UrgentKeywords {
		vc.Chat.UrgentKeywords[i] = strings.ToLower(strings.TrimSpace(kw))
	}
}

func (vc VaultConfig) validate() error {
	if vc.Version < 1 {
		return fmt.Errorf("version must be >= 1")
	}
	if vc.Intervals.Planner < time.Second || vc.Intervals.Approval < time.Second {
		return fmt.Errorf("poll intervals must be at least 1s")
	}
	return nil
}

func ensureVaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultVaultConfigYAML), 0o644)
}
