// Package config loads steward configuration from the repository's
// .steward/config.yaml with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Defaults applied when neither the config file nor the environment
// sets a value.
const (
	DefaultIssuesDir    = "issues"
	DefaultThreshold    = 70
	DefaultMinApprovals = 1
	DefaultConcurrency  = 4
	DefaultMergeMethod  = "squash"
)

// ConfigDir is the directory under the repository root holding steward
// state.
const ConfigDir = ".steward"

// Config is the resolved steward configuration. Precedence, highest
// first: command-line flags (applied by the caller), STEWARD_*
// environment variables, config.yaml, defaults.
type Config struct {
	// Repo is the remote repository in "owner/name" form.
	Repo string

	// Token authenticates against the remote API. GITHUB_TOKEN is
	// honored as a fallback for CI environments.
	Token string

	// IssuesDir is the documents directory, relative to the repository
	// root unless absolute.
	IssuesDir string

	// Concurrency bounds parallel remote calls per sync pass.
	Concurrency int

	// Guardian evaluation settings.
	Threshold    int
	MinApprovals int
	MergeMethod  string
}

// Load reads configuration for the repository rooted at root. A missing
// config file is not an error; defaults and the environment still apply.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(root, ConfigDir, "config.yaml"))
	v.SetConfigType("yaml")

	v.SetDefault("issues_dir", DefaultIssuesDir)
	v.SetDefault("sync.concurrency", DefaultConcurrency)
	v.SetDefault("guardian.threshold", DefaultThreshold)
	v.SetDefault("guardian.min_approvals", DefaultMinApprovals)
	v.SetDefault("guardian.merge_method", DefaultMergeMethod)

	v.SetEnvPrefix("STEWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; a malformed one is not.
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{
		Repo:         v.GetString("repo"),
		Token:        v.GetString("token"),
		IssuesDir:    v.GetString("issues_dir"),
		Concurrency:  v.GetInt("sync.concurrency"),
		Threshold:    v.GetInt("guardian.threshold"),
		MinApprovals: v.GetInt("guardian.min_approvals"),
		MergeMethod:  v.GetString("guardian.merge_method"),
	}

	if cfg.Token == "" {
		cfg.Token = os.Getenv("GITHUB_TOKEN")
	}
	if !filepath.IsAbs(cfg.IssuesDir) {
		cfg.IssuesDir = filepath.Join(root, cfg.IssuesDir)
	}
	return cfg, nil
}

// SplitRepo splits an "owner/name" repository identifier.
func SplitRepo(repo string) (owner, name string, err error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q, want owner/name", repo)
	}
	return parts[0], parts[1], nil
}
