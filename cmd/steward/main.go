// steward keeps a directory of markdown documents in sync with a remote
// issue tracker and scores pull requests for safe auto-merge.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stewardtools/steward/internal/config"
	"github.com/stewardtools/steward/internal/github"
	"github.com/stewardtools/steward/internal/mapping"
	"github.com/stewardtools/steward/internal/syncer"
	"github.com/stewardtools/steward/internal/ui"
)

var (
	repoFlag    string
	tokenFlag   string
	dirFlag     string
	dryRun      bool
	concurrency int
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "steward - issue syncer and merge guardian",
	Long: `steward mirrors a directory of markdown documents into a remote issue
tracker and evaluates pull requests for safe auto-merge. Both engines are
built for CI: single-shot runs, machine-readable output, deterministic
decisions.`,
	Run: func(cmd *cobra.Command, args []string) {
		// No subcommand - show help
		_ = cmd.Help() // Help() always returns nil for cobra commands
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rootCancel != nil {
			rootCancel()
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// setupSignalContext creates a context that cancels on SIGINT/SIGTERM for
// graceful shutdown of long-running operations.
func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig resolves configuration with flag overrides applied.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	if repoFlag != "" {
		cfg.Repo = repoFlag
	}
	if tokenFlag != "" {
		cfg.Token = tokenFlag
	}
	if dirFlag != "" {
		cfg.IssuesDir = dirFlag
	}
	return cfg, nil
}

// newRemoteClient builds the API client from resolved configuration.
func newRemoteClient(cfg *config.Config) (*github.Client, error) {
	if cfg.Repo == "" {
		return nil, fmt.Errorf("no repository configured (use --repo, STEWARD_REPO, or config.yaml)")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("no token configured (use --token, STEWARD_TOKEN, or GITHUB_TOKEN)")
	}
	owner, name, err := config.SplitRepo(cfg.Repo)
	if err != nil {
		return nil, err
	}
	return github.NewClient(cfg.Token, owner, name), nil
}

// newEngine wires a sync engine over the configured documents directory.
func newEngine(cfg *config.Config) (*syncer.Engine, error) {
	client, err := newRemoteClient(cfg)
	if err != nil {
		return nil, err
	}
	store, err := mapping.Load(mapping.DefaultPath(cfg.IssuesDir))
	if err != nil {
		return nil, err
	}

	engine := syncer.NewEngine(client, cfg.IssuesDir, store)
	engine.DryRun = dryRun
	engine.Concurrency = cfg.Concurrency
	if concurrency > 0 {
		engine.Concurrency = concurrency
	}
	engine.OnWarning = func(msg string) {
		fmt.Fprintln(os.Stderr, styledWarn(msg))
	}
	if verboseFlag && !quietFlag {
		engine.OnMessage = func(msg string) {
			fmt.Println(msg)
		}
	}
	return engine, nil
}

func styledWarn(msg string) string {
	if ui.IsTerminal() {
		return ui.RenderWarn(msg)
	}
	return msg
}

// outputJSON marshals v to indented JSON on stdout.
func outputJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "Remote repository as owner/name (default: config or STEWARD_REPO)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "API token (default: config, STEWARD_TOKEN, or GITHUB_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "Documents directory (default: config or ./issues)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Compute and log actions without performing them")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "Parallel remote calls per sync pass (default: config or 4)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
