package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stewardtools/steward/internal/syncer"
)

var (
	watchFlag    bool
	debounceFlag time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push local documents, then pull remote lifecycle changes",
	Long: `Sync runs a push pass (local documents out to the tracker) followed by a
pull pass (closed remote issues retire their local documents). Push always
completes first so documents created moments ago are never treated as
orphans by the same run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}

		if watchFlag {
			return engine.Watch(rootCtx, debounceFlag, printResult)
		}

		result, err := engine.Sync(rootCtx)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

func printResult(result *syncer.Result) {
	if jsonOutput {
		outputJSON(result)
		return
	}
	if quietFlag {
		return
	}
	prefix := ""
	if result.DryRun {
		prefix = "[dry-run] "
	}
	if result.Push != nil {
		fmt.Printf("%spush: %d created, %d updated, %d unchanged, %d malformed, %d errors\n",
			prefix, result.Push.Created, result.Push.Updated, result.Push.Unchanged,
			result.Push.Malformed, result.Push.Errors)
	}
	if result.Pull != nil {
		fmt.Printf("%spull: %d closed, %d open, %d errors\n",
			prefix, result.Pull.Closed, result.Pull.Open, result.Pull.Errors)
	}
}

func init() {
	syncCmd.Flags().BoolVar(&watchFlag, "watch", false, "Keep running and re-sync when documents change")
	syncCmd.Flags().DurationVar(&debounceFlag, "debounce", syncer.DefaultDebounce, "Quiet period before a watch-triggered sync")
	rootCmd.AddCommand(syncCmd)
}
