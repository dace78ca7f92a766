package main

import (
	"github.com/spf13/cobra"

	"github.com/stewardtools/steward/internal/syncer"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Retire local documents whose remote issues closed",
	Long: `Pull fetches every mapped remote issue. Closed or vanished issues have
their local document deleted and their mapping entry removed. Open issues
are left untouched; pull never rewrites local file content.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}

		stats, err := engine.Pull(rootCtx)
		if err != nil {
			return err
		}
		printResult(&syncer.Result{Pull: stats, DryRun: engine.DryRun})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}
