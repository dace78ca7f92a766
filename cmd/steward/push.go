package main

import (
	"github.com/spf13/cobra"

	"github.com/stewardtools/steward/internal/syncer"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Mirror local documents to the remote tracker",
	Long: `Push parses every markdown document in the directory, creates remote
issues for unmapped documents, and updates mapped issues whose title, body,
labels, or assignees drifted. Malformed documents are skipped with a
warning. Repeated pushes with no local changes perform zero remote writes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}

		stats, err := engine.Push(rootCtx)
		if err != nil {
			return err
		}
		printResult(&syncer.Result{Push: stats, DryRun: engine.DryRun})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
