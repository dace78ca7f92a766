package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stewardtools/steward/internal/ui"
)

var remoteStatus bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what a sync pass would have to reconcile",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}

		report, err := engine.Status(rootCtx, remoteStatus)
		if err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(report)
			return nil
		}

		fmt.Printf("%d document(s), %d mapped\n", report.Documents, report.Mapped)
		if len(report.Unmapped) > 0 {
			fmt.Printf("unmapped (will create on push): %s\n", strings.Join(report.Unmapped, ", "))
		}
		if len(report.Malformed) > 0 {
			fmt.Println(styledWarn("malformed (will be skipped): " + strings.Join(report.Malformed, ", ")))
		}
		if len(report.Orphaned) > 0 {
			fmt.Println(styledWarn("mapped but missing locally: " + strings.Join(report.Orphaned, ", ")))
		}
		if remoteStatus {
			if len(report.Untracked) == 0 {
				fmt.Println("no untracked open remote issues")
			} else {
				nums := make([]string, len(report.Untracked))
				for i, n := range report.Untracked {
					nums[i] = fmt.Sprintf("#%d", n)
				}
				fmt.Printf("untracked open remote issues: %s\n", strings.Join(nums, ", "))
			}
		}
		if len(report.Unmapped) == 0 && len(report.Malformed) == 0 && len(report.Orphaned) == 0 {
			if ui.IsTerminal() {
				fmt.Println(ui.RenderPass(ui.IconPass + " in sync"))
			} else {
				fmt.Println("in sync")
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&remoteStatus, "remote", false, "Also list open remote issues no mapping entry tracks")
	rootCmd.AddCommand(statusCmd)
}
