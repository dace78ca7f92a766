package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stewardtools/steward/internal/guardian"
	"github.com/stewardtools/steward/internal/ui"
)

var (
	prNumber     int
	threshold    int
	minApprovals int
	ciMode       bool
	executeMerge bool
)

var guardianCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Score a pull request for safe auto-merge",
	Long: `Guardian fetches a point-in-time snapshot of a pull request (CI status,
reviews, labels, size, changed files) and renders a verdict: auto-merge,
needs-review, or block. A block or needs-review verdict is a valid outcome,
not a failure; the exit code is non-zero only on unrecoverable errors.

By default guardian only decides and reports. With --execute an auto-merge
verdict is acted on immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newRemoteClient(cfg)
		if err != nil {
			return err
		}

		opts := guardian.Options{
			Threshold:    cfg.Threshold,
			MinApprovals: cfg.MinApprovals,
		}
		// Changed() rather than a zero check, so --threshold 0 and
		// --min-approvals 0 are honored as explicit settings.
		if cmd.Flags().Changed("threshold") {
			opts.Threshold = threshold
		}
		if cmd.Flags().Changed("min-approvals") {
			opts.MinApprovals = minApprovals
		}

		pr, err := client.FetchPullRequest(rootCtx, prNumber)
		if err != nil {
			return err
		}
		reviews, err := client.FetchReviews(rootCtx, prNumber)
		if err != nil {
			return err
		}
		status, err := client.FetchCombinedStatus(rootCtx, pr.Head.SHA)
		if err != nil {
			return err
		}
		files, err := client.FetchPullFiles(rootCtx, prNumber)
		if err != nil {
			return err
		}

		snap := guardian.BuildSnapshot(pr, reviews, status, files)
		decision := guardian.Evaluate(snap, opts)

		if ciMode || jsonOutput {
			outputJSON(decision)
		} else {
			printDecision(decision)
		}

		if executeMerge && decision.Verdict == guardian.VerdictAutoMerge {
			if dryRun {
				fmt.Printf("[dry-run] would merge #%d (%s)\n", prNumber, cfg.MergeMethod)
				return nil
			}
			if err := client.MergePull(rootCtx, prNumber, cfg.MergeMethod); err != nil {
				return err
			}
			if !quietFlag {
				fmt.Printf("merged #%d (%s)\n", prNumber, cfg.MergeMethod)
			}
		}
		return nil
	},
}

func printDecision(d guardian.Decision) {
	if ui.IsTerminal() {
		fmt.Printf("#%d: %s (score %d, threshold %d)\n", d.PRNumber, ui.RenderVerdict(string(d.Verdict)), d.Score, d.Threshold)
	} else {
		fmt.Printf("#%d: %s (score %d, threshold %d)\n", d.PRNumber, d.Verdict, d.Score, d.Threshold)
	}
	if quietFlag {
		return
	}
	for _, f := range d.Factors {
		fmt.Printf("  %+d %s", f.Delta, f.Name)
		if f.Detail != "" {
			fmt.Printf(" (%s)", f.Detail)
		}
		fmt.Println()
	}
}

func init() {
	guardianCmd.Flags().IntVar(&prNumber, "pr-number", 0, "Pull request number to evaluate")
	guardianCmd.Flags().IntVar(&threshold, "threshold", 0, "Auto-merge score threshold (default: config or 70)")
	guardianCmd.Flags().IntVar(&minApprovals, "min-approvals", 0, "Approving reviews required for approval points (default: config or 1)")
	guardianCmd.Flags().BoolVar(&ciMode, "ci-mode", false, "Emit the structured decision record for pipeline consumption")
	guardianCmd.Flags().BoolVar(&executeMerge, "execute", false, "Merge the pull request when the verdict is auto-merge")
	_ = guardianCmd.MarkFlagRequired("pr-number")
	rootCmd.AddCommand(guardianCmd)
}
