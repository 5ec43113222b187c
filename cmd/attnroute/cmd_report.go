package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"attnroute/internal/learn"
	"attnroute/internal/telemetry"
)

var reportLimit int

// reportCmd summarizes routing quality from the turn log: waste ratio, the
// most-wasted files, and average cost per task type.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize routing quality from the turn log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		paths, err := telemetry.NewPaths(cwd)
		if err != nil {
			return err
		}

		records, err := telemetry.ReadJSONL[telemetry.TurnRecord](paths.TurnsPath())
		if err != nil {
			return fmt.Errorf("read turn log: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("no recorded turns yet")
			return nil
		}

		history, err := telemetry.OpenHistory(paths.HistoryDBPath())
		if err != nil {
			return fmt.Errorf("open history index: %w", err)
		}
		defer history.Close()

		if err := history.Ingest(records); err != nil {
			return fmt.Errorf("index turn log: %w", err)
		}

		summary, err := history.Summarize(cwd, reportLimit)
		if err != nil {
			return err
		}

		fmt.Printf("project: %s\n", summary.Project)
		fmt.Printf("turns:   %d\n", summary.Turns)
		fmt.Printf("waste:   %.0f%% of injected context went unused\n", summary.AvgWaste*100)
		fmt.Printf("tokens:  %d injected total\n", summary.TotalTokens)

		if len(summary.TopWasted) > 0 {
			fmt.Println("\nmost wasted files (injected/used):")
			for _, fw := range summary.TopWasted {
				fmt.Printf("  %3di / %3du  %s\n", fw.Injected, fw.Used, fw.File)
			}
		}

		learner := learn.LoadLearner(paths.LearnedStatePath())
		oracle := learner.Oracle()
		printed := false
		for _, taskType := range []learn.TaskType{
			learn.TaskBugFix, learn.TaskFeature, learn.TaskRefactor,
			learn.TaskReview, learn.TaskExploration, learn.TaskConfig,
		} {
			if cost, ok := oracle.EstimateCost(taskType); ok {
				if !printed {
					fmt.Println("\navg injected tokens per task type:")
					printed = true
				}
				fmt.Printf("  %-12s %d\n", taskType, cost)
			}
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportLimit, "limit", 5, "rows per section")
}
