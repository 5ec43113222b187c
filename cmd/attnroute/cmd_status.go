package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"attnroute/internal/attention"
	"attnroute/internal/config"
	"attnroute/internal/learn"
	"attnroute/internal/telemetry"
)

// statusCmd prints the current attention tiers and learner maturity for the
// working directory's project.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current attention tiers and learner maturity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		paths, err := telemetry.NewPaths(cwd)
		if err != nil {
			return err
		}
		cfg := config.Load(paths.KeywordsPath(), paths.OverridesPath())

		state := attention.LoadState(paths.AttentionStatePath())
		learner := learn.LoadLearner(paths.LearnedStatePath())

		fmt.Printf("project: %s\n", cwd)
		fmt.Printf("turns:   %d\n", state.TurnCount)
		fmt.Printf("learner: %s (%d turns, %d associations, %d coactivation edges)\n",
			learner.Maturity(), learner.TurnCount(), learner.AssociationCount(), learner.EdgeCount())

		type scoredFile struct {
			file  string
			score float64
		}
		files := make([]scoredFile, 0, len(state.Scores))
		for file, score := range state.Scores {
			files = append(files, scoredFile{file, score})
		}
		sort.Slice(files, func(i, j int) bool {
			if files[i].score != files[j].score {
				return files[i].score > files[j].score
			}
			return files[i].file < files[j].file
		})

		if len(files) == 0 {
			fmt.Println("no scored files yet")
			return nil
		}
		for _, f := range files {
			tier := attention.TierFor(f.score, cfg.HotThreshold, cfg.WarmThreshold)
			marker := ""
			if cfg.IsPinned(f.file) {
				marker = " [pinned]"
			} else if cfg.IsDemoted(f.file) {
				marker = " [demoted]"
			}
			fmt.Printf("%5.2f  %-4s  %s%s\n", f.score, tier, f.file, marker)
		}
		return nil
	},
}
