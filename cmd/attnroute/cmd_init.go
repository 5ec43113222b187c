package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"attnroute/internal/config"
	"attnroute/internal/telemetry"
)

var initForce bool

// initCmd writes starter config files so a project can begin tuning the
// router without reading format docs first.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write starter keywords.json and router_overrides.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		paths, err := telemetry.NewPaths(cwd)
		if err != nil {
			return err
		}
		if err := paths.EnsureDirs(); err != nil {
			return err
		}

		wrote := 0
		for _, target := range []struct {
			path  string
			write func(string) error
		}{
			{paths.KeywordsPath(), config.WriteDefaultKeywords},
			{paths.OverridesPath(), config.WriteDefaultOverrides},
		} {
			if _, err := os.Stat(target.path); err == nil && !initForce {
				fmt.Printf("exists, skipping: %s\n", target.path)
				continue
			}
			if err := target.write(target.path); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", target.path)
			wrote++
		}
		if wrote == 0 {
			fmt.Println("nothing to do (use --force to overwrite)")
		}
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config files")
}
