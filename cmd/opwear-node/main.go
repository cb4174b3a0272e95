package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "opwear-node",
		Short:        "Run an opwear pairing node (observer or observable)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
