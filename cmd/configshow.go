package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long:  "Renders the merged file, environment, and default configuration. The admin token is redacted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		show := *cfg
		if show.Server.AdminToken != "" {
			show.Server.AdminToken = "<redacted>"
		}

		out, err := yaml.Marshal(show)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
