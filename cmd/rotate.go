package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Run one archive rotation immediately",
	Long:  "Moves every expired report into the archive and records the run, then exits. Useful for operational catch-up or cron-driven deploys.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		archived, err := env.Rotator.Run(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("rotation complete", zap.Int("archived", archived))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rotateCmd)
}
