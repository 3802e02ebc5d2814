package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Moderation commands against the report store",
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every report, including expired ones awaiting rotation",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := env.Manager.AdminList(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%d reports\n", len(reports))
		for _, r := range reports {
			road := r.RoadName
			if road == "" {
				road = "-"
			}
			fmt.Printf("%s  %-8s  conf=%d  (%.5f, %.5f)  %s  device=%s  expires=%s\n",
				r.ID, r.Severity, r.Confidence, r.Latitude, r.Longitude,
				road, r.Device, r.ExpiresAt.Format("2006-01-02 15:04 MST"))
		}
		return nil
	},
}

var adminStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the active report table",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Manager.Stats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("total:     %d\n", stats.Total)
		fmt.Printf("today:     %d\n", stats.Today)
		fmt.Printf("this week: %d\n", stats.ThisWeek)
		for severity, count := range stats.BySeverity {
			fmt.Printf("  %-10s %d\n", severity, count)
		}
		return nil
	},
}

var adminDeleteCmd = &cobra.Command{
	Use:   "delete <report-id>",
	Short: "Delete a report regardless of owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		ok, err := env.Manager.AdminDelete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("report %s not found\n", args[0])
			return nil
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var adminClearYes bool

var adminClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every active report",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !adminClearYes {
			return fmt.Errorf("refusing to clear all reports without --yes")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		count, err := env.Manager.AdminClearAll(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("cleared all reports", zap.Int("count", count))
		fmt.Printf("deleted %d reports\n", count)
		return nil
	},
}

func init() {
	adminClearCmd.Flags().BoolVar(&adminClearYes, "yes", false, "confirm clearing every report")
	adminCmd.AddCommand(adminListCmd, adminStatsCmd, adminDeleteCmd, adminClearCmd)
	rootCmd.AddCommand(adminCmd)
}
