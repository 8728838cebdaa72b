package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/curator/internal/app"
	"github.com/FranksOps/curator/internal/pipeline"
	"github.com/FranksOps/curator/internal/report"
)

var (
	videosScope  []string
	videosReport string
)

var videosCmd = &cobra.Command{
	Use:   "videos <course or module title>",
	Short: "Look up safe videos for a title and print a run report",
	Example: `  curator videos "Introduction to Recursion"
  curator videos --scope cs101 --scope week-3 --report json "Binary Trees"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		out := a.Pipeline.Run(ctx, pipeline.Request{
			Query: strings.Join(args, " "),
			Scope: videosScope,
		})
		return report.Write(cmd.OutOrStdout(), videosReport, report.Summarize(out))
	},
}

func init() {
	videosCmd.Flags().StringSliceVarP(&videosScope, "scope", "s", nil, "Cache scope, e.g. course then module ID (repeatable)")
	videosCmd.Flags().StringVarP(&videosReport, "report", "r", "text", "Report format: text, json, html or csv")
	rootCmd.AddCommand(videosCmd)
}
