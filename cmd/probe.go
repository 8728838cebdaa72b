package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FranksOps/curator/internal/app"
)

var probeConcurrency int

var probeCmd = &cobra.Command{
	Use:   "probe <video id>...",
	Short: "Check whether videos play in the embedded player",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		n := cfg.Embed.Concurrency
		if cmd.Flags().Changed("concurrency") {
			n = probeConcurrency
		}
		verdicts := a.Prober.ProbeAll(ctx, args, n)

		w := cmd.OutOrStdout()
		for i, id := range args {
			state := "blocked"
			if verdicts[i] {
				state = "playable"
			}
			fmt.Fprintf(w, "%-14s %-9s %s\n", id, state, a.Prober.URL(id))
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().IntVarP(&probeConcurrency, "concurrency", "n", 4, "Probes in flight")
	rootCmd.AddCommand(probeCmd)
}
