package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clockmesh/cmd/clockmesh/ui"
	"clockmesh/sim"
)

func experimentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "experiments",
		Short: "List the canned experiment presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(sim.Presets))
			for n := 1; n <= len(sim.Presets); n++ {
				p := sim.Presets[n]
				rows = append(rows, []string{
					strconv.Itoa(n),
					formatRates(p.Rates),
					formatProbability(p.SendProbability),
				})
			}
			cmd.Println(ui.Table([]string{"EXPERIMENT", "CLOCK RATES", "SEND PROBABILITY"}, rows))
			cmd.Println(ui.Muted("run one with: clockmesh run --experiment <n>"))
			return nil
		},
	}
}

func formatRates(rates [3]int) string {
	if rates == [3]int{} {
		return "random (1-6)"
	}
	return fmt.Sprintf("%d / %d / %d", rates[0], rates[1], rates[2])
}

func formatProbability(p float64) string {
	if p == 0 {
		return "0.3 (default)"
	}
	return strconv.FormatFloat(p, 'g', -1, 64)
}
