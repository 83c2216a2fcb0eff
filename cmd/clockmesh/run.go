package main

import (
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"clockmesh"
	"clockmesh/cmd/clockmesh/ui"
	"clockmesh/config"
	"clockmesh/sim"
)

func runCmd() *cobra.Command {
	var (
		configPath string
		experiment int
		duration   time.Duration
		logDir     string
		storePath  string
		ntpCheck   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one experiment to completion",
		Long: `Run one experiment: either a canned preset selected with --experiment,
or a mesh described by a YAML file passed with --config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(configPath, experiment)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("duration") {
				cfg.Duration = config.Duration(duration)
			}
			if logDir != "" {
				cfg.LogDir = logDir
			}
			if storePath != "" {
				cfg.StorePath = storePath
			}
			if ntpCheck {
				cfg.NTPCheck = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := sim.Run(ctx, cfg)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML experiment config")
	cmd.Flags().IntVarP(&experiment, "experiment", "e", 0, "Preset experiment number (1-15)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 60*time.Second, "How long to run")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Directory for event logs (default logs)")
	cmd.Flags().StringVar(&storePath, "store", "", "Also archive events to this sqlite database")
	cmd.Flags().BoolVar(&ntpCheck, "ntp-check", false, "Check host clock offset against NTP before running")
	return cmd
}

func loadRunConfig(path string, experiment int) (*config.Config, error) {
	switch {
	case path != "" && experiment != 0:
		return nil, fmt.Errorf("--config and --experiment are mutually exclusive")
	case path != "":
		return config.Load(path)
	case experiment != 0:
		return sim.PresetConfig(experiment)
	default:
		return nil, fmt.Errorf("either --config or --experiment is required")
	}
}

func printResult(cmd *cobra.Command, res *sim.Result) {
	cmd.Println(ui.SuccessMsg("experiment %d complete in %s", res.Experiment, res.Elapsed.Round(time.Millisecond)))
	cmd.Print(ui.KeyValues("  ",
		ui.KV("logs", res.LogDir),
		ui.KV("machines", strconv.Itoa(len(res.FinalClocks))),
	))

	ids := make([]int, 0, len(res.FinalClocks))
	for id := range res.FinalClocks {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		mid := clockmesh.MachineID(id)
		rows = append(rows, []string{
			strconv.Itoa(id),
			strconv.Itoa(res.Rates[mid]),
			strconv.FormatInt(res.FinalClocks[mid], 10),
		})
	}
	cmd.Println(ui.Table([]string{"MACHINE", "RATE", "FINAL CLOCK"}, rows))
}
