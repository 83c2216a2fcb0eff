package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"clockmesh"
	"clockmesh/analyze"
	"clockmesh/cmd/clockmesh/ui"
	"clockmesh/infra/sqlite"
)

func analyzeCmd() *cobra.Command {
	var (
		logDir string
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "analyze [experiment...]",
		Short: "Summarize event logs from completed experiments",
		Long: `Summarize clock jumps, queue depths, and drift per machine. Reads the
per-machine log files by default, or a sqlite archive with --db. With no
arguments every experiment found is analyzed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			nums, err := parseExperimentArgs(args)
			if err != nil {
				return err
			}

			var load func(int) (map[clockmesh.MachineID][]clockmesh.EventRecord, error)
			if dbPath != "" {
				store, err := sqlite.Open(dbPath)
				if err != nil {
					return fmt.Errorf("open event store: %w", err)
				}
				defer store.Close()
				load = func(n int) (map[clockmesh.MachineID][]clockmesh.EventRecord, error) {
					return loadFromStore(cmd, store, n)
				}
				if len(nums) == 0 {
					return fmt.Errorf("--db requires explicit experiment numbers")
				}
			} else {
				load = func(n int) (map[clockmesh.MachineID][]clockmesh.EventRecord, error) {
					return analyze.LoadExperiment(logDir, n)
				}
				if len(nums) == 0 {
					if nums, err = analyze.Experiments(logDir); err != nil {
						return err
					}
					if len(nums) == 0 {
						return fmt.Errorf("no experiment logs in %s", logDir)
					}
				}
			}

			for _, n := range nums {
				byMachine, err := load(n)
				if err != nil {
					return err
				}
				printExperiment(cmd, n, byMachine)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&logDir, "log-dir", "logs", "Directory holding event logs")
	cmd.Flags().StringVar(&dbPath, "db", "", "Read events from this sqlite archive instead of log files")
	return cmd
}

func parseExperimentArgs(args []string) ([]int, error) {
	nums := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid experiment number %q", a)
		}
		nums = append(nums, n)
	}
	return nums, nil
}

func loadFromStore(cmd *cobra.Command, store *sqlite.EventStore, experiment int) (map[clockmesh.MachineID][]clockmesh.EventRecord, error) {
	ids, err := store.Machines(cmd.Context(), experiment)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no events for experiment %d", experiment)
	}
	byMachine := make(map[clockmesh.MachineID][]clockmesh.EventRecord, len(ids))
	for _, id := range ids {
		recs, err := store.Events(cmd.Context(), experiment, id)
		if err != nil {
			return nil, err
		}
		byMachine[id] = recs
	}
	return byMachine, nil
}

func printExperiment(cmd *cobra.Command, experiment int, byMachine map[clockmesh.MachineID][]clockmesh.EventRecord) {
	cmd.Println(ui.Bold(fmt.Sprintf("Experiment %d", experiment)))

	ids := make([]int, 0, len(byMachine))
	for id := range byMachine {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		st := analyze.Stats(byMachine[clockmesh.MachineID(id)])
		rows = append(rows, []string{
			strconv.Itoa(id),
			strconv.Itoa(st.Events),
			strconv.Itoa(st.Counts[clockmesh.EventInternal]),
			strconv.Itoa(st.Counts[clockmesh.EventSend]),
			strconv.Itoa(st.Counts[clockmesh.EventReceive]),
			strconv.FormatInt(st.FinalClock, 10),
			fmt.Sprintf("%.2f", st.AvgJump),
			strconv.FormatInt(st.MaxJump, 10),
			fmt.Sprintf("%.2f", st.AvgQueue),
			strconv.Itoa(st.MaxQueue),
		})
	}
	cmd.Println(ui.Table(
		[]string{"MACHINE", "EVENTS", "INTERNAL", "SEND", "RECEIVE", "FINAL CLOCK", "AVG JUMP", "MAX JUMP", "AVG QUEUE", "MAX QUEUE"},
		rows,
	))
	cmd.Println(ui.Muted(fmt.Sprintf("final clock spread: %d", analyze.Spread(byMachine))))
	cmd.Println()
}
