// Package analyze reads the per-machine event logs written by a run and
// computes the statistics the experiments compare: clock jumps, queue
// depths, event mix, and drift between machines.
package analyze

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"clockmesh"
)

// timeLayout matches the time= attribute slog's text handler writes.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// ParseFile reads one machine's event log.
func ParseFile(path string) ([]clockmesh.EventRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// ParseReader decodes event records from slog text lines. Lines whose
// msg is not "event" are skipped.
func ParseReader(r io.Reader) ([]clockmesh.EventRecord, error) {
	var recs []clockmesh.EventRecord
	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := parseFields(line)
		if fields["msg"] != "event" {
			continue
		}
		rec, err := recordFromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// parseFields splits a logfmt-style line into key=value pairs. The
// event logs never contain quoted values, so whitespace splitting is
// enough.
func parseFields(line string) map[string]string {
	fields := make(map[string]string)
	for _, tok := range strings.Fields(line) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		fields[k] = v
	}
	return fields
}

func recordFromFields(fields map[string]string) (clockmesh.EventRecord, error) {
	var rec clockmesh.EventRecord

	ts, err := time.Parse(timeLayout, fields["time"])
	if err != nil {
		return rec, fmt.Errorf("parse time: %w", err)
	}
	rec.Timestamp = ts

	id, err := strconv.Atoi(fields["machine"])
	if err != nil {
		return rec, fmt.Errorf("parse machine: %w", err)
	}
	rec.Machine = clockmesh.MachineID(id)

	typ, err := clockmesh.ParseEventType(fields["event"])
	if err != nil {
		return rec, err
	}
	rec.Type = typ

	clock, err := strconv.ParseInt(fields["clock"], 10, 64)
	if err != nil {
		return rec, fmt.Errorf("parse clock: %w", err)
	}
	rec.Clock = clock

	if q, ok := fields["queue"]; ok {
		n, err := strconv.Atoi(q)
		if err != nil {
			return rec, fmt.Errorf("parse queue: %w", err)
		}
		rec.QueueLen = n
	}
	return rec, nil
}

// LoadExperiment reads every machine log of one experiment from dir,
// keyed by machine ID.
func LoadExperiment(dir string, experiment int) (map[clockmesh.MachineID][]clockmesh.EventRecord, error) {
	pattern := filepath.Join(dir, fmt.Sprintf("experiment_%d_vm_*.log", experiment))
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no logs for experiment %d in %s", experiment, dir)
	}
	byMachine := make(map[clockmesh.MachineID][]clockmesh.EventRecord, len(paths))
	for _, path := range paths {
		recs, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			continue
		}
		byMachine[recs[0].Machine] = recs
	}
	return byMachine, nil
}

// Experiments lists the experiment numbers that have logs in dir, in
// ascending order.
func Experiments(dir string) ([]int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "experiment_*_vm_*.log"))
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	for _, path := range paths {
		var n, id int
		if _, err := fmt.Sscanf(filepath.Base(path), "experiment_%d_vm_%d.log", &n, &id); err != nil {
			continue
		}
		seen[n] = true
	}
	nums := make([]int, 0, len(seen))
	for n := range seen {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums, nil
}

// MachineStats summarizes one machine's event stream.
type MachineStats struct {
	Machine    clockmesh.MachineID
	Events     int
	Counts     map[clockmesh.EventType]int
	FinalClock int64
	AvgJump    float64
	MaxJump    int64
	AvgQueue   float64
	MaxQueue   int
	Span       time.Duration
}

// Stats computes per-machine statistics from one machine's records,
// which must be in log order.
func Stats(recs []clockmesh.EventRecord) MachineStats {
	st := MachineStats{Counts: make(map[clockmesh.EventType]int)}
	if len(recs) == 0 {
		return st
	}
	st.Machine = recs[0].Machine
	st.Events = len(recs)
	st.FinalClock = recs[len(recs)-1].Clock
	st.Span = recs[len(recs)-1].Timestamp.Sub(recs[0].Timestamp)

	var jumpSum int64
	var queueSum, queueN int
	for i, rec := range recs {
		st.Counts[rec.Type]++
		if i > 0 {
			jump := rec.Clock - recs[i-1].Clock
			jumpSum += jump
			if jump > st.MaxJump {
				st.MaxJump = jump
			}
		}
		if rec.Type == clockmesh.EventReceive {
			queueSum += rec.QueueLen
			queueN++
			if rec.QueueLen > st.MaxQueue {
				st.MaxQueue = rec.QueueLen
			}
		}
	}
	if len(recs) > 1 {
		st.AvgJump = float64(jumpSum) / float64(len(recs)-1)
	}
	if queueN > 0 {
		st.AvgQueue = float64(queueSum) / float64(queueN)
	}
	return st
}

// Spread is the gap between the highest and lowest final clock across
// machines, the drift measure the experiments compare.
func Spread(byMachine map[clockmesh.MachineID][]clockmesh.EventRecord) int64 {
	var min, max int64
	first := true
	for _, recs := range byMachine {
		if len(recs) == 0 {
			continue
		}
		final := recs[len(recs)-1].Clock
		if first {
			min, max = final, final
			first = false
			continue
		}
		if final < min {
			min = final
		}
		if final > max {
			max = final
		}
	}
	return max - min
}
