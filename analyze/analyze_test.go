package analyze

import (
	"strings"
	"testing"
	"time"

	"clockmesh"
	"clockmesh/eventlog"
)

func rec(id int, typ clockmesh.EventType, clock int64, queue int, at time.Time) clockmesh.EventRecord {
	return clockmesh.EventRecord{
		Timestamp: at,
		Machine:   clockmesh.MachineID(id),
		Type:      typ,
		Clock:     clock,
		QueueLen:  queue,
	}
}

func TestParseFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := eventlog.FilePath(dir, 7, 2)
	sink, err := eventlog.NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := []clockmesh.EventRecord{
		rec(2, clockmesh.EventInternal, 1, 0, base),
		rec(2, clockmesh.EventSend, 2, 0, base.Add(time.Second)),
		rec(2, clockmesh.EventReceive, 9, 3, base.Add(2*time.Second)),
		rec(2, clockmesh.EventStop, 9, 0, base.Add(3*time.Second)),
	}
	for _, r := range want {
		sink.Record(r)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("records = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("record %d timestamp = %v, want %v", i, got[i].Timestamp, want[i].Timestamp)
		}
		if got[i].Machine != want[i].Machine || got[i].Type != want[i].Type || got[i].Clock != want[i].Clock {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if got[2].QueueLen != 3 {
		t.Errorf("receive queue length = %d, want 3", got[2].QueueLen)
	}
	if got[0].QueueLen != 0 {
		t.Errorf("internal queue length = %d, want 0", got[0].QueueLen)
	}
}

func TestParseReaderSkipsNonEventLines(t *testing.T) {
	input := strings.Join([]string{
		`time=2026-03-01T12:00:00.000Z level=INFO msg="listener ready" machine=1`,
		`time=2026-03-01T12:00:01.000Z level=INFO msg=event machine=1 event=INTERNAL clock=1`,
		``,
	}, "\n")
	recs, err := ParseReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Type != clockmesh.EventInternal || recs[0].Clock != 1 {
		t.Errorf("record = %+v", recs[0])
	}
}

func TestParseReaderRejectsBadClock(t *testing.T) {
	input := `time=2026-03-01T12:00:00.000Z level=INFO msg=event machine=1 event=SEND clock=abc`
	if _, err := ParseReader(strings.NewReader(input)); err == nil {
		t.Fatal("expected error for non-numeric clock")
	}
}

func TestStats(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []clockmesh.EventRecord{
		rec(1, clockmesh.EventInternal, 1, 0, base),
		rec(1, clockmesh.EventSend, 2, 0, base.Add(time.Second)),
		rec(1, clockmesh.EventReceive, 10, 4, base.Add(2*time.Second)),
		rec(1, clockmesh.EventReceive, 11, 2, base.Add(3*time.Second)),
	}
	st := Stats(recs)
	if st.Machine != 1 || st.Events != 4 {
		t.Errorf("machine/events = %d/%d", st.Machine, st.Events)
	}
	if st.FinalClock != 11 {
		t.Errorf("final clock = %d, want 11", st.FinalClock)
	}
	if st.MaxJump != 8 {
		t.Errorf("max jump = %d, want 8", st.MaxJump)
	}
	// Jumps are 1, 8, 1 over three intervals.
	if want := 10.0 / 3.0; st.AvgJump < want-1e-9 || st.AvgJump > want+1e-9 {
		t.Errorf("avg jump = %v, want %v", st.AvgJump, want)
	}
	if st.MaxQueue != 4 {
		t.Errorf("max queue = %d, want 4", st.MaxQueue)
	}
	if st.AvgQueue != 3 {
		t.Errorf("avg queue = %v, want 3", st.AvgQueue)
	}
	if st.Counts[clockmesh.EventReceive] != 2 {
		t.Errorf("receive count = %d, want 2", st.Counts[clockmesh.EventReceive])
	}
	if st.Span != 3*time.Second {
		t.Errorf("span = %v, want 3s", st.Span)
	}
}

func TestStatsEmpty(t *testing.T) {
	st := Stats(nil)
	if st.Events != 0 || st.FinalClock != 0 {
		t.Errorf("empty stats = %+v", st)
	}
}

func TestSpread(t *testing.T) {
	base := time.Now()
	byMachine := map[clockmesh.MachineID][]clockmesh.EventRecord{
		1: {rec(1, clockmesh.EventInternal, 50, 0, base)},
		2: {rec(2, clockmesh.EventInternal, 42, 0, base)},
		3: {rec(3, clockmesh.EventInternal, 61, 0, base)},
	}
	if got := Spread(byMachine); got != 19 {
		t.Errorf("spread = %d, want 19", got)
	}
	if got := Spread(nil); got != 0 {
		t.Errorf("empty spread = %d, want 0", got)
	}
}

func TestLoadExperimentAndListing(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for id := 1; id <= 2; id++ {
		sink, err := eventlog.NewFileSink(eventlog.FilePath(dir, 5, clockmesh.MachineID(id)))
		if err != nil {
			t.Fatal(err)
		}
		sink.Record(rec(id, clockmesh.EventInternal, int64(id*10), 0, base))
		if err := sink.Close(); err != nil {
			t.Fatal(err)
		}
	}

	byMachine, err := LoadExperiment(dir, 5)
	if err != nil {
		t.Fatalf("LoadExperiment: %v", err)
	}
	if len(byMachine) != 2 {
		t.Fatalf("machines = %d, want 2", len(byMachine))
	}
	if byMachine[2][0].Clock != 20 {
		t.Errorf("machine 2 clock = %d, want 20", byMachine[2][0].Clock)
	}

	if _, err := LoadExperiment(dir, 9); err == nil {
		t.Error("expected error for experiment with no logs")
	}

	nums, err := Experiments(dir)
	if err != nil {
		t.Fatalf("Experiments: %v", err)
	}
	if len(nums) != 1 || nums[0] != 5 {
		t.Errorf("experiments = %v, want [5]", nums)
	}
}
