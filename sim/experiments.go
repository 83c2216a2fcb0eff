package sim

import (
	"fmt"

	"clockmesh/config"
)

// Preset is a canned experiment: fixed clock rates for a 3-machine mesh
// and a send probability. A zero rate means each run draws the rate
// uniformly from 1-6; a zero probability means the default of 0.3.
type Preset struct {
	Rates           [3]int
	SendProbability float64
}

// Presets is the canned experiment matrix. Experiments 1-5 vary clock
// rates at the default probability, 6-11 raise the probability, and
// 12-15 sweep probability over a fixed 1/3/6 rate split.
var Presets = map[int]Preset{
	1:  {},
	2:  {Rates: [3]int{6, 4, 4}},
	3:  {Rates: [3]int{3, 3, 3}},
	4:  {Rates: [3]int{1, 3, 6}},
	5:  {Rates: [3]int{5, 3, 2}},
	6:  {Rates: [3]int{5, 3, 2}, SendProbability: 0.6},
	7:  {Rates: [3]int{3, 3, 3}, SendProbability: 0.9},
	8:  {Rates: [3]int{4, 4, 6}, SendProbability: 0.9},
	9:  {Rates: [3]int{1, 1, 6}, SendProbability: 0.9},
	10: {Rates: [3]int{1, 4, 6}, SendProbability: 0.9},
	11: {Rates: [3]int{5, 3, 2}, SendProbability: 0.9},
	12: {Rates: [3]int{1, 3, 6}, SendProbability: 0.1},
	13: {Rates: [3]int{1, 3, 6}, SendProbability: 0.3},
	14: {Rates: [3]int{1, 3, 6}, SendProbability: 0.6},
	15: {Rates: [3]int{1, 3, 6}, SendProbability: 0.9},
}

const (
	defaultSendProbability = 0.3
	presetBasePort         = 5001
)

// PresetConfig expands a preset number into a runnable configuration
// with three loopback machines on consecutive ports.
func PresetConfig(n int) (*config.Config, error) {
	p, ok := Presets[n]
	if !ok {
		return nil, fmt.Errorf("unknown experiment %d", n)
	}
	prob := p.SendProbability
	if prob == 0 {
		prob = defaultSendProbability
	}
	cfg := &config.Config{
		Experiment:      n,
		SendProbability: prob,
	}
	for i, rate := range p.Rates {
		cfg.Machines = append(cfg.Machines, config.MachineConfig{
			ID:         i + 1,
			ListenAddr: fmt.Sprintf("127.0.0.1:%d", presetBasePort+i),
			ClockRate:  rate,
		})
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
