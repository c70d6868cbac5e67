package loadout

import "sync"

// Phase is one weighted stage of a loadout run.
type Phase string

const (
	PhaseResolve   Phase = "resolve"
	PhaseSubclass  Phase = "subclass"
	PhaseAbilities Phase = "abilities"
	PhaseGear      Phase = "gear"
	PhaseMods      Phase = "mods"
)

var phaseWeights = []struct {
	phase  Phase
	weight float64
}{
	{PhaseResolve, 5},
	{PhaseSubclass, 15},
	{PhaseAbilities, 25},
	{PhaseGear, 35},
	{PhaseMods, 20},
}

// ProgressFunc receives a step description and an overall percentage in
// [0, 100]. Percentages never decrease within one run.
type ProgressFunc func(step string, percent float64)

type progress struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last float64
}

func newProgress(fn ProgressFunc) *progress {
	return &progress{fn: fn}
}

// report publishes the position after done of total steps in phase.
func (p *progress) report(phase Phase, done, total int, step string) {
	var base, weight float64
	for _, pw := range phaseWeights {
		if pw.phase == phase {
			weight = pw.weight
			break
		}
		base += pw.weight
	}
	frac := 1.0
	if total > 0 {
		frac = float64(min(done, total)) / float64(total)
	}
	p.emit(step, base+weight*frac)
}

func (p *progress) finish(step string) {
	p.emit(step, 100)
}

func (p *progress) emit(step string, percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	percent = min(max(percent, p.last), 100)
	p.last = percent
	if p.fn != nil {
		p.fn(step, percent)
	}
}
