package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/signalsfoundry/radio-towers/internal/logging"
)

// TieBreak decides which transmitter wins when several can be raised by the
// same smallest increase and cover the same number of receivers.
type TieBreak int

const (
	// TieBreakLowestID picks the lowest transmitter id among the tied ones.
	TieBreakLowestID TieBreak = iota
	// TieBreakFirstSeen picks the transmitter that first reached the current
	// smallest increase while scanning pending receivers in ascending id
	// order, each receiver's distances in transmitter id order.
	TieBreakFirstSeen
)

// String returns the configuration name of the policy.
func (t TieBreak) String() string {
	switch t {
	case TieBreakLowestID:
		return "lowest-id"
	case TieBreakFirstSeen:
		return "first-seen"
	default:
		return fmt.Sprintf("TieBreak(%d)", int(t))
	}
}

// ParseTieBreak maps a configuration name onto a TieBreak. The empty string
// selects the default, TieBreakLowestID.
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lowest-id", "lowest_id":
		return TieBreakLowestID, nil
	case "first-seen", "first_seen":
		return TieBreakFirstSeen, nil
	default:
		return TieBreakLowestID, fmt.Errorf("unknown tie-break policy %q", s)
	}
}

// SolveStats summarises one Solve call for metrics recorders.
type SolveStats struct {
	Duration              time.Duration
	Steps                 int
	TotalReceivers        int
	InitiallyCovered      int
	TransmittersIncreased int
	Err                   error
}

// SolveMetricsRecorder receives a summary after every Solve call.
type SolveMetricsRecorder interface {
	RecordSolve(stats SolveStats)
}

// Solver runs the greedy power-increase heuristic. A Solver holds no
// per-solve state and may be shared between goroutines.
type Solver struct {
	log      logging.Logger
	metrics  SolveMetricsRecorder
	tieBreak TieBreak
}

// SolverOption customises a Solver.
type SolverOption func(*Solver)

// WithLogger attaches a logger. Per-step detail is logged at debug level.
func WithLogger(l logging.Logger) SolverOption {
	return func(s *Solver) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m SolveMetricsRecorder) SolverOption {
	return func(s *Solver) {
		s.metrics = m
	}
}

// WithTieBreak selects the tie-break policy.
func WithTieBreak(t TieBreak) SolverOption {
	return func(s *Solver) {
		s.tieBreak = t
	}
}

// NewSolver constructs a Solver. Without options it logs nothing and breaks
// ties by lowest transmitter id.
func NewSolver(opts ...SolverOption) *Solver {
	s := &Solver{
		log:      logging.Noop(),
		tieBreak: TieBreakLowestID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// With returns a copy of s with opts applied on top of its current settings.
func (s *Solver) With(opts ...SolverOption) *Solver {
	clone := *s
	for _, opt := range opts {
		opt(&clone)
	}
	return &clone
}

// TieBreak reports the policy the solver was built with.
func (s *Solver) TieBreak() TieBreak {
	return s.tieBreak
}

// Solve computes a solution with a default Solver.
func Solve(inst *Instance) (*Solution, error) {
	return NewSolver().Solve(context.Background(), inst)
}

// Solve brings every receiver of inst into range of some transmitter.
//
// The instance must already satisfy Validate; Solve does not re-check it.
// The context is consulted between greedy steps only. On error no partial
// solution is returned.
func (s *Solver) Solve(ctx context.Context, inst *Instance) (*Solution, error) {
	start := time.Now()
	sol, err := s.solve(ctx, inst)

	if s.metrics != nil {
		stats := SolveStats{Duration: time.Since(start), Err: err}
		if inst != nil {
			stats.TotalReceivers = len(inst.Receivers)
		}
		if sol != nil {
			stats.Steps = len(sol.Steps)
			stats.InitiallyCovered = sol.ReceiversWithInitialSignal
			stats.TransmittersIncreased = len(sol.PowerIncreases)
		}
		s.metrics.RecordSolve(stats)
	}
	return sol, err
}

func (s *Solver) solve(ctx context.Context, inst *Instance) (*Solution, error) {
	if inst == nil {
		return nil, fmt.Errorf("%w: instance is nil", ErrInvalidInstance)
	}

	power := newPowerState(inst.Transmitters)
	index, initiallyCovered := buildDistanceIndex(inst, power)

	s.log.Debug(ctx, "distance index built",
		logging.Int("receivers", len(inst.Receivers)),
		logging.Int("transmitters", len(inst.Transmitters)),
		logging.Int("initially_covered", initiallyCovered),
		logging.Int("pending", index.Len()),
	)

	var steps []Step
	for index.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("solve aborted after %d steps: %w", len(steps), err)
		}
		step, applied, err := greedyStep(index, power, s.tieBreak)
		if err != nil {
			return nil, err
		}
		if !applied {
			continue
		}
		step.Round = len(steps) + 1
		steps = append(steps, step)

		s.log.Debug(ctx, "power increased",
			logging.Int("round", step.Round),
			logging.Int("transmitter_id", step.TransmitterID),
			logging.Int("increase", step.Increase),
			logging.Int("new_power", step.NewPower),
			logging.Int("covered", len(step.Covered)),
			logging.Int("pending", index.Len()),
		)
	}

	return &Solution{
		TotalReceivers:             len(inst.Receivers),
		ReceiversWithInitialSignal: initiallyCovered,
		PowerIncreases:             power.increases(),
		Steps:                      steps,
	}, nil
}

// powerState is the only mutable part of a solve: current power per
// transmitter id, next to the initial power it started from.
type powerState struct {
	ids     []int
	initial map[int]int
	current map[int]int
}

func newPowerState(txs []Transmitter) *powerState {
	p := &powerState{
		ids:     make([]int, 0, len(txs)),
		initial: make(map[int]int, len(txs)),
		current: make(map[int]int, len(txs)),
	}
	for _, tx := range txs {
		p.ids = append(p.ids, tx.ID)
		p.initial[tx.ID] = tx.Power
		p.current[tx.ID] = tx.Power
	}
	sort.Ints(p.ids)
	return p
}

func (p *powerState) raise(id, by int) int {
	p.current[id] += by
	return p.current[id]
}

// increases lists every transmitter whose power grew, ascending by id.
func (p *powerState) increases() []PowerIncrease {
	var out []PowerIncrease
	for _, id := range p.ids {
		if p.current[id] > p.initial[id] {
			out = append(out, PowerIncrease{TransmitterID: id, NewPower: p.current[id]})
		}
	}
	return out
}

type distanceRecord struct {
	transmitterID int
	distance      int
}

// distanceIndex holds the receivers that still need coverage, keyed by
// receiver id, together with their distances to the transmitters that did
// not cover them in the initial pass.
type distanceIndex struct {
	order   []int
	records map[int][]distanceRecord
}

func (ix *distanceIndex) Len() int {
	return len(ix.order)
}

// remove drops the given receivers from the index.
func (ix *distanceIndex) remove(ids []int) {
	if len(ids) == 0 {
		return
	}
	gone := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
		delete(ix.records, id)
	}
	kept := ix.order[:0]
	for _, id := range ix.order {
		if _, ok := gone[id]; !ok {
			kept = append(kept, id)
		}
	}
	ix.order = kept
}

// buildDistanceIndex runs the initial coverage pass. Each receiver scans the
// transmitters in id order and stops at the first one already in range; the
// insufficient transmitters seen up to that point are recorded but dropped
// along with the receiver.
func buildDistanceIndex(inst *Instance, power *powerState) (*distanceIndex, int) {
	ix := &distanceIndex{
		order:   make([]int, 0, len(inst.Receivers)),
		records: make(map[int][]distanceRecord, len(inst.Receivers)),
	}

	txs := make([]Transmitter, len(inst.Transmitters))
	copy(txs, inst.Transmitters)
	sort.Slice(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })

	rxs := make([]Receiver, len(inst.Receivers))
	copy(rxs, inst.Receivers)
	sort.Slice(rxs, func(i, j int) bool { return rxs[i].ID < rxs[j].ID })

	covered := 0
	for _, rx := range rxs {
		inRange := false
		records := make([]distanceRecord, 0, len(txs))
		for _, tx := range txs {
			d := ChebyshevDistance(tx.Position, rx.Position)
			if d <= power.current[tx.ID] {
				inRange = true
				break
			}
			records = append(records, distanceRecord{transmitterID: tx.ID, distance: d})
		}
		if inRange {
			covered++
			continue
		}
		ix.order = append(ix.order, rx.ID)
		ix.records[rx.ID] = records
	}
	return ix, covered
}

// candidateSet collects, for the smallest increase seen so far, the receivers
// each transmitter would bring into range.
type candidateSet struct {
	increase  int
	found     bool
	receivers map[int][]int
	seen      []int
}

func (c *candidateSet) offer(transmitterID, receiverID, increase int) {
	if c.found && increase > c.increase {
		return
	}
	if !c.found || increase < c.increase {
		c.increase = increase
		c.found = true
		c.receivers = make(map[int][]int)
		c.seen = c.seen[:0]
	}
	if _, ok := c.receivers[transmitterID]; !ok {
		c.seen = append(c.seen, transmitterID)
	}
	c.receivers[transmitterID] = append(c.receivers[transmitterID], receiverID)
}

// choose returns the transmitter covering the most receivers, falling back to
// the tie-break policy among equals.
func (c *candidateSet) choose(policy TieBreak) int {
	order := c.seen
	if policy == TieBreakLowestID {
		order = append([]int(nil), c.seen...)
		sort.Ints(order)
	}
	best, bestCount := -1, -1
	for _, id := range order {
		if n := len(c.receivers[id]); n > bestCount {
			best, bestCount = id, n
		}
	}
	return best
}

// greedyStep applies the single cheapest power increase, preferring the
// transmitter that covers the most pending receivers at that increase. It
// reports applied=false when the round only discovered receivers that were
// already in range and left nothing to raise.
func greedyStep(ix *distanceIndex, power *powerState, policy TieBreak) (Step, bool, error) {
	var (
		cands          candidateSet
		alreadyCovered []int
	)

	for _, rid := range ix.order {
		records := ix.records[rid]
		if len(records) == 0 {
			return Step{}, false, fmt.Errorf("%w: receiver %d has no recorded transmitter distances", ErrInconsistentState, rid)
		}

		inRange := false
		for _, rec := range records {
			if rec.distance <= power.current[rec.transmitterID] {
				inRange = true
				break
			}
		}
		if inRange {
			alreadyCovered = append(alreadyCovered, rid)
			continue
		}

		for _, rec := range records {
			cands.offer(rec.transmitterID, rid, rec.distance-power.current[rec.transmitterID])
		}
	}
	ix.remove(alreadyCovered)

	if !cands.found {
		if ix.Len() == 0 {
			return Step{}, false, nil
		}
		return Step{}, false, fmt.Errorf("%w: %d receivers pending but no candidate transmitter", ErrInconsistentState, ix.Len())
	}

	chosen := cands.choose(policy)
	covered := cands.receivers[chosen]
	if chosen < 0 || len(covered) == 0 {
		return Step{}, false, fmt.Errorf("%w: no transmitter selected for increase %d", ErrInconsistentState, cands.increase)
	}

	newPower := power.raise(chosen, cands.increase)
	ix.remove(covered)

	return Step{
		TransmitterID: chosen,
		Increase:      cands.increase,
		NewPower:      newPower,
		Covered:       append([]int(nil), covered...),
	}, true, nil
}
