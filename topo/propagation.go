package topo

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// minPropagationSlots is the shortest shared slot axis two groups need before
// their signals are cross-correlated.
const minPropagationSlots = 10

// Propagation directions.
const (
	DirectionDownstream   = "downstream"
	DirectionSimultaneous = "simultaneous"
)

// GroupPropagation describes co-occurring anomalies inside one topology group.
type GroupPropagation struct {
	GroupID            string         `json:"group_id" yaml:"group_id"`
	Cells              []string       `json:"cells" yaml:"cells"`
	SimultaneousEvents int            `json:"simultaneous_events" yaml:"simultaneous_events"`
	LeaderCell         string         `json:"leader_cell,omitempty" yaml:"leader_cell,omitempty"`
	LeadCounts         map[string]int `json:"lead_counts" yaml:"lead_counts"`
}

// PropagationEvent is a lagged congestion correlation between two groups.
// A positive Lag means Target follows Source by Lag slots.
type PropagationEvent struct {
	SourceGroup string  `json:"source_group" yaml:"source_group"`
	TargetGroup string  `json:"target_group" yaml:"target_group"`
	Lag         int     `json:"lag" yaml:"lag"`
	Correlation float64 `json:"correlation" yaml:"correlation"`
	Direction   string  `json:"direction" yaml:"direction"`
}

// AnalyzeGroupPropagation counts slots where two or more members of a group
// are anomalous together. In each such slot the member whose anomaly run began
// earliest is credited as the lead; the leader is the member credited most.
func AnalyzeGroupPropagation(groups []TopologyGroup, anomalies map[string][]AnomalyRecord) []GroupPropagation {
	out := make([]GroupPropagation, 0, len(groups))
	for _, g := range groups {
		gp := GroupPropagation{GroupID: g.GroupID, Cells: append([]string(nil), g.MemberCellIDs...), LeadCounts: make(map[string]int)}

		onsets := make([]map[int64]int64, len(g.MemberCellIDs))
		slotSet := make(map[int64]bool)
		for m, cell := range g.MemberCellIDs {
			onsets[m] = anomalyOnsets(anomalies[cell])
			for slot := range onsets[m] {
				slotSet[slot] = true
			}
		}
		slots := make([]int64, 0, len(slotSet))
		for s := range slotSet {
			slots = append(slots, s)
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

		for _, slot := range slots {
			active := 0
			lead := -1
			var leadOnset int64
			for m := range g.MemberCellIDs {
				onset, ok := onsets[m][slot]
				if !ok {
					continue
				}
				active++
				if lead < 0 || onset < leadOnset {
					lead, leadOnset = m, onset
				}
			}
			if active >= 2 {
				gp.SimultaneousEvents++
				gp.LeadCounts[g.MemberCellIDs[lead]]++
			}
		}

		best := 0
		for _, cell := range g.MemberCellIDs {
			if c := gp.LeadCounts[cell]; c > best {
				best = c
				gp.LeaderCell = cell
			}
		}
		out = append(out, gp)
	}
	return out
}

// anomalyOnsets maps every anomalous slot to the slot where its run of
// consecutive anomalous records started.
func anomalyOnsets(records []AnomalyRecord) map[int64]int64 {
	onsets := make(map[int64]int64)
	inRun := false
	var start int64
	for _, r := range records {
		if !r.IsAnomaly {
			inRun = false
			continue
		}
		if !inRun {
			inRun = true
			start = r.SlotID
		}
		onsets[r.SlotID] = start
	}
	return onsets
}

// DetectGroupPropagation cross-correlates the mean event signal of every pair
// of groups over lags in [-maxLag, maxLag] and reports pairs whose strongest
// |correlation| reaches minCorrelation.
func DetectGroupPropagation(groups []TopologyGroup, series []CongestionEventSeries, maxLag int, minCorrelation float64) []PropagationEvent {
	byCell := make(map[string]CongestionEventSeries, len(series))
	for _, s := range series {
		byCell[s.CellID] = s
	}
	signals := make([]map[int64]float64, len(groups))
	for k, g := range groups {
		signals[k] = groupSignal(g, byCell)
	}

	var events []PropagationEvent
	for a := 0; a < len(groups); a++ {
		for b := a + 1; b < len(groups); b++ {
			x, y := alignSignals(signals[a], signals[b])
			if len(x) < minPropagationSlots {
				continue
			}
			corr, lag, ok := bestLag(x, y, maxLag)
			if !ok || math.Abs(corr) < minCorrelation {
				continue
			}
			ev := PropagationEvent{
				SourceGroup: groups[a].GroupID,
				TargetGroup: groups[b].GroupID,
				Lag:         lag,
				Correlation: math.Abs(corr),
				Direction:   DirectionDownstream,
			}
			switch {
			case lag == 0:
				ev.Direction = DirectionSimultaneous
			case lag < 0:
				ev.SourceGroup, ev.TargetGroup = ev.TargetGroup, ev.SourceGroup
				ev.Lag = -lag
			}
			events = append(events, ev)
		}
	}
	return events
}

// groupSignal is the per-slot mean event value over the members reporting that slot.
func groupSignal(g TopologyGroup, byCell map[string]CongestionEventSeries) map[int64]float64 {
	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	for _, cell := range g.MemberCellIDs {
		s, ok := byCell[cell]
		if !ok {
			continue
		}
		for i, slot := range s.SlotIDs {
			sums[slot] += float64(s.Events[i])
			counts[slot]++
		}
	}
	for slot, c := range counts {
		sums[slot] /= float64(c)
	}
	return sums
}

func alignSignals(a, b map[int64]float64) ([]float64, []float64) {
	slots := make([]int64, 0, len(a))
	for slot := range a {
		if _, ok := b[slot]; ok {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	x := make([]float64, len(slots))
	y := make([]float64, len(slots))
	for i, slot := range slots {
		x[i] = a[slot]
		y[i] = b[slot]
	}
	return x, y
}

// bestLag compares x[t] with y[t+lag]. Lags are visited by increasing
// magnitude, positive first, and only a strictly stronger |r| replaces the
// current best, so the result is deterministic.
func bestLag(x, y []float64, maxLag int) (float64, int, bool) {
	n := len(x)
	if maxLag > n/2 {
		maxLag = n / 2
	}
	best, bestLag, found := 0.0, 0, false
	try := func(lag int) {
		var xs, ys []float64
		if lag >= 0 {
			xs, ys = x[:n-lag], y[lag:]
		} else {
			xs, ys = x[-lag:], y[:n+lag]
		}
		if len(xs) < 2 || isConstant(xs) || isConstant(ys) {
			return
		}
		r := stat.Correlation(xs, ys, nil)
		if math.IsNaN(r) {
			return
		}
		if !found || math.Abs(r) > math.Abs(best) {
			best, bestLag, found = r, lag, true
		}
	}
	try(0)
	for l := 1; l <= maxLag; l++ {
		try(l)
		try(-l)
	}
	return best, bestLag, found
}
