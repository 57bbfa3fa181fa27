package abstraction

import (
	"sort"
	"strconv"
	"time"

	"github.com/cdss/cdss/internal/domain/ledger"
	"github.com/cdss/cdss/internal/rules"
)

// LabelUnknown marks spans where every earlier reading's persistence horizon
// has expired.
const LabelUnknown = "UNKNOWN"

// Classify maps a raw value to the abstraction's label for a patient of the
// given sex. ok is false when no band matches and the abstraction declares
// no default, or when a numeric band set receives a non-numeric value.
func Classify(a *rules.Abstraction, sex, value string) (string, bool) {
	bands := a.BandsFor(sex)

	numeric, numericOK := 0.0, false
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		numeric, numericOK = v, true
	}

	for i := range bands {
		b := &bands[i]
		if !b.Numeric() {
			if value == b.Equals {
				return b.Label, true
			}
			continue
		}
		if !numericOK {
			continue
		}
		if b.Min != nil && numeric < *b.Min {
			continue
		}
		if b.Max != nil && numeric >= *b.Max {
			continue
		}
		return b.Label, true
	}

	if a.Default != "" {
		return a.Default, true
	}
	return "", false
}

// Compute derives the labeled state intervals one abstraction produces from
// a patient's readings over [windowStart, windowEnd). It is a pure function
// of its inputs.
//
// Each reading opens an interval at its (window-clamped) time. The interval
// ends at the next reading, at the persistence horizon, or at the window
// end, whichever comes first; spans past a horizon with no newer reading are
// labeled UNKNOWN. Adjacent intervals with equal labels merge. With at least
// one in-window reading the result tiles [firstReading, windowEnd) exactly.
func Compute(a *rules.Abstraction, sex string, readings []*ledger.Measurement, windowStart, windowEnd time.Time) []Interval {
	if !windowStart.Before(windowEnd) {
		return nil
	}
	persistence := a.Persistence.Std()

	type point struct {
		at     time.Time // window-clamped start
		origin time.Time // actual reading time; persistence runs from here
		label  string
	}
	var points []point
	for _, m := range readings {
		if !m.ValidStart.Before(windowEnd) {
			continue
		}
		// Expired before the window opens.
		if !m.ValidStart.Add(persistence).After(windowStart) {
			continue
		}
		label, ok := Classify(a, sex, m.Value)
		if !ok {
			continue
		}
		at := m.ValidStart
		if at.Before(windowStart) {
			at = windowStart
		}
		points = append(points, point{at: at, origin: m.ValidStart, label: label})
	}
	if len(points) == 0 {
		return nil
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].at.Before(points[j].at)
	})

	var out []Interval
	emit := func(label string, start, end time.Time) {
		if !start.Before(end) {
			return
		}
		if n := len(out); n > 0 && out[n-1].Label == label && out[n-1].End.Equal(start) {
			out[n-1].End = end
			return
		}
		out = append(out, Interval{
			ConceptCode: a.ConceptCode,
			ConceptName: a.Name,
			Label:       label,
			Start:       start,
			End:         end,
		})
	}

	for i, p := range points {
		horizon := p.origin.Add(persistence)
		if horizon.After(windowEnd) {
			horizon = windowEnd
		}

		next := windowEnd
		if i+1 < len(points) {
			next = points[i+1].at
		}

		if next.Before(horizon) {
			emit(p.label, p.at, next)
			continue
		}
		emit(p.label, p.at, horizon)
		emit(LabelUnknown, horizon, next)
	}

	return out
}

// ActiveAt returns the interval covering the snapshot (start inclusive, end
// exclusive), or nil.
func ActiveAt(intervals []Interval, snapshot time.Time) *Interval {
	for i := range intervals {
		iv := &intervals[i]
		if !iv.Start.After(snapshot) && iv.End.After(snapshot) {
			return iv
		}
	}
	return nil
}
