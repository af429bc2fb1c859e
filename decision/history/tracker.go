// Package history keeps the trailing billed totals of a customer and scores
// each month against them.
package history

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tamara540/telecom-revenue-protection/decision/window"
)

const (
	// DefaultBaselineMonths is how many prior months feed the baseline.
	DefaultBaselineMonths = 12
	// DefaultMinMonths is the history needed before a z-score is reported.
	DefaultMinMonths = 5
)

// Baseline is the trailing statistics of a month, computed from prior
// months only.
type Baseline struct {
	Months int      `json:"months"`
	Mean   float64  `json:"mean"`
	StdDev float64  `json:"stddev"`
	ZScore *float64 `json:"z_score"`
}

// HasZScore reports whether enough history existed to score the month.
func (b Baseline) HasZScore() bool {
	return b.ZScore != nil
}

// AbsZ returns |z|, or 0 when the z-score is absent.
func (b Baseline) AbsZ() float64 {
	if b.ZScore == nil {
		return 0
	}
	return math.Abs(*b.ZScore)
}

type sample struct {
	month time.Time
	total float64
}

// Tracker scans one customer's months in order. It holds at most size
// prior billed totals in a ring buffer; a month never sees its own total.
// A Tracker is not safe for concurrent use.
type Tracker struct {
	size      int
	minMonths int

	buf   []sample
	head  int
	count int
	last  time.Time
}

// NewTracker creates a tracker keeping up to size months and reporting a
// z-score once minMonths are available.
func NewTracker(size, minMonths int) *Tracker {
	if size < 1 {
		size = DefaultBaselineMonths
	}
	if minMonths < 2 {
		minMonths = 2
	}
	return &Tracker{
		size:      size,
		minMonths: minMonths,
		buf:       make([]sample, size),
	}
}

// Observe returns the baseline of month and then records its total. Months
// must arrive in ascending order. Unbilled months are not history.
func (t *Tracker) Observe(month time.Time, total decimal.Decimal, billed bool) (Baseline, error) {
	if !t.last.IsZero() && !month.After(t.last) {
		return Baseline{}, fmt.Errorf("month %s observed after %s", month.Format("2006-01"), t.last.Format("2006-01"))
	}
	t.last = month

	t.evictBefore(window.AddMonths(month, -t.size))

	current, _ := total.Float64()
	b := t.baseline(current)

	if billed {
		t.push(sample{month: month, total: current})
	}
	return b, nil
}

func (t *Tracker) baseline(current float64) Baseline {
	n := t.count
	if n == 0 {
		return Baseline{}
	}

	var sum float64
	t.each(func(s sample) { sum += s.total })
	mean := sum / float64(n)

	b := Baseline{Months: n, Mean: mean}
	if n < 2 {
		return b
	}

	var sq float64
	t.each(func(s sample) {
		d := s.total - mean
		sq += d * d
	})
	b.StdDev = math.Sqrt(sq / float64(n-1))

	if n >= t.minMonths && b.StdDev > 0 {
		z := (current - mean) / b.StdDev
		b.ZScore = &z
	}
	return b
}

func (t *Tracker) push(s sample) {
	if t.count == t.size {
		t.buf[t.head] = s
		t.head = (t.head + 1) % t.size
		return
	}
	t.buf[(t.head+t.count)%t.size] = s
	t.count++
}

func (t *Tracker) evictBefore(cutoff time.Time) {
	for t.count > 0 && t.buf[t.head].month.Before(cutoff) {
		t.head = (t.head + 1) % t.size
		t.count--
	}
}

func (t *Tracker) each(fn func(sample)) {
	for i := 0; i < t.count; i++ {
		fn(t.buf[(t.head+i)%t.size])
	}
}

// Point is one month of a customer's billed series.
type Point struct {
	Month  time.Time
	Total  decimal.Decimal
	Billed bool
}

// Compute scores an ordered series with a fresh tracker.
func Compute(series []Point, size, minMonths int) ([]Baseline, error) {
	t := NewTracker(size, minMonths)
	out := make([]Baseline, 0, len(series))
	for _, p := range series {
		b, err := t.Observe(p.Month, p.Total, p.Billed)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
