package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tamara540/telecom-revenue-protection/decision/history"
	"github.com/Tamara540/telecom-revenue-protection/decision/policy"
)

func month(m time.Month) time.Time {
	return time.Date(2025, m, 1, 0, 0, 0, 0, time.UTC)
}

func zptr(v float64) *float64 {
	return &v
}

func TestScore(t *testing.T) {
	s := DefaultScorer()

	t.Run("missing bill with an extreme z-score caps at one", func(t *testing.T) {
		row := s.Score("c1", month(3), policy.Comparison{Reason: policy.ReasonMissingBill}, history.Baseline{ZScore: zptr(-4)})
		assert.Equal(t, 0.95, row.Severity)
		assert.Equal(t, 1.0, row.Confidence)
		assert.True(t, s.Keep(row))
	})

	t.Run("no reason and no z-score is dropped", func(t *testing.T) {
		row := s.Score("c1", month(3), policy.Comparison{}, history.Baseline{})
		assert.Equal(t, 0.0, row.Confidence)
		assert.False(t, s.Keep(row))
	})

	t.Run("statistical outlier without a rule is kept", func(t *testing.T) {
		row := s.Score("c1", month(3), policy.Comparison{}, history.Baseline{ZScore: zptr(2.5)})
		assert.Equal(t, 0.25, row.Confidence)
		assert.True(t, s.Keep(row))
	})

	t.Run("moderate z-score alone is dropped", func(t *testing.T) {
		row := s.Score("c1", month(3), policy.Comparison{}, history.Baseline{ZScore: zptr(1.9)})
		assert.False(t, s.Keep(row))
	})
}

func TestRank(t *testing.T) {
	rows := []Scored{
		{CustomerID: "b", Month: month(2), Confidence: 0.65},
		{CustomerID: "a", Month: month(2), Confidence: 0.65},
		{CustomerID: "a", Month: month(3), Confidence: 0.65},
		{CustomerID: "c", Month: month(1), Confidence: 0.65, Baseline: history.Baseline{ZScore: zptr(-1.5)}},
		{CustomerID: "d", Month: month(1), Confidence: 0.95},
	}

	Rank(rows)

	var got []string
	for _, r := range rows {
		got = append(got, r.CustomerID+"@"+r.Month.Format("01"))
	}
	assert.Equal(t, []string{"d@01", "c@01", "a@03", "a@02", "b@02"}, got)
}

func TestFilter(t *testing.T) {
	s := DefaultScorer()
	rows := []Scored{
		s.Score("a", month(1), policy.Comparison{Reason: policy.ReasonUnderBilled}, history.Baseline{}),
		s.Score("b", month(1), policy.Comparison{}, history.Baseline{}),
	}

	kept := s.Filter(rows)
	require.Len(t, kept, 1)
	assert.Equal(t, "a", kept[0].CustomerID)
	assert.Equal(t, policy.ReasonUnderBilled, kept[0].Reason())
}
