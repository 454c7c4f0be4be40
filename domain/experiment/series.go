package experiment

import (
	"fmt"
	"time"
)

// DefaultStartDate is the first calendar day of generated series when the
// spec leaves StartDate unset.
var DefaultStartDate = time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC)

// Point is one calendar day of a metric. Missing marks a tracking-break day:
// Value is stored as 0 and must not enter correlation, outlier or effect math.
type Point struct {
	Date    time.Time `json:"date"`
	Value   float64   `json:"value"`
	Missing bool      `json:"missing,omitempty"`
}

// TimeSeries is a contiguous daily series for one market.
type TimeSeries struct {
	Market string  `json:"market"`
	Points []Point `json:"points"`
}

// Period is a half-open range of day indexes [Start, End).
type Period struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of days covered by the period.
func (p Period) Len() int {
	if p.End < p.Start {
		return 0
	}
	return p.End - p.Start
}

// Contains reports whether day index i falls inside the period.
func (p Period) Contains(i int) bool { return i >= p.Start && i < p.End }

// Len returns the number of days in the series.
func (s TimeSeries) Len() int { return len(s.Points) }

// Values returns a copy of the raw values, missing days included as 0.
func (s TimeSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Observed returns the values of non-missing days in order.
func (s TimeSeries) Observed() []float64 {
	out := make([]float64, 0, len(s.Points))
	for _, p := range s.Points {
		if !p.Missing {
			out = append(out, p.Value)
		}
	}
	return out
}

// MissingCount returns the number of tracking-break days.
func (s TimeSeries) MissingCount() int {
	n := 0
	for _, p := range s.Points {
		if p.Missing {
			n++
		}
	}
	return n
}

// Slice returns a copy of the series restricted to the period.
func (s TimeSeries) Slice(p Period) (TimeSeries, error) {
	if p.Start < 0 || p.End > len(s.Points) || p.Start > p.End {
		return TimeSeries{}, fmt.Errorf("period [%d,%d) out of range for %d points", p.Start, p.End, len(s.Points))
	}
	pts := make([]Point, p.Len())
	copy(pts, s.Points[p.Start:p.End])
	return TimeSeries{Market: s.Market, Points: pts}, nil
}

// Clone returns a deep copy.
func (s TimeSeries) Clone() TimeSeries {
	pts := make([]Point, len(s.Points))
	copy(pts, s.Points)
	return TimeSeries{Market: s.Market, Points: pts}
}

// Contiguous reports whether every point is exactly one calendar day after
// the previous one.
func (s TimeSeries) Contiguous() bool {
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i].Date.Equal(s.Points[i-1].Date.AddDate(0, 0, 1)) {
			return false
		}
	}
	return true
}

// Aligned reports whether two series cover exactly the same dates.
func Aligned(a, b TimeSeries) bool {
	if len(a.Points) != len(b.Points) {
		return false
	}
	for i := range a.Points {
		if !a.Points[i].Date.Equal(b.Points[i].Date) {
			return false
		}
	}
	return true
}

// PairedObserved returns the values of a and b on the days inside p where
// neither series is missing.
func PairedObserved(a, b TimeSeries, p Period) (xs, ys []float64) {
	for i := p.Start; i < p.End && i < len(a.Points) && i < len(b.Points); i++ {
		if a.Points[i].Missing || b.Points[i].Missing {
			continue
		}
		xs = append(xs, a.Points[i].Value)
		ys = append(ys, b.Points[i].Value)
	}
	return xs, ys
}
