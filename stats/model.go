package stats

import (
	"errors"
	"time"
)

var (
	// ErrInvalidObservation is a caller error. No estimate is modified when it is returned.
	ErrInvalidObservation = errors.New("invalid observation")
	// ErrNotFound is returned by a [Repository] when a user has no statistics yet.
	ErrNotFound = errors.New("cycle stats not found")
	// ErrConflict is returned by a [Repository] when a concurrent writer in another process
	// saved the same user's statistics first.
	ErrConflict = errors.New("cycle stats version conflict")
)

// CycleState classifies how trustworthy the cycle-length estimate is.
type CycleState string

const (
	CycleLearning CycleState = "learning"
	CycleStable   CycleState = "stable"
	CycleUnstable CycleState = "unstable"
)

// TempPhase is the temperature-derived phase of the current cycle.
type TempPhase string

const (
	TempLearning TempPhase = "learning"
	TempLow      TempPhase = "low"
	TempElevated TempPhase = "elevated"
	// TempUnknown follows a gap of more than MaxMissingDays without readings.
	TempUnknown TempPhase = "unknown"
)

// CycleStats is the complete running state for one user.
type CycleStats struct {
	UserID string `json:"user_id"`

	Period      Estimate `json:"period"`
	Cycle       Estimate `json:"cycle"`
	Luteal      Estimate `json:"luteal"`
	Temperature Estimate `json:"temperature"`
	Baseline    Estimate `json:"baseline"`

	LastPeriodStart *time.Time `json:"last_period_start,omitempty"`
	ElevationStart  *time.Time `json:"elevation_start,omitempty"`

	CycleState  CycleState `json:"cycle_state"`
	TempPhase   TempPhase  `json:"temp_phase"`
	ElevatedRun int        `json:"elevated_run"`
	ValidStreak int        `json:"valid_streak"`
	Outliers    int64      `json:"outliers"`

	// RunStart is the first day of the current run of elevated days.
	RunStart *time.Time `json:"run_start,omitempty"`
	TempDay  *TempDay   `json:"temp_day,omitempty"`

	// Version increases by one on every save and guards cross-process writes.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newCycleStats(userID string, cfg Config) CycleStats {
	return CycleStats{
		UserID:      userID,
		Period:      Estimate{Alpha: cfg.Alpha},
		Cycle:       Estimate{Alpha: cfg.Alpha},
		Luteal:      Estimate{Alpha: cfg.Alpha},
		Temperature: Estimate{Alpha: cfg.Alpha},
		Baseline:    Estimate{Alpha: cfg.BaselineAlpha},
		CycleState:  CycleLearning,
		TempPhase:   TempLearning,
	}
}

// clone returns a deep copy; the date pointers are never shared between copies.
func (s CycleStats) clone() CycleStats {
	out := s
	out.LastPeriodStart = cloneTime(s.LastPeriodStart)
	out.ElevationStart = cloneTime(s.ElevationStart)
	out.RunStart = cloneTime(s.RunStart)
	if s.TempDay != nil {
		d := *s.TempDay
		d.RunStart = cloneTime(d.RunStart)
		d.ElevationStart = cloneTime(d.ElevationStart)
		out.TempDay = &d
	}
	return out
}

// TempDay is the most recent day with temperature readings. It keeps the running sum of that
// day's readings and the temperature state as it was before the day's first reading.
type TempDay struct {
	Date     time.Time `json:"date"`
	Sum      float64   `json:"sum"`
	Count    int       `json:"count"`
	AfterGap bool      `json:"after_gap,omitempty"`

	Temperature    Estimate   `json:"temperature"`
	Baseline       Estimate   `json:"baseline"`
	Phase          TempPhase  `json:"phase"`
	ElevatedRun    int        `json:"elevated_run"`
	RunStart       *time.Time `json:"run_start,omitempty"`
	ElevationStart *time.Time `json:"elevation_start,omitempty"`
}

func newTempDay(st *CycleStats, date time.Time, celsius float64) *TempDay {
	return &TempDay{
		Date:           date,
		Sum:            celsius,
		Count:          1,
		Temperature:    st.Temperature,
		Baseline:       st.Baseline,
		Phase:          st.TempPhase,
		ElevatedRun:    st.ElevatedRun,
		RunStart:       cloneTime(st.RunStart),
		ElevationStart: cloneTime(st.ElevationStart),
	}
}

// restore rewinds st to the temperature state before the day's first reading.
func (d *TempDay) restore(st *CycleStats) {
	st.Temperature = d.Temperature
	st.Baseline = d.Baseline
	st.TempPhase = d.Phase
	st.ElevatedRun = d.ElevatedRun
	st.RunStart = cloneTime(d.RunStart)
	st.ElevationStart = cloneTime(d.ElevationStart)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// DateRange is an inclusive range of calendar days (UTC midnight).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Prediction is an estimated next period.
type Prediction struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Confidence float64   `json:"confidence"`
}

// PeriodEvent is the subset of a stored period row the engine needs. End is nil while the
// period is still ongoing.
type PeriodEvent struct {
	Start time.Time
	End   *time.Time
}

// Length returns the inclusive length in days, or false when the end date is unknown.
func (p PeriodEvent) Length() (int, bool) {
	if p.End == nil {
		return 0, false
	}
	return daysBetween(day(p.Start), day(*p.End)) + 1, true
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
