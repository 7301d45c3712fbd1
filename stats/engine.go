package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Confidence attached to [Prediction] values, by the data that produced them.
const (
	ConfidenceLuteal     = 0.8
	ConfidenceCycle      = 0.5
	ConfidencePopulation = 0.2
)

// Repository persists [CycleStats]. Load returns [ErrNotFound] for users without statistics.
// Save must reject a write whose Version is not exactly one more than the stored version with
// [ErrConflict].
type Repository interface {
	Load(ctx context.Context, userID string) (*CycleStats, error)
	Save(ctx context.Context, stats *CycleStats) error
}

// Option customizes an [Engine].
type Option func(*Engine)

// WithClock injects the time source used for temperature-phase dates and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine folds observations into per-user running statistics.
type Engine struct {
	cfg    Config
	repo   Repository
	locks  *userLocks
	now    func() time.Time
	logger *slog.Logger
}

// NewEngine validates cfg and returns an engine over repo.
func NewEngine(cfg Config, repo Repository, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, errors.New("stats: nil repository")
	}

	e := &Engine{
		cfg:    cfg,
		repo:   repo,
		locks:  newUserLocks(),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RecordPeriodObservation folds the length in days of a closed period.
func (e *Engine) RecordPeriodObservation(ctx context.Context, userID string, lengthDays int) (CycleStats, error) {
	if lengthDays <= 0 {
		return CycleStats{}, fmt.Errorf("%w: period length must be positive, got %d", ErrInvalidObservation, lengthDays)
	}
	return e.update(ctx, userID, func(st *CycleStats) error {
		st.Period = st.Period.Fold(float64(lengthDays))
		return nil
	})
}

// RecordCycleObservation folds the distance in days between two consecutive period starts.
// Lengths outside the plausible range are rejected. A plausible length far above an established
// estimate is counted as an outlier and leaves the estimate untouched.
func (e *Engine) RecordCycleObservation(ctx context.Context, userID string, lengthDays int) (CycleStats, error) {
	if lengthDays <= 0 {
		return CycleStats{}, fmt.Errorf("%w: cycle length must be positive, got %d", ErrInvalidObservation, lengthDays)
	}
	if !e.plausibleCycle(lengthDays) {
		return CycleStats{}, fmt.Errorf("%w: cycle length %d outside [%d, %d]",
			ErrInvalidObservation, lengthDays, e.cfg.MinPlausibleCycle, e.cfg.MaxPlausibleCycle)
	}
	return e.update(ctx, userID, func(st *CycleStats) error {
		e.foldCycle(st, lengthDays)
		return nil
	})
}

// RecordLutealObservation folds a luteal-phase length in days.
func (e *Engine) RecordLutealObservation(ctx context.Context, userID string, lengthDays int) (CycleStats, error) {
	if lengthDays < e.cfg.MinLutealDays || lengthDays > e.cfg.MaxLutealDays {
		return CycleStats{}, fmt.Errorf("%w: luteal length %d outside [%d, %d]",
			ErrInvalidObservation, lengthDays, e.cfg.MinLutealDays, e.cfg.MaxLutealDays)
	}
	return e.update(ctx, userID, func(st *CycleStats) error {
		st.Luteal = st.Luteal.Fold(float64(lengthDays))
		return nil
	})
}

// RecordTemperatureObservation folds a basal body temperature reading in degrees Celsius.
func (e *Engine) RecordTemperatureObservation(ctx context.Context, userID string, celsius float64) (CycleStats, error) {
	if math.IsNaN(celsius) || celsius < e.cfg.MinCelsius || celsius > e.cfg.MaxCelsius {
		return CycleStats{}, fmt.Errorf("%w: %.2f is not a Celsius body temperature in [%.1f, %.1f]",
			ErrInvalidObservation, celsius, e.cfg.MinCelsius, e.cfg.MaxCelsius)
	}
	return e.update(ctx, userID, func(st *CycleStats) error {
		e.foldTemperature(st, celsius, day(e.now()))
		return nil
	})
}

// RecordPeriod folds everything a period row implies. A start later than the last known start
// opens a new cycle (cycle length, and luteal length when a temperature rise was seen); a known
// end date adds a period-length observation. A period whose end is still unknown contributes no
// length.
func (e *Engine) RecordPeriod(ctx context.Context, userID string, ev PeriodEvent) (CycleStats, error) {
	if ev.Start.IsZero() {
		return CycleStats{}, fmt.Errorf("%w: period start is required", ErrInvalidObservation)
	}
	length, closed := ev.Length()
	if closed && length <= 0 {
		return CycleStats{}, fmt.Errorf("%w: period ends before it starts", ErrInvalidObservation)
	}
	start := day(ev.Start)

	return e.update(ctx, userID, func(st *CycleStats) error {
		if closed {
			st.Period = st.Period.Fold(float64(length))
		}
		if st.LastPeriodStart == nil {
			st.LastPeriodStart = &start
			return nil
		}
		prev := *st.LastPeriodStart
		if !start.After(prev) {
			return nil
		}

		if el := st.ElevationStart; el != nil && el.After(prev) && el.Before(start) {
			luteal := daysBetween(*el, start) + 1
			if luteal >= e.cfg.MinLutealDays && luteal <= e.cfg.MaxLutealDays {
				st.Luteal = st.Luteal.Fold(float64(luteal))
			}
		}
		st.ElevationStart = nil
		if st.TempDay != nil {
			st.TempDay.ElevationStart = nil
		}

		e.foldCycle(st, daysBetween(prev, start))
		st.LastPeriodStart = &start
		return nil
	})
}

// EstimateFertileWindow returns nil until a cycle-length estimate exists. The window is anchored
// on the most recent period start, or on today when no start has been recorded yet.
func (e *Engine) EstimateFertileWindow(ctx context.Context, userID string) (*DateRange, error) {
	st, err := e.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !st.Cycle.Known() {
		return nil, nil
	}

	anchor := day(e.now())
	if st.LastPeriodStart != nil {
		anchor = *st.LastPeriodStart
	}
	ovulation := anchor.AddDate(0, 0, st.Cycle.Days()-e.cfg.LutealPhaseDays)
	return &DateRange{
		Start: ovulation.AddDate(0, 0, -e.cfg.FertileDaysBeforeOvulation),
		End:   ovulation.AddDate(0, 0, e.cfg.FertileDaysAfterOvulation),
	}, nil
}

// PredictNextPeriod estimates the next period. It returns nil without a known period start or
// while the cycle is unstable.
func (e *Engine) PredictNextPeriod(ctx context.Context, userID string) (*Prediction, error) {
	st, err := e.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if st.LastPeriodStart == nil || st.CycleState == CycleUnstable {
		return nil, nil
	}
	last := *st.LastPeriodStart

	p := &Prediction{}
	switch {
	case st.Luteal.Known() && st.ElevationStart != nil && st.ElevationStart.After(last):
		p.Start = st.ElevationStart.AddDate(0, 0, st.Luteal.Days()-1)
		p.Confidence = ConfidenceLuteal
	case st.Cycle.Known():
		p.Start = last.AddDate(0, 0, st.Cycle.Days())
		p.Confidence = ConfidenceCycle
	default:
		p.Start = last.AddDate(0, 0, e.cfg.PopulationCycleDays)
		p.Confidence = ConfidencePopulation
	}
	p.End = p.Start.AddDate(0, 0, max(st.Period.Days()-1, 0))

	return p, nil
}

// Snapshot returns a copy of the user's statistics. Unknown users get a fresh, empty state.
func (e *Engine) Snapshot(ctx context.Context, userID string) (CycleStats, error) {
	if userID == "" {
		return CycleStats{}, fmt.Errorf("%w: empty user id", ErrInvalidObservation)
	}
	st, err := e.load(ctx, userID)
	if err != nil {
		return CycleStats{}, err
	}
	return st.clone(), nil
}

func (e *Engine) update(ctx context.Context, userID string, fold func(*CycleStats) error) (CycleStats, error) {
	if userID == "" {
		return CycleStats{}, fmt.Errorf("%w: empty user id", ErrInvalidObservation)
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	current, err := e.load(ctx, userID)
	if err != nil {
		return CycleStats{}, err
	}

	next := current.clone()
	if err := fold(&next); err != nil {
		return CycleStats{}, err
	}
	e.refreshCycleState(&next)
	next.Version = current.Version + 1
	next.UpdatedAt = e.now().UTC()

	if err := e.repo.Save(ctx, &next); err != nil {
		e.logger.WarnContext(ctx, "stats: save failed", "user_id", userID, "error", err)
		return CycleStats{}, err
	}

	return next.clone(), nil
}

func (e *Engine) load(ctx context.Context, userID string) (CycleStats, error) {
	st, err := e.repo.Load(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return newCycleStats(userID, e.cfg), nil
	}
	if err != nil {
		return CycleStats{}, err
	}
	out := st.clone()
	e.fillAlphas(&out)
	return out, nil
}

// fillAlphas seeds missing smoothing factors on records written before a metric existed.
func (e *Engine) fillAlphas(st *CycleStats) {
	for _, est := range []*Estimate{&st.Period, &st.Cycle, &st.Luteal, &st.Temperature} {
		if est.Alpha == 0 {
			est.Alpha = e.cfg.Alpha
		}
	}
	if st.Baseline.Alpha == 0 {
		st.Baseline.Alpha = e.cfg.BaselineAlpha
	}
	if st.CycleState == "" {
		st.CycleState = CycleLearning
	}
	if st.TempPhase == "" {
		st.TempPhase = TempLearning
	}
}

func (e *Engine) foldCycle(st *CycleStats, length int) {
	if e.isCycleOutlier(st, length) {
		st.Outliers++
		st.ValidStreak = 0
		return
	}
	st.Cycle = st.Cycle.Fold(float64(length))
	st.ValidStreak++
}

func (e *Engine) plausibleCycle(length int) bool {
	if e.cfg.MinPlausibleCycle > 0 && length < e.cfg.MinPlausibleCycle {
		return false
	}
	if e.cfg.MaxPlausibleCycle > 0 && length > e.cfg.MaxPlausibleCycle {
		return false
	}
	return true
}

func (e *Engine) isCycleOutlier(st *CycleStats, length int) bool {
	if !e.plausibleCycle(length) {
		return true
	}
	if e.cfg.LongCycleMultiplier > 0 &&
		st.Cycle.Count >= int64(e.cfg.MinCyclesForStable) &&
		float64(length) > st.Cycle.Value*e.cfg.LongCycleMultiplier {
		return true
	}
	return false
}

func (e *Engine) refreshCycleState(st *CycleStats) {
	switch {
	case st.Cycle.Count+st.Outliers < int64(e.cfg.MinCyclesForStable):
		st.CycleState = CycleLearning
	case st.ValidStreak >= e.cfg.MinCyclesForStable:
		st.CycleState = CycleStable
	default:
		st.CycleState = CycleUnstable
	}
}

// foldTemperature folds one reading into the day it was taken. Readings are resampled to a daily
// mean: a later reading on the same day rewinds to the state before that day and folds the new
// mean, so the phase advances once per calendar day.
func (e *Engine) foldTemperature(st *CycleStats, celsius float64, today time.Time) {
	d := st.TempDay
	if d != nil && !today.After(d.Date) {
		d.Sum += celsius
		d.Count++
		d.restore(st)
		celsius = d.Sum / float64(d.Count)
	} else {
		d = newTempDay(st, today, celsius)
		d.AfterGap = st.TempDay != nil && e.cfg.MaxMissingDays > 0 &&
			daysBetween(st.TempDay.Date, today) > e.cfg.MaxMissingDays
		st.TempDay = d
	}

	st.Temperature = st.Temperature.Fold(celsius)
	st.Baseline = st.Baseline.Fold(celsius)

	if d.AfterGap {
		st.ElevatedRun = 0
		st.RunStart = nil
	}
	if st.Temperature.Count < int64(e.cfg.MinPointsForBaseline) {
		st.TempPhase = TempLearning
		st.ElevatedRun = 0
		st.RunStart = nil
		return
	}

	if st.Temperature.Value-st.Baseline.Value >= e.cfg.ElevationMinDelta {
		if st.ElevatedRun == 0 {
			start := d.Date
			st.RunStart = &start
		}
		st.ElevatedRun++
	} else {
		st.ElevatedRun = 0
		st.RunStart = nil
	}

	if d.AfterGap {
		st.TempPhase = TempUnknown
		return
	}
	if st.ElevatedRun < e.cfg.ElevationDaysRequired {
		st.TempPhase = TempLow
		return
	}
	if st.TempPhase != TempElevated && st.ElevationStart == nil {
		st.ElevationStart = cloneTime(st.RunStart)
	}
	st.TempPhase = TempElevated
}
