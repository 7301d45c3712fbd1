package stats

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T) (*Engine, *MemoryRepository, *fakeClock) {
	t.Helper()
	repo := NewMemoryRepository()
	clk := &fakeClock{now: epoch}
	e, err := NewEngine(DefaultConfig(), repo, WithClock(clk.Now))
	require.NoError(t, err)
	return e, repo, clk
}

func TestFirstObservationSeedsThenSmooths(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	st, err := e.RecordPeriodObservation(ctx, "u", 5)
	require.NoError(t, err)
	require.Equal(t, 5.0, st.Period.Value)
	require.Equal(t, int64(1), st.Period.Count)

	st, err = e.RecordPeriodObservation(ctx, "u", 7)
	require.NoError(t, err)
	require.InDelta(t, 5.6, st.Period.Value, 1e-9)
	require.Equal(t, int64(2), st.Version)
}

func TestInvalidLengthsLeaveStateUntouched(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RecordPeriodObservation(ctx, "u", 5)
	require.NoError(t, err)

	for _, n := range []int{0, -1, -28} {
		_, err = e.RecordPeriodObservation(ctx, "u", n)
		require.ErrorIs(t, err, ErrInvalidObservation)
		_, err = e.RecordCycleObservation(ctx, "u", n)
		require.ErrorIs(t, err, ErrInvalidObservation)
	}

	st, err := e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, 5.0, st.Period.Value)
	require.Equal(t, int64(1), st.Period.Count)
	require.False(t, st.Cycle.Known())
	require.Equal(t, int64(1), st.Version)
}

func TestEmptyUserRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.RecordPeriodObservation(context.Background(), "", 5)
	require.ErrorIs(t, err, ErrInvalidObservation)
	_, err = e.Snapshot(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidObservation)
}

func TestSnapshotOfUnknownUserIsFresh(t *testing.T) {
	e, repo, _ := newTestEngine(t)

	st, err := e.Snapshot(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, CycleLearning, st.CycleState)
	require.Equal(t, TempLearning, st.TempPhase)
	require.Equal(t, int64(0), st.Version)
	require.Equal(t, 0, repo.Len(), "reads never persist")
}

func TestFertileWindow(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	w, err := e.EstimateFertileWindow(ctx, "u")
	require.NoError(t, err)
	require.Nil(t, w, "no cycle estimate yet")

	_, err = e.RecordCycleObservation(ctx, "u", 28)
	require.NoError(t, err)

	w, err = e.EstimateFertileWindow(ctx, "u")
	require.NoError(t, err)
	require.NotNil(t, w)
	require.Equal(t, date(2026, 3, 10), w.Start, "anchored on today without a period start")
	require.Equal(t, date(2026, 3, 16), w.End)
	require.True(t, w.End.After(w.Start))

	_, err = e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 3, 5)})
	require.NoError(t, err)

	w, err = e.EstimateFertileWindow(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, date(2026, 3, 14), w.Start)
	require.Equal(t, date(2026, 3, 20), w.End)
}

func TestCycleOutliersAndState(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	record := func(n int) CycleStats {
		t.Helper()
		st, err := e.RecordCycleObservation(ctx, "u", n)
		require.NoError(t, err)
		return st
	}

	st := record(28)
	require.Equal(t, CycleLearning, st.CycleState)
	record(29)
	st = record(27)
	require.Equal(t, CycleStable, st.CycleState)
	require.InDelta(t, 27.91, st.Cycle.Value, 1e-9)

	st = record(60)
	require.Equal(t, int64(1), st.Outliers, "longer than 1.5x the estimate")
	require.Equal(t, int64(3), st.Cycle.Count)
	require.InDelta(t, 27.91, st.Cycle.Value, 1e-9)
	require.Equal(t, CycleUnstable, st.CycleState)

	record(28)
	record(28)
	st = record(28)
	require.Equal(t, CycleStable, st.CycleState)
	require.Equal(t, 3, st.ValidStreak)
}

func TestCycleObservationOutsidePlausibleRangeRejected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	for _, n := range []int{10, 14, 91, 120} {
		_, err := e.RecordCycleObservation(ctx, "u", n)
		require.ErrorIs(t, err, ErrInvalidObservation, "%d", n)
	}
	st, err := e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, int64(0), st.Version)
	require.Equal(t, int64(0), st.Outliers)

	st, err = e.RecordCycleObservation(ctx, "u", 15)
	require.NoError(t, err)
	require.Equal(t, 15.0, st.Cycle.Value)

	w, err := e.EstimateFertileWindow(ctx, "u")
	require.NoError(t, err)
	require.NotNil(t, w, "one accepted observation is enough for a window")
}

func TestImplausiblePeriodGapsAreOutliers(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 1, 1)})
	require.NoError(t, err)
	st, err := e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 1, 6)})
	require.NoError(t, err)
	require.Equal(t, int64(1), st.Outliers)
	require.Equal(t, CycleLearning, st.CycleState)
	require.False(t, st.Cycle.Known())
	require.Equal(t, date(2026, 1, 6), *st.LastPeriodStart)

	st, err = e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 6, 1)})
	require.NoError(t, err)
	require.Equal(t, int64(2), st.Outliers, "above the plausible maximum")

	w, err := e.EstimateFertileWindow(ctx, "u")
	require.NoError(t, err)
	require.Nil(t, w)
}

func TestRecordPeriod(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	end := date(2026, 1, 5)
	st, err := e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 1, 1), End: &end})
	require.NoError(t, err)
	require.Equal(t, 5.0, st.Period.Value, "inclusive length")
	require.False(t, st.Cycle.Known())
	require.Equal(t, date(2026, 1, 1), *st.LastPeriodStart)

	st, err = e.RecordPeriod(ctx, "u", PeriodEvent{Start: time.Date(2026, 1, 29, 18, 30, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Equal(t, 28.0, st.Cycle.Value)
	require.Equal(t, int64(1), st.Period.Count, "open period contributes no length")
	require.Equal(t, date(2026, 1, 29), *st.LastPeriodStart)

	end = date(2026, 2, 1)
	st, err = e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 1, 29), End: &end})
	require.NoError(t, err)
	require.Equal(t, int64(1), st.Cycle.Count, "closing a known period is not a new cycle")
	require.Equal(t, int64(2), st.Period.Count)
	require.InDelta(t, 0.3*4+0.7*5, st.Period.Value, 1e-9)

	st, err = e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2025, 12, 1)})
	require.NoError(t, err)
	require.Equal(t, int64(1), st.Cycle.Count, "back-filled history is not a cycle")
	require.Equal(t, date(2026, 1, 29), *st.LastPeriodStart)
}

func TestRecordPeriodRejectsBadEvents(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RecordPeriod(ctx, "u", PeriodEvent{})
	require.ErrorIs(t, err, ErrInvalidObservation)

	end := date(2026, 1, 1)
	_, err = e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 1, 3), End: &end})
	require.ErrorIs(t, err, ErrInvalidObservation)

	st, err := e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Nil(t, st.LastPeriodStart)
	require.Equal(t, int64(0), st.Version)
}

func TestTemperatureValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	for _, c := range []float64{math.NaN(), math.Inf(1), 98.6, 29.9, -36.5} {
		_, err := e.RecordTemperatureObservation(context.Background(), "u", c)
		require.ErrorIs(t, err, ErrInvalidObservation, "%v", c)
	}
}

// recordDays feeds one reading per day starting at from and returns the day after the last one.
func recordDays(t *testing.T, e *Engine, clk *fakeClock, from time.Time, readings ...float64) time.Time {
	t.Helper()
	d := from
	for _, c := range readings {
		clk.Set(d.Add(7 * time.Hour))
		_, err := e.RecordTemperatureObservation(context.Background(), "u", c)
		require.NoError(t, err)
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// riseUntilElevated feeds high readings one per day until the phase turns elevated and returns
// the day that happened.
func riseUntilElevated(t *testing.T, e *Engine, clk *fakeClock, from time.Time) time.Time {
	t.Helper()
	d := from
	for i := 0; i < 10; i++ {
		clk.Set(d.Add(7 * time.Hour))
		st, err := e.RecordTemperatureObservation(context.Background(), "u", 36.9)
		require.NoError(t, err)
		if st.TempPhase == TempElevated {
			return d
		}
		require.Equal(t, TempLow, st.TempPhase)
		d = d.AddDate(0, 0, 1)
	}
	t.Fatalf("temperature never turned elevated")
	return time.Time{}
}

func TestTemperaturePhase(t *testing.T) {
	e, _, clk := newTestEngine(t)
	ctx := context.Background()

	next := recordDays(t, e, clk, date(2026, 1, 2), 36.4, 36.4, 36.4, 36.4, 36.4)
	st, err := e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, TempLearning, st.TempPhase)

	next = recordDays(t, e, clk, next, 36.4)
	st, err = e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, TempLow, st.TempPhase)
	require.InDelta(t, 36.4, st.Baseline.Value, 1e-9)

	elevatedOn := riseUntilElevated(t, e, clk, next)
	st, err = e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.NotNil(t, st.ElevationStart)
	require.Equal(t, elevatedOn.AddDate(0, 0, -2), *st.ElevationStart)
	require.Greater(t, st.Temperature.Value-st.Baseline.Value, DefaultElevationMinDelta)

	_ = recordDays(t, e, clk, elevatedOn.AddDate(0, 0, 1), 36.9)
	again, err := e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, *st.ElevationStart, *again.ElevationStart, "the rise is dated once per cycle")
}

func TestSameDayReadingsFoldIntoDailyMean(t *testing.T) {
	e, _, clk := newTestEngine(t)
	ctx := context.Background()

	next := recordDays(t, e, clk, date(2026, 3, 4), 36.3, 36.3, 36.3, 36.3, 36.3, 36.3)
	before, err := e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, TempLow, before.TempPhase)

	var st CycleStats
	for i := 0; i < 4; i++ {
		clk.Set(next.Add(time.Duration(7+i) * time.Hour))
		st, err = e.RecordTemperatureObservation(ctx, "u", 37.2)
		require.NoError(t, err)
	}
	require.Equal(t, 1, st.ElevatedRun, "four readings on one day are one elevated day")
	require.Equal(t, TempLow, st.TempPhase)
	require.Nil(t, st.ElevationStart)
	require.Equal(t, before.Temperature.Count+1, st.Temperature.Count)
	require.Equal(t, 4, st.TempDay.Count)

	clk.Set(next.Add(20 * time.Hour))
	st, err = e.RecordTemperatureObservation(ctx, "u", 36.3)
	require.NoError(t, err)
	mean := (4*37.2 + 36.3) / 5
	require.InDelta(t, before.Temperature.Fold(mean).Value, st.Temperature.Value, 1e-9)
	require.InDelta(t, before.Baseline.Fold(mean).Value, st.Baseline.Value, 1e-9)
}

func TestElevationStartIsFirstElevatedDay(t *testing.T) {
	e, _, clk := newTestEngine(t)

	next := recordDays(t, e, clk, date(2026, 3, 1), 36.3, 36.3, 36.3, 36.3, 36.3, 36.3)
	first := next
	next = recordDays(t, e, clk, next, 37.2)
	// One missed day inside MaxMissingDays keeps the run.
	recordDays(t, e, clk, next.AddDate(0, 0, 1), 37.2, 37.2)

	st, err := e.Snapshot(context.Background(), "u")
	require.NoError(t, err)
	require.Equal(t, TempElevated, st.TempPhase)
	require.Equal(t, first, *st.ElevationStart)
}

func TestLongGapResetsTemperaturePhase(t *testing.T) {
	e, _, clk := newTestEngine(t)
	ctx := context.Background()

	next := recordDays(t, e, clk, date(2026, 3, 1), 36.3, 36.3, 36.3, 36.3, 36.3, 36.3)
	next = recordDays(t, e, clk, next, 37.2, 37.2, 37.2)
	st, err := e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, TempElevated, st.TempPhase)

	afterGap := next.AddDate(0, 0, 40)
	clk.Set(afterGap.Add(7 * time.Hour))
	st, err = e.RecordTemperatureObservation(ctx, "u", 37.2)
	require.NoError(t, err)
	require.Equal(t, TempUnknown, st.TempPhase)
	require.LessOrEqual(t, st.ElevatedRun, 1)

	clk.Set(afterGap.Add(9 * time.Hour))
	st, err = e.RecordTemperatureObservation(ctx, "u", 37.2)
	require.NoError(t, err)
	require.Equal(t, TempUnknown, st.TempPhase, "same day after the gap")

	st, err = e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.NotEqual(t, TempElevated, st.TempPhase)

	recordDays(t, e, clk, afterGap.AddDate(0, 0, 1), 36.3)
	st, err = e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, TempLow, st.TempPhase, "the run restarted at the gap")
}

func TestLutealFromTemperatureRise(t *testing.T) {
	e, _, clk := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 1, 1)})
	require.NoError(t, err)

	next := recordDays(t, e, clk, date(2026, 1, 8), 36.4, 36.4, 36.4, 36.4, 36.4, 36.4)
	riseUntilElevated(t, e, clk, next)

	st, err := e.Snapshot(ctx, "u")
	require.NoError(t, err)
	el := *st.ElevationStart

	nextStart := date(2026, 1, 29)
	st, err = e.RecordPeriod(ctx, "u", PeriodEvent{Start: nextStart})
	require.NoError(t, err)
	require.Equal(t, float64(daysBetween(el, nextStart)+1), st.Luteal.Value)
	require.Nil(t, st.ElevationStart, "consumed by the new cycle")
	require.Equal(t, 28.0, st.Cycle.Value)
}

func TestRecordLutealObservationBounds(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	for _, n := range []int{0, 6, 21} {
		_, err := e.RecordLutealObservation(ctx, "u", n)
		require.ErrorIs(t, err, ErrInvalidObservation)
	}
	st, err := e.RecordLutealObservation(ctx, "u", 13)
	require.NoError(t, err)
	require.Equal(t, 13.0, st.Luteal.Value)
}

func TestPredictNextPeriod(t *testing.T) {
	ctx := context.Background()

	t.Run("no anchor", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		p, err := e.PredictNextPeriod(ctx, "u")
		require.NoError(t, err)
		require.Nil(t, p)
	})

	t.Run("population default", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		end := date(2026, 1, 5)
		_, err := e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 1, 1), End: &end})
		require.NoError(t, err)

		p, err := e.PredictNextPeriod(ctx, "u")
		require.NoError(t, err)
		require.Equal(t, ConfidencePopulation, p.Confidence)
		require.Equal(t, date(2026, 1, 29), p.Start)
		require.Equal(t, date(2026, 2, 2), p.End)
	})

	t.Run("cycle based", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		_, err := e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 1, 1)})
		require.NoError(t, err)
		_, err = e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 1, 31)})
		require.NoError(t, err)

		p, err := e.PredictNextPeriod(ctx, "u")
		require.NoError(t, err)
		require.Equal(t, ConfidenceCycle, p.Confidence)
		require.Equal(t, date(2026, 3, 2), p.Start)
		require.Equal(t, p.Start, p.End, "no period length known")
	})

	t.Run("luteal based", func(t *testing.T) {
		e, _, clk := newTestEngine(t)
		_, err := e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 1, 1)})
		require.NoError(t, err)
		_, err = e.RecordLutealObservation(ctx, "u", 12)
		require.NoError(t, err)

		next := recordDays(t, e, clk, date(2026, 1, 8), 36.4, 36.4, 36.4, 36.4, 36.4, 36.4)
		riseUntilElevated(t, e, clk, next)
		st, err := e.Snapshot(ctx, "u")
		require.NoError(t, err)

		p, err := e.PredictNextPeriod(ctx, "u")
		require.NoError(t, err)
		require.Equal(t, ConfidenceLuteal, p.Confidence)
		require.Equal(t, st.ElevationStart.AddDate(0, 0, 11), p.Start)
	})

	t.Run("unstable", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		_, err := e.RecordPeriod(ctx, "u", PeriodEvent{Start: date(2026, 1, 1)})
		require.NoError(t, err)
		for _, n := range []int{28, 28, 28, 70} {
			_, err = e.RecordCycleObservation(ctx, "u", n)
			require.NoError(t, err)
		}

		p, err := e.PredictNextPeriod(ctx, "u")
		require.NoError(t, err)
		require.Nil(t, p)
	})
}

func TestSameUserUpdatesSerialize(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := e.RecordPeriodObservation(ctx, "u", 5); err != nil {
				t.Errorf("record: %v", err)
			}
		}()
	}
	wg.Wait()

	st, err := e.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, int64(n), st.Period.Count)
	require.Equal(t, int64(n), st.Version)
	require.Equal(t, 0, e.locks.size())
}

func TestDifferentUsersDoNotContend(t *testing.T) {
	e, _, _ := newTestEngine(t)

	unlock := e.locks.lock("alice")
	defer unlock()

	done := make(chan error, 1)
	go func() {
		_, err := e.RecordPeriodObservation(context.Background(), "bob", 5)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bob blocked behind alice's lock")
	}
}

type failingRepo struct {
	*MemoryRepository
	err error
}

func (r failingRepo) Save(context.Context, *CycleStats) error { return r.err }

func TestSaveFailureKeepsPreviousState(t *testing.T) {
	repo := NewMemoryRepository()
	ok, err := NewEngine(DefaultConfig(), repo)
	require.NoError(t, err)
	_, err = ok.RecordPeriodObservation(context.Background(), "u", 5)
	require.NoError(t, err)

	boom := errors.New("boom")
	bad, err := NewEngine(DefaultConfig(), failingRepo{MemoryRepository: repo, err: boom})
	require.NoError(t, err)
	_, err = bad.RecordPeriodObservation(context.Background(), "u", 9)
	require.ErrorIs(t, err, boom)

	st, err := ok.Snapshot(context.Background(), "u")
	require.NoError(t, err)
	require.Equal(t, 5.0, st.Period.Value)
}

func TestMemoryRepositoryDetectsConflicts(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	st := newCycleStats("u", DefaultConfig())
	st.Version = 2
	require.ErrorIs(t, repo.Save(ctx, &st), ErrConflict)

	st.Version = 1
	require.NoError(t, repo.Save(ctx, &st))
	require.ErrorIs(t, repo.Save(ctx, &st), ErrConflict, "stale writer")
}

func TestNewEngineValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alpha = 0
	_, err := NewEngine(cfg, NewMemoryRepository())
	require.Error(t, err)

	_, err = NewEngine(DefaultConfig(), nil)
	require.Error(t, err)
}
