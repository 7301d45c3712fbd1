package stats

import (
	"errors"
	"math"
)

// Domain assumptions. Each is overridable through [Config].
const (
	// DefaultAlpha weights the newest observation at 30%, roughly a six-cycle memory.
	DefaultAlpha = 0.3
	// DefaultBaselineSpanDays is the memory of the slow temperature baseline.
	DefaultBaselineSpanDays = 30

	// DefaultLutealPhaseDays is the assumed distance from ovulation to the next period start.
	DefaultLutealPhaseDays = 14
	// DefaultFertileDaysBeforeOvulation is the sperm-survival side of the fertile window.
	DefaultFertileDaysBeforeOvulation = 5
	// DefaultFertileDaysAfterOvulation is the egg-survival side of the fertile window.
	DefaultFertileDaysAfterOvulation = 1

	DefaultMinPlausibleCycle   = 15
	DefaultMaxPlausibleCycle   = 90
	DefaultLongCycleMultiplier = 1.5
	DefaultMinCyclesForStable  = 3

	DefaultMinLutealDays = 7
	DefaultMaxLutealDays = 20

	DefaultMinPointsForBaseline  = 6
	DefaultElevationMinDelta     = 0.2
	DefaultElevationDaysRequired = 3
	DefaultMinCelsius            = 30.0
	DefaultMaxCelsius            = 45.0
	// DefaultMaxMissingDays is the longest gap between reading days that keeps the phase.
	DefaultMaxMissingDays = 3

	// DefaultPopulationCycleDays is used for low-confidence predictions before any cycle data.
	DefaultPopulationCycleDays = 28
)

// Config tunes the statistics engine.
type Config struct {
	// Alpha is the smoothing factor for period, cycle, luteal and smoothed temperature estimates.
	Alpha float64
	// BaselineAlpha is the smoothing factor of the slow temperature baseline.
	BaselineAlpha float64

	LutealPhaseDays            int
	FertileDaysBeforeOvulation int
	FertileDaysAfterOvulation  int

	// Cycle observations outside [MinPlausibleCycle, MaxPlausibleCycle] are outliers. Zero
	// disables the respective bound.
	MinPlausibleCycle int
	MaxPlausibleCycle int
	// Once MinCyclesForStable cycles are known, a cycle longer than LongCycleMultiplier times the
	// estimate is an outlier. Zero disables the check.
	LongCycleMultiplier float64
	MinCyclesForStable  int

	MinLutealDays int
	MaxLutealDays int

	MinPointsForBaseline  int
	ElevationMinDelta     float64
	ElevationDaysRequired int
	MinCelsius            float64
	MaxCelsius            float64
	// A reading more than MaxMissingDays after the previous reading day restarts the elevated
	// run and reports TempUnknown for that day. Zero disables the check.
	MaxMissingDays int

	PopulationCycleDays int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:                      DefaultAlpha,
		BaselineAlpha:              AlphaFromSpan(DefaultBaselineSpanDays),
		LutealPhaseDays:            DefaultLutealPhaseDays,
		FertileDaysBeforeOvulation: DefaultFertileDaysBeforeOvulation,
		FertileDaysAfterOvulation:  DefaultFertileDaysAfterOvulation,
		MinPlausibleCycle:          DefaultMinPlausibleCycle,
		MaxPlausibleCycle:          DefaultMaxPlausibleCycle,
		LongCycleMultiplier:        DefaultLongCycleMultiplier,
		MinCyclesForStable:         DefaultMinCyclesForStable,
		MinLutealDays:              DefaultMinLutealDays,
		MaxLutealDays:              DefaultMaxLutealDays,
		MinPointsForBaseline:       DefaultMinPointsForBaseline,
		ElevationMinDelta:          DefaultElevationMinDelta,
		ElevationDaysRequired:      DefaultElevationDaysRequired,
		MinCelsius:                 DefaultMinCelsius,
		MaxCelsius:                 DefaultMaxCelsius,
		MaxMissingDays:             DefaultMaxMissingDays,
		PopulationCycleDays:        DefaultPopulationCycleDays,
	}
}

// Validate checks internal consistency.
func (c Config) Validate() error {
	if !validAlpha(c.Alpha) {
		return errors.New("stats: Alpha must be in (0, 1]")
	}
	if !validAlpha(c.BaselineAlpha) {
		return errors.New("stats: BaselineAlpha must be in (0, 1]")
	}
	if c.LutealPhaseDays <= 0 {
		return errors.New("stats: LutealPhaseDays must be > 0")
	}
	if c.FertileDaysBeforeOvulation < 0 || c.FertileDaysAfterOvulation < 0 {
		return errors.New("stats: fertile window offsets must be >= 0")
	}
	if c.MinPlausibleCycle < 0 || c.MaxPlausibleCycle < 0 {
		return errors.New("stats: plausible cycle bounds must be >= 0")
	}
	if c.MaxPlausibleCycle > 0 && c.MinPlausibleCycle > c.MaxPlausibleCycle {
		return errors.New("stats: MinPlausibleCycle exceeds MaxPlausibleCycle")
	}
	if c.LongCycleMultiplier != 0 && c.LongCycleMultiplier <= 1 {
		return errors.New("stats: LongCycleMultiplier must be 0 or > 1")
	}
	if c.MinCyclesForStable < 1 {
		return errors.New("stats: MinCyclesForStable must be >= 1")
	}
	if c.MinLutealDays <= 0 || c.MaxLutealDays < c.MinLutealDays {
		return errors.New("stats: invalid luteal bounds")
	}
	if c.MinPointsForBaseline < 1 || c.ElevationDaysRequired < 1 {
		return errors.New("stats: temperature phase thresholds must be >= 1")
	}
	if c.ElevationMinDelta <= 0 {
		return errors.New("stats: ElevationMinDelta must be > 0")
	}
	if c.MinCelsius <= 0 || c.MaxCelsius <= c.MinCelsius {
		return errors.New("stats: invalid Celsius bounds")
	}
	if c.MaxMissingDays < 0 {
		return errors.New("stats: MaxMissingDays must be >= 0")
	}
	if c.PopulationCycleDays <= 0 {
		return errors.New("stats: PopulationCycleDays must be > 0")
	}
	return nil
}

func validAlpha(a float64) bool {
	return !math.IsNaN(a) && a > 0 && a <= 1
}
