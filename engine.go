package cyclecore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/cyclecore/internal/audit"
	"github.com/MrEthical07/cyclecore/internal/flows"
	"github.com/MrEthical07/cyclecore/internal/rate"
	"github.com/MrEthical07/cyclecore/jwt"
	"github.com/MrEthical07/cyclecore/keys"
	"github.com/MrEthical07/cyclecore/password"
	"github.com/MrEthical07/cyclecore/revocation"
	"github.com/MrEthical07/cyclecore/stats"
)

// Engine is the assembled token service and statistics engine. Create it with [Builder.Build].
type Engine struct {
	config  Config
	keys    *keys.Provider
	codec   *jwt.Codec
	store   revocation.Store
	limiter *rate.Limiter
	hasher  *password.Hasher
	stats   *stats.Engine
	flows   flows.Service
	metrics *Metrics
	audit   *internalaudit.Dispatcher
	logger  *slog.Logger
	now     func() time.Time
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized() && e.stats != nil
}

// IssuePair mints an access and a refresh token for an already-authenticated user.
func (e *Engine) IssuePair(ctx context.Context, userID string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Issue(ctx, userID)
	if res.Failure != flows.IssueFailureNone {
		e.metricInc(MetricIssueFailure)
		return TokenPair{}, issueError(res.Failure, res.Err)
	}

	e.metricInc(MetricIssueSuccess)
	e.emitAudit(ctx, auditEventIssue, true, res.UserID, res.RefreshID, nil, nil)
	return pairFromIssue(res), nil
}

// VerifyAccess checks an access token and returns its subject. It never consults the revocation
// store. Every failure is [ErrUnauthorized].
func (e *Engine) VerifyAccess(ctx context.Context, token string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}
	res := e.flows.Verify(token)
	if !start.IsZero() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}

	if res.Failure != flows.VerifyFailureNone {
		e.metricInc(MetricVerifyFailure)
		return "", ErrUnauthorized
	}
	e.metricInc(MetricVerifySuccess)
	return res.UserID, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token is consumed before the new
// pair is minted; presenting it again is a replay and fails with [ErrUnauthorized]. When the
// revocation store cannot answer, Rotate fails with [ErrRevocationStoreUnavailable] and issues
// nothing.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}
	res := e.flows.Rotate(ctx, refreshToken)
	if !start.IsZero() {
		e.metrics.Observe(MetricRotateLatency, time.Since(start))
	}

	switch res.Failure {
	case flows.RotateFailureNone:
		e.metricInc(MetricRotateSuccess)
		e.emitAudit(ctx, auditEventRotateSuccess, true, res.UserID, res.ConsumedID, nil, func() map[string]string {
			return map[string]string{"next_jti": res.Issued.RefreshID}
		})
		return pairFromIssue(res.Issued), nil

	case flows.RotateFailureReplay:
		e.metricInc(MetricRotateFailure)
		e.metricInc(MetricReplayDetected)
		e.logger.WarnContext(ctx, "cyclecore: refresh token replay",
			"jti", res.ConsumedID, "user_id", res.UserID, "ip", ClientIPFromContext(ctx))
		e.emitAudit(ctx, auditEventRefreshReplay, false, res.UserID, res.ConsumedID, ErrUnauthorized, nil)
		return TokenPair{}, ErrUnauthorized

	case flows.RotateFailureStoreUnavailable:
		e.metricInc(MetricRotateFailure)
		e.metricInc(MetricRevocationUnavailable)
		err := fmt.Errorf("%w: %v", ErrRevocationStoreUnavailable, res.Err)
		e.emitAudit(ctx, auditEventRevocationDown, false, res.UserID, res.ConsumedID, err, nil)
		return TokenPair{}, err

	case flows.RotateFailureIssue:
		e.metricInc(MetricRotateFailure)
		e.logger.ErrorContext(ctx, "cyclecore: refresh consumed but reissue failed",
			"jti", res.ConsumedID, "user_id", res.UserID, "error", res.Err)
		return TokenPair{}, issueError(flows.IssueFailureEncode, res.Err)

	default:
		e.metricInc(MetricRotateFailure)
		e.emitAudit(ctx, auditEventRotateInvalid, false, res.UserID, res.ConsumedID, ErrUnauthorized, nil)
		return TokenPair{}, ErrUnauthorized
	}
}

// IsRefreshUsed reports whether a valid refresh token has already been consumed. An invalid or
// expired token is [ErrUnauthorized].
func (e *Engine) IsRefreshUsed(ctx context.Context, refreshToken string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}

	claims, err := e.codec.Decode(refreshToken, jwt.KindRefresh)
	if err != nil {
		return false, ErrUnauthorized
	}
	used, err := e.store.IsUsed(ctx, claims.ID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRevocationStoreUnavailable, err)
	}
	return used, nil
}

// Login authenticates username and password against the configured [UserProvider] and issues a
// pair. Wrong passwords, unknown users and disabled accounts are all [ErrUnauthorized].
func (e *Engine) Login(ctx context.Context, username, password string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}
	if !e.flows.LoginEnabled() {
		return TokenPair{}, ErrLoginDisabled
	}

	res := e.flows.Login(ctx, username, password)
	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.UserID, res.Issued.RefreshID, nil, nil)
		return pairFromIssue(res.Issued), nil

	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		if errors.Is(res.Err, rate.ErrRedisUnavailable) {
			e.logger.WarnContext(ctx, "cyclecore: login throttle unavailable", "error", res.Err)
		}
		e.emitAudit(ctx, auditEventLoginRateLimited, false, res.UserID, "", ErrLoginRateLimited, nil)
		return TokenPair{}, ErrLoginRateLimited

	case flows.LoginFailureUserLookup:
		e.metricInc(MetricLoginFailure)
		e.logger.ErrorContext(ctx, "cyclecore: user lookup failed", "error", res.Err)
		return TokenPair{}, fmt.Errorf("cyclecore: user lookup: %w", res.Err)

	case flows.LoginFailureIssue:
		e.metricInc(MetricLoginFailure)
		return TokenPair{}, issueError(res.Issued.Failure, res.Err)

	default:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.UserID, "", ErrUnauthorized, reasonMetadata(res.Reason))
		return TokenPair{}, ErrUnauthorized
	}
}

// HashPassword hashes a password with the configured argon2id parameters, for provisioning users.
func (e *Engine) HashPassword(password string) (string, error) {
	if e == nil || e.hasher == nil {
		return "", ErrEngineNotReady
	}
	return e.hasher.Hash(password)
}

// RecordPeriodObservation folds the length of a closed period into the user's statistics.
func (e *Engine) RecordPeriodObservation(ctx context.Context, userID string, lengthDays int) (stats.CycleStats, error) {
	if !e.ready() {
		return stats.CycleStats{}, ErrEngineNotReady
	}
	return e.observed(e.stats.RecordPeriodObservation(ctx, userID, lengthDays))
}

// RecordCycleObservation folds a cycle length into the user's statistics.
func (e *Engine) RecordCycleObservation(ctx context.Context, userID string, lengthDays int) (stats.CycleStats, error) {
	if !e.ready() {
		return stats.CycleStats{}, ErrEngineNotReady
	}
	return e.observed(e.stats.RecordCycleObservation(ctx, userID, lengthDays))
}

// RecordLutealObservation folds a luteal-phase length into the user's statistics.
func (e *Engine) RecordLutealObservation(ctx context.Context, userID string, lengthDays int) (stats.CycleStats, error) {
	if !e.ready() {
		return stats.CycleStats{}, ErrEngineNotReady
	}
	return e.observed(e.stats.RecordLutealObservation(ctx, userID, lengthDays))
}

// RecordTemperatureObservation folds a basal temperature reading in degrees Celsius.
func (e *Engine) RecordTemperatureObservation(ctx context.Context, userID string, celsius float64) (stats.CycleStats, error) {
	if !e.ready() {
		return stats.CycleStats{}, ErrEngineNotReady
	}
	return e.observed(e.stats.RecordTemperatureObservation(ctx, userID, celsius))
}

// RecordPeriod folds a period row: its start opens a new cycle and a known end adds a period length.
func (e *Engine) RecordPeriod(ctx context.Context, userID string, ev stats.PeriodEvent) (stats.CycleStats, error) {
	if !e.ready() {
		return stats.CycleStats{}, ErrEngineNotReady
	}
	return e.observed(e.stats.RecordPeriod(ctx, userID, ev))
}

// EstimateFertileWindow returns the user's current fertile window, or nil without a cycle estimate.
func (e *Engine) EstimateFertileWindow(ctx context.Context, userID string) (*stats.DateRange, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.stats.EstimateFertileWindow(ctx, userID)
}

// PredictNextPeriod returns the next expected period, or nil when it cannot be predicted.
func (e *Engine) PredictNextPeriod(ctx context.Context, userID string) (*stats.Prediction, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.stats.PredictNextPeriod(ctx, userID)
}

// CycleStats returns a copy of the user's running statistics.
func (e *Engine) CycleStats(ctx context.Context, userID string) (stats.CycleStats, error) {
	if !e.ready() {
		return stats.CycleStats{}, ErrEngineNotReady
	}
	return e.stats.Snapshot(ctx, userID)
}

func (e *Engine) observed(st stats.CycleStats, err error) (stats.CycleStats, error) {
	if err != nil {
		if errors.Is(err, ErrInvalidObservation) {
			e.metricInc(MetricObservationRejected)
		}
		return st, err
	}
	e.metricInc(MetricObservationRecorded)
	return st, nil
}

// Ping checks the revocation backend when it is Redis.
func (e *Engine) Ping(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if p, ok := e.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrRevocationStoreUnavailable, err)
		}
	}
	return nil
}

// Close flushes and stops the audit dispatcher. It is safe to call more than once.
func (e *Engine) Close() {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func issueError(kind flows.IssueFailureKind, err error) error {
	switch kind {
	case flows.IssueFailureInvalidUser:
		return ErrInvalidUserID
	case flows.IssueFailureEncode:
		return fmt.Errorf("%w: sign token: %v", ErrKeyMaterial, err)
	default:
		return fmt.Errorf("cyclecore: mint token id: %w", err)
	}
}

func pairFromIssue(res flows.IssueResult) TokenPair {
	return TokenPair{
		AccessToken:      res.AccessToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
		TokenType:        "Bearer",
	}
}
