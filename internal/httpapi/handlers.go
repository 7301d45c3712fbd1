package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/cyclecore"
	"github.com/MrEthical07/cyclecore/middleware"
	"github.com/MrEthical07/cyclecore/stats"
)

const (
	dateLayout   = "2006-01-02"
	maxBodyBytes = 1 << 16
)

type handler struct {
	engine        *cyclecore.Engine
	logger        *slog.Logger
	secureCookies bool
	cookieTTL     time.Duration
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type periodRequest struct {
	Start string  `json:"start"`
	End   *string `json:"end,omitempty"`
}

type temperatureRequest struct {
	Celsius *float64 `json:"celsius"`
}

// accessResponse carries the access token. The refresh token travels only in its cookie.
type accessResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	TokenType       string    `json:"token_type"`
}

// ErrorResponseBody is the body of every non-2xx JSON response.
type ErrorResponseBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	pair, err := h.engine.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	h.writePair(w, pair)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	pair, err := h.engine.Rotate(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, cyclecore.ErrUnauthorized) {
			h.clearRefreshCookie(w)
		}
		h.writeAuthError(w, r, err)
		return
	}
	h.writePair(w, pair)
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	st, err := h.engine.CycleStats(r.Context(), userID)
	if err != nil {
		h.writeStatsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) recordPeriod(w http.ResponseWriter, r *http.Request) {
	var body periodRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	ev, err := body.event()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_OBSERVATION", err.Error())
		return
	}

	userID, _ := middleware.UserIDFromContext(r.Context())
	st, err := h.engine.RecordPeriod(r.Context(), userID, ev)
	if err != nil {
		h.writeStatsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) recordTemperature(w http.ResponseWriter, r *http.Request) {
	var body temperatureRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Celsius == nil {
		writeError(w, http.StatusBadRequest, "INVALID_OBSERVATION", "celsius is required")
		return
	}

	userID, _ := middleware.UserIDFromContext(r.Context())
	st, err := h.engine.RecordTemperatureObservation(r.Context(), userID, *body.Celsius)
	if err != nil {
		h.writeStatsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) fertileWindow(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	window, err := h.engine.EstimateFertileWindow(r.Context(), userID)
	if err != nil {
		h.writeStatsError(w, r, err)
		return
	}
	if window == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

func (h *handler) nextPeriod(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	p, err := h.engine.PredictNextPeriod(r.Context(), userID)
	if err != nil {
		h.writeStatsError(w, r, err)
		return
	}
	if p == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (b periodRequest) event() (stats.PeriodEvent, error) {
	start, err := time.Parse(dateLayout, b.Start)
	if err != nil {
		return stats.PeriodEvent{}, errors.New("start must be YYYY-MM-DD")
	}
	ev := stats.PeriodEvent{Start: start}
	if b.End != nil {
		end, err := time.Parse(dateLayout, *b.End)
		if err != nil {
			return stats.PeriodEvent{}, errors.New("end must be YYYY-MM-DD")
		}
		ev.End = &end
	}
	return ev, nil
}

func (h *handler) writePair(w http.ResponseWriter, pair cyclecore.TokenPair) {
	maxAge := int(h.cookieTTL.Seconds())
	if maxAge <= 0 {
		maxAge = int(time.Until(pair.RefreshExpiresAt).Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, accessResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt,
		TokenType:       pair.TokenType,
	})
}

func (h *handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *handler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cyclecore.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	case errors.Is(err, cyclecore.ErrLoginRateLimited):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many failed attempts")
	case errors.Is(err, cyclecore.ErrLoginDisabled):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "password login is not enabled")
	case errors.Is(err, cyclecore.ErrRevocationStoreUnavailable):
		h.logger.ErrorContext(r.Context(), "auth backend unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "try again later")
	default:
		h.logger.ErrorContext(r.Context(), "auth request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func (h *handler) writeStatsError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cyclecore.ErrInvalidObservation):
		writeError(w, http.StatusBadRequest, "INVALID_OBSERVATION", err.Error())
	case errors.Is(err, stats.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", "statistics changed concurrently, retry")
	default:
		h.logger.ErrorContext(r.Context(), "stats request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "malformed JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponseBody{Code: code, Message: message})
}
