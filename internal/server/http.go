package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"BeliefMarket/internal/apperr"
	"BeliefMarket/internal/core"
	"BeliefMarket/internal/observability"
	"BeliefMarket/internal/persistence"
	"BeliefMarket/internal/query"
	"BeliefMarket/internal/ws"
)

// Server is the HTTP/JSON API over the engine and query service.
type Server struct {
	engine  *core.Engine
	query   *query.Service
	hub     *ws.Hub
	health  *observability.HealthChecker
	history *persistence.EventLogWriter // nil when the event log is absent
	secret  []byte
	log     zerolog.Logger
}

func New(
	engine *core.Engine,
	qs *query.Service,
	hub *ws.Hub,
	health *observability.HealthChecker,
	history *persistence.EventLogWriter,
	secret string,
	log zerolog.Logger,
) *Server {
	return &Server{
		engine:  engine,
		query:   qs,
		hub:     hub,
		health:  health,
		history: history,
		secret:  []byte(secret),
		log:     log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Post("/api/auth/token", s.issueToken)
	r.Get("/ws", s.hub.HandleWS)

	// Public reads
	r.Get("/api/markets", s.listMarkets)
	r.Get("/api/markets/{key}", s.getMarket)
	r.Get("/api/markets/{key}/events", s.marketEvents)

	// Authenticated
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/api/users", s.initUser)
		r.Post("/api/users/invitor", s.setInvitor)
		r.Get("/api/users/me", s.myProfile)

		r.Post("/api/markets", s.createMarket)
		r.Post("/api/markets/{key}/buy", s.buy)
		r.Post("/api/markets/{key}/sell", s.sell)
		r.Post("/api/markets/{key}/redeem", s.redeem)
		r.Post("/api/markets/{key}/peg", s.claimPeg)
		r.Post("/api/markets/{key}/fees", s.withdrawFees)
		r.Get("/api/markets/{key}/positions", s.myPositions)

		r.Post("/api/admin/markets/{key}/resolve", s.resolve)
		r.Post("/api/admin/pause", s.pause)
		r.Post("/api/admin/unpause", s.unpause)
	})

	return r
}

// ── Auth ─────────────────────────────────────────────

// issueToken signs a bearer token for the supplied subject. Identity proofs
// (wallet signature, upstream SSO) live outside this service; the token is
// what binds subsequent calls to one account string.
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		jsonErr(w, http.StatusBadRequest, "subject required")
		return
	}

	claims := jwt.MapClaims{
		"sub": req.Subject,
		"exp": s.engine.Clock().Now().Add(72 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "token signing failed")
		return
	}
	json200(w, map[string]string{"token": token})
}

type ctxKey string

const ctxSubject ctxKey = "subject"

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			jsonErr(w, http.StatusUnauthorized, "missing token")
			return
		}
		token, err := jwt.Parse(strings.TrimPrefix(auth, "Bearer "), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return s.secret, nil
		})
		if err != nil || !token.Valid {
			jsonErr(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			jsonErr(w, http.StatusUnauthorized, "invalid claims")
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			jsonErr(w, http.StatusUnauthorized, "invalid subject")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxSubject, sub)))
	})
}

func subject(r *http.Request) string {
	sub, _ := r.Context().Value(ctxSubject).(string)
	return sub
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ── Users ────────────────────────────────────────────

func (s *Server) initUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReferralCode string `json:"referral_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.engine.InitUser(r.Context(), subject(r), req.ReferralCode); err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, map[string]string{"owner": subject(r), "referral_code": req.ReferralCode})
}

func (s *Server) setInvitor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReferralCode string `json:"referral_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.engine.SetInvitor(r.Context(), subject(r), req.ReferralCode); err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, map[string]string{"status": "ok"})
}

func (s *Server) myProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.query.Profile(subject(r))
	if err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, p)
}

// ── Markets ──────────────────────────────────────────

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NumOutcomes   uint8    `json:"num_outcomes"`
		OutcomeLabels []string `json:"outcome_labels"`
		Tags          []string `json:"tags"`
		TradingFeeBps uint16   `json:"trading_fee_bps"`
		ResolveAt     int64    `json:"resolve_at"` // unix seconds
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	m, err := s.engine.CreateMarket(r.Context(), subject(r), core.CreateParams{
		NumOutcomes:   req.NumOutcomes,
		OutcomeLabels: req.OutcomeLabels,
		Tags:          req.Tags,
		TradingFeeBps: req.TradingFeeBps,
		ResolveAt:     time.Unix(req.ResolveAt, 0).UTC(),
	})
	if err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, map[string]string{"key": m.Key})
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	json200(w, s.query.Markets(s.engine.Clock().Now()))
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.query.Market(chi.URLParam(r, "key"), s.engine.Clock().Now())
	if err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, m)
}

func (s *Server) marketEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		jsonErr(w, http.StatusNotFound, "event history not available")
		return
	}
	rows, err := s.history.Events(r.Context(), chi.URLParam(r, "key"), 200)
	if err != nil {
		s.log.Error().Err(err).Msg("event history query failed")
		jsonErr(w, http.StatusInternalServerError, "internal error")
		return
	}

	type entry struct {
		EventID    string          `json:"event_id"`
		Type       string          `json:"type"`
		Actor      string          `json:"actor,omitempty"`
		Payload    json.RawMessage `json:"payload"`
		OccurredAt time.Time       `json:"occurred_at"`
	}
	out := make([]entry, len(rows))
	for i, row := range rows {
		out[i] = entry{
			EventID:    row.EventID,
			Type:       row.EventType,
			Actor:      row.Actor,
			Payload:    row.Payload,
			OccurredAt: row.Timestamp,
		}
	}
	json200(w, out)
}

// ── Trading ──────────────────────────────────────────

func (s *Server) buy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome uint8  `json:"outcome"`
		Amount  uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	q, err := s.engine.Buy(r.Context(), subject(r), chi.URLParam(r, "key"), req.Outcome, req.Amount)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, map[string]uint64{"fee": q.Fee, "net": q.Net, "shares": q.Shares})
}

func (s *Server) sell(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome uint8  `json:"outcome"`
		Shares  uint64 `json:"shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	q, err := s.engine.Sell(r.Context(), subject(r), chi.URLParam(r, "key"), req.Outcome, req.Shares)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, map[string]uint64{"gross": q.Gross, "fee": q.Fee, "net": q.Net})
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Shares uint64 `json:"shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	payout, err := s.engine.Redeem(r.Context(), subject(r), chi.URLParam(r, "key"), req.Shares)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, map[string]uint64{"payout": payout})
}

func (s *Server) claimPeg(w http.ResponseWriter, r *http.Request) {
	amount, err := s.engine.ClaimPeg(r.Context(), subject(r), chi.URLParam(r, "key"))
	if err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, map[string]uint64{"amount": amount})
}

func (s *Server) withdrawFees(w http.ResponseWriter, r *http.Request) {
	split, err := s.engine.WithdrawFees(r.Context(), subject(r), chi.URLParam(r, "key"))
	if err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, map[string]uint64{
		"creator":  split.Creator,
		"invitor":  split.Invitor,
		"platform": split.Platform,
	})
}

func (s *Server) myPositions(w http.ResponseWriter, r *http.Request) {
	held, err := s.query.Positions(r.Context(), subject(r), chi.URLParam(r, "key"))
	if err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, held)
}

// ── Admin ────────────────────────────────────────────

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome uint8 `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.engine.Resolve(r.Context(), subject(r), chi.URLParam(r, "key"), req.Outcome); err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, map[string]string{"status": "resolved"})
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(r.Context(), subject(r)); err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, map[string]string{"status": "paused"})
}

func (s *Server) unpause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Unpause(r.Context(), subject(r)); err != nil {
		writeAppErr(w, err)
		return
	}
	json200(w, map[string]string{"status": "running"})
}

// ── Helpers ──────────────────────────────────────────

// writeAppErr maps the typed error taxonomy onto HTTP statuses.
func writeAppErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := apperr.KindOf(err); ok {
		switch kind {
		case apperr.KindPaused:
			status = http.StatusServiceUnavailable
		case apperr.KindUnauthorized:
			status = http.StatusForbidden
		case apperr.KindInvalidParameter:
			status = http.StatusBadRequest
		case apperr.KindInvalidState:
			status = http.StatusConflict
		case apperr.KindInsufficientBalance:
			status = http.StatusBadRequest
		case apperr.KindOverflow:
			status = http.StatusUnprocessableEntity
		case apperr.KindNotFound:
			status = http.StatusNotFound
		}
	}
	var appErr *apperr.Error
	msg := "internal error"
	if errors.As(err, &appErr) {
		msg = appErr.Error()
	}
	jsonErr(w, status, msg)
}

func json200(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
