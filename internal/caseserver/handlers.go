package caseserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/session"
	"github.com/dropforge/dropforge/internal/game/settle"
)

type openRequest struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

type itemPayload struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
	Tier  string `json:"tier"`
}

type outcomePayload struct {
	Index        int         `json:"index"`
	OutcomeID    string      `json:"outcome_id"`
	Item         itemPayload `json:"item"`
	ForcedByPity bool        `json:"forced_by_pity"`
	Throttled    bool        `json:"throttled"`
	CommittedAt  time.Time   `json:"committed_at"`
	Settled      bool        `json:"settled"`
	Decision     string      `json:"decision,omitempty"`
	Payout       *int64      `json:"payout,omitempty"`
	SettledAt    *time.Time  `json:"settled_at,omitempty"`
}

type sessionPayload struct {
	SessionID string           `json:"session_id"`
	UserID    string           `json:"user_id"`
	CaseID    string           `json:"case_id"`
	State     string           `json:"state"`
	Charged   int64            `json:"charged"`
	CreatedAt time.Time        `json:"created_at"`
	Outcomes  []outcomePayload `json:"outcomes"`
}

type spinPayload struct {
	Entries     []itemPayload `json:"entries"`
	WinningSlot int           `json:"winning_slot"`
}

type settlementPayload struct {
	OutcomeID string    `json:"outcome_id"`
	Decision  string    `json:"decision"`
	Payout    int64     `json:"payout"`
	SettledAt time.Time `json:"settled_at"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func (s *Service) handleOpenCase(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["caseID"]

	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	sess, err := s.manager.Open(r.Context(), req.UserID, caseID, req.Count)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionPayload(sess))
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Get(mux.Vars(r)["sessionID"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionPayload(sess))
}

func (s *Service) handleGetSpins(w http.ResponseWriter, r *http.Request) {
	spins, err := s.manager.SpinSequences(mux.Vars(r)["sessionID"])
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	payload := make([]spinPayload, len(spins))
	for i, spin := range spins {
		payload[i] = spinPayload{
			Entries:     toItemPayloads(spin.Entries),
			WinningSlot: spin.WinningSlot,
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Service) handleDecision(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["sessionID"]

	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid outcome index")
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	decision, err := settle.ParseDecision(req.Decision)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.manager.SubmitDecision(r.Context(), sessionID, index, decision)
	if errors.Is(err, settle.ErrAlreadySettled) {
		// The recorded result accompanies the conflict so clients can
		// reconcile a lost race.
		writeJSON(w, http.StatusConflict, toSettlementPayload(result))
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toSettlementPayload(result))
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Health(r.Context(), 2*time.Second); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps domain sentinel errors onto HTTP status codes.
func (s *Service) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, settle.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient funds")
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrCaseNotFound),
		errors.Is(err, settle.ErrOutcomeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidOpeningCount),
		errors.Is(err, session.ErrOutcomeIndexOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, settle.ErrLedgerUnavailable):
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toItemPayloads(entries []loot.LootEntry) []itemPayload {
	out := make([]itemPayload, len(entries))
	for i, e := range entries {
		out[i] = itemPayload{Name: e.Name, Value: e.Value, Tier: string(e.Tier)}
	}
	return out
}

func toSessionPayload(sess session.Session) sessionPayload {
	outcomes := make([]outcomePayload, len(sess.Outcomes))
	for i, st := range sess.Outcomes {
		p := outcomePayload{
			Index:     i,
			OutcomeID: st.Outcome.ID.String(),
			Item: itemPayload{
				Name:  st.Outcome.Entry.Name,
				Value: st.Outcome.Entry.Value,
				Tier:  string(st.Outcome.Entry.Tier),
			},
			ForcedByPity: st.Outcome.ForcedByPity,
			Throttled:    st.Outcome.Throttled,
			CommittedAt:  st.Outcome.CommittedAt,
			Settled:      st.Settled,
		}
		if st.Settled {
			p.Decision = string(st.Result.Decision)
			payout := st.Result.Payout
			p.Payout = &payout
			settledAt := st.Result.SettledAt
			p.SettledAt = &settledAt
		}
		outcomes[i] = p
	}
	return sessionPayload{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		CaseID:    sess.CaseID,
		State:     string(sess.State),
		Charged:   sess.Charged,
		CreatedAt: sess.CreatedAt,
		Outcomes:  outcomes,
	}
}

func toSettlementPayload(result settle.Result) settlementPayload {
	return settlementPayload{
		OutcomeID: result.OutcomeID.String(),
		Decision:  string(result.Decision),
		Payout:    result.Payout,
		SettledAt: result.SettledAt,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Error: message})
}
