package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/moodi-app/moodi/internal/domain"
)

// decodeJSON reads a bounded JSON body into v. It writes a 400 and returns
// false when the body is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		msg := "invalid JSON: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// queryLimit parses ?limit=, returning 0 when absent.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}

// ─── Generators ─────────────────────────────────────────────────────────────

func (s *Server) handleReflection(w http.ResponseWriter, r *http.Request) {
	var p domain.MoodPayload
	if !decodeJSON(w, r, &p) {
		return
	}
	a, err := s.svc.Generator.Generate(r.Context(), p)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	var req domain.NotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := s.svc.Generator.Notification(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReferralCaption(w http.ResponseWriter, r *http.Request) {
	var req domain.CaptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := s.svc.Generator.ReferralCaption(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Moods ──────────────────────────────────────────────────────────────────

// moodRequest is a mood payload plus an optional client timestamp.
type moodRequest struct {
	domain.MoodPayload
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

func (s *Server) handleSubmitMood(w http.ResponseWriter, r *http.Request) {
	var req moodRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var at time.Time
	if req.SubmittedAt != nil {
		at = *req.SubmittedAt
	}
	sub, err := s.svc.Moods.Submit(r.Context(), chi.URLParam(r, "userID"), req.MoodPayload, at)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListMoods(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	moods, err := s.svc.Moods.History(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"moods": moods,
	})
}

// ─── Game State ─────────────────────────────────────────────────────────────

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Game.State(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Game.EnsureState(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := s.svc.Ledger.Balance(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	entries, err := s.svc.Ledger.History(r.Context(), userID, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"balance": balance,
		"entries": entries,
	})
}

// ─── Referrals ──────────────────────────────────────────────────────────────

type createReferralRequest struct {
	InviterUserID string `json:"inviter_user_id"`
	InviteeUserID string `json:"invitee_user_id"`
}

func (s *Server) handleCreateReferral(w http.ResponseWriter, r *http.Request) {
	var req createReferralRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ref, err := s.svc.Game.CreateReferral(r.Context(), req.InviterUserID, req.InviteeUserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (s *Server) handleAcceptReferral(w http.ResponseWriter, r *http.Request) {
	ref, out, err := s.svc.Game.AcceptReferral(r.Context(), chi.URLParam(r, "referralID"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"referral": ref,
		"inviter":  out,
	})
}
