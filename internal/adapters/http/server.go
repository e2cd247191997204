package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"peertrust/internal/domain"
	"peertrust/internal/services/reputation"
)

// Server exposes the trust core over HTTP for the node's peer-selection and
// settlement components.
type Server struct {
	rep *reputation.Service
	log *zap.Logger
}

func New(rep *reputation.Service, log *zap.Logger) *Server {
	return &Server{rep: rep, log: log}
}

// Routes returns the chi router for the service surface.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	r.Post("/verdicts", s.postVerdict)
	r.Post("/payments/validate", s.postPaymentValidate)
	r.Get("/analytics", s.getAnalytics)

	r.Route("/peers/{peerID}", func(r chi.Router) {
		r.Get("/score", s.getScore)
		r.Get("/blacklisted", s.getBlacklisted)
		r.Get("/summary", s.getSummary)
		r.Get("/blacklist", s.getBlacklistEntry)
		r.Post("/blacklist", s.postBlacklist)
		r.Delete("/blacklist", s.deleteBlacklist)
	})
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) postVerdict(w http.ResponseWriter, r *http.Request) {
	var v domain.TransactionVerdict
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed verdict")
		return
	}
	if err := s.rep.SubmitVerdict(r.Context(), v); err != nil {
		s.writeRejection(w, err)
		return
	}
	status := "confirmed"
	if v.PaymentBacked() {
		status = "pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
}

func (s *Server) postPaymentValidate(w http.ResponseWriter, r *http.Request) {
	var m domain.SignedTransactionMessage
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payment message")
		return
	}
	if err := s.rep.ValidatePayment(r.Context(), m); err != nil {
		s.writeRejection(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getScore(w http.ResponseWriter, r *http.Request) {
	peerID := chi.URLParam(r, "peerID")
	score, level := s.rep.GetScore(peerID)
	writeJSON(w, http.StatusOK, map[string]any{
		"peer_id":     peerID,
		"score":       score,
		"trust_level": level,
	})
}

func (s *Server) getBlacklisted(w http.ResponseWriter, r *http.Request) {
	peerID := chi.URLParam(r, "peerID")
	writeJSON(w, http.StatusOK, map[string]any{
		"peer_id":     peerID,
		"blacklisted": s.rep.IsBlacklisted(peerID),
	})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rep.Summary(chi.URLParam(r, "peerID")))
}

func (s *Server) getBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.rep.BlacklistEntry(chi.URLParam(r, "peerID"))
	if !ok {
		writeError(w, http.StatusNotFound, "peer is not blacklisted")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) postBlacklist(w http.ResponseWriter, r *http.Request) {
	peerID := chi.URLParam(r, "peerID")
	var body struct {
		Reason   string  `json:"reason"`
		Evidence *string `json:"evidence,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}
	if err := s.rep.BlacklistPeer(r.Context(), peerID, body.Reason, body.Evidence); err != nil {
		s.writeRejection(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) deleteBlacklist(w http.ResponseWriter, r *http.Request) {
	if err := s.rep.UnblacklistPeer(r.Context(), chi.URLParam(r, "peerID")); err != nil {
		s.writeRejection(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.rep.GetAnalytics())
}

func (s *Server) writeRejection(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrDuplicateVerdict), errors.Is(err, domain.ErrDuplicateNonce):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, domain.ErrMissingEvidence), errors.Is(err, domain.ErrDeadlineElapsed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotBlacklisted):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
