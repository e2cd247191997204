package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"peertrust/internal/adapters/keyring"
	"peertrust/internal/adapters/memory"
	"peertrust/internal/config"
	"peertrust/internal/domain"
	"peertrust/internal/services/analytics"
	"peertrust/internal/services/blacklist"
	"peertrust/internal/services/reputation"
	"peertrust/internal/services/scoring"
	"peertrust/internal/services/validator"
	"peertrust/internal/workers/confirmer"
)

type stubObserver struct{}

func (stubObserver) Confirmations(context.Context, string) (int, error) { return 0, nil }

type apiHarness struct {
	srv    *httptest.Server
	signer *keyring.Signer

	mu    sync.Mutex
	seqNo uint64
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	cfg := config.Reputation{
		ConfirmationThreshold:  3,
		ConfirmationTimeout:    time.Hour,
		MaturityThreshold:      3,
		MaxVerdictSize:         1024,
		CacheTTL:               time.Minute,
		BlacklistMode:          config.BlacklistHybrid,
		BlacklistAutoEnabled:   true,
		BlacklistScoreMax:      0.2,
		BlacklistBadVerdicts:   3,
		BlacklistRetentionDays: 30,
	}
	log := zap.NewNop()

	signer, err := keyring.NewSigner("issuer-1")
	require.NoError(t, err)
	ring := keyring.New()
	ring.Register(signer.ID, signer.Public())

	store := memory.New()
	engine := scoring.NewEngine(cfg, store, log)
	blm := blacklist.NewManager(cfg, store, log)
	engine.SetObserver(blm)
	vld := validator.New(ring, store, cfg, log)
	tracker := confirmer.NewTracker(stubObserver{}, engine, cfg, log)
	svc := reputation.New(vld, tracker, engine, blm, analytics.New(engine, blm), log)

	srv := httptest.NewServer(New(svc, log).Routes())
	t.Cleanup(srv.Close)
	return &apiHarness{srv: srv, signer: signer}
}

func (h *apiHarness) signedVerdict(t *testing.T, target string, outcome domain.VerdictOutcome) domain.TransactionVerdict {
	t.Helper()
	h.mu.Lock()
	h.seqNo++
	seq := h.seqNo
	h.mu.Unlock()

	v := domain.TransactionVerdict{
		TargetID:      target,
		Outcome:       outcome,
		IssuedAt:      time.Now().UTC(),
		IssuerID:      h.signer.ID,
		IssuerSeqNo:   seq,
		EvidenceBlobs: [][]byte{[]byte("transfer log")},
	}
	payload, err := domain.VerdictSignable(v)
	require.NoError(t, err)
	v.IssuerSig = h.signer.Sign(payload)
	return v
}

func (h *apiHarness) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(h.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *apiHarness) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestPostVerdictAccepted(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/verdicts", h.signedVerdict(t, "peer-a", domain.OutcomeGood))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "confirmed", body["status"])

	var score struct {
		Score      float64 `json:"score"`
		TrustLevel string  `json:"trust_level"`
	}
	getResp := h.get(t, "/peers/peer-a/score", &score)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	require.Greater(t, score.Score, 0.5)
}

func TestPostVerdictBadSignature(t *testing.T) {
	h := newAPIHarness(t)

	v := h.signedVerdict(t, "peer-a", domain.OutcomeGood)
	v.TargetID = "peer-b" // invalidates the signature

	resp := h.post(t, "/verdicts", v)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPostVerdictDuplicateConflict(t *testing.T) {
	h := newAPIHarness(t)

	v := h.signedVerdict(t, "peer-a", domain.OutcomeGood)
	require.Equal(t, http.StatusAccepted, h.post(t, "/verdicts", v).StatusCode)
	require.Equal(t, http.StatusConflict, h.post(t, "/verdicts", v).StatusCode)
}

func TestPostVerdictMalformedBody(t *testing.T) {
	h := newAPIHarness(t)

	resp, err := http.Post(h.srv.URL+"/verdicts", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScoreUnknownPeerIsNeutral(t *testing.T) {
	h := newAPIHarness(t)

	var score struct {
		Score      float64 `json:"score"`
		TrustLevel string  `json:"trust_level"`
	}
	resp := h.get(t, "/peers/stranger/score", &score)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 0.5, score.Score)
	require.Equal(t, "medium", score.TrustLevel)
}

func TestBlacklistLifecycle(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/peers/peer-a/blacklist", map[string]string{"reason": "serving corrupt chunks"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var status struct {
		Blacklisted bool `json:"blacklisted"`
	}
	h.get(t, "/peers/peer-a/blacklisted", &status)
	require.True(t, status.Blacklisted)

	var entry domain.BlacklistEntry
	entryResp := h.get(t, "/peers/peer-a/blacklist", &entry)
	require.Equal(t, http.StatusOK, entryResp.StatusCode)
	require.Equal(t, "serving corrupt chunks", entry.Reason)

	req, err := http.NewRequest(http.MethodDelete, h.srv.URL+"/peers/peer-a/blacklist", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)

	missing := h.get(t, "/peers/peer-a/blacklist", nil)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestBlacklistRequiresReason(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/peers/peer-a/blacklist", map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyticsEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	require.Equal(t, http.StatusAccepted, h.post(t, "/verdicts", h.signedVerdict(t, "peer-a", domain.OutcomeGood)).StatusCode)

	var snap domain.ReputationAnalytics
	resp := h.get(t, "/analytics", &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, snap.TotalPeers)
	require.Len(t, snap.RecentVerdicts, 1)
}
