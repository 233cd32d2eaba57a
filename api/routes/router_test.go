package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contemplaapp/contempla-backend/internal/commission"
	"github.com/contemplaapp/contempla-backend/internal/groups"
	"github.com/contemplaapp/contempla-backend/internal/ledger"
	"github.com/contemplaapp/contempla-backend/internal/payments"
	"github.com/contemplaapp/contempla-backend/internal/plans"
	"github.com/contemplaapp/contempla-backend/internal/referral"
	"github.com/contemplaapp/contempla-backend/pkg/config"
	"github.com/contemplaapp/contempla-backend/pkg/db"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
	"github.com/contemplaapp/contempla-backend/pkg/outbox"
)

var routerDDL = []string{`
CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  full_price NUMERIC NOT NULL,
  entry_price NUMERIC NOT NULL,
  capacity INTEGER NOT NULL,
  duration_days INTEGER,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS groups (
  id TEXT PRIMARY KEY,
  plan_id TEXT NOT NULL,
  referral_code TEXT NOT NULL UNIQUE,
  capacity INTEGER NOT NULL,
  state TEXT NOT NULL DEFAULT 'forming',
  next_position INTEGER NOT NULL DEFAULT 1,
  contemplated_participant_id TEXT,
  contemplated_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS participants (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  payment_status TEXT NOT NULL DEFAULT 'pending_payment',
  referred_by TEXT,
  enrolled_at DATETIME,
  paid_at DATETIME,
  updated_at DATETIME,
  UNIQUE (group_id, position)
);`, `
CREATE TABLE IF NOT EXISTS commissions (
  id TEXT PRIMARY KEY,
  source_payment_id TEXT NOT NULL,
  payer_participant_id TEXT NOT NULL,
  payee_user_id TEXT NOT NULL,
  level INTEGER NOT NULL,
  amount NUMERIC NOT NULL,
  created_at DATETIME,
  UNIQUE (source_payment_id, payee_user_id, level)
);`, `
CREATE TABLE IF NOT EXISTS credit_transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  kind TEXT NOT NULL,
  reference_id TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS user_balances (
  user_id TEXT PRIMARY KEY,
  balance NUMERIC NOT NULL DEFAULT 0,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS processed_payment_refs (
  id TEXT PRIMARY KEY,
  external_ref TEXT NOT NULL UNIQUE,
  participant_id TEXT NOT NULL,
  processed_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  UNIQUE (event_type, aggregate_type, aggregate_id)
);`}

func setupRouter(t *testing.T) http.Handler {
	t.Helper()

	client, err := db.New(context.Background(), config.DBConfig{
		DSN:    "file::memory:?cache=shared",
		Driver: "sqlite",
	}, nil)
	require.NoError(t, err)

	conn := client.DB()
	for _, stmt := range routerDDL {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	logg := logger.New(logger.Options{ServiceName: "router-test"})

	planRepo := plans.NewRepository(conn)
	groupRepo := groups.NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)

	planService, err := plans.NewService(planRepo)
	require.NoError(t, err)
	coordinator, err := groups.NewService(client, groupRepo, planRepo, events, logg)
	require.NoError(t, err)
	referralService, err := referral.NewService(groupRepo, coordinator, logg)
	require.NoError(t, err)
	ledgerService, err := ledger.NewService(client, ledger.NewRepository(conn))
	require.NoError(t, err)
	cascade, err := commission.NewService(commission.NewRepository(conn), groupRepo, ledgerService, events,
		config.CommissionConfig{LevelRates: []string{"0.20", "0.10", "0.05"}}, logg)
	require.NoError(t, err)
	paymentService, err := payments.NewService(client, payments.NewRepository(conn), coordinator, groupRepo, planRepo, cascade, ledgerService, nil, logg)
	require.NoError(t, err)

	cfg := &config.Config{App: config.AppConfig{Env: "test", Port: "8080"}}
	return NewRouter(cfg, logg, client, nil, planService, referralService, coordinator, paymentService, ledgerService, cascade)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestHealthLive(t *testing.T) {
	handler := setupRouter(t)

	rec := doJSON(t, handler, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Contempla-Env"))
}

func TestEnrollmentFlow(t *testing.T) {
	handler := setupRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/plans", map[string]any{
		"name":        "Starter",
		"full_price":  "1000.00",
		"entry_price": "100.00",
		"capacity":    3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	planID := decodeData(t, rec)["id"].(string)

	// no referral code: opens a new group with the creator at position 1
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/enrollments", map[string]any{
		"plan_id": planID,
		"user_id": "0e8dcd1c-7f70-4f46-bbc6-6a8bfa1a1111",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	group := data["group"].(map[string]any)
	participant := data["participant"].(map[string]any)
	code := group["referral_code"].(string)
	require.NotEmpty(t, code)
	assert.Equal(t, float64(1), participant["position"])

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/referrals/"+code, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decodeData(t, rec)
	assert.Equal(t, false, resolved["create_new"])

	// joining through the code lands the next position in the same group
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/enrollments", map[string]any{
		"user_id":       "1f9dcd1c-7f70-4f46-bbc6-6a8bfa1a2222",
		"referral_code": code,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	joined := decodeData(t, rec)
	assert.Equal(t, group["id"], joined["group"].(map[string]any)["id"])
	assert.Equal(t, float64(2), joined["participant"].(map[string]any)["position"])

	groupID := group["id"].(string)
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/groups/"+groupID+"/participants", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEnrollmentValidation(t *testing.T) {
	handler := setupRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/enrollments", map[string]any{
		"referral_code": "nope",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentWebhookAcceptsReplay(t *testing.T) {
	handler := setupRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/plans", map[string]any{
		"name":        "Webhook",
		"full_price":  "500.00",
		"entry_price": "50.00",
		"capacity":    4,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	planID := decodeData(t, rec)["id"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/enrollments", map[string]any{
		"plan_id": planID,
		"user_id": "2a8dcd1c-7f70-4f46-bbc6-6a8bfa1a3333",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	participantID := decodeData(t, rec)["participant"].(map[string]any)["id"].(string)

	payload := map[string]any{
		"external_ref":   fmt.Sprintf("prov-%s", participantID),
		"participant_id": participantID,
		"amount":         "50.00",
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/webhooks/payment", payload)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, false, decodeData(t, rec)["duplicate"])

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/webhooks/payment", payload)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, true, decodeData(t, rec)["duplicate"])
}

func TestUnknownPlanRejected(t *testing.T) {
	handler := setupRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/enrollments", map[string]any{
		"plan_id": "3b8dcd1c-7f70-4f46-bbc6-6a8bfa1a4444",
		"user_id": "4c8dcd1c-7f70-4f46-bbc6-6a8bfa1a5555",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}
