package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/redisclient"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	store  *store.Store
	locks  *redisclient.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.NewStore("sqlite3", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	locks := redisclient.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = locks.Close() })

	catalog := service.NewAssetCatalog(st)
	ledger := service.NewEntitlementLedger(st)
	svc := Services{
		Engine:     service.NewFulfillmentEngine(st, catalog, ledger, nil),
		Resolver:   service.NewAccessResolver(st, ledger),
		Ledger:     ledger,
		Catalog:    catalog,
		Reconciler: service.NewReconciler(st, catalog, ledger, locks, 2, time.Minute),
		Purger:     service.NewHistoryPurger(ledger, st),
	}

	router := gin.New()
	NewHandler(svc, map[string]Pinger{"database": st, "redis": locks}).SetupRoutes(router)
	return &testServer{router: router, store: st, locks: locks}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestFulfillAndCheckAccess(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.store.CreateOrder(ctx, &models.Order{
		ID: "O1", UserID: "U1", ProductIDs: []int64{7, 99}, PaymentStatus: models.PaymentStatusCompleted,
	}))

	w := s.do(t, http.MethodPut, "/api/v1/admin/products/7/asset",
		`{"asset_name":"pack.zip","locator":"https://drive.google.com/file/d/abc123XYZ/view"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders/O1/fulfill", "")
	require.Equal(t, http.StatusOK, w.Code)
	var fulfilled struct {
		Outcomes []models.ProductOutcome `json:"outcomes"`
	}
	decode(t, w, &fulfilled)
	require.Len(t, fulfilled.Outcomes, 2)
	assert.Equal(t, models.OutcomeGranted, fulfilled.Outcomes[0].Outcome)
	assert.Equal(t, models.OutcomeGrantedFallback, fulfilled.Outcomes[1].Outcome)

	w = s.do(t, http.MethodGet, "/api/v1/users/U1/products/7/access", "")
	require.Equal(t, http.StatusOK, w.Code)
	var decision models.AccessDecision
	decode(t, w, &decision)
	assert.Equal(t, models.AccessGranted, decision.State)
	assert.Equal(t, "https://drive.google.com/file/d/abc123XYZ/view", decision.Reference.URL)

	w = s.do(t, http.MethodGet, "/api/v1/users/U2/products/7/access", "")
	decode(t, w, &decision)
	assert.Equal(t, models.AccessNoPurchase, decision.State)

	w = s.do(t, http.MethodGet, "/api/v1/users/U1/grants", "")
	require.Equal(t, http.StatusOK, w.Code)
	var grants struct {
		Grants []models.EntitlementGrant `json:"grants"`
	}
	decode(t, w, &grants)
	assert.Len(t, grants.Grants, 2)
}

func TestErrorStatusCodes(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/orders/nope/fulfill", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/users/U1/products/abc/access", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/admin/users/U1/products/7/revoke", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/admin/products/7/asset", `{"locator":"fallback:7"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/admin/products/5/asset", `{"locator":"not a url at all"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/grants?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileEndpoint(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.store.CreateOrder(ctx, &models.Order{
		ID: "O1", UserID: "U1", ProductIDs: []int64{1}, PaymentStatus: models.PaymentStatusCompleted,
	}))

	w := s.do(t, http.MethodPost, "/api/v1/admin/reconcile", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.ReconcileSummary
	decode(t, w, &summary)
	assert.Equal(t, 1, summary.Created)

	_, ok, err := s.locks.AcquireLock(ctx, "reconcile", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	w = s.do(t, http.MethodPost, "/api/v1/admin/reconcile", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRevokeAndPurge(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, s.store.CreateOrder(ctx, &models.Order{
		ID: "O1", UserID: "U1", ProductIDs: []int64{7}, PaymentStatus: models.PaymentStatusCompleted,
	}))
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/orders/O1/fulfill", "").Code)

	w := s.do(t, http.MethodPost, "/api/v1/admin/users/U1/products/7/revoke", "")
	require.Equal(t, http.StatusOK, w.Code)

	var decision models.AccessDecision
	decode(t, s.do(t, http.MethodGet, "/api/v1/users/U1/products/7/access", ""), &decision)
	assert.Equal(t, models.AccessRevoked, decision.State)

	w = s.do(t, http.MethodGet, "/api/v1/admin/grants?status=revoked", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/admin/users/U1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var result models.PurgeResult
	decode(t, w, &result)
	assert.Equal(t, int64(1), result.DeletedGrants)
	assert.Equal(t, int64(1), result.DeletedOrders)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadiness(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	router := gin.New()
	NewHandler(Services{}, map[string]Pinger{"redis": downPinger{}}).SetupRoutes(router)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
