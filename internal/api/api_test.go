package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wallet_sync/internal/cache"
	"wallet_sync/internal/config"
	"wallet_sync/internal/db"
	"wallet_sync/internal/directory"
	"wallet_sync/internal/domain"
	"wallet_sync/internal/economy"
	"wallet_sync/internal/leaderboard"
	"wallet_sync/internal/store"
	"wallet_sync/internal/txid"
	"wallet_sync/internal/utils"
	"wallet_sync/internal/workers"
)

const testSecret = "test-secret"

type server struct {
	router *gin.Engine
	svc    *economy.Service
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(conn))

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	gw := store.NewGormGateway(conn)
	cfg := config.Defaults()
	cfg.ProcessID = "api-test"
	pool := workers.NewPool(2, 64, log)
	owner := workers.NewOwner(64, log)
	svc := economy.New(economy.Deps{
		Gateway:   gw,
		Caches:    cache.New(cfg.Cache, nil, nil),
		Board:     leaderboard.New(leaderboard.Options{Source: gw, Mirror: directory.Noop{}, TTL: cfg.Leaderboard.TTL, Log: log}),
		IDs:       txid.New(cfg.TxID, gw),
		Pool:      pool,
		Owner:     owner,
		Config:    config.NewStore(&cfg),
		ProcessID: cfg.ProcessID,
		Log:       log,
	})
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		stop, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		var q workers.ShutdownQueue
		q.Add("pool", pool.Shutdown)
		q.Add("owner", owner.Stop)
		q.Add("service", svc.Close)
		require.NoError(t, q.Shutdown(stop))
	})

	r := gin.New()
	RegisterRoutes(r, svc, testSecret)
	return &server{router: r, svc: svc}
}

func (s *server) do(t *testing.T, method, path, token string, body any) (int, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	out := map[string]json.RawMessage{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

// account creates an account directly and returns a token for it
func (s *server) account(t *testing.T, username, role string) (string, string) {
	t.Helper()
	p, err := s.svc.CreateAccount(context.Background(), username, "", "unused", role)
	require.NoError(t, err)
	token, err := utils.GenerateJWT(p.AccountID, testSecret, time.Hour)
	require.NoError(t, err)
	return p.AccountID, token
}

func amount(t *testing.T, raw json.RawMessage) decimal.Decimal {
	t.Helper()
	var d decimal.Decimal
	require.NoError(t, json.Unmarshal(raw, &d))
	return d
}

func TestRegisterLoginAndReadWallet(t *testing.T) {
	s := newServer(t)

	code, _ := s.do(t, http.MethodPost, "/user", "", gin.H{"username": "Alice", "password": "password1"})
	require.Equal(t, http.StatusCreated, code)

	code, _ = s.do(t, http.MethodPost, "/user", "", gin.H{"username": "alice", "password": "password1"})
	assert.Equal(t, http.StatusBadRequest, code, "usernames are unique regardless of case")

	code, _ = s.do(t, http.MethodGet, "/user", "", gin.H{"username": "alice", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := s.do(t, http.MethodGet, "/user", "", gin.H{"username": "alice", "password": "password1"})
	require.Equal(t, http.StatusOK, code)
	var token string
	require.NoError(t, json.Unmarshal(body["token"], &token))

	code, body = s.do(t, http.MethodGet, "/wallet", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, amount(t, body["balance"]).IsZero())
}

func TestRegisterValidation(t *testing.T) {
	s := newServer(t)
	code, _ := s.do(t, http.MethodPost, "/user", "", gin.H{"username": "al1ce", "password": "password1"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/user", "", gin.H{"username": "alice", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWalletNeedsToken(t *testing.T) {
	s := newServer(t)
	code, _ := s.do(t, http.MethodGet, "/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(t, http.MethodGet, "/wallet", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAdminRoutesNeedAdminRole(t *testing.T) {
	s := newServer(t)
	_, token := s.account(t, "bob", domain.RoleUser)
	code, _ := s.do(t, http.MethodGet, "/admin/cache", token, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestTransferFlow(t *testing.T) {
	s := newServer(t)
	_, admin := s.account(t, "root", domain.RoleAdmin)
	alice, aliceToken := s.account(t, "alice", domain.RoleUser)
	bob, bobToken := s.account(t, "bob", domain.RoleUser)

	code, body := s.do(t, http.MethodPost, "/admin/balance/"+alice+"/add", admin, gin.H{"amount": "100"})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, amount(t, body["balance"]).Equal(decimal.NewFromInt(100)))

	code, body = s.do(t, http.MethodPost, "/wallet/transfer", aliceToken, gin.H{"to_username": "Bob", "amount": "30"})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, amount(t, body["balance"]).Equal(decimal.NewFromInt(70)))

	code, body = s.do(t, http.MethodGet, "/wallet", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, amount(t, body["balance"]).Equal(decimal.NewFromInt(30)))

	code, body = s.do(t, http.MethodPost, "/wallet/transfer", aliceToken, gin.H{"to_account": bob, "amount": "500"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.JSONEq(t, `"insufficient_funds"`, string(body["reason"]))

	code, _ = s.do(t, http.MethodPost, "/wallet/transfer", aliceToken, gin.H{"to_username": "nobody", "amount": "1"})
	assert.Equal(t, http.StatusNotFound, code)

	code, body = s.do(t, http.MethodGet, "/wallet/transactions?limit=10", aliceToken, nil)
	require.Equal(t, http.StatusOK, code)
	var txs []domain.Transaction
	require.NoError(t, json.Unmarshal(body["transactions"], &txs))
	assert.Len(t, txs, 2)

	code, body = s.do(t, http.MethodGet, "/leaderboard?limit=2", "", nil)
	require.Equal(t, http.StatusOK, code)
	var entries []domain.LeaderboardEntry
	require.NoError(t, json.Unmarshal(body["leaderboard"], &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, alice, entries[0].AccountID)
}

func TestTransferToAccountRefusingTransfers(t *testing.T) {
	s := newServer(t)
	_, admin := s.account(t, "root", domain.RoleAdmin)
	alice, aliceToken := s.account(t, "alice", domain.RoleUser)
	_, bobToken := s.account(t, "bob", domain.RoleUser)

	code, _ := s.do(t, http.MethodPut, "/admin/balance/"+alice, admin, gin.H{"amount": "10"})
	require.Equal(t, http.StatusOK, code)
	code, body := s.do(t, http.MethodPut, "/wallet/settings", bobToken, gin.H{"accepts_transfers": false})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `true`, string(body["wants_alerts"]), "absent fields keep their value")

	code, body = s.do(t, http.MethodPost, "/wallet/transfer", aliceToken, gin.H{"to_username": "bob", "amount": "5"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.JSONEq(t, `"recipient_disabled"`, string(body["reason"]))
}

func TestAdminInvalidateAndStats(t *testing.T) {
	s := newServer(t)
	_, admin := s.account(t, "root", domain.RoleAdmin)
	alice, _ := s.account(t, "alice", domain.RoleUser)

	code, _ := s.do(t, http.MethodPost, "/admin/invalidate/balance/"+alice, admin, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/admin/invalidate/profile", admin, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/admin/invalidate/leaderboard", admin, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/admin/invalidate/widgets", admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := s.do(t, http.MethodGet, "/admin/cache", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "cache")
	assert.Contains(t, body, "active_sessions")
}

func TestSessionRoutes(t *testing.T) {
	s := newServer(t)
	alice, token := s.account(t, "alice", domain.RoleUser)

	code, _ := s.do(t, http.MethodDelete, "/wallet/session", token, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body := s.do(t, http.MethodPost, "/wallet/session", token, gin.H{"display_name": "Ally"})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"api-test"`, string(body["owner_process_id"]))
	assert.True(t, s.svc.IsActive(alice))

	code, body = s.do(t, http.MethodGet, "/online", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["Ally"]`, string(body["online"]))

	code, _ = s.do(t, http.MethodDelete, "/wallet/session", token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, s.svc.IsActive(alice))
}

func TestAdminNotify(t *testing.T) {
	s := newServer(t)
	_, admin := s.account(t, "root", domain.RoleAdmin)
	alice, token := s.account(t, "alice", domain.RoleUser)

	code, body := s.do(t, http.MethodPost, "/admin/notify/"+alice, admin, gin.H{"message": "hello"})
	assert.Equal(t, http.StatusAccepted, code)
	assert.JSONEq(t, `"forwarded"`, string(body["delivery"]), "no directory to ask")

	code, _ = s.do(t, http.MethodPost, "/wallet/session", token, nil)
	require.Equal(t, http.StatusOK, code)
	code, body = s.do(t, http.MethodPost, "/admin/notify/"+alice, admin, gin.H{"message": "hello"})
	assert.Equal(t, http.StatusAccepted, code)
	assert.JSONEq(t, `"local"`, string(body["delivery"]))
}
