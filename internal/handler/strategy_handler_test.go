package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dushixiang/copyrank/internal"
	"github.com/dushixiang/copyrank/internal/config"
	"github.com/dushixiang/copyrank/internal/handler"
	cmw "github.com/dushixiang/copyrank/internal/middleware"
	"github.com/dushixiang/copyrank/internal/models"
	"github.com/dushixiang/copyrank/internal/observability"
	"github.com/dushixiang/copyrank/internal/service"
	"github.com/dushixiang/copyrank/pkg/exchange"
	"github.com/dushixiang/copyrank/pkg/nostd"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const operatorToken = "s3cret"

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		models.BlacklistEntry{}, models.Allocation{}, models.CycleRun{}, models.Position{},
	))

	conf := config.Config{}.WithDefaults()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	log := zap.NewNop()
	bus := service.NewEventBus(metrics, log)
	wallet := exchange.NewPaperWallet(nil, 10000, log)

	h := handler.NewStrategyHandler(
		service.NewAllocationService(db, &conf, log),
		service.NewScoringService(db, &conf, log),
		service.NewRiskService(db, &conf, wallet, bus, metrics, log),
		service.NewBlacklistService(db, &conf, metrics, log),
		nil,
		service.NewConsensusService(db, &conf, log),
		service.NewPositionService(db, wallet, log),
		nil,
		log,
	)

	hash, err := nostd.BcryptEncode([]byte(operatorToken))
	require.NoError(t, err)

	e := echo.New()
	e.Use(internal.WithErrorHandler(log))
	cv := nostd.CustomValidator{Validator: validator.New()}
	require.NoError(t, cv.TransInit())
	e.Validator = &cv

	h.RegisterRoutes(e.Group("/api"), cmw.OperatorAuth(cmw.OperatorAuthConfig{
		TokenHash: string(hash),
		Logger:    log,
	}))
	return e
}

func doRequest(e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(nostd.Token, token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCheckLiquidationBufferEndpoint(t *testing.T) {
	e := newTestServer(t)

	rec := doRequest(e, http.MethodPost, "/api/liquidation-buffer",
		`{"side":"long","mark_price":100,"liquidation_price":95}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "emergency_close", out["action"])
	assert.InDelta(t, 5, out["buffer_pct"], 1e-9)

	rec = doRequest(e, http.MethodPost, "/api/liquidation-buffer",
		`{"side":"sideways","mark_price":100}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddBlacklistRequiresOperator(t *testing.T) {
	e := newTestServer(t)
	body := `{"trader_address":"0xABC","reason":"suspicious","duration_hours":24}`

	rec := doRequest(e, http.MethodPost, "/api/blacklist", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(e, http.MethodPost, "/api/blacklist", body, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(e, http.MethodPost, "/api/blacklist", `{"trader_address":"0xabc"}`, operatorToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(e, http.MethodPost, "/api/blacklist", body, operatorToken)
	require.Equal(t, http.StatusCreated, rec.Code)
	var entry models.BlacklistEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "0xabc", entry.TraderAddress)
	assert.Equal(t, models.BlacklistSourceManual, entry.Source)

	rec = doRequest(e, http.MethodGet, "/api/blacklist", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0xabc")
}

func TestGetAllocationDefaultsToZero(t *testing.T) {
	e := newTestServer(t)

	rec := doRequest(e, http.MethodGet, "/api/allocations/0xDEF", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "0xdef", out["trader_address"])
	assert.Equal(t, float64(0), out["weight"])
}
