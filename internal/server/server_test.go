package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/subscription-coprocessor/internal/clock"
	"github.com/smallbiznis/subscription-coprocessor/internal/config"
	"github.com/smallbiznis/subscription-coprocessor/internal/observability"
	subscriptiondomain "github.com/smallbiznis/subscription-coprocessor/internal/subscription/domain"
	"github.com/smallbiznis/subscription-coprocessor/internal/subscription/repository"
	"github.com/smallbiznis/subscription-coprocessor/internal/subscription/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestService(t *testing.T) subscriptiondomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc, err := service.NewService(service.ServiceParam{
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)),
		Policy: config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Repo:   repository.Provide(),
	})
	require.NoError(t, err)
	return svc
}

func TestHealthReportsLedgerCounters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Subscribe(ctx, subscriptiondomain.SubscribeRequest{SubscriberID: "alice", Amount: 20})
	require.NoError(t, err)
	_, err = svc.RecordOperation(ctx)
	require.NoError(t, err)

	engine := NewEngine(EngineParams{ObsConfig: observability.Config{}, Log: zap.NewNop(), Service: svc})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, healthResponse{Status: "ok", Subscribers: 1, TotalOperations: 1}, body)
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	engine := NewEngine(EngineParams{Log: zap.NewNop(), Service: newTestService(t)})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

type failingService struct {
	subscriptiondomain.Service
}

func (failingService) Count(context.Context) (int, error) {
	return 0, errors.New("ledger offline")
}

func TestHealthUnavailableWhenLedgerFails(t *testing.T) {
	engine := NewEngine(EngineParams{Log: zap.NewNop(), Service: failingService{}})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "service_unavailable", body.Error.Type)
}
