package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/pipeline"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/sync"
)

type fakeSyncer struct {
	syncLocale string
	syncMode   pipeline.Mode
	reports    []*sync.Report
	syncErr    error

	rateForce  bool
	rateReport *sync.Report
	rateErr    error

	status *pipeline.RunStatus
}

func (f *fakeSyncer) SyncCatalog(ctx context.Context, locale string, mode pipeline.Mode) ([]*sync.Report, error) {
	f.syncLocale = locale
	f.syncMode = mode
	return f.reports, f.syncErr
}

func (f *fakeSyncer) UpdateExchangeRates(ctx context.Context, force bool) (*sync.Report, error) {
	f.rateForce = force
	return f.rateReport, f.rateErr
}

func (f *fakeSyncer) Status() *pipeline.RunStatus {
	if f.status != nil {
		return f.status
	}
	return &pipeline.RunStatus{}
}

func newSyncTestRouter(syncer Syncer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	api := engine.Group("/api")
	NewSyncHandler(syncer, zap.NewNop()).RegisterRoutes(api)
	return engine
}

func doneReport(locale string) *sync.Report {
	run := sync.NewRun("printful", locale)
	_ = run.AdvanceThrough(sync.RunStateDone)
	return run.Report()
}

func postJSON(t *testing.T, engine *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestSyncHandler_TriggerSync(t *testing.T) {
	t.Run("empty body syncs all locales in full mode", func(t *testing.T) {
		syncer := &fakeSyncer{reports: []*sync.Report{doneReport("en_US"), doneReport("de_DE")}}
		engine := newSyncTestRouter(syncer)

		w := postJSON(t, engine, "/api/sync", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "", syncer.syncLocale)
		assert.Equal(t, pipeline.ModeFull, syncer.syncMode)

		var resp struct {
			Success bool           `json:"success"`
			Data    []*sync.Report `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Len(t, resp.Data, 2)
	})

	t.Run("locale and incremental flags are passed through", func(t *testing.T) {
		syncer := &fakeSyncer{reports: []*sync.Report{doneReport("de_DE")}}
		engine := newSyncTestRouter(syncer)

		w := postJSON(t, engine, "/api/sync", `{"locale": "de_DE", "incremental": true}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "de_DE", syncer.syncLocale)
		assert.Equal(t, pipeline.ModeIncremental, syncer.syncMode)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		syncer := &fakeSyncer{}
		engine := newSyncTestRouter(syncer)

		w := postJSON(t, engine, "/api/sync", `{"locale": 42}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("concurrent run is a 409", func(t *testing.T) {
		syncer := &fakeSyncer{syncErr: fmt.Errorf("%w: printful/en_US", sync.ErrSyncAlreadyRunning)}
		engine := newSyncTestRouter(syncer)

		w := postJSON(t, engine, "/api/sync", "")

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid locale is a 400", func(t *testing.T) {
		syncer := &fakeSyncer{syncErr: fmt.Errorf("%w: bad locale", shared.ErrInvalidInput)}
		engine := newSyncTestRouter(syncer)

		w := postJSON(t, engine, "/api/sync", `{"locale": "nope"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unreachable source is a 502 with the failed report attached", func(t *testing.T) {
		failed := sync.NewRun("printful", "en_US")
		failed.Fail(sync.ErrSourceUnavailable)
		syncer := &fakeSyncer{
			reports: []*sync.Report{failed.Report()},
			syncErr: fmt.Errorf("%w: 3 attempts", sync.ErrSourceUnavailable),
		}
		engine := newSyncTestRouter(syncer)

		w := postJSON(t, engine, "/api/sync", "")

		assert.Equal(t, http.StatusBadGateway, w.Code)

		var resp struct {
			Success bool           `json:"success"`
			Data    []*sync.Report `json:"data"`
			Error   struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "ERR_UPSTREAM", resp.Error.Code)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, sync.RunStateFailed, resp.Data[0].State)
	})

	t.Run("timeout is a 504", func(t *testing.T) {
		syncer := &fakeSyncer{syncErr: fmt.Errorf("%w: en_US", sync.ErrTimeout)}
		engine := newSyncTestRouter(syncer)

		w := postJSON(t, engine, "/api/sync", "")

		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	})
}

func TestSyncHandler_TriggerRateUpdate(t *testing.T) {
	t.Run("returns the rate run report", func(t *testing.T) {
		syncer := &fakeSyncer{rateReport: doneReport("all")}
		engine := newSyncTestRouter(syncer)

		w := postJSON(t, engine, "/api/exchange-rates", `{"force": true}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, syncer.rateForce)
	})

	t.Run("concurrent rate run is a 409", func(t *testing.T) {
		syncer := &fakeSyncer{rateErr: fmt.Errorf("%w: exchange-rates/all", sync.ErrSyncAlreadyRunning)}
		engine := newSyncTestRouter(syncer)

		w := postJSON(t, engine, "/api/exchange-rates", "")

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestSyncHandler_GetStatus(t *testing.T) {
	syncer := &fakeSyncer{status: &pipeline.RunStatus{
		Last: []*sync.Report{doneReport("en_US")},
	}}
	engine := newSyncTestRouter(syncer)

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Active []*sync.Report `json:"active"`
			Last   []*sync.Report `json:"last"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Data.Last, 1)
}
