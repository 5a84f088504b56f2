package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/pipeline"
	"github.com/storefront/backend/internal/domain/sync"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// Syncer drives catalog and exchange rate runs
type Syncer interface {
	SyncCatalog(ctx context.Context, locale string, mode pipeline.Mode) ([]*sync.Report, error)
	UpdateExchangeRates(ctx context.Context, force bool) (*sync.Report, error)
	Status() *pipeline.RunStatus
}

// SyncHandler exposes the synchronization triggers
type SyncHandler struct {
	BaseHandler
	syncer Syncer
	logger *zap.Logger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(syncer Syncer, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		syncer: syncer,
		logger: logger,
	}
}

// RegisterRoutes registers sync routes on the given router group
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sync", h.TriggerSync)
	rg.GET("/sync/status", h.GetStatus)
	rg.POST("/exchange-rates", h.TriggerRateUpdate)
}

// TriggerSyncRequest is the optional body of a sync trigger. An empty
// body syncs every configured locale in full mode.
type TriggerSyncRequest struct {
	Locale      string `json:"locale"`
	Incremental bool   `json:"incremental"`
}

// TriggerSync starts a catalog synchronization run and waits for it to
// finish. The response carries one report per locale; a 409 means an
// equivalent run is already in flight.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var req TriggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	mode := pipeline.ModeFull
	if req.Incremental {
		mode = pipeline.ModeIncremental
	}

	reports, err := h.syncer.SyncCatalog(c.Request.Context(), req.Locale, mode)
	h.respondReports(c, reports, err)
}

// TriggerRateUpdateRequest is the optional body of a rate update trigger
type TriggerRateUpdateRequest struct {
	Force bool `json:"force"`
}

// TriggerRateUpdate fetches fresh exchange rates and refreshes the
// derived prices. Recent enough rates are reused unless force is set.
func (h *SyncHandler) TriggerRateUpdate(c *gin.Context) {
	var req TriggerRateUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	report, err := h.syncer.UpdateExchangeRates(c.Request.Context(), req.Force)
	if err != nil {
		h.respondReports(c, reportSlice(report), err)
		return
	}
	h.Success(c, report)
}

// GetStatus returns the active runs and the last report per provider and
// locale
func (h *SyncHandler) GetStatus(c *gin.Context) {
	h.Success(c, h.syncer.Status())
}

// respondReports writes the outcome of one or more runs. Failed runs
// still produce reports; they ride along in the error envelope so the
// caller sees how far each run got.
func (h *SyncHandler) respondReports(c *gin.Context, reports []*sync.Report, err error) {
	if err == nil {
		h.Success(c, reports)
		return
	}

	code := classifyError(err)
	h.logger.Warn("Sync trigger failed",
		zap.String("code", code),
		zap.Error(err))

	resp := dto.NewErrorResponseWithRequestID(code, err.Error(), getRequestID(c))
	if len(reports) > 0 {
		resp.Data = reports
	}
	c.JSON(dto.GetHTTPStatus(code), resp)
}

func reportSlice(report *sync.Report) []*sync.Report {
	if report == nil {
		return nil
	}
	return []*sync.Report{report}
}
