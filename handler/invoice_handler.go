package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
	"github.com/Aashish23092/invoice-flow/service"
)

// Deps wires an InvoiceHandler.
type Deps struct {
	Store      service.InvoiceStore
	Rules      service.RuleSource
	Processor  *service.InvoiceProcessor
	Anomaly    *service.AnomalyDetector
	Priority   *service.PriorityScorer
	Delay      *service.DelayPredictor
	Engine     *service.RuleEngine
	Automation *service.AutomationService
	Reminders  *service.ReminderService
	UploadDir  string
	MaxUpload  int64
	Logger     *zap.Logger
}

// InvoiceHandler is the HTTP adapter over the invoice services.
type InvoiceHandler struct {
	deps   Deps
	logger *zap.Logger
}

func NewInvoiceHandler(deps Deps) *InvoiceHandler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.UploadDir == "" {
		deps.UploadDir = os.TempDir()
	}
	return &InvoiceHandler{deps: deps, logger: deps.Logger}
}

// RegisterRoutes mounts the API under /api/v1.
func (h *InvoiceHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "invoice-flow",
		})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/ocr", h.RecognizeUpload)

		invoices := api.Group("/invoices")
		{
			invoices.POST("/score", h.ScoreInvoice)
			invoices.GET("/:id", h.GetInvoice)
			invoices.POST("/:id/process", h.ProcessInvoice)
			invoices.POST("/:id/rules", h.ApplyRules)
		}

		api.POST("/automation/run", h.RunAutomation)
		api.POST("/reminders/run", h.RunReminders)
	}
}

// RecognizeUpload handles POST /api/v1/ocr: a multipart invoice image or PDF
// in "file" and an optional "vendor" used to narrow template candidates.
func (h *InvoiceHandler) RecognizeUpload(c *gin.Context) {
	var req dto.OCRUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "file is required", err)
		return
	}
	if err := req.Validate(h.deps.MaxUpload); err != nil {
		h.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	ext := strings.ToLower(filepath.Ext(req.File.Filename))
	tmp, err := os.CreateTemp(h.deps.UploadDir, "invoice-*"+ext)
	if err != nil {
		h.sendError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "could not store upload", err)
		return
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(path)

	if err := c.SaveUploadedFile(req.File, path); err != nil {
		h.sendError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "could not store upload", err)
		return
	}

	result, payment := h.deps.Processor.RecognizeDocument(c.Request.Context(), dto.Invoice{
		VendorName: req.Vendor,
		FilePath:   path,
	})
	h.logger.Info("ocr upload processed",
		zap.String("filename", req.File.Filename),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("payment_qr", payment != nil),
	)
	c.JSON(http.StatusOK, gin.H{
		"result":  result,
		"payment": payment,
	})
}

// ScoreInvoice handles POST /api/v1/invoices/score with an invoice projection.
func (h *InvoiceHandler) ScoreInvoice(c *gin.Context) {
	var data dto.InvoiceData
	if err := c.ShouldBindJSON(&data); err != nil {
		h.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid invoice payload", err)
		return
	}
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, dto.ScoreResponse{
		Anomaly:  h.deps.Anomaly.Detect(ctx, data),
		Priority: h.deps.Priority.Score(data),
		Delay:    h.deps.Delay.Predict(ctx, data),
	})
}

func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	inv, err := h.deps.Store.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// ProcessInvoice handles POST /api/v1/invoices/:id/process.
func (h *InvoiceHandler) ProcessInvoice(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	report, err := h.deps.Processor.ProcessNewInvoice(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, dto.ErrNotFound) {
			h.sendStoreError(c, err)
			return
		}
		h.logger.Error("invoice processing failed", zap.Int64("invoice_id", id), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ApplyRules handles POST /api/v1/invoices/:id/rules.
func (h *InvoiceHandler) ApplyRules(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	rules, err := h.deps.Rules.ActiveRules(ctx)
	if err != nil {
		h.sendError(c, http.StatusInternalServerError, "RULES_UNAVAILABLE", "could not load rules", err)
		return
	}
	app, err := h.deps.Engine.EvaluateAndApply(ctx, id, rules)
	if err != nil {
		h.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *InvoiceHandler) RunAutomation(c *gin.Context) {
	summary, err := h.deps.Automation.RunPass(c.Request.Context())
	if err != nil {
		h.sendError(c, http.StatusInternalServerError, "AUTOMATION_FAILED", "automation pass failed", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *InvoiceHandler) RunReminders(c *gin.Context) {
	summary, err := h.deps.Reminders.Run(c.Request.Context())
	if err != nil {
		h.sendError(c, http.StatusInternalServerError, "REMINDERS_FAILED", "reminder pass failed", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *InvoiceHandler) invoiceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "invoice id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func (h *InvoiceHandler) sendStoreError(c *gin.Context, err error) {
	if errors.Is(err, dto.ErrNotFound) {
		h.sendError(c, http.StatusNotFound, "NOT_FOUND", "invoice not found", nil)
		return
	}
	h.sendError(c, http.StatusInternalServerError, "STORE_FAILED", "storage error", err)
}

// sendError sends a structured error response
func (h *InvoiceHandler) sendError(c *gin.Context, statusCode int, code, message string, err error) {
	if err != nil {
		h.logger.Warn(message, zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(statusCode, dto.ErrorResponse{
		Error:   code,
		Message: message,
		Code:    statusCode,
	})
}
