package prevention

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletguard/internal/analyzer"
	"github.com/mbd888/walletguard/internal/intel"
	"github.com/mbd888/walletguard/internal/threat"
	"github.com/mbd888/walletguard/internal/traces"
	"github.com/mbd888/walletguard/internal/validation"
)

// Notifier observes completed evaluations. The server layer uses it to fan
// results out to realtime subscribers; it must not block.
type Notifier func(tx *threat.Transaction, result *Result)

// Handler provides HTTP handlers for the threat prevention surface.
type Handler struct {
	engine *Engine
	store  Store
	feed   intel.Feed
	notify Notifier
}

// NewHandler creates a new prevention handler.
func NewHandler(engine *Engine, store Store, feed intel.Feed) *Handler {
	return &Handler{engine: engine, store: store, feed: feed}
}

// WithNotifier registers a callback invoked after every evaluation.
func (h *Handler) WithNotifier(n Notifier) *Handler {
	h.notify = n
	return h
}

// RegisterRoutes sets up the prevention routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.Use(validation.AddressParamMiddleware())
	r.POST("/evaluate", h.Evaluate)
	r.POST("/analyze", h.Analyze)
	r.GET("/evaluations/:address", h.ListEvaluations)
	r.POST("/wallets/:address/learn", h.Learn)
	r.GET("/wallets/:address/profile", h.Profile)
	r.GET("/intel/:address", h.Intel)
}

// TransactionBody is the wire shape of a transaction under evaluation.
type TransactionBody struct {
	From    string `json:"from" binding:"required"`
	To      string `json:"to" binding:"required"`
	Value   string `json:"value"`
	Data    string `json:"data"`
	ChainID int64  `json:"chainId"`
}

func (b *TransactionBody) transaction() *threat.Transaction {
	return &threat.Transaction{
		From:    b.From,
		To:      b.To,
		Value:   b.Value,
		Data:    b.Data,
		ChainID: b.ChainID,
	}
}

// Evaluate handles POST /v1/evaluate
func (h *Handler) Evaluate(c *gin.Context) {
	var req TransactionBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidAddress("from", req.From),
		validation.ValidAddress("to", req.To),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	ctx, span := traces.StartSpan(c.Request.Context(), "prevention.evaluate",
		traces.Wallet(req.From),
		traces.Recipient(req.To),
		traces.ChainID(req.ChainID),
	)
	defer span.End()

	tx := req.transaction()
	result := h.engine.Evaluate(ctx, tx)
	span.SetAttributes(
		traces.Allowed(result.Allowed),
		traces.RiskLevel(string(result.RiskLevel)),
		traces.RiskScore(result.RiskScore),
	)

	if h.notify != nil {
		h.notify(tx, result)
	}

	c.JSON(http.StatusOK, result)
}

// Analyze handles POST /v1/analyze — the static analyzer alone, no
// simulation or intel. Cheap enough to call on every keystroke.
func (h *Handler) Analyze(c *gin.Context) {
	var req TransactionBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidAddress("from", req.From),
		validation.ValidAddress("to", req.To),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
		})
		return
	}

	tx := req.transaction()
	c.JSON(http.StatusOK, gin.H{
		"risk":        analyzer.Analyze(tx),
		"explanation": analyzer.Explain(tx),
	})
}

// ListEvaluations handles GET /v1/evaluations/:address
func (h *Handler) ListEvaluations(c *gin.Context) {
	addr := c.Param("address")
	if h.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "no_store",
			"message": "Audit storage is not configured",
		})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	evals, err := h.store.ListByWallet(c.Request.Context(), threat.NormalizeAddress(addr), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list evaluations",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":     addr,
		"evaluations": evals,
		"count":       len(evals),
	})
}

// LearnRequest is the request body for seeding a wallet's behavioral
// baseline from historical transactions.
type LearnRequest struct {
	Transactions []TransactionBody `json:"transactions" binding:"required"`
}

// Learn handles POST /v1/wallets/:address/learn
func (h *Handler) Learn(c *gin.Context) {
	addr := c.Param("address")

	var req LearnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	learner := h.engine.Learner()
	learned := 0
	for i := range req.Transactions {
		tx := req.Transactions[i].transaction()
		// The profile belongs to the path address regardless of the
		// historical record's from field.
		tx.From = addr
		learner.Learn(tx)
		learned++
	}

	c.JSON(http.StatusOK, gin.H{
		"address": addr,
		"learned": learned,
	})
}

// Profile handles GET /v1/wallets/:address/profile
func (h *Handler) Profile(c *gin.Context) {
	addr := c.Param("address")

	profile, ok := h.engine.Learner().Profile(addr)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No behavioral profile for this wallet",
		})
		return
	}

	c.JSON(http.StatusOK, profile)
}

// Intel handles GET /v1/intel/:address
func (h *Handler) Intel(c *gin.Context) {
	addr := c.Param("address")

	records, err := h.feed.LookupThreats(c.Request.Context(), addr, nil, nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "intel_unavailable",
			"message": "Threat intelligence could not be consulted",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": addr,
		"threats": records,
		"clean":   len(records) == 0,
	})
}
