// Package handler exposes the pair controller over HTTP. Prices and
// amounts travel as decimal strings; caller identity arrives as an
// opaque account field.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
	"github.com/irnb/SegmentXOrderbook/internal/ledger"
	"github.com/irnb/SegmentXOrderbook/internal/marketdata"
	"github.com/irnb/SegmentXOrderbook/internal/middleware"
	"github.com/irnb/SegmentXOrderbook/internal/pair"
	"github.com/irnb/SegmentXOrderbook/internal/sequencer"
)

// Handler holds the HTTP handler dependencies.
type Handler struct {
	pair      *pair.Controller
	assets    *ledger.InMemory
	publisher *marketdata.Publisher
	seq       *sequencer.Sequencer
}

// NewHandler creates a new Handler.
func NewHandler(p *pair.Controller, assets *ledger.InMemory, publisher *marketdata.Publisher, seq *sequencer.Sequencer) *Handler {
	return &Handler{pair: p, assets: assets, publisher: publisher, seq: seq}
}

// RegisterRoutes sets up the Gin routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/orders/limit", h.InsertLimitOrder)
		v1.POST("/orders/market", h.InsertMarketOrder)
		v1.POST("/orders/:id/claim", h.ClaimOrder)
		v1.DELETE("/orders/:id", h.CancelOrder)
		v1.GET("/orders/:id", h.GetOrder)
		v1.GET("/orders/:id/claimability", h.GetClaimability)

		v1.GET("/book", h.GetDepth)
		v1.GET("/trades", h.GetTrades)
		v1.GET("/candles", h.GetCandles)
		v1.GET("/observations", h.GetObservations)

		v1.GET("/policy", h.GetPolicy)
		v1.PUT("/policy", h.UpdatePolicy)
		v1.POST("/fees/collect", h.CollectFees)

		v1.POST("/accounts/fund", h.FundAccount)
		v1.GET("/accounts/:id/balances", h.GetBalances)
	}
}

// Health returns a health check response.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "segmentx-orderbook",
	})
}

func parseAmount(s string) (*uint256.Int, bool) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, false
	}
	return v, true
}

func parseSide(s string) (domain.Side, bool) {
	side := domain.Side(s)
	return side, side == domain.SideBuy || side == domain.SideSell
}

// fail maps domain errors onto HTTP statuses and counts the rejection.
func fail(c *gin.Context, err error) {
	status := http.StatusBadRequest
	reason := "invalid_request"

	var worstErr *domain.ExceedWorstPriceError
	var statusErr *domain.InvalidOrderStatusError
	var callerErr *domain.InvalidCallerError
	var ledgerErr *domain.LedgerError

	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		status, reason = http.StatusNotFound, "order_not_found"
	case errors.Is(err, domain.ErrNotEnoughLiquidity):
		status, reason = http.StatusUnprocessableEntity, "not_enough_liquidity"
	case errors.Is(err, domain.ErrIsNotFullyClaimable):
		status, reason = http.StatusConflict, "not_fully_claimable"
	case errors.As(err, &worstErr):
		status, reason = http.StatusUnprocessableEntity, "exceed_worst_price"
	case errors.As(err, &statusErr):
		status, reason = http.StatusConflict, "invalid_order_status"
	case errors.As(err, &callerErr):
		status, reason = http.StatusForbidden, "invalid_caller"
	case errors.As(err, &ledgerErr):
		status, reason = http.StatusPaymentRequired, "ledger_error"
	case errors.Is(err, domain.ErrOverflow), errors.Is(err, domain.ErrUnderflow):
		reason = "arithmetic_bounds"
	}

	middleware.RejectionsTotal.WithLabelValues(reason).Inc()
	c.JSON(status, gin.H{"error": err.Error(), "reason": reason})
}

// InsertLimitOrderRequest is the request body for limit orders.
type InsertLimitOrderRequest struct {
	Account string `json:"account" binding:"required"`
	Side    string `json:"side" binding:"required"`
	Price   string `json:"price" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// InsertLimitOrder handles POST /v1/orders/limit.
func (h *Handler) InsertLimitOrder(c *gin.Context) {
	var req InsertLimitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be 'buy' or 'sell'"})
		return
	}
	price, ok := parseAmount(req.Price)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be a decimal integer"})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal integer"})
		return
	}

	res, err := h.pair.InsertLimitOrder(domain.AccountID(req.Account), side, price, amount)
	if err != nil {
		fail(c, err)
		return
	}

	middleware.OrdersTotal.WithLabelValues("limit", string(side)).Inc()
	middleware.MatchedLevelsTotal.Add(float64(len(res.Matched)))
	middleware.ObservationSeq.Set(float64(h.seq.Current()))
	c.JSON(http.StatusCreated, res)
}

// InsertMarketOrderRequest is the request body for market orders.
type InsertMarketOrderRequest struct {
	Account    string `json:"account" binding:"required"`
	Side       string `json:"side" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
	WorstPrice string `json:"worst_price" binding:"required"`
}

// InsertMarketOrder handles POST /v1/orders/market.
func (h *Handler) InsertMarketOrder(c *gin.Context) {
	var req InsertMarketOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be 'buy' or 'sell'"})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal integer"})
		return
	}
	worst, ok := parseAmount(req.WorstPrice)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worst_price must be a decimal integer"})
		return
	}

	res, err := h.pair.InsertMarketOrder(domain.AccountID(req.Account), side, amount, worst)
	if err != nil {
		fail(c, err)
		return
	}

	middleware.OrdersTotal.WithLabelValues("market", string(side)).Inc()
	middleware.MatchedLevelsTotal.Add(float64(len(res.Matched)))
	middleware.ObservationSeq.Set(float64(h.seq.Current()))
	c.JSON(http.StatusCreated, res)
}

func orderID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order id must be an unsigned integer"})
		return 0, false
	}
	return id, true
}

// ClaimOrderRequest carries the optional owner hint.
type ClaimOrderRequest struct {
	Account string `json:"account"`
}

// ClaimOrder handles POST /v1/orders/:id/claim.
func (h *Handler) ClaimOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req ClaimOrderRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.pair.ClaimOrder(id, domain.AccountID(req.Account)); err != nil {
		fail(c, err)
		return
	}
	middleware.ClaimsTotal.Inc()
	middleware.ObservationSeq.Set(float64(h.seq.Current()))
	c.JSON(http.StatusOK, gin.H{"status": "claimed", "order_id": id})
}

// CancelOrder handles DELETE /v1/orders/:id.
func (h *Handler) CancelOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	if err := h.pair.CancelOrder(id); err != nil {
		fail(c, err)
		return
	}
	middleware.CancelsTotal.Inc()
	middleware.ObservationSeq.Set(float64(h.seq.Current()))
	c.JSON(http.StatusOK, gin.H{"status": "canceled", "order_id": id})
}

// GetOrder handles GET /v1/orders/:id.
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.pair.GetOrder(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// GetClaimability handles GET /v1/orders/:id/claimability.
func (h *Handler) GetClaimability(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	verdict, amount, err := h.pair.Claimability(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":  id,
		"verdict":   verdict.String(),
		"claimable": amount.Dec(),
	})
}

// GetDepth handles GET /v1/book.
func (h *Handler) GetDepth(c *gin.Context) {
	depthStr := c.DefaultQuery("depth", "10")
	depth, err := strconv.Atoi(depthStr)
	if err != nil || depth < 0 {
		depth = 10
	}
	c.JSON(http.StatusOK, h.pair.Depth(depth))
}

// GetTrades handles GET /v1/trades.
func (h *Handler) GetTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	trades := h.publisher.Trades(limit)
	if trades == nil {
		trades = []*marketdata.Trade{}
	}
	c.JSON(http.StatusOK, trades)
}

// GetCandles handles GET /v1/candles.
func (h *Handler) GetCandles(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count <= 0 {
		count = 100
	}
	candles := h.publisher.Candles(count)
	if candles == nil {
		candles = []*marketdata.Candle{}
	}
	c.JSON(http.StatusOK, candles)
}

// GetObservations handles GET /v1/observations.
func (h *Handler) GetObservations(c *gin.Context) {
	since, _ := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	obs := h.publisher.Observations(since, limit)
	if obs == nil {
		obs = []*domain.Observation{}
	}
	c.JSON(http.StatusOK, obs)
}

// GetPolicy handles GET /v1/policy.
func (h *Handler) GetPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.pair.Policy())
}

// UpdatePolicyRequest is the request body for policy updates.
type UpdatePolicyRequest struct {
	Account        string `json:"account" binding:"required"`
	MakerFee       uint64 `json:"maker_fee"`
	TakerFee       uint64 `json:"taker_fee"`
	PricePrecision string `json:"price_precision" binding:"required"`
}

// UpdatePolicy handles PUT /v1/policy.
func (h *Handler) UpdatePolicy(c *gin.Context) {
	var req UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	precision, ok := parseAmount(req.PricePrecision)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price_precision must be a decimal integer"})
		return
	}
	if err := h.pair.UpdateMarketPolicy(domain.AccountID(req.Account), req.MakerFee, req.TakerFee, precision); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.pair.Policy())
}

// CollectFeesRequest names the calling account.
type CollectFeesRequest struct {
	Account string `json:"account" binding:"required"`
}

// CollectFees handles POST /v1/fees/collect.
func (h *Handler) CollectFees(c *gin.Context) {
	var req CollectFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.pair.CollectFees(domain.AccountID(req.Account)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "collected"})
}

// FundAccountRequest is the faucet request body.
type FundAccountRequest struct {
	Account string `json:"account" binding:"required"`
	Asset   string `json:"asset" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// FundAccount handles POST /v1/accounts/fund. In-memory ledger only.
func (h *Handler) FundAccount(c *gin.Context) {
	var req FundAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal integer"})
		return
	}
	h.assets.Mint(domain.AccountID(req.Account), domain.AssetID(req.Asset), amount)
	c.JSON(http.StatusOK, gin.H{"status": "funded"})
}

// GetBalances handles GET /v1/accounts/:id/balances.
func (h *Handler) GetBalances(c *gin.Context) {
	account := domain.AccountID(c.Param("id"))
	balances := h.assets.Balances(account)

	out := make(map[string]string, len(balances))
	for asset, amount := range balances {
		out[string(asset)] = amount.Dec()
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "balances": out})
}
