package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rental-payments/internal/engine"
	"rental-payments/internal/ledger"
	"rental-payments/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a new HTTP handler
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{engine: eng}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Gateway webhooks. The response body contract ("1|OK" / "0|reason")
	// drives the gateway's redelivery behavior.
	router.POST("/callbacks/payment", h.paymentCallback)
	router.POST("/callbacks/deposit", h.depositCallback)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/checkout", h.checkout)

		v1.POST("/orders/:id/deposit", h.createDeposit)
		v1.GET("/orders/:id/deposit", h.getDeposit)
		v1.POST("/orders/:id/deposit/capture", h.capture)
		v1.POST("/orders/:id/deposit/void", h.void)
		v1.POST("/orders/:id/deposit/reconcile", h.reconcile)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// paymentCallback receives the gateway's asynchronous payment result.
func (h *Handler) paymentCallback(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, "0|malformed form")
		return
	}
	if rej := h.engine.HandlePaymentCallback(c.Request.Context(), c.Request.PostForm); rej != nil {
		c.String(rej.Status, "0|"+rej.Reason)
		return
	}
	c.String(http.StatusOK, "1|OK")
}

// depositCallback receives the gateway's asynchronous pre-auth result.
func (h *Handler) depositCallback(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, "0|malformed form")
		return
	}
	if rej := h.engine.HandleDepositCallback(c.Request.Context(), c.Request.PostForm); rej != nil {
		c.String(rej.Status, "0|"+rej.Reason)
		return
	}
	c.String(http.StatusOK, "1|OK")
}

// createOrder records a booking.
func (h *Handler) createOrder(c *gin.Context) {
	var req engine.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	order, err := h.engine.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"order":   order,
	})
}

// getOrder returns an order row.
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.engine.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// checkout returns the browser-redirect form payload for the rental payment.
func (h *Handler) checkout(c *gin.Context) {
	form, err := h.engine.Checkout(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"ecpay_url":      form.URL,
		"payment_params": form.Fields,
	})
}

type createDepositRequest struct {
	DepositAmount int64 `json:"deposit_amount" binding:"required,min=1"`
}

// createDeposit starts a security-deposit pre-authorization.
func (h *Handler) createDeposit(c *gin.Context) {
	var req createDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	intent, err := h.engine.CreateDeposit(c.Request.Context(), c.Param("id"), req.DepositAmount)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":           true,
		"pre_auth_order_id": intent.Deposit.TradeNo,
		"deposit_amount":    intent.Deposit.Amount,
		"ecpay_url":         intent.Form.URL,
		"payment_params":    intent.Form.Fields,
	})
}

// getDeposit returns the deposit row for an order.
func (h *Handler) getDeposit(c *gin.Context) {
	dep, err := h.engine.GetDeposit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deposit": dep})
}

type captureRequest struct {
	CaptureAmount int64 `json:"capture_amount" binding:"required,min=1"`
	Confirm       bool  `json:"confirm"`
}

// capture closes part or all of a held deposit.
func (h *Handler) capture(c *gin.Context) {
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}
	if !req.Confirm {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "capture requires confirm=true",
		})
		return
	}

	dep, err := h.engine.Capture(c.Request.Context(), c.Param("id"), req.CaptureAmount)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"captured_amount":  dep.CapturedAmount,
		"remaining_amount": dep.Remaining(),
		"status":           dep.Status,
	})
}

type voidRequest struct {
	Confirm bool `json:"confirm"`
}

// void releases an uncaptured hold.
func (h *Handler) void(c *gin.Context) {
	var req voidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
		return
	}
	if !req.Confirm {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "void requires confirm=true",
		})
		return
	}

	dep, err := h.engine.Void(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  dep.Status,
	})
}

// reconcile queries the gateway for the authoritative trade state and
// folds it into the ledger. Required after an unknown-outcome call.
func (h *Handler) reconcile(c *gin.Context) {
	result, err := h.engine.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"trade_status": result.TradeStatus,
		"applied":      result.Applied,
		"deposit":      result.Deposit,
	})
}

// fail maps engine errors to the structured {success, message} body:
// 400 for caller errors, 404 for missing records, 500 for downstream and
// concurrency failures.
func (h *Handler) fail(c *gin.Context, err error) {
	var guard *engine.GuardError
	var declined *engine.DeclinedError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &guard), errors.Is(err, engine.ErrDepositExists):
		status = http.StatusBadRequest
	case errors.As(err, &declined),
		errors.Is(err, engine.ErrUnknownOutcome),
		errors.Is(err, engine.ErrConflict):
		status = http.StatusInternalServerError
	}

	c.JSON(status, gin.H{
		"success": false,
		"message": err.Error(),
	})
}

// recovery keeps the webhook response contract intact even on panics:
// the gateway needs a "0|..." body to know to redeliver.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, _ interface{}) {
		if strings.HasPrefix(c.Request.URL.Path, "/callbacks/") {
			c.String(http.StatusInternalServerError, "0|internal error")
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "internal error",
		})
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
