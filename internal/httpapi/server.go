// Package httpapi is the session-authenticated HTTP façade over the ledger
// gateway used by the student dashboard and the admin console.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/scholarcash/internal/gateway"
	"github.com/MarkoPoloResearchLab/scholarcash/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey = "auth_claims"
	itemIDParam      = "id"

	errorUnauthorized  = "unauthorized"
	errorInvalidBody   = "invalid_payload"
	messageNoSession   = "missing session"
	messageExpectedObj = "expected JSON body"
)

// Server serves the HTTP API.
type Server struct {
	cfg     Config
	logger  *zap.Logger
	handler *httpHandler
	router  *gin.Engine
}

// New validates cfg and builds the router.
func New(cfg Config, ledgerGateway *gateway.Gateway, collector *metrics.Metrics, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ledgerGateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("session validator: %w", err)
	}
	handler := &httpHandler{
		logger:  logger,
		gateway: ledgerGateway,
		cfg:     cfg,
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		router:  setupRouter(cfg, handler, sessionValidator, collector),
	}, nil
}

// Handler exposes the router, mainly for tests.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              server.cfg.ListenAddr,
		Handler:           server.router,
		ReadHeaderTimeout: server.cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownWait)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator, collector *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if collector != nil {
		router.Use(collector.GinMiddleware())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if collector != nil {
		router.GET("/metrics", gin.WrapH(collector.Handler()))
	}

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))

	api.GET("/session", handler.handleSession)
	api.POST("/bootstrap", handler.handleBootstrap)
	api.GET("/wallet", handler.handleWallet)
	api.GET("/items", handler.handleItems)
	api.POST("/purchases", handler.handlePurchase)

	admin := api.Group("/admin")
	admin.POST("/identities", handler.handleProvision)
	admin.GET("/wallets", handler.handleWallets)
	admin.POST("/credits", handler.handleCredit)
	admin.POST("/refunds", handler.handleRefund)
	admin.POST("/penalties", handler.handlePenalty)
	admin.GET("/items", handler.handleCatalog)
	admin.POST("/items", handler.handleAddItem)
	admin.PATCH("/items/:"+itemIDParam, handler.handleUpdateItem)
	admin.DELETE("/items/:"+itemIDParam, handler.handleRemoveItem)
	admin.GET("/low-stock", handler.handleLowStock)
	admin.GET("/ledger", handler.handleLedger)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	gateway *gateway.Gateway
	cfg     Config
}

func (handler *httpHandler) handleSession(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":    claims.GetUserID(),
		"email":      claims.GetUserEmail(),
		"display":    claims.GetUserDisplayName(),
		"avatar_url": claims.GetUserAvatarURL(),
		"roles":      claims.GetUserRoles(),
		"expires":    claims.GetExpiresAt().Unix(),
	})
}

// handleBootstrap provisions the session user as a student on first visit.
func (handler *httpHandler) handleBootstrap(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	identity, err := handler.gateway.EnsureStudent(requestCtx, gateway.IdentityRequest{IdentityID: claims.GetUserID()})
	if err != nil {
		handler.respondError(ctx, "bootstrap", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"identity": identity})
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	dashboard, err := handler.gateway.Dashboard(requestCtx, gateway.IdentityRequest{IdentityID: claims.GetUserID()})
	if err != nil {
		handler.respondError(ctx, "wallet", err)
		return
	}
	ctx.JSON(http.StatusOK, dashboard)
}

func (handler *httpHandler) handleItems(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	items, err := handler.gateway.ListItems(requestCtx, gateway.ActorRequest{})
	if err != nil {
		handler.respondError(ctx, "items", err)
		return
	}
	ctx.JSON(http.StatusOK, items)
}

func (handler *httpHandler) handlePurchase(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	var request gateway.PurchaseRequest
	if !bindJSON(ctx, &request) {
		return
	}
	request.StudentID = claims.GetUserID()
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	receipt, err := handler.gateway.Purchase(requestCtx, request)
	if err != nil {
		handler.respondError(ctx, "purchase", err)
		return
	}
	ctx.JSON(http.StatusOK, receipt)
}

func (handler *httpHandler) handleProvision(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	var request gateway.ProvisionRequest
	if !bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.gateway.AuthorizeAdmin(requestCtx, gateway.ActorRequest{ActorID: claims.GetUserID()}); err != nil {
		handler.respondError(ctx, "provision", err)
		return
	}
	identity, err := handler.gateway.ProvisionIdentity(requestCtx, request)
	if err != nil {
		handler.respondError(ctx, "provision", err)
		return
	}
	ctx.JSON(http.StatusCreated, identity)
}

func (handler *httpHandler) handleWallets(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	wallets, err := handler.gateway.Wallets(requestCtx, gateway.ActorRequest{ActorID: claims.GetUserID()})
	if err != nil {
		handler.respondError(ctx, "wallets", err)
		return
	}
	ctx.JSON(http.StatusOK, wallets)
}

func (handler *httpHandler) handleCredit(ctx *gin.Context) {
	handler.handleAdjustment(ctx, "credit", handler.gateway.Credit)
}

func (handler *httpHandler) handleRefund(ctx *gin.Context) {
	handler.handleAdjustment(ctx, "refund", handler.gateway.Refund)
}

func (handler *httpHandler) handlePenalty(ctx *gin.Context) {
	handler.handleAdjustment(ctx, "penalty", handler.gateway.Penalty)
}

func (handler *httpHandler) handleAdjustment(ctx *gin.Context, operation string, call func(context.Context, gateway.AdjustmentRequest) (gateway.ReceiptView, error)) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	var request gateway.AdjustmentRequest
	if !bindJSON(ctx, &request) {
		return
	}
	request.ActorID = claims.GetUserID()
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	receipt, err := call(requestCtx, request)
	if err != nil {
		handler.respondError(ctx, operation, err)
		return
	}
	ctx.JSON(http.StatusOK, receipt)
}

func (handler *httpHandler) handleCatalog(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	items, err := handler.gateway.ListItems(requestCtx, gateway.ActorRequest{ActorID: claims.GetUserID()})
	if err != nil {
		handler.respondError(ctx, "catalog", err)
		return
	}
	ctx.JSON(http.StatusOK, items)
}

func (handler *httpHandler) handleAddItem(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	var request gateway.ItemRequest
	if !bindJSON(ctx, &request) {
		return
	}
	request.ActorID = claims.GetUserID()
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	item, err := handler.gateway.AddItem(requestCtx, request)
	if err != nil {
		handler.respondError(ctx, "add_item", err)
		return
	}
	ctx.JSON(http.StatusCreated, item)
}

func (handler *httpHandler) handleUpdateItem(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	var request gateway.ItemUpdateRequest
	if !bindJSON(ctx, &request) {
		return
	}
	request.ActorID = claims.GetUserID()
	request.ItemID = ctx.Param(itemIDParam)
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	item, err := handler.gateway.UpdateItem(requestCtx, request)
	if err != nil {
		handler.respondError(ctx, "update_item", err)
		return
	}
	ctx.JSON(http.StatusOK, item)
}

func (handler *httpHandler) handleRemoveItem(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	item, err := handler.gateway.RemoveItem(requestCtx, gateway.ItemRemovalRequest{
		ActorID: claims.GetUserID(),
		ItemID:  ctx.Param(itemIDParam),
	})
	if err != nil {
		handler.respondError(ctx, "remove_item", err)
		return
	}
	ctx.JSON(http.StatusOK, item)
}

func (handler *httpHandler) handleLowStock(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	threshold := handler.cfg.LowStockThreshold
	if raw := ctx.Query("threshold"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(gateway.ErrorInvalidThreshold, "threshold must be an integer", nil))
			return
		}
		threshold = parsed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	items, err := handler.gateway.LowStock(requestCtx, gateway.LowStockRequest{ActorID: claims.GetUserID(), Threshold: threshold})
	if err != nil {
		handler.respondError(ctx, "low_stock", err)
		return
	}
	ctx.JSON(http.StatusOK, items)
}

func (handler *httpHandler) handleLedger(ctx *gin.Context) {
	claims, ok := requireClaims(ctx)
	if !ok {
		return
	}
	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(gateway.ErrorInvalidLimit, "limit must be an integer", nil))
			return
		}
		limit = parsed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.gateway.LedgerActivity(requestCtx, gateway.ActivityRequest{ActorID: claims.GetUserID(), Limit: limit})
	if err != nil {
		handler.respondError(ctx, "ledger", err)
		return
	}
	ctx.JSON(http.StatusOK, entries)
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	code, class := gateway.Classify(err)
	statusCode := statusFor(class)
	if statusCode == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
		ctx.JSON(statusCode, errorResponse(code, "ledger unavailable", nil))
		return
	}
	ctx.JSON(statusCode, errorResponse(code, err.Error(), gateway.FailureDetails(err)))
}

func statusFor(class gateway.Class) int {
	switch class {
	case gateway.ClassInvalid:
		return http.StatusBadRequest
	case gateway.ClassNotFound:
		return http.StatusNotFound
	case gateway.ClassRejected:
		return http.StatusUnprocessableEntity
	case gateway.ClassForbidden:
		return http.StatusForbidden
	case gateway.ClassConflict, gateway.ClassRetryable:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidBody, messageExpectedObj, nil))
		return false
	}
	return true
}

func requireClaims(ctx *gin.Context) (*sessionvalidator.Claims, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, messageNoSession, nil))
		return nil, false
	}
	return claims, true
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func errorResponse(code string, message string, details map[string]any) gin.H {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	return gin.H{"error": body}
}
