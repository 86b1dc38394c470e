/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pix-deposit-go/internal/api"
	"pix-deposit-go/internal/models"
	"pix-deposit-go/internal/policy"
	"pix-deposit-go/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the front-end is served from a different origin in development
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Config struct {
	Sessions *session.Manager
	Wallets  *api.WalletService
	Policy   *policy.Policy
	Hub      *Hub
	Metrics  http.Handler // nil disables /metrics
	ChainId  int64
}

// Server is the HTTP and websocket surface a web front-end drives
type Server struct {
	cfg        Config
	router     *gin.Engine
	httpServer *http.Server
}

func New(cfg Config) (*Server, error) {
	if cfg.Sessions == nil || cfg.Wallets == nil || cfg.Policy == nil {
		return nil, fmt.Errorf("sessions, wallets and policy are required")
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{cfg: cfg, router: router}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)
	if s.cfg.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.cfg.Metrics))
	}

	v1 := s.router.Group("/v1")
	{
		v1.GET("/quote", s.quote)

		wallets := v1.Group("/wallets/:address")
		{
			wallets.GET("/balance", s.getBalance)
			wallets.GET("/transactions", s.getTransactions)
			wallets.GET("/receipts", s.listReceipts)
		}

		v1.GET("/receipts/:hash", s.getReceipt)

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", s.createSession)
			sessions.GET("/:id", s.getSession)
			sessions.DELETE("/:id", s.closeSession)
			sessions.POST("/:id/asset", s.setAsset)
			sessions.POST("/:id/amount", s.setAmount)
			sessions.POST("/:id/charge", s.generateCharge)
			sessions.POST("/:id/paid", s.markPaid)
			sessions.POST("/:id/cancel", s.cancelSession)
			sessions.GET("/:id/events", s.events)
		}
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 20 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		zap.L().Info("Starting server", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("Shutdown signal received, shutting down server")
	s.cfg.Sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	zap.L().Info("Server exited gracefully")
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) health(c *gin.Context) {
	if err := s.cfg.Wallets.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "pix-deposit",
		"sessions":  s.cfg.Sessions.Len(),
		"timestamp": time.Now(),
	})
}

func (s *Server) events(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.cfg.Sessions.Get(id); err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	s.cfg.Hub.Serve(id, conn)
}

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	var bound *policy.BoundError
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, api.ErrReceiptNotFound):
		return http.StatusNotFound
	case errors.As(err, &bound),
		errors.Is(err, session.ErrNoAmount),
		errors.Is(err, session.ErrNoAsset),
		errors.Is(err, session.ErrWrongChain),
		errors.Is(err, session.ErrWalletNotConnected),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrChargeInProgress),
		errors.Is(err, session.ErrChargeExpired),
		errors.Is(err, session.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

var errBadRequest = errors.New("bad request")

func writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	msg := session.UserMessage(err)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		msg = "Deposit session not found"
	case errors.Is(err, api.ErrReceiptNotFound):
		msg = "Receipt not found"
	case errors.Is(err, errBadRequest):
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func wallet(address string, chainId int64) models.StaticWallet {
	return models.StaticWallet{Addr: address, Chain: chainId, Connect: address != ""}
}
