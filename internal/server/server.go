package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/handlers"
)

type Server struct {
	config   *config.Config
	router   *gin.Engine
	handlers *handlers.Handlers
	httpSrv  *http.Server
}

func New(h *handlers.Handlers, cfg *config.Config) *Server {
	router := gin.Default()

	s := &Server{
		config:   cfg,
		router:   router,
		handlers: h,
	}

	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.Health)
	s.router.GET("/ready", s.handlers.Ready)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.POST("/webhooks/gateway", s.handlers.GatewayWebhook)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/checkout", s.handlers.Checkout)

		v1.POST("/orders", s.handlers.CreateOrder)
		v1.GET("/orders/:id", s.handlers.GetOrder)
		v1.GET("/orders", s.handlers.ListOrders)
		v1.PATCH("/orders/:id/status", s.handlers.UpdateOrderStatus)

		v1.POST("/payouts/process", s.handlers.ProcessPayouts)
		v1.POST("/payouts/sellers/:id", s.handlers.ProcessSellerPayout)
		v1.GET("/payouts/eligible", s.handlers.GetEligibleSellers)
		v1.GET("/payouts/report", s.handlers.PayoutReport)
		v1.POST("/payouts/:id/cancel", s.handlers.CancelPayout)
		v1.POST("/payouts/:id/retry", s.handlers.RetryPayout)

		v1.GET("/incidents", s.handlers.ListIncidents)
		v1.POST("/incidents/:id/resolve", s.handlers.ResolveIncident)
	}
}

func (s *Server) Start() error {
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
