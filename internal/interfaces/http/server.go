package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/infrastructure/monitoring"
	"github.com/germinal-ai/germinal/internal/interfaces/http/handlers"
	"github.com/germinal-ai/germinal/pkg/safego"
)

// Config HTTP服务器配置
type Config struct {
	Host        string
	Port        int
	UnixSocket  string // "" = TCP only
	RequireAuth bool
	APIKey      string
	Mode        string // debug, production
}

// Server HTTP 前端: OpenAI 兼容接口 + 健康检查 + 指标
type Server struct {
	config     Config
	tcpServer  *http.Server
	unixServer *http.Server
	logger     *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(cfg Config, openai *handlers.OpenAIHandler, monitor *monitoring.Monitor, logger *zap.Logger) *Server {
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	// 健康检查与指标不需要认证
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if monitor != nil {
		router.GET("/metrics", gin.WrapH(monitor.PrometheusHandler()))
	}

	// OpenAI-compatible API
	v1 := router.Group("/v1")
	if cfg.RequireAuth {
		v1.Use(bearerAuth(cfg.APIKey))
	}
	v1.GET("/models", openai.ListModels)
	v1.POST("/chat/completions", openai.ChatCompletions)

	// Catch-all 404 in the same JSON error shape the API uses.
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"message": fmt.Sprintf("No route matched %s %q. Available routes: GET /health, GET /v1/models, POST /v1/chat/completions", c.Request.Method, c.Request.URL.Path),
				"type":    "not_found",
			},
		})
	})

	s := &Server{
		config: cfg,
		logger: logger.With(zap.String("component", "http-server")),
	}
	s.tcpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: router,
	}
	if cfg.UnixSocket != "" {
		s.unixServer = &http.Server{Handler: router}
	}
	return s
}

// Start 启动监听
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.tcpServer.Addr))
	safego.Go(s.logger, "http-tcp", func() {
		if err := s.tcpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	})

	if s.unixServer != nil {
		// Remove a stale socket file from a previous run so the bind succeeds.
		if err := os.Remove(s.config.UnixSocket); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale socket: %w", err)
		}
		listener, err := net.Listen("unix", s.config.UnixSocket)
		if err != nil {
			return fmt.Errorf("listen on unix socket: %w", err)
		}
		s.logger.Info("Listening on unix socket", zap.String("path", s.config.UnixSocket))
		safego.Go(s.logger, "http-unix", func() {
			if err := s.unixServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				s.logger.Error("Unix socket server error", zap.Error(err))
			}
		})
	}
	return nil
}

// Stop 关闭监听并清理 socket 文件
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	err := s.tcpServer.Shutdown(ctx)
	if s.unixServer != nil {
		if uerr := s.unixServer.Shutdown(ctx); uerr != nil && err == nil {
			err = uerr
		}
		_ = os.Remove(s.config.UnixSocket)
	}
	return err
}

// bearerAuth 认证中间件
func bearerAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != apiKey {
			c.Header("WWW-Authenticate", `Bearer realm="orchestrator"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"message": "Invalid or missing API key.",
					"type":    "authentication_error",
				},
			})
			return
		}
		c.Next()
	}
}

// ginLogger Gin日志中间件
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
