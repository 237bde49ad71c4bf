// Package server expõe a checagem por HTTP para o bot do grupo: uma execução
// por vez, síncrona, resposta em JSON.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/iZcy/kkn-script-presensi/internal/attendance"
	"github.com/iZcy/kkn-script-presensi/internal/portal"
	"github.com/iZcy/kkn-script-presensi/pkg/metrics"
	"github.com/iZcy/kkn-script-presensi/pkg/runlock"
	"github.com/rs/zerolog"
)

const busyMessage = "A check is already in progress. Please wait."

// RunFunc executa uma checagem completa (normalmente batch.Runner.Run).
type RunFunc func(ctx context.Context, cred portal.Credential) (*attendance.Run, error)

type Server struct {
	run     RunFunc
	coord   runlock.Coordinator
	metrics *metrics.Recorder
	log     zerolog.Logger
}

func New(run RunFunc, coord runlock.Coordinator, m *metrics.Recorder, log zerolog.Logger) *Server {
	if coord == nil {
		coord = runlock.NewLocal()
	}
	return &Server{
		run:     run,
		coord:   coord,
		metrics: m,
		log:     log.With().Str("component", "server").Logger(),
	}
}

type checkRequest struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	r.Use(cors.New(config))

	r.GET("/health", s.Health)
	r.POST("/check", s.Check)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return r
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Check roda uma checagem com as credenciais do formulário. Uma segunda
// requisição durante uma execução é recusada na hora com 409.
func (s *Server) Check(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	ctx := c.Request.Context()
	release, ok, err := s.coord.TryAcquire(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Erro consultando o coordenador de execuções")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run coordinator unavailable"})
		return
	}
	if !ok {
		s.metrics.Inc(ctx, metrics.RunsRejectedTotal)
		c.JSON(http.StatusConflict, gin.H{"error": busyMessage})
		return
	}
	defer release()

	run, err := s.run(ctx, portal.Credential{Username: req.Username, Password: req.Password})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, portal.ErrPortalUnreachable) ||
			errors.Is(err, portal.ErrFormNotFound) ||
			errors.Is(err, portal.ErrCaptchaExhausted) {
			status = http.StatusBadGateway
		}
		s.log.Error().Err(err).Int("status", status).Msg("Checagem falhou")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":  run.ID,
		"date":    run.Date,
		"results": run.Records(),
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
