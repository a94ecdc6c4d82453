package http

import (
	"context"
	"net/http"

	"github.com/dkeye/peernode/internal/adapters/signal"
	"github.com/dkeye/peernode/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func newEngine(cfg *config.Config) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	return r
}

// SetupSignalRouter mounts the signaling broker.
func SetupSignalRouter(ctx context.Context, cfg *config.Config, srv *signal.Server) *gin.Engine {
	r := newEngine(cfg)
	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("id", c.Query("id")).Msg("ws signal endpoint hit")
		srv.HandleSignal(ctx, c)
	})
	api.GET("/peers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"peers": srv.Peers()})
	})

	log.Info().Str("module", "adapters.http").Msg("signal router setup")
	return r
}

// SetupControlRouter mounts the control API of a node.
func SetupControlRouter(cfg *config.Config, ctl *Controller) *gin.Engine {
	r := newEngine(cfg)
	api := r.Group("/api")

	api.GET("/status", ctl.getStatus)

	api.GET("/calls", ctl.listCalls)
	api.POST("/calls", ctl.makeCall)
	api.POST("/calls/answer", ctl.answerCalls)
	api.DELETE("/calls/:peer", ctl.hangUp)
	api.DELETE("/calls", ctl.hangUpAll)

	api.GET("/data", ctl.listData)
	api.POST("/data/connect", ctl.connect)
	api.POST("/data/send", ctl.send)
	api.DELETE("/data/:peer", ctl.disconnect)
	api.DELETE("/data", ctl.disconnectAll)

	api.GET("/ws/events", ctl.events)

	log.Info().Str("module", "adapters.http").Msg("control router setup")
	return r
}
