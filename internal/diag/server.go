// Package diag exposes a read-only local status endpoint for poking at a
// running client.
package diag

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/vijayvir/ScreenAiClient-sub000/internal/client"
)

func SetupRouter(app *client.App) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.Status())
	})
	api.GET("/buffers", func(c *gin.Context) {
		st := app.Status()
		c.JSON(http.StatusOK, gin.H{
			"send":   st.Send,
			"recv":   st.Recv,
			"jitter": st.Jitter,
		})
	})
	return r
}

// Serve runs the endpoint on localhost until ctx is cancelled. Port 0
// means the endpoint is disabled and Serve returns at once.
func Serve(ctx context.Context, app *client.App, port int) {
	if port <= 0 {
		return
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: SetupRouter(app),
	}
	go func() {
		log.Info().Str("module", "diag").Str("addr", srv.Addr).Msg("diagnostics endpoint up")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("module", "diag").Msg("diagnostics server error")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
