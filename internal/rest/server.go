// Package rest wires the HTTP routes to their handlers.
package rest

import (
	"net/http"

	"github.com/fableforge/avatard/internal/cache"
	"github.com/fableforge/avatard/internal/database"
	"github.com/fableforge/avatard/internal/parts"
	"github.com/fableforge/avatard/internal/render"
	"github.com/fableforge/avatard/internal/rest/handler"
	"github.com/fableforge/avatard/internal/storage"
	"github.com/klauspost/compress/gzhttp"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Server implements the avatar HTTP service.
type Server struct {
	avatarHandler *handler.AvatarHandler
	adminHandler  *handler.AdminHandler
}

// NewServer creates the router with all routes attached.
func NewServer(
	db database.Client, results *cache.Result, loader *parts.Loader,
	coordinator *render.Coordinator, store *storage.Client, logger *zap.Logger,
) (http.Handler, error) {
	defaults, err := handler.NewDefaults()
	if err != nil {
		return nil, err
	}

	server := &Server{
		avatarHandler: handler.NewAvatarHandler(db.Users(), results, coordinator, store, defaults, logger),
		adminHandler:  handler.NewAdminHandler(db, results, loader, coordinator, store, logger),
	}

	router := bunrouter.New()

	router.GET("/", func(w http.ResponseWriter, _ bunrouter.Request) error {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))

		return nil
	})

	router.GET("/health", server.adminHandler.Health)
	router.GET("/avatar/:type/:file", server.avatarHandler.GetAvatar)
	router.GET("/clear-cache", server.adminHandler.ClearCache)
	router.GET("/queue/stats", server.adminHandler.QueueStats)
	router.POST("/queue/pause", server.adminHandler.PauseQueue)
	router.POST("/queue/resume", server.adminHandler.ResumeQueue)

	// Add gzip compression
	return gzhttp.GzipHandler(router), nil
}
