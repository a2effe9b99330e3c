package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fableforge/avatard/internal/cache"
	"github.com/fableforge/avatard/internal/database"
	"github.com/fableforge/avatard/internal/parts"
	"github.com/fableforge/avatard/internal/render"
	"github.com/fableforge/avatard/internal/storage"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// AdminHandler serves the health, cache and queue control endpoints.
type AdminHandler struct {
	db          database.Client
	results     *cache.Result
	loader      *parts.Loader
	coordinator *render.Coordinator
	store       *storage.Client
	logger      *zap.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(
	db database.Client, results *cache.Result, loader *parts.Loader,
	coordinator *render.Coordinator, store *storage.Client, logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		db:          db,
		results:     results,
		loader:      loader,
		coordinator: coordinator,
		store:       store,
		logger:      logger.Named("admin_handler"),
	}
}

// tierStatus reports one cache's memory and disk tiers.
type tierStatus struct {
	Memory cache.MemoryStats `json:"memory"`
	Disk   int               `json:"disk"`
}

// healthResponse is the /health body.
type healthResponse struct {
	Status      string       `json:"status"`
	Database    bool         `json:"database"`
	ObjectStore string       `json:"objectStore"`
	ResultCache tierStatus   `json:"resultCache"`
	PartCache   tierStatus   `json:"partCache"`
	Queue       render.Stats `json:"queue"`
}

// Health reports readiness plus cache and queue statistics. The database is
// the only hard dependency; an open object-store breaker degrades the status
// but the service can still serve cached bytes.
func (h *AdminHandler) Health(w http.ResponseWriter, req bunrouter.Request) error {
	pingCtx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	dbOK := h.db.DB().PingContext(pingCtx) == nil

	storeState := "closed"
	if h.store.Open() {
		storeState = "open"
	}

	response := healthResponse{
		Status:      "ok",
		Database:    dbOK,
		ObjectStore: storeState,
		ResultCache: tierStatus{Memory: h.results.MemoryStats(), Disk: h.results.DiskCount()},
		PartCache:   tierStatus{Memory: h.loader.MemoryStats(), Disk: h.loader.DiskCount()},
		Queue:       h.coordinator.Stats(),
	}

	if !dbOK {
		response.Status = "unavailable"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else if storeState == "open" {
		response.Status = "degraded"
	}

	return bunrouter.JSON(w, response)
}

// clearResponse is the /clear-cache summary.
type clearResponse struct {
	CancelledJobs int `json:"cancelledJobs"`
	ResultMemory  int `json:"resultMemory"`
	ResultDisk    int `json:"resultDisk"`
	PartMemory    int `json:"partMemory"`
	PartDisk      int `json:"partDisk"`
}

// ClearCache cancels every queued and running render, then purges both local
// cache pairs. The remote store and the user records are untouched.
func (h *AdminHandler) ClearCache(w http.ResponseWriter, _ bunrouter.Request) error {
	cancelled := h.coordinator.Clear()
	resultMemory, resultDisk := h.results.Purge()
	partMemory, partDisk := h.loader.Purge()

	h.logger.Info("Cleared caches",
		zap.Int("cancelledJobs", cancelled),
		zap.Int("resultMemory", resultMemory),
		zap.Int("resultDisk", resultDisk),
		zap.Int("partMemory", partMemory),
		zap.Int("partDisk", partDisk))

	return bunrouter.JSON(w, clearResponse{
		CancelledJobs: cancelled,
		ResultMemory:  resultMemory,
		ResultDisk:    resultDisk,
		PartMemory:    partMemory,
		PartDisk:      partDisk,
	})
}

// QueueStats returns the coordinator snapshot.
func (h *AdminHandler) QueueStats(w http.ResponseWriter, _ bunrouter.Request) error {
	return bunrouter.JSON(w, h.coordinator.Stats())
}

// PauseQueue stops workers from picking up new jobs.
func (h *AdminHandler) PauseQueue(w http.ResponseWriter, _ bunrouter.Request) error {
	h.coordinator.Pause()
	return bunrouter.JSON(w, h.coordinator.Stats())
}

// ResumeQueue lets workers pick up jobs again.
func (h *AdminHandler) ResumeQueue(w http.ResponseWriter, _ bunrouter.Request) error {
	h.coordinator.Resume()
	return bunrouter.JSON(w, h.coordinator.Stats())
}
