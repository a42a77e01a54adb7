package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/qpubinder/internal/database"
	"github.com/aristath/qpubinder/internal/modules/catalog"
	"github.com/aristath/qpubinder/internal/scheduler"
)

// SystemHandlers serves process, catalog and job status
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	store       *catalog.Store
	scheduler   *scheduler.Scheduler
	databases   []*database.DB
}

// NewSystemHandlers creates a new system handlers instance.
// store, sched and databases may be nil or empty.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	store *catalog.Store,
	sched *scheduler.Scheduler,
	databases []*database.DB,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("service", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		store:       store,
		scheduler:   sched,
		databases:   databases,
	}
}

// SystemStatusResponse represents the process and catalog status
type SystemStatusResponse struct {
	Status          string  `json:"status"` // "healthy" or "degraded"
	UptimeSeconds   float64 `json:"uptime_seconds"`
	Goroutines      int     `json:"goroutines"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryPercent   float64 `json:"memory_percent"`
	CatalogVersion  uint64  `json:"catalog_version"`
	CatalogSource   string  `json:"catalog_source,omitempty"`
	CatalogLoadedAt string  `json:"catalog_loaded_at,omitempty"`
	QPUCount        int     `json:"qpu_count"`
	AvailableQPUs   int     `json:"available_qpus"`
}

// DBInfo describes one database file
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	DataDirMB   float64  `json:"data_dir_mb"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// JobsStatusResponse represents scheduler job status
type JobsStatusResponse struct {
	TotalJobs int                   `json:"total_jobs"`
	Jobs      []scheduler.JobStatus `json:"jobs"`
}

// GetSystemStatusSnapshot collects the current status
func (h *SystemHandlers) GetSystemStatusSnapshot() SystemStatusResponse {
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
	}

	if h.store == nil {
		return response
	}
	snap, err := h.store.Current()
	if err != nil {
		response.Status = "degraded"
		return response
	}

	response.CatalogVersion = snap.Version
	response.CatalogSource = snap.Source
	response.CatalogLoadedAt = snap.LoadedAt.Format(time.RFC3339)
	response.QPUCount = len(snap.QPUs)
	for _, q := range snap.QPUs {
		if q.Available {
			response.AvailableQPUs++
		}
	}
	return response
}

// HandleSystemStatus returns system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")
	h.writeJSON(w, http.StatusOK, h.GetSystemStatusSnapshot())
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		Databases:   []DBInfo{},
		DataDirMB:   h.getDirSize(h.dataDir),
		LastChecked: time.Now().Format(time.RFC3339),
	}

	for _, db := range h.databases {
		if db == nil {
			continue
		}
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}
		info := DBInfo{
			Name:      db.Name(),
			Path:      db.Path(),
			SizeMB:    float64(stats.SizeBytes) / 1024 / 1024,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount: stats.PageCount,
		}
		response.TotalSizeMB += info.SizeMB + info.WALSizeMB
		response.Databases = append(response.Databases, info)
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleJobsStatus lists registered background jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	response := JobsStatusResponse{Jobs: []scheduler.JobStatus{}}
	if h.scheduler != nil {
		response.Jobs = h.scheduler.Jobs()
	}
	response.TotalJobs = len(response.Jobs)

	h.writeJSON(w, http.StatusOK, response)
}

// HandleTriggerJob runs a registered job immediately
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.scheduler == nil {
		http.Error(w, "Scheduler not running", http.StatusServiceUnavailable)
		return
	}

	job, ok := h.scheduler.Lookup(name)
	if !ok {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	start := time.Now()
	if err := h.scheduler.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Triggered job failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status": "error",
			"job":    name,
			"error":  err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"job":         name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	if dirPath == "" {
		return 0
	}
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages over a short interval
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
