package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/di"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/fx"
	"github.com/aristath/folio/internal/modules/gurus"
	"github.com/aristath/folio/internal/modules/scan"
	"github.com/aristath/folio/internal/modules/snapshots"
	"github.com/aristath/folio/internal/prewarm"
	"github.com/aristath/folio/internal/reliability"
)

// SystemHandlers serves the cross-cutting endpoints: status, fear & greed,
// prewarm state, the webhook, and the admin operations.
type SystemHandlers struct {
	log       zerolog.Logger
	cfg       *config.Config
	db        *database.DB
	fabric    *cache.Fabric
	market    marketMood
	warmer    *prewarm.Warmer
	scans     *scan.Service
	digest    *scan.Digest
	snapshots *snapshots.Service
	fxmon     *fx.Monitor
	gurus     *gurus.Service
	backups   *reliability.BackupService
	offsite   *reliability.OffsiteBackup
	startedAt time.Time
}

// marketMood is the slice of the provider router the mood endpoint needs.
type marketMood interface {
	FearGreed(ctx context.Context) domain.FearGreed
}

// NewSystemHandlers creates the system handlers from the wired container.
func NewSystemHandlers(log zerolog.Logger, cfg *config.Config, c *di.Container) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		cfg:       cfg,
		db:        c.DB,
		fabric:    c.Fabric,
		market:    c.Market,
		warmer:    c.Warmer,
		scans:     c.Scans,
		digest:    c.Digest,
		snapshots: c.Snapshots,
		fxmon:     c.FXMonitor,
		gurus:     c.Gurus,
		backups:   c.Backups,
		offsite:   c.Offsite,
		startedAt: time.Now(),
	}
}

// SystemStatusResponse is the body of GET /api/system/status.
type SystemStatusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	Disk          DiskUsage         `json:"disk"`
	Database      *database.Stats   `json:"database,omitempty"`
	Cache         cache.FabricStats `json:"cache"`
	PrewarmReady  bool              `json:"prewarm_ready"`
	AuthEnabled   bool              `json:"auth_enabled"`
}

// DiskUsage reports how much space folio's directories take and how much
// the volume has left.
type DiskUsage struct {
	DataDirMB float64 `json:"data_dir_mb"`
	BackupsMB float64 `json:"backups_mb"`
	FreeMB    float64 `json:"free_mb"`
}

// HandleSystemStatus handles GET /api/system/status. Collection failures
// degrade individual fields rather than failing the endpoint.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.systemStats()

	resp := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPct,
		MemoryPercent: memPct,
		Disk: DiskUsage{
			DataDirMB: h.dirSizeMB(h.cfg.DataDir),
			BackupsMB: h.dirSizeMB(filepath.Join(h.cfg.DataDir, "backups")),
		},
		Cache:        h.fabric.Stats(),
		PrewarmReady: h.warmer.Ready(),
		AuthEnabled:  h.cfg.AuthEnabled(),
	}

	if usage, err := disk.Usage(h.cfg.DataDir); err == nil {
		resp.Disk.FreeMB = float64(usage.Free) / 1024 / 1024
	} else {
		h.log.Warn().Err(err).Msg("failed to read disk usage")
	}

	if stats, err := h.db.GetStats(); err == nil {
		resp.Database = stats
	} else {
		h.log.Warn().Err(err).Msg("failed to read database stats")
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// systemStats samples CPU and memory. The CPU sample uses a 100ms window so
// the endpoint answers fast.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuAvg := 0.0
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to get CPU percentage")
	} else if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to get memory statistics")
		return cpuAvg, 0
	}

	return cpuAvg, memStat.UsedPercent
}

// dirSizeMB calculates the total size of a directory in MB.
func (h *SystemHandlers) dirSizeMB(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// HandleFearGreed handles GET /api/market/fear-greed. A degraded composite
// comes back with level N/A and no score, never an error.
func (h *SystemHandlers) HandleFearGreed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.market.FearGreed(r.Context()))
}

// HandlePrewarmStatus handles GET /api/prewarm-status.
func (h *SystemHandlers) HandlePrewarmStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.warmer.Status())
}

// HandleCacheClear handles POST /api/admin/cache/clear. Both tiers are
// dropped; the next reads fall through to the providers.
func (h *SystemHandlers) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	before := h.fabric.Stats()
	h.fabric.Clear()
	h.log.Info().Int("l1_entries", before.L1Entries).Msg("cache cleared by request")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "cleared",
		"dropped": before.L1Entries,
	})
}

// HandleBackup handles POST /api/admin/backup. With R2 configured the
// archive ships off-site; otherwise a local daily-tier copy is written.
func (h *SystemHandlers) HandleBackup(w http.ResponseWriter, r *http.Request) {
	if h.offsite != nil {
		archive, err := h.offsite.CreateAndUpload(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "uploaded",
			"archive": archive,
		})
		return
	}

	if err := h.backups.DailyBackup(); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "saved",
		"tier":   "daily",
	})
}

// Webhook actions.
const (
	actionScan         = "scan"
	actionDigest       = "digest"
	actionTakeSnapshot = "take_snapshot"
	actionFXCheck      = "fx_check"
	actionPrewarm      = "prewarm"
	actionGuruSync     = "guru_sync"
)

// HandleWebhook handles POST /api/webhook. One endpoint for external
// automations: the action picks the operation, long-running ones detach
// and answer 202.
func (h *SystemHandlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	switch req.Action {
	case actionScan:
		runID, err := h.scans.Start()
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status": "started",
			"action": req.Action,
			"run_id": runID,
		})

	case actionDigest:
		runID, err := h.digest.Start()
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status": "started",
			"action": req.Action,
			"run_id": runID,
		})

	case actionTakeSnapshot:
		snapshot, err := h.snapshots.TakeDailySnapshot(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"action":   req.Action,
			"snapshot": snapshot,
		})

	case actionFXCheck:
		result, err := h.fxmon.AlertAll(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"action": req.Action,
			"result": result,
		})

	case actionPrewarm:
		go func() {
			if _, err := h.warmer.Run(context.Background()); err != nil {
				h.log.Warn().Err(err).Msg("webhook prewarm failed")
			}
		}()
		h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status": "started",
			"action": req.Action,
		})

	case actionGuruSync:
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
			defer cancel()
			if _, err := h.gurus.SyncAll(ctx); err != nil {
				h.log.Warn().Err(err).Msg("webhook guru sync failed")
			}
		}()
		h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status": "started",
			"action": req.Action,
		})

	default:
		h.writeError(w, domain.Validationf(
			"unknown action %q (want scan, digest, take_snapshot, fx_check, prewarm or guru_sync)", req.Action))
	}
}

// writeJSON writes a JSON response.
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps an error onto the transport taxonomy.
func (h *SystemHandlers) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		h.log.Error().Err(err).Msg("internal error")
	}
	h.writeJSON(w, kind.HTTPStatus(), map[string]interface{}{
		"error_code": string(kind),
		"detail":     domain.DetailOf(err),
	})
}
