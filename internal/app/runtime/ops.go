package runtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/proteinlens/proteinlens/internal/app/metrics"
	"github.com/proteinlens/proteinlens/internal/app/storage/rediscache"
)

const readinessProbeTimeout = 2 * time.Second

// newOpsHandler serves the operational endpoints on the ops listener:
// Prometheus metrics, liveness and readiness probes, a host resource
// snapshot, and the pprof suite under /debug/pprof.
func newOpsHandler(db *sql.DB, cache *rediscache.Cache) http.Handler {
	r := chi.NewRouter()

	r.Handle("/metrics", metrics.Handler())
	r.Get("/health/live", handleLive)
	r.Get("/health/ready", handleReady(db, cache))
	r.Get("/health/system", handleSystem)
	r.Mount("/debug", chimw.Profiler())

	return r
}

func handleLive(w http.ResponseWriter, r *http.Request) {
	writeOpsJSON(w, http.StatusOK, map[string]any{"status": "alive"})
}

// handleReady probes the configured backends. A deployment without a
// database or cache reports ready; only a configured backend that fails
// its probe turns the endpoint unhealthy.
func handleReady(db *sql.DB, cache *rediscache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessProbeTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = err.Error()
				healthy = false
			} else {
				checks["database"] = "ok"
			}
		}
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				checks["cache"] = err.Error()
				healthy = false
			} else {
				checks["cache"] = "ok"
			}
		}

		status := http.StatusOK
		body := map[string]any{"status": "ready", "checks": checks}
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
		}
		writeOpsJSON(w, status, body)
	}
}

// handleSystem reports a best-effort snapshot of host resources. A
// collector that fails contributes an error string instead of failing
// the whole endpoint.
func handleSystem(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}

	if percents, err := cpu.Percent(0, false); err != nil {
		body["cpu_error"] = err.Error()
	} else if len(percents) > 0 {
		body["cpu_percent"] = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		body["memory_error"] = err.Error()
	} else {
		body["memory"] = map[string]any{
			"total_bytes":  vm.Total,
			"used_bytes":   vm.Used,
			"used_percent": vm.UsedPercent,
		}
	}

	if du, err := disk.Usage("/"); err != nil {
		body["disk_error"] = err.Error()
	} else {
		body["disk"] = map[string]any{
			"total_bytes":  du.Total,
			"used_bytes":   du.Used,
			"used_percent": du.UsedPercent,
		}
	}

	if uptime, err := host.Uptime(); err != nil {
		body["uptime_error"] = err.Error()
	} else {
		body["uptime_seconds"] = uptime
	}

	writeOpsJSON(w, http.StatusOK, body)
}

func writeOpsJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
