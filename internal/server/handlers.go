package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/opportunity-forecast/internal/database"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthResponse is returned by /health
type HealthResponse struct {
	Status        string            `json:"status"`
	Service       string            `json:"service"`
	ModelVersion  string            `json:"model_version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Databases     map[string]string `json:"databases"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`

	// only with ?deep=1
	Storage map[string]StorageStats `json:"storage,omitempty"`
}

// StorageStats describes one database file
type StorageStats struct {
	SizeBytes     int64 `json:"size_bytes"`
	WALSizeBytes  int64 `json:"wal_size_bytes"`
	PageCount     int64 `json:"page_count"`
	PageSize      int64 `json:"page_size"`
	FreelistCount int64 `json:"freelist_count"`
}

// handleHealth reports liveness, database reachability and host load.
// With ?deep=1 it also runs an integrity check and reports file statistics.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	deep := r.URL.Query().Get("deep") == "1"

	resp := HealthResponse{
		Status:        "healthy",
		Service:       "opportunity-forecast",
		ModelVersion:  s.modelVersion,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Databases:     make(map[string]string, len(s.databases)),
	}

	if deep {
		resp.Storage = make(map[string]StorageStats, len(s.databases))
	}

	status := http.StatusOK
	for _, db := range s.databases {
		check := db.QuickCheck
		if deep {
			check = db.HealthCheck
		}
		if err := check(r.Context()); err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Bool("deep", deep).Msg("Database health check failed")
			resp.Databases[db.Name()] = "unreachable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Databases[db.Name()] = "ok"

		if deep {
			if stats, ok := s.storageStats(db); ok {
				resp.Storage[db.Name()] = stats
			}
		}
	}

	resp.CPUPercent, resp.MemoryPercent = s.systemStats()

	s.writeJSON(w, status, resp)
}

func (s *Server) storageStats(db *database.DB) (StorageStats, bool) {
	stats, err := db.GetStats()
	if err != nil {
		s.log.Debug().Err(err).Str("database", db.Name()).Msg("Failed to get database statistics")
		return StorageStats{}, false
	}
	return StorageStats{
		SizeBytes:     stats.SizeBytes,
		WALSizeBytes:  stats.WALSizeBytes,
		PageCount:     stats.PageCount,
		PageSize:      stats.PageSize,
		FreelistCount: stats.FreelistCount,
	}, true
}

// systemStats returns CPU and RAM usage percentages
func (s *Server) systemStats() (float64, float64) {
	// 100ms sample keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		s.log.Debug().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Debug().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
