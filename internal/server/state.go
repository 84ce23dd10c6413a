package server

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/ericbottard/streaming-function-invoker/internal/serverstate"
	"github.com/ericbottard/streaming-function-invoker/invoker"
)

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	State    serverstate.State   `json:"state"`
	Inflight int64               `json:"inflight"`
	Function invoker.Description `json:"function"`
	Version  string              `json:"version,omitempty"`
	Process  *ProcessStats       `json:"process,omitempty"`
	Extra    map[string]any      `json:"extra,omitempty"`
}

// ProcessStats describes the invoker process.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

func processStats() *ProcessStats {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil
	}
	st := &ProcessStats{PID: p.Pid, Goroutines: runtime.NumGoroutine()}
	if mem, err := p.MemoryInfo(); err == nil {
		st.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	if n, err := p.NumThreads(); err == nil {
		st.Threads = n
	}
	return st
}

func stateHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StateResponse{
			State:    serverstate.Snapshot(),
			Inflight: d.Inflight.Load(),
			Function: d.Invoker.Describe(),
			Version:  d.Version,
			Process:  processStats(),
		}
		if extra := d.State.Collect(); len(extra) > 0 {
			resp.Extra = extra
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
