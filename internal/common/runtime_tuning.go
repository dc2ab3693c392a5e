package common

import (
	"os"
	"runtime"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

// Runtime profiles. The zap engine serializes units of work, so it needs
// few cores; the limits only bound snapshot and journal bursts.
const (
	SmallServerGOGC     = 200
	SmallServerMemLimit = 1 * 1024 * 1024 * 1024
	SmallServerMaxProcs = 1

	LargeServerGOGC     = 400
	LargeServerMemLimit = 4 * 1024 * 1024 * 1024
	LargeServerMaxProcs = 4
)

func detectServerProfile() (gogc int, memLimit int64, maxProcs int) {
	if runtime.NumCPU() <= 2 {
		return SmallServerGOGC, int64(SmallServerMemLimit), SmallServerMaxProcs
	}
	return LargeServerGOGC, int64(LargeServerMemLimit), LargeServerMaxProcs
}

// InitRuntime applies the detected profile. GOGC, GOMAXPROCS and
// GOMEMLIMIT from the environment take precedence.
func InitRuntime() {
	gogc, memLimit, maxProcs := detectServerProfile()

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(gogc)
	}
	if os.Getenv("GOMAXPROCS") == "" {
		if maxProcs > runtime.NumCPU() {
			maxProcs = runtime.NumCPU()
		}
		runtime.GOMAXPROCS(maxProcs)
	}
	if os.Getenv("GOMEMLIMIT") == "" {
		debug.SetMemoryLimit(memLimit)
	}

	logRuntimeSettings()
}

func logRuntimeSettings() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Info().
		Int("num_cpu", runtime.NumCPU()).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Uint64("heap_alloc_mb", memStats.HeapAlloc/1024/1024).
		Str("go_version", runtime.Version()).
		Msg("[runtime] Current runtime settings")
}
