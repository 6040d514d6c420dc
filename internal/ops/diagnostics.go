package ops

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

// SystemStats contains overall system statistics
type SystemStats struct {
	Version   string        `json:"version"`
	Commit    string        `json:"commit"`
	Uptime    time.Duration `json:"uptime_ns"`
	StartTime time.Time     `json:"start_time"`

	GoVersion     string  `json:"go_version"`
	NumGoroutines int     `json:"goroutines"`
	MemAllocMB    float64 `json:"mem_alloc_mb"`
	MemSysMB      float64 `json:"mem_sys_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WatchStats describes the subscription supervisor
type WatchStats struct {
	Relays         []string `json:"relays"`
	RootsSeen      int      `json:"roots_seen"`
	ActiveChildren int      `json:"active_children"`
}

// AttributionStats summarizes the current batch
type AttributionStats struct {
	Records     int         `json:"records"`
	TotalPayout float64     `json:"total_payout"`
	ByKind      map[int]int `json:"by_kind"`
}

// WatchSource exposes supervisor counters
type WatchSource interface {
	RootsSeen() int
	ActiveChildren() int
}

// Diagnostics contains all diagnostic information
type Diagnostics struct {
	CollectedAt time.Time         `json:"collected_at"`
	System      *SystemStats      `json:"system"`
	Watch       *WatchStats       `json:"watch"`
	Attribution *AttributionStats `json:"attribution"`
}

// DiagnosticsCollector collects process diagnostics
type DiagnosticsCollector struct {
	version   string
	commit    string
	startTime time.Time
	relays    []string
	watch     WatchSource
	batch     BatchSource
}

// NewDiagnosticsCollector creates a new diagnostics collector. watch and
// batch may be nil.
func NewDiagnosticsCollector(version, commit string, relays []string, watch WatchSource, batch BatchSource) *DiagnosticsCollector {
	return &DiagnosticsCollector{
		version:   version,
		commit:    commit,
		startTime: time.Now(),
		relays:    relays,
		watch:     watch,
		batch:     batch,
	}
}

// CollectSystemStats collects system-level statistics
func (d *DiagnosticsCollector) CollectSystemStats() *SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &SystemStats{
		Version:   d.version,
		Commit:    d.commit,
		Uptime:    time.Since(d.startTime),
		StartTime: d.startTime,

		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		MemAllocMB:    float64(m.Alloc) / 1024 / 1024,
		MemSysMB:      float64(m.Sys) / 1024 / 1024,
		NumGC:         m.NumGC,
	}
}

// CollectWatchStats collects supervisor statistics
func (d *DiagnosticsCollector) CollectWatchStats() *WatchStats {
	stats := &WatchStats{Relays: d.relays}
	if d.watch != nil {
		stats.RootsSeen = d.watch.RootsSeen()
		stats.ActiveChildren = d.watch.ActiveChildren()
	}
	return stats
}

// CollectAttributionStats summarizes the attribution batch
func (d *DiagnosticsCollector) CollectAttributionStats() *AttributionStats {
	stats := &AttributionStats{ByKind: make(map[int]int)}
	if d.batch == nil {
		return stats
	}
	for _, rec := range d.batch.Batch() {
		stats.Records++
		stats.TotalPayout += rec.Payouts
		for _, kind := range rec.Kinds {
			stats.ByKind[kind]++
		}
	}
	return stats
}

// CollectAll collects all diagnostic information
func (d *DiagnosticsCollector) CollectAll() *Diagnostics {
	return &Diagnostics{
		CollectedAt: time.Now(),
		System:      d.CollectSystemStats(),
		Watch:       d.CollectWatchStats(),
		Attribution: d.CollectAttributionStats(),
	}
}

// LogFields flattens the headline numbers into slog key/value pairs
func (d *Diagnostics) LogFields() []any {
	return []any{
		"uptime", d.System.Uptime.Round(time.Second).String(),
		"goroutines", d.System.NumGoroutines,
		"mem_alloc_mb", fmt.Sprintf("%.2f", d.System.MemAllocMB),
		"roots_seen", d.Watch.RootsSeen,
		"active_children", d.Watch.ActiveChildren,
		"records", d.Attribution.Records,
		"total_payout", d.Attribution.TotalPayout,
	}
}

// FormatAsText formats diagnostics as plain text
func (d *Diagnostics) FormatAsText() string {
	var b strings.Builder

	b.WriteString("=== herdwatch Diagnostics ===\n")
	fmt.Fprintf(&b, "Collected: %s\n\n", d.CollectedAt.Format(time.RFC3339))

	b.WriteString("--- System ---\n")
	fmt.Fprintf(&b, "Version: %s (%s)\n", d.System.Version, d.System.Commit)
	fmt.Fprintf(&b, "Uptime: %s\n", d.System.Uptime.Round(time.Second))
	fmt.Fprintf(&b, "Go Version: %s\n", d.System.GoVersion)
	fmt.Fprintf(&b, "Goroutines: %d\n", d.System.NumGoroutines)
	fmt.Fprintf(&b, "Memory: %.2f MB allocated, %.2f MB system\n", d.System.MemAllocMB, d.System.MemSysMB)
	fmt.Fprintf(&b, "GC Runs: %d\n\n", d.System.NumGC)

	b.WriteString("--- Watch ---\n")
	fmt.Fprintf(&b, "Relays: %d\n", len(d.Watch.Relays))
	for _, relay := range d.Watch.Relays {
		fmt.Fprintf(&b, "  %s\n", relay)
	}
	fmt.Fprintf(&b, "Root Notes: %d\n", d.Watch.RootsSeen)
	fmt.Fprintf(&b, "Active Follow-up Subscriptions: %d\n\n", d.Watch.ActiveChildren)

	b.WriteString("--- Attribution ---\n")
	fmt.Fprintf(&b, "Records: %d\n", d.Attribution.Records)
	fmt.Fprintf(&b, "Total Payout: %.2f\n", d.Attribution.TotalPayout)
	kinds := make([]int, 0, len(d.Attribution.ByKind))
	for kind := range d.Attribution.ByKind {
		kinds = append(kinds, kind)
	}
	sort.Ints(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(&b, "  Kind %d: %d records\n", kind, d.Attribution.ByKind[kind])
	}

	return b.String()
}
