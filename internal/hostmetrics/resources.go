// resources.go - host and process resource gauges, exposed alongside
// the pool metrics so an operator can correlate pool saturation with
// the process's own CPU/memory/FD pressure.
package hostmetrics

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// HostMetrics samples system and process resource usage into
// Prometheus gauges on an interval.
type HostMetrics struct {
	cpuUsage       prometheus.Gauge
	memUsage       prometheus.Gauge
	memTotal       prometheus.Gauge
	diskUsage      *prometheus.GaugeVec
	netIO          *prometheus.GaugeVec
	netConnections prometheus.Gauge

	goroutines  prometheus.Gauge
	gcPauses    prometheus.Histogram
	heapObjects prometheus.Gauge
	heapAlloc   prometheus.Gauge

	processThreads prometheus.Gauge
	processCPU     prometheus.Gauge
	processMemory  prometheus.Gauge
	processOpenFDs prometheus.Gauge

	logger    *zap.SugaredLogger
	mu        sync.Mutex
	processID int32
}

// New builds a HostMetrics and registers its gauges with the default
// Prometheus registry. Call Start to begin sampling.
func New(logger *zap.SugaredLogger) *HostMetrics {
	h := &HostMetrics{
		logger: logger,

		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idpool_host_cpu_usage_percent",
			Help: "Host CPU usage across all cores.",
		}),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idpool_host_memory_usage_percent",
			Help: "Host memory usage percent.",
		}),
		memTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idpool_host_memory_total_bytes",
			Help: "Total host memory in bytes.",
		}),
		diskUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpool_host_disk_usage_percent",
			Help: "Disk usage percent per mountpoint.",
		}, []string{"mountpoint", "fstype"}),
		netIO: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpool_host_network_io_bytes_per_second",
			Help: "Network IO rate per interface.",
		}, []string{"interface", "direction"}),
		netConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idpool_host_network_connections",
			Help: "Current host network connection count.",
		}),

		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idpool_go_goroutines",
			Help: "Current goroutine count.",
		}),
		gcPauses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "idpool_go_gc_pause_seconds",
			Help:    "GC pause duration distribution.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		heapObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idpool_go_heap_objects",
			Help: "Allocated heap object count.",
		}),
		heapAlloc: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idpool_go_heap_alloc_bytes",
			Help: "Heap bytes allocated.",
		}),

		processThreads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idpool_process_threads",
			Help: "OS thread count for this process.",
		}),
		processCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idpool_process_cpu_percent",
			Help: "CPU usage percent for this process.",
		}),
		processMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idpool_process_memory_bytes",
			Help: "RSS memory for this process.",
		}),
		processOpenFDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "idpool_process_open_fds",
			Help: "Open file descriptor count for this process.",
		}),

		processID: int32(os.Getpid()),
	}

	prometheus.MustRegister(
		h.cpuUsage, h.memUsage, h.memTotal, h.diskUsage, h.netIO, h.netConnections,
		h.goroutines, h.gcPauses, h.heapObjects, h.heapAlloc,
		h.processThreads, h.processCPU, h.processMemory, h.processOpenFDs,
	)

	return h
}

// Start runs the sampling loop in a new goroutine until the returned stop
// function is called.
func (h *HostMetrics) Start(interval time.Duration) (stop func()) {
	stopCh := make(chan struct{})
	go h.run(interval, stopCh)
	return func() { close(stopCh) }
}

func (h *HostMetrics) run(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastNet []gnet.IOCountersStat
	var lastNetAt time.Time

	for {
		select {
		case <-ticker.C:
			if err := h.collectCPU(); err != nil {
				h.logger.Warnw("cpu sample failed", "error", err)
			}
			if err := h.collectMemory(); err != nil {
				h.logger.Warnw("memory sample failed", "error", err)
			}
			if err := h.collectDisk(); err != nil {
				h.logger.Warnw("disk sample failed", "error", err)
			}
			if err := h.collectNetwork(&lastNet, &lastNetAt); err != nil {
				h.logger.Warnw("network sample failed", "error", err)
			}
			h.collectRuntime()
			if err := h.collectProcess(); err != nil {
				h.logger.Warnw("process sample failed", "error", err)
			}
		case <-stopCh:
			return
		}
	}
}

func (h *HostMetrics) collectCPU() error {
	pct, err := cpu.Percent(0, false)
	if err != nil {
		return err
	}
	if len(pct) > 0 {
		h.cpuUsage.Set(pct[0])
	}
	return nil
}

func (h *HostMetrics) collectMemory() error {
	m, err := mem.VirtualMemory()
	if err != nil {
		return err
	}
	h.memUsage.Set(m.UsedPercent)
	h.memTotal.Set(float64(m.Total))
	return nil
}

func (h *HostMetrics) collectDisk() error {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return err
	}
	for _, p := range partitions {
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			continue
		}
		h.diskUsage.WithLabelValues(p.Mountpoint, p.Fstype).Set(usage.UsedPercent)
	}
	return nil
}

func (h *HostMetrics) collectNetwork(last *[]gnet.IOCountersStat, lastAt *time.Time) error {
	counters, err := gnet.IOCounters(true)
	if err != nil {
		return err
	}
	now := time.Now()

	if len(*last) > 0 && !lastAt.IsZero() {
		dur := now.Sub(*lastAt).Seconds()
		if dur > 0 {
			for i, stat := range counters {
				if i >= len(*last) || stat.Name != (*last)[i].Name {
					continue
				}
				prev := (*last)[i]
				h.netIO.WithLabelValues(stat.Name, "received").Set(float64(stat.BytesRecv-prev.BytesRecv) / dur)
				h.netIO.WithLabelValues(stat.Name, "sent").Set(float64(stat.BytesSent-prev.BytesSent) / dur)
			}
		}
	}

	if conns, err := gnet.Connections("all"); err == nil {
		h.netConnections.Set(float64(len(conns)))
	}

	*last = counters
	*lastAt = now
	return nil
}

func (h *HostMetrics) collectRuntime() {
	var mstats runtime.MemStats
	runtime.ReadMemStats(&mstats)

	h.goroutines.Set(float64(runtime.NumGoroutine()))
	h.heapObjects.Set(float64(mstats.HeapObjects))
	h.heapAlloc.Set(float64(mstats.HeapAlloc))

	for _, pause := range mstats.PauseNs {
		if pause > 0 {
			h.gcPauses.Observe(float64(pause) / 1e9)
		}
	}
}

func (h *HostMetrics) collectProcess() error {
	if h.processID == 0 {
		return fmt.Errorf("process id not available")
	}
	proc, err := process.NewProcess(h.processID)
	if err != nil {
		return err
	}
	if n, err := proc.NumThreads(); err == nil {
		h.processThreads.Set(float64(n))
	}
	if pct, err := proc.CPUPercent(); err == nil {
		h.processCPU.Set(pct)
	}
	if mi, err := proc.MemoryInfo(); err == nil {
		h.processMemory.Set(float64(mi.RSS))
	}
	if n, err := proc.NumFDs(); err == nil {
		h.processOpenFDs.Set(float64(n))
	}
	return nil
}
