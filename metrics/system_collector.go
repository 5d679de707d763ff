package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemCollector periodically samples host CPU/memory/disk usage via
// gopsutil and publishes them as prometheus gauges. Adapted from the
// teacher's server.SystemCollector (server/metrics.go), which sampled the
// same three signals onto expvar floats on the same start/stop lifecycle.
type SystemCollector struct {
	cpuUsagePercent  prometheus.Gauge
	memUsagePercent  prometheus.Gauge
	diskUsagePercent prometheus.Gauge
	diskPath         string
	interval         time.Duration
	logger           *slog.Logger
	stopCh           chan struct{}
	wg               sync.WaitGroup
}

// NewSystemCollector builds a collector sampling diskPath's usage every
// interval. Register it with a prometheus.Registry, then call Start.
func NewSystemCollector(diskPath string, interval time.Duration, logger *slog.Logger) *SystemCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemCollector{
		cpuUsagePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorhub_system_cpu_usage_percent",
			Help: "Host CPU utilization percent, sampled periodically.",
		}),
		memUsagePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorhub_system_mem_usage_percent",
			Help: "Host virtual memory utilization percent, sampled periodically.",
		}),
		diskUsagePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorhub_system_disk_usage_percent",
			Help: "Disk utilization percent of the store's data directory, sampled periodically.",
		}),
		diskPath: diskPath,
		interval: interval,
		logger:   logger.With("component", "system_collector"),
		stopCh:   make(chan struct{}),
	}
}

// Describe implements prometheus.Collector.
func (sc *SystemCollector) Describe(ch chan<- *prometheus.Desc) {
	sc.cpuUsagePercent.Describe(ch)
	sc.memUsagePercent.Describe(ch)
	sc.diskUsagePercent.Describe(ch)
}

// Collect implements prometheus.Collector.
func (sc *SystemCollector) Collect(ch chan<- prometheus.Metric) {
	sc.cpuUsagePercent.Collect(ch)
	sc.memUsagePercent.Collect(ch)
	sc.diskUsagePercent.Collect(ch)
}

// Start begins the background sampling loop.
func (sc *SystemCollector) Start() {
	sc.logger.Info("starting system metrics collector", "interval", sc.interval)
	sc.wg.Add(1)
	go sc.collectLoop()
}

// Stop signals the sampling loop to terminate and waits for it to exit.
func (sc *SystemCollector) Stop() {
	close(sc.stopCh)
	sc.wg.Wait()
}

func (sc *SystemCollector) collectLoop() {
	defer sc.wg.Done()
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
				sc.cpuUsagePercent.Set(pcts[0])
			}
			if vm, err := mem.VirtualMemory(); err == nil {
				sc.memUsagePercent.Set(vm.UsedPercent)
			}
			if du, err := disk.Usage(sc.diskPath); err == nil {
				sc.diskUsagePercent.Set(du.UsedPercent)
			}
		case <-sc.stopCh:
			return
		}
	}
}
