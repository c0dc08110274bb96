package device

import "github.com/HdrHistogram/hdrhistogram-go"

// Metrics is a read-only snapshot of a device's read/write counters and
// latency percentiles, consumed by an external reporting collaborator
// (spec.md §6's read-only observers).
type Metrics struct {
	Reads, Writes           uint64
	BytesRead, BytesWritten uint64
	ReadLatencyP99Nanos     int64
	WriteLatencyP99Nanos    int64
}

// metricsCollector accumulates device-level counters and records latency
// into nanosecond-resolution histograms, grounded on the "≥3 significant
// figures" percentile requirement in spec.md §6.
type metricsCollector struct {
	reads, writes           uint64
	bytesRead, bytesWritten uint64
	readLatency             *hdrhistogram.Histogram
	writeLatency            *hdrhistogram.Histogram
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		readLatency:  hdrhistogram.New(1, 10_000_000_000, 3),
		writeLatency: hdrhistogram.New(1, 10_000_000_000, 3),
	}
}

func (m *metricsCollector) recordRead(bytes int, latencyNanos int64) {
	m.reads++
	m.bytesRead += uint64(bytes)
	m.readLatency.RecordValue(latencyNanos)
}

func (m *metricsCollector) recordWrite(bytes int, latencyNanos int64) {
	m.writes++
	m.bytesWritten += uint64(bytes)
	m.writeLatency.RecordValue(latencyNanos)
}

func (m *metricsCollector) snapshot() Metrics {
	return Metrics{
		Reads:                m.reads,
		Writes:               m.writes,
		BytesRead:            m.bytesRead,
		BytesWritten:         m.bytesWritten,
		ReadLatencyP99Nanos:  m.readLatency.ValueAtQuantile(99),
		WriteLatencyP99Nanos: m.writeLatency.ValueAtQuantile(99),
	}
}
