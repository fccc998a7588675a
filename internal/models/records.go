// Package models contains domain types for the device diagnostic log analyzer.
package models

import "time"

// BandwidthSample is a single point of the bandwidth time series.
type BandwidthSample struct {
	Timestamp time.Time `json:"timestamp"`
	TotalKbps float64   `json:"totalKbps"`
	VideoKbps float64   `json:"videoKbps"`
	Note      string    `json:"note,omitempty"`
}

// ModemStat holds aggregated link metrics for one modem, built from
// running statistics so raw samples are never buffered.
type ModemStat struct {
	ModemID        string  `json:"modemId"`
	ConnectionType string  `json:"connectionType,omitempty"`
	SignalAvg      float64 `json:"signalAvg"`
	SignalMin      float64 `json:"signalMin"`
	SignalMax      float64 `json:"signalMax"`
	ThroughputAvg  float64 `json:"throughputAvg"`
	ThroughputMin  float64 `json:"throughputMin"`
	ThroughputMax  float64 `json:"throughputMax"`
	PacketLossAvg  float64 `json:"packetLossAvg"`
	LatencyAvg     float64 `json:"latencyAvg"`
	LatencyMin     float64 `json:"latencyMin"`
	LatencyMax     float64 `json:"latencyMax"`
	SampleCount    int64   `json:"sampleCount"`
}

// SessionStatus describes how complete a correlated streaming session is.
type SessionStatus string

const (
	SessionComplete  SessionStatus = "complete"
	SessionStartOnly SessionStatus = "start_only"
	SessionEndOnly   SessionStatus = "end_only"
)

// Session is one streaming session correlated from start/stop markers.
// Start or End may be zero when the matching marker was never seen.
type Session struct {
	SessionID string        `json:"sessionId"`
	Start     *time.Time    `json:"start,omitempty"`
	End       *time.Time    `json:"end,omitempty"`
	Status    SessionStatus `json:"status"`
	Duration  float64       `json:"durationSeconds,omitempty"`
}

// EventKind distinguishes grading event types.
type EventKind string

const (
	EventServiceChange EventKind = "service_change"
	EventQualityMetric EventKind = "quality_metric"
)

// ServiceLevel is the service grade announced for a modem.
type ServiceLevel string

const (
	ServiceFull    ServiceLevel = "full"
	ServiceLimited ServiceLevel = "limited"
)

// GradingEvent is one service-quality event for a modem.
type GradingEvent struct {
	ModemID   string       `json:"modemId"`
	Timestamp time.Time    `json:"timestamp"`
	Kind      EventKind    `json:"kind"`
	Level     ServiceLevel `json:"level,omitempty"`
	MetricA   float64      `json:"metricA,omitempty"`
	MetricB   float64      `json:"metricB,omitempty"`
	Good      bool         `json:"good"`
}

// Component identifies which subsystem reported a memory sample.
type Component string

const (
	ComponentVIC      Component = "vic"
	ComponentCorecard Component = "corecard"
	ComponentServer   Component = "server"
)

// MemorySample is one memory usage reading. The MB fields are only
// populated when the detailed log form was present.
type MemorySample struct {
	Timestamp time.Time `json:"timestamp"`
	Component Component `json:"component"`
	Percent   float64   `json:"percent"`
	UsedMB    float64   `json:"usedMb,omitempty"`
	TotalMB   float64   `json:"totalMb,omitempty"`
	CachedMB  float64   `json:"cachedMb,omitempty"`
	Warning   bool      `json:"warning"`
}

// ErrorLine is one log line matched by the error classifier.
type ErrorLine struct {
	Timestamp time.Time `json:"timestamp,omitempty"`
	Raw       string    `json:"raw"`
	Category  string    `json:"category"`
}

// DeviceIdentity collects identity fields scattered through a log.
// Absent fields stay empty; that is not an error.
type DeviceIdentity struct {
	DeviceID string `json:"deviceId,omitempty"`
	ServerID string `json:"serverId,omitempty"`
	Serial   string `json:"serial,omitempty"`
}
