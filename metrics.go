package sheetstore

import "time"

// MetricsRecorder receives data-layer measurements.
type MetricsRecorder interface {
	CacheHit(sheet string)
	CacheMiss(sheet string)
	BackendCall(op string, d time.Duration, err error)
	WriteConflict(sheet string)
	NotificationDropped(sheet string)
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) CacheHit(string) {}
func (NopMetrics) CacheMiss(string) {}
func (NopMetrics) BackendCall(string, time.Duration, error) {}
func (NopMetrics) WriteConflict(string) {}
func (NopMetrics) NotificationDropped(string) {}
