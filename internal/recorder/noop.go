package recorder

import "MarketScraper/internal/model"

// NoopRecorder is a no-op implementation used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordAlert(_ model.Alert) error                  { return nil }
func (n *NoopRecorder) RecordMetrics(_ *MetricsSnapshot) error           { return nil }
func (n *NoopRecorder) RecentAlerts(_ string, _ int) ([]AlertRow, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                     { return nil }
