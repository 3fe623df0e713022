package recorder

import "context"

// NoopRecorder is used when the journal is disabled.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordTrade(context.Context, *Trade) error       { return nil }
func (n *NoopRecorder) RecordDecision(context.Context, *Decision) error { return nil }
func (n *NoopRecorder) RecentTrades(context.Context, int) ([]Trade, error) {
	return nil, nil
}
func (n *NoopRecorder) Close() error { return nil }
