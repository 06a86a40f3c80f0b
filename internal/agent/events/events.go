package events

import (
	"github.com/ranops-core/server/internal/agent/model"
	logx "github.com/ranops-core/server/pkg/logger"
)

var log = logx.With("events")

// LogSink writes custom graph events to the structured log. Events are
// observational only; emitting one never alters the turn.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) OnCustomEvent(name string, payload map[string]any, runID string) {
	log.Warn().
		Str("event", name).
		Str("run_id", runID).
		Fields(payload).
		Msg("agent event")
}

var _ model.EventSink = (*LogSink)(nil)
