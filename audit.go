package shopauth

import (
	"io"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth/internal/audit"
)

// Audit types are re-exported so callers can build sinks without importing
// an internal package.
type (
	AuditEvent = audit.Event
	AuditSink  = audit.Sink
	NoOpSink   = audit.NoOpSink
	// ChannelSink buffers events on a channel, for tests and fan-out.
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	ZapSink        = audit.ZapSink
	MultiSink      = audit.MultiSink
)

// NewChannelSink returns a sink whose events can be drained from Events().
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapSink logs events through log.
func NewZapSink(log *zap.Logger) *ZapSink {
	return audit.NewZapSink(log)
}
