package mosaic

import "github.com/sirupsen/logrus"

// Sink receives refinement progress lines: pass banners, the tile pairs
// being matched and the per-pass displacement statistics. The engine works
// the same with a nil or null sink. Worker transactions log concurrently,
// so implementations must be safe for concurrent use.
type Sink interface {
	Printf(format string, args ...any)
}

// NullSink discards everything written to it.
type NullSink struct{}

// Printf implements Sink.
func (NullSink) Printf(string, ...any) {}

// LogrusSink adapts a logrus entry to the Sink interface, logging progress
// lines at info level.
type LogrusSink struct {
	Entry *logrus.Entry
}

// NewLogrusSink wraps a logrus logger with a component field.
func NewLogrusSink(logger *logrus.Logger) LogrusSink {
	return LogrusSink{Entry: logger.WithField("component", "mosaic")}
}

// Printf implements Sink.
func (s LogrusSink) Printf(format string, args ...any) {
	s.Entry.Infof(format, args...)
}

// sinkOrNull returns a usable sink for possibly-nil configuration.
func sinkOrNull(s Sink) Sink {
	if s == nil {
		return NullSink{}
	}
	return s
}
