package logstream

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"

	"mail-archivist/internal/model"
)

type core struct {
	zapcore.LevelEnabler
	stream *Stream
	fields []zapcore.Field
}

// NewCore returns a zapcore.Core that appends every enabled entry to stream.
// Structured fields are rendered after the message as sorted key=value pairs.
func NewCore(stream *Stream, enab zapcore.LevelEnabler) zapcore.Core {
	return &core{LevelEnabler: enab, stream: stream}
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	c.stream.AppendEntry(model.LogEntry{
		Timestamp: ent.Time,
		Level:     levelOf(ent.Level),
		Message:   render(ent.Message, enc.Fields),
	})
	return nil
}

func (c *core) Sync() error {
	return nil
}

func levelOf(l zapcore.Level) model.Level {
	switch {
	case l >= zapcore.ErrorLevel:
		return model.LevelError
	case l == zapcore.WarnLevel:
		return model.LevelWarning
	default:
		return model.LevelInfo
	}
}

func render(msg string, fields map[string]any) string {
	if len(fields) == 0 {
		return msg
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}
