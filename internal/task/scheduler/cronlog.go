package scheduler

import (
	"fmt"

	logx "voxassist/pkg/logx"
)

// cronLogger adapts logx to cron.Logger. cron's info records fire on every
// wake, so they go to trace.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if !l.log.Enabled(logx.LevelTrace) {
		return
	}
	l.log.Trace("cron "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := append(kvFields(keysAndValues), logx.Err(err))
	l.log.Error("cron "+msg, fields...)
}

func kvFields(kv []any) []logx.Field {
	fields := make([]logx.Field, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		fields = append(fields, logx.Any("extra", kv[len(kv)-1]))
	}
	return fields
}
