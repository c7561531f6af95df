package scheduler

import (
	"errors"
	"time"

	"voxassist/internal/task"
	logx "voxassist/pkg/logx"
)

const callbackWarnThrottle = 5 * time.Second

// reportCallbackError logs a failed notification. A recurring task whose
// callback keeps failing would otherwise warn on every occurrence.
func (s *Service) reportCallbackError(t task.Task, via string, err error) {
	if err == nil {
		return
	}

	now := time.Now()
	s.failMu.Lock()
	last := s.lastFailWarn[t.ID]
	if !last.IsZero() && now.Sub(last) < callbackWarnThrottle {
		s.failMu.Unlock()
		return
	}
	s.lastFailWarn[t.ID] = now
	s.failMu.Unlock()

	fields := []logx.Field{
		logx.String("id", t.ID),
		logx.String("via", via),
		logx.Err(err),
	}
	var p *callbackPanic
	if errors.As(err, &p) && s.log.Enabled(logx.LevelDebug) {
		fields = append(fields, logx.Stack(p.stack))
	}
	s.log.Warn("notification callback failed", fields...)
}
