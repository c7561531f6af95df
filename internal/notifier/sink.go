package notifier

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// WriterSink prints each utterance as "[name] text".
type WriterSink struct {
	mu   sync.Mutex
	w    io.Writer
	name string
}

func NewWriterSink(w io.Writer, name string) *WriterSink {
	if strings.TrimSpace(name) == "" {
		name = "Assistant"
	}
	return &WriterSink{w: w, name: name}
}

func (s *WriterSink) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "[%s] %s\n", s.name, text)
	return err
}

// CommandSink hands text to an external speech program (e.g. "espeak" or
// "say"), passed as the last argument.
type CommandSink struct {
	argv []string
}

// NewCommandSink splits command on whitespace. An empty command returns nil.
func NewCommandSink(command string) *CommandSink {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil
	}
	return &CommandSink{argv: argv}
}

func (s *CommandSink) Speak(ctx context.Context, text string) error {
	args := append(append([]string(nil), s.argv[1:]...), text)
	out, err := exec.CommandContext(ctx, s.argv[0], args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", s.argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Tee speaks to every sink in order and returns the first error.
func Tee(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return SinkFunc(func(ctx context.Context, text string) error {
		var first error
		for _, s := range live {
			if err := s.Speak(ctx, text); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
