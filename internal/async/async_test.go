package async

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"marcus/internal/logging"
)

type stubLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *stubLogger) Debug(string, ...any) {}
func (l *stubLogger) Info(string, ...any)  {}
func (l *stubLogger) Warn(string, ...any)  {}
func (l *stubLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func (l *stubLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.messages))
	copy(out, l.messages)
	return out
}

var _ logging.Logger = (*stubLogger)(nil)

func TestGoRecoversPanic(t *testing.T) {
	logger := &stubLogger{}
	done := make(chan struct{})

	Go(logger, "test", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for goroutine")
	}

	deadline := time.Now().Add(time.Second)
	for {
		for _, msg := range logger.snapshot() {
			if strings.Contains(msg, "goroutine panic [test]") {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected panic log, got %v", logger.snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRecoverHandlesNilLogger(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("unexpected panic: %v", r)
		}
	}()
	func() {
		defer Recover(nil, "nil-logger")
		panic("boom")
	}()
}

func TestGoRunsFunctionToCompletion(t *testing.T) {
	var ran bool
	var mu sync.Mutex
	done := make(chan struct{})
	Go(nil, "ok", func() {
		mu.Lock()
		ran = true
		mu.Unlock()
		close(done)
	})
	<-done
	mu.Lock()
	defer mu.Unlock()
	if !ran {
		t.Fatal("expected function to run")
	}
}
