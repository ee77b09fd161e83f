package cron

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pretix/minicron/crontab"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	TEST_CHANNEL_BUFFER_SIZE = 100
)

type testHook struct {
	channel chan *logrus.Entry
}

func newTestHook(channel chan *logrus.Entry) *testHook {
	return &testHook{channel: channel}
}

func (hook *testHook) Fire(entry *logrus.Entry) error {
	select {
	case hook.channel <- entry:
	default:
	}
	return nil
}

func (hook *testHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func newTestLogger() (*logrus.Entry, chan *logrus.Entry) {
	logger := logrus.New()
	logger.Out = io.Discard
	logger.Level = logrus.DebugLevel

	channel := make(chan *logrus.Entry, TEST_CHANNEL_BUFFER_SIZE)
	hook := newTestHook(channel)
	logger.Hooks.Add(hook)

	return logger.WithFields(logrus.Fields{}), channel
}

// drain returns the entries logged so far.
func drain(channel chan *logrus.Entry) []*logrus.Entry {
	entries := []*logrus.Entry{}
	for {
		select {
		case entry := <-channel:
			entries = append(entries, entry)
		default:
			return entries
		}
	}
}

func parseCrontab(t *testing.T, content string) *crontab.Crontab {
	t.Helper()

	logger, _ := newTestLogger()
	ct, err := crontab.ParseCrontab(bytes.NewBufferString(content), logger)
	require.NoError(t, err)
	return ct
}

// fakeClock never sleeps: After moves the clock forward by the requested
// duration and fires immediately. Once block returns true for the n-th call
// (1-based), After returns a channel that never fires instead.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	block  func(n int) bool
	waits  chan int
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, waits: make(chan int, 100)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)

	select {
	case c.waits <- n:
	default:
	}

	if c.block != nil && c.block(n) {
		return make(chan time.Time)
	}

	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// recordingExecutor records the commands it is asked to run. When run is
// set its result is returned, otherwise commands succeed with no output.
type recordingExecutor struct {
	mu       sync.Mutex
	commands []string
	times    []time.Time
	clock    Clock
	run      func(ctx context.Context, command string, logger *logrus.Entry) ([]byte, []byte, error)
}

func (e *recordingExecutor) Execute(ctx context.Context, command string, logger *logrus.Entry) ([]byte, []byte, error) {
	e.mu.Lock()
	e.commands = append(e.commands, command)
	if e.clock != nil {
		e.times = append(e.times, e.clock.Now())
	}
	e.mu.Unlock()

	if e.run != nil {
		return e.run(ctx, command, logger)
	}
	return nil, nil, nil
}

func (e *recordingExecutor) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}
