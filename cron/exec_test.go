package cron

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

var (
	stdoutData = logrus.Fields{"channel": "stdout"}
	stderrData = logrus.Fields{"channel": "stderr"}
)

var executeTestCases = []struct {
	command  string
	shell    string
	success  bool
	stdout   string
	stderr   string
	messages []*logrus.Entry
}{
	{"true", "", true, "", "", []*logrus.Entry{}},
	{"false", "", false, "", "", []*logrus.Entry{}},
	{"exit 3", "", false, "", "", []*logrus.Entry{}},
	{
		"echo hello", "", true, "hello\n", "",
		[]*logrus.Entry{
			{Message: "hello", Level: logrus.InfoLevel, Data: stdoutData},
		},
	},
	{
		"echo hello >&2", "", true, "", "hello\n",
		[]*logrus.Entry{
			{Message: "hello", Level: logrus.InfoLevel, Data: stderrData},
		},
	},
	{
		"echo hello; echo oops >&2; exit 1", "", false, "hello\n", "oops\n",
		[]*logrus.Entry{
			{Message: "hello", Level: logrus.InfoLevel, Data: stdoutData},
			{Message: "oops", Level: logrus.InfoLevel, Data: stderrData},
		},
	},
	{
		"echo hello\nsleep 0.1\necho bar", "", true, "hello\nbar\n", "",
		[]*logrus.Entry{
			{Message: "hello", Level: logrus.InfoLevel, Data: stdoutData},
			{Message: "bar", Level: logrus.InfoLevel, Data: stdoutData},
		},
	},
	{
		"echo '  keep   spacing  '", "", true, "  keep   spacing  \n", "",
		[]*logrus.Entry{
			{Message: "  keep   spacing  ", Level: logrus.InfoLevel, Data: stdoutData},
		},
	},
	{"true", "/bin/false", false, "", "", []*logrus.Entry{}},
}

func TestShellExecutorExecute(t *testing.T) {
	for _, tt := range executeTestCases {
		label := fmt.Sprintf("Execute(%q, shell=%q)", tt.command, tt.shell)
		logger, channel := newTestLogger()

		executor := &ShellExecutor{Shell: tt.shell}
		stdout, stderr, err := executor.Execute(context.Background(), tt.command, logger)

		if tt.success {
			assert.Nil(t, err, label)
		} else {
			assert.NotNil(t, err, label)
		}

		assert.Equal(t, tt.stdout, string(stdout), label)
		assert.Equal(t, tt.stderr, string(stderr), label)

		entries := drain(channel)
		if assert.Equal(t, len(tt.messages), len(entries), label) {
			for i, expected := range tt.messages {
				assert.Equal(t, expected.Message, entries[i].Message, label)
				assert.Equal(t, expected.Level, entries[i].Level, label)
				assert.Equal(t, expected.Data, entries[i].Data, label)
			}
		}
	}
}

func TestShellExecutorLargeOutput(t *testing.T) {
	logger, _ := newTestLogger()
	executor := &ShellExecutor{}

	stdout, _, err := executor.Execute(context.Background(), "head -c 200000 /dev/zero | tr '\\0' a", logger)

	assert.Nil(t, err)
	assert.Equal(t, strings.Repeat("a", 200000), string(stdout))
}

func TestShellExecutorDoesNotWaitAfterCancel(t *testing.T) {
	logger, _ := newTestLogger()
	executor := &ShellExecutor{}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	started := time.Now()
	_, _, err := executor.Execute(ctx, "sleep 5", logger)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(started), 3*time.Second)
}

func TestShellExecutorMissingShell(t *testing.T) {
	logger, _ := newTestLogger()
	executor := &ShellExecutor{Shell: "/nonexistent/shell"}

	_, _, err := executor.Execute(context.Background(), "true", logger)
	assert.NotNil(t, err)
}

func TestShellExecutorDefaultShell(t *testing.T) {
	assert.Equal(t, DefaultShell, (&ShellExecutor{}).shell())
	assert.Equal(t, "/bin/bash", (&ShellExecutor{Shell: "/bin/bash"}).shell())
}
