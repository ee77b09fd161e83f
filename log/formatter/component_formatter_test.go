package formatter

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newEntry(level logrus.Level, message string, data logrus.Fields) *logrus.Entry {
	return &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2026, 10, 19, 12, 30, 0, 0, time.UTC),
		Level:   level,
		Message: message,
		Data:    data,
	}
}

func TestComponentFormatterFormat(t *testing.T) {
	f := &ComponentFormatter{}

	out, err := f.Format(newEntry(logrus.InfoLevel, "entering main loop", logrus.Fields{"component": "loop"}))
	if assert.Nil(t, err) {
		assert.Equal(t, "2026-10-19T12:30:00Z loop         INFO     entering main loop\n", string(out))
	}
}

func TestComponentFormatterFields(t *testing.T) {
	f := &ComponentFormatter{}

	out, err := f.Format(newEntry(logrus.WarnLevel, "boom", logrus.Fields{
		"component": "exec",
		"tick":      3,
		"channel":   "stderr",
	}))
	if assert.Nil(t, err) {
		assert.Equal(t, "2026-10-19T12:30:00Z exec         WARNING  boom channel=stderr tick=3\n", string(out))
	}

	f.DisableFields = true
	out, err = f.Format(newEntry(logrus.ErrorLevel, "boom", logrus.Fields{"tick": 3}))
	if assert.Nil(t, err) {
		assert.Equal(t, "2026-10-19T12:30:00Z              ERROR    boom\n", string(out))
	}
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelName(logrus.DebugLevel))
	assert.Equal(t, "INFO", LevelName(logrus.InfoLevel))
	assert.Equal(t, "WARNING", LevelName(logrus.WarnLevel))
	assert.Equal(t, "ERROR", LevelName(logrus.ErrorLevel))
	assert.Equal(t, "CRITICAL", LevelName(logrus.FatalLevel))
}
