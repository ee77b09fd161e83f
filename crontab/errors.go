package crontab

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("crontab does not exist")
	ErrBadLine  = errors.New("illegal cron expression")
	ErrEmpty    = errors.New("crontab does not contain any scheduled execution")
)

// ConfigError reports a crontab that cannot be scheduled. Line is zero
// when the problem is not tied to a single line.
type ConfigError struct {
	File string
	Line int
	Err  error
}

func (e *ConfigError) Error() string {
	file := e.File
	if file == "" {
		file = "<crontab>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("unable to parse crontab %s: line %d: %v", file, e.Line, e.Err)
	}
	return fmt.Sprintf("unable to parse crontab %s: %v", file, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
