package crontab

import (
	"time"
)

type Expression interface {
	Next(fromTime time.Time) time.Time
}

// CrontabLine is one parsed schedule line: the compiled time pattern, its
// source text and the command handed verbatim to the shell.
type CrontabLine struct {
	Expression Expression
	Schedule   string
	Command    string
}

type Job struct {
	CrontabLine
	// Position is the index of the job in its Crontab, Line the 1-based
	// line number in the source file.
	Position int
	Line     int
}

// Crontab is the ordered, immutable set of jobs read from one file. Jobs
// keep file order.
type Crontab struct {
	Path string
	Jobs []*Job
}

// Commands returns the commands of jobs in order.
func Commands(jobs []*Job) []string {
	commands := make([]string, 0, len(jobs))
	for _, job := range jobs {
		commands = append(commands, job.Command)
	}
	return commands
}
