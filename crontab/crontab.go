package crontab

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	scheduleFields = 5

	// Longest accepted crontab line, in bytes.
	maxLineLength = 1024 * 1024
)

var (
	jobLineSeparator = regexp.MustCompile(`\S+`)

	// Minute, hour, day of month, month, day of week. Descriptors such
	// as @hourly and a seconds field are rejected.
	expressionParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// ParseExpression compiles a five-field cron time pattern.
func ParseExpression(schedule string) (Expression, error) {
	schedule = strings.Join(strings.Fields(schedule), " ")

	expr, err := expressionParser.Parse(schedule)
	if err != nil {
		return nil, err
	}
	return expr, nil
}

func parseJobLine(line string) (*CrontabLine, error) {
	indices := jobLineSeparator.FindAllStringIndex(line, scheduleFields+1)

	if len(indices) < scheduleFields {
		return nil, fmt.Errorf("%w %q: expected %d time fields", ErrBadLine, line, scheduleFields)
	}

	scheduleEnds := indices[scheduleFields-1][1]
	schedule := line[:scheduleEnds]

	expr, err := ParseExpression(schedule)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrBadLine, schedule, err)
	}

	if len(indices) <= scheduleFields {
		return nil, fmt.Errorf("%w %s: missing command", ErrBadLine, schedule)
	}

	return &CrontabLine{
		Expression: expr,
		Schedule:   schedule,
		Command:    line[indices[scheduleFields][0]:],
	}, nil
}

// ParseCrontab reads jobs from reader. Blank lines and lines starting with
// '#' are skipped; any other line must be a five-field schedule followed by
// a command. Errors are *ConfigError values.
func ParseCrontab(reader io.Reader, logger *logrus.Entry) (*Crontab, error) {
	return parseCrontab("", reader, logger)
}

// ParseFile opens path and parses it with ParseCrontab.
func ParseFile(path string, logger *logrus.Entry) (*Crontab, error) {
	logger.Infof("reading crontab from %s", path)

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, &ConfigError{File: path, Err: ErrNotFound}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{File: path, Err: fmt.Errorf("%w: %v", ErrNotFound, err)}
	}
	defer file.Close()

	return parseCrontab(path, file, logger)
}

func parseCrontab(path string, reader io.Reader, logger *logrus.Entry) (*Crontab, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineLength)

	jobs := make([]*Job, 0)
	lineno := 0

	for scanner.Scan() {
		lineno++

		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		if line[0] == '#' {
			continue
		}

		logger.Infof("parsing line %s", line)

		jobLine, err := parseJobLine(line)
		if err != nil {
			return nil, &ConfigError{File: path, Line: lineno, Err: err}
		}

		logger.Infof("cron expression is %s", jobLine.Schedule)
		logger.Infof("command is %s", jobLine.Command)

		jobs = append(jobs, &Job{CrontabLine: *jobLine, Position: len(jobs), Line: lineno})
	}

	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{File: path, Line: lineno + 1, Err: err}
	}

	logger.Infof("%d lines read from crontab", lineno)

	if len(jobs) == 0 {
		return nil, &ConfigError{File: path, Err: ErrEmpty}
	}

	return &Crontab{Path: path, Jobs: jobs}, nil
}
