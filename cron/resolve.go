package cron

import (
	"errors"
	"time"

	"github.com/pretix/minicron/crontab"
	"github.com/sirupsen/logrus"
)

var ErrNoUpcoming = errors.New("no job in the crontab will ever run again")

// Due is the result of one resolution: how long to wait, in whole seconds,
// and the jobs to run once the wait is over, in crontab order.
type Due struct {
	Wait int
	Jobs []*crontab.Job
}

// Commands returns the commands of the due jobs.
func (d *Due) Commands() []string {
	return crontab.Commands(d.Jobs)
}

// waitSeconds is the number of whole seconds from now until next, rounded
// up. Truncating instead would wake the loop before the boundary and
// dispatch early; next is strictly after now, so the result is at least 1.
func waitSeconds(now, next time.Time) int {
	d := next.Sub(now)

	wait := int(d / time.Second)
	if d%time.Second != 0 {
		wait++
	}
	return wait
}

// Resolve computes the shortest wait among jobs at now and the jobs sharing
// that wait. Jobs whose expression never matches again are ignored.
func Resolve(jobs []*crontab.Job, now time.Time, logger *logrus.Entry) (*Due, error) {
	var due *Due

	for _, job := range jobs {
		next := job.Expression.Next(now)
		if next.IsZero() {
			logger.Debugf("%q will never run again", job.Command)
			continue
		}

		wait := waitSeconds(now, next)
		logger.Debugf("next execution of %q is at %v, in %d second(s)", job.Command, next, wait)

		switch {
		case due == nil || wait < due.Wait:
			due = &Due{Wait: wait, Jobs: []*crontab.Job{job}}
		case wait == due.Wait:
			due.Jobs = append(due.Jobs, job)
		}
	}

	if due == nil {
		return nil, ErrNoUpcoming
	}

	logger.Debugf("next execution is in %d second(s)", due.Wait)
	logger.Debugf("next commands to be executed in %d second(s) are %q", due.Wait, due.Commands())

	return due, nil
}
