package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	polos "github.com/polos-dev/polos-sub001"
)

// Evaluator computes the next fire time of a cron expression after a
// reference instant.
type Evaluator interface {
	NextFire(cronExpr, timezone string, after time.Time) (time.Time, error)
}

// CronEvaluator evaluates standard five-field cron expressions with the
// optional descriptors (@hourly, @daily, ...).
type CronEvaluator struct {
	parser cron.Parser
}

// NewCronEvaluator creates a cron evaluator.
func NewCronEvaluator() *CronEvaluator {
	return &CronEvaluator{
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
	}
}

// NextFire returns the first fire time strictly after the reference
// instant, evaluated in the given timezone (UTC when empty).
func (c *CronEvaluator) NextFire(cronExpr, timezone string, after time.Time) (time.Time, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, polos.Errorf(polos.KindInvalidArgument, "unknown timezone %q", timezone)
		}
	}
	sched, err := c.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, polos.ErrInvalidCron
	}
	return sched.Next(after.In(loc)), nil
}
