// Package scheduler parses poll schedules and drives the detector.
//
// A schedule is either a fixed interval (the next cycle starts a fixed
// delay after the previous one finished) or a cron expression evaluated by
// robfig/cron. Cycles never overlap in either mode.
package scheduler
