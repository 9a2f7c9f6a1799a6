// Package job provides the live handles behind scheduled units:
//   - Timer: a one-shot (timeout) or periodic (interval) timer
//   - CronJob: a cron-pattern or fixed-date job with start/stop control
//
// Handles run on an injectable clockwork.Clock so tests can drive time.
// Targets are invoked on the clock's goroutines; handles never wait for a
// target to finish.
package job
