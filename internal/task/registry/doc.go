// Package registry is the single source of truth for live scheduled work.
//
// It keeps three independent name spaces (timeouts, intervals, cron jobs)
// plus the namespace each cron job was registered under. Adding a name that
// already holds a handle fails with DuplicateNameError; looking up or deleting
// a missing name fails with NotFoundError. Deleting always stops or cancels
// the handle before the bookkeeping goes away.
package registry
