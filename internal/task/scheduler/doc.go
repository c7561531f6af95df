// Package scheduler runs the poll loop that fires due tasks.
//
// A robfig/cron interval entry triggers one poll per interval. Each poll applies
// the firing transitions through the store, notifies outside the store lock,
// then persists the collection once.
package scheduler
