// Package report renders airplay reports as CSV and archives a daily copy.
//
// Rows come from a Source, usually the Postgres store. The Scheduler runs
// on a cron schedule in UTC and uploads yesterday's report under
// airplay/YYYY-MM-DD.csv.
package report
