// Package memory holds the in-process stores used by the scraper: jobs and
// their progress timelines. Nothing survives a restart.
package memory
