// Package logging provides structured file logging for pagemind.
//
// Logs are JSON lines written through a size-rotating writer, optionally
// mirrored to stderr. A bounded in-memory Ring keeps the most recent entries
// so the daemon can serve them to clients without reading the log file.
package logging
