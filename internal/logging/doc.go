// Package logging provides structured logging for the indexer, built on
// log/slog. Setup writes JSON-formatted logs to a rotating file under the
// project's data directory; SetupDefault gives CLI invocations that have
// not yet resolved a data directory a plain stderr logger.
package logging
