// Package logging configures structured JSON logging for bulletinsearch.
//
// Logs go to a size-rotated file under ~/.bulletinsearch/logs/ and,
// optionally, to stderr. Events use snake_case names such as
// retrieval_backend_failed or filter_degraded, and every search event
// carries a request_id so one request can be followed through the log
// with `bulletinsearch logs --request-id`.
package logging
