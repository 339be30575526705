// Package api provides the HTTP ingestion surface for the task queue:
// enqueue endpoints, task status lookup, and queue statistics. It is a thin
// controller layer over the task queue service.
package api
