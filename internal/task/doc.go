// Package task implements the browser-automation task pipeline: the task
// lifecycle model, the queue service over the durable store, the polling
// processor that executes tasks under a concurrency cap, the type-dispatching
// executor, the signed result submitter, and the maintenance worker that
// recovers stuck tasks and expires old ones.
package task
