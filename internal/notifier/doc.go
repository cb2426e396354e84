// Package notifier delivers bot messages to users and operators.
//
// # Direct sends
//
// Send is the delivery sink used by the reminder scheduler and the bonus
// tracker: it waits on a shared rate limiter, bounds the call with a per-send
// timeout and classifies failures (recipient gone vs transient). It never
// retries; callers decide what a failure means.
//
// # Queued notifications
//
// Notify enqueues operator messages (startup notices, failed reminder passes)
// for a small worker pool with retry, backoff and duplicate suppression.
//
// # History
//
// The service keeps a short in-memory history of delivered texts for /status.
package notifier
