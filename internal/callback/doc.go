// Package callback delivers finished tasks to caller supplied webhooks.
//
// Delivery is at-least-once: every attempt carries an Idempotency-Key header
// equal to the task id so receivers can discard duplicates. Attempts are
// retried with exponential backoff and recorded in the task's callback state;
// the task status itself is never changed by delivery.
package callback
