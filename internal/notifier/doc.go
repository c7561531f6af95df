// Package notifier speaks fired tasks and operator announcements.
//
// Notify only enqueues, so it is safe to call from the scheduler's poll pass.
// A supervised worker drains the queue through a rate limiter and hands each
// message to a Sink, retrying transient sink failures with backoff. Identical
// announcements inside the dedup window are dropped; fired tasks never are.
//
// # History
//
// The service keeps a small in-memory history of what was spoken.
package notifier
