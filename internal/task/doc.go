// Package task manages the lifecycle of relayed work: the task record and its
// store, the bounded queue of task ids, and the runner whose workers admit tasks
// through the rate limiter, call the provider with retries and record the outcome.
//
// The store owns the canonical record and only hands out copies. The queue, the
// runner and the components reacting to its events pass task ids around, never
// pointers into the store.
package task
