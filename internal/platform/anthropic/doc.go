// Package anthropic provides an implementation of the generation.Generator
// interface backed by the Anthropic Messages API.
//
// The client sends the task text as a single user message and joins the text
// blocks of the reply. Non-200 responses are classified by status code; a
// Retry-After header on 429 and 5xx responses is carried on the returned
// *generation.Error so the task runner can throttle its limiter.
package anthropic
