// Package api handles incoming HTTP requests, request validation and
// response formatting. It adapts HTTP to the task service: submissions are
// answered with 202 Accepted and processed in the background, status reads
// are served from the task store, and errors are mapped to status codes and
// client-safe messages in errors.go.
package api
