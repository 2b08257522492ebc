// Package events provides types and interfaces for an event-driven architecture.
//
// The task runner emits a TaskEvent for every status transition. Handlers such as
// the callback dispatcher subscribe through an EventEmitter, so the runner never
// depends on the components that react to its progress.
//
// The primary components are:
// - TaskEvent: Announces that a task changed status
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events
