// Package gemini provides an implementation of the generation.Generator interface
// that uses Google's Gemini API.
//
// This package is an infrastructure adapter in the hexagonal architecture,
// connecting the task runner to Google's external Gemini AI service without
// exposing the details of the external service to the core application.
//
// Each Generate call is a single GenerateContent request. Failures are
// returned as *generation.Error values: API errors are classified by their
// HTTP code, deadlines become timeouts, and responses blocked by safety
// filters are reported as rejected.
package gemini
