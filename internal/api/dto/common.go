// Package dto provides request and response types for the alignment API.
// These types are used by huma to generate OpenAPI documentation and perform validation.
//
// Durations cross the API as integer milliseconds.
package dto

import "time"

// IDParam is a path parameter for resource IDs.
type IDParam struct {
	ID string `path:"id" doc:"Resource identifier"`
}

// ChecksumParam is a path parameter naming a book by its audio checksum.
type ChecksumParam struct {
	Checksum string `path:"checksum" minLength:"1" maxLength:"128" doc:"Book checksum"`
}

// MessageResponse is a simple success message response.
type MessageResponse struct {
	Message string `json:"message" doc:"Success message"`
}

// MessageOutput wraps a message response for huma.
type MessageOutput struct {
	Body MessageResponse
}

// ListResponse is a generic list response.
type ListResponse[T any] struct {
	Items []T `json:"items" doc:"List of items"`
	Total int `json:"total" doc:"Number of items"`
}

// Millis converts d to whole milliseconds.
func Millis(d time.Duration) int64 {
	return d.Milliseconds()
}

// FromMillis converts milliseconds to a duration.
func FromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
