package entity

import "errors"

var (
	// Event errors
	ErrInvalidEventSource = errors.New("invalid event source")
	ErrInvalidEventType   = errors.New("invalid event type")
	ErrInvalidPriority    = errors.New("priority must be between 1 and 10")

	// Project errors
	ErrInvalidProjectID = errors.New("invalid project id")

	// Task errors
	ErrInvalidTaskTitle = errors.New("invalid task title")
)
