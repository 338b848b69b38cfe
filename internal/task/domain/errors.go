package domain

import "errors"

var (
	ErrInvalidTitle    = errors.New("invalid_title")
	ErrInvalidPriority = errors.New("invalid_priority")
	ErrInvalidDueDate  = errors.New("invalid_due_date")
	ErrInvalidTask     = errors.New("invalid_task")
	ErrTaskNotFound    = errors.New("task not found")
)
