package service

import "taskboard/internal/apperr"

// Result is the uniform outward shape of an operation.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Wrap folds a value and error into a Result. Internal failures get a
// generic message; the caller is responsible for logging the detail.
func Wrap[T any](data T, err error) Result[T] {
	if err != nil {
		return Result[T]{Error: apperr.Message(err)}
	}
	return Result[T]{Success: true, Data: data}
}
