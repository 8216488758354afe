package utils

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

const Day = 24 * time.Hour

// Days converts a configured day count into a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * Day
}

// WholeDaysBetween counts complete 24h periods from start to end, zero when end is not after start.
func WholeDaysBetween(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / Day)
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["error"] = err.Error()
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func NewInt(i int) *int {
	return &i
}

func NewTime(t time.Time) *time.Time {
	return &t
}

// returns slice removing duplicate elements
func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}
