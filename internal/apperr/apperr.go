// Package apperr defines the error classes shared by the pipeline services.
//
// Services wrap the underlying cause together with one of these sentinels,
// e.g. fmt.Errorf("%w: upsert metrics: %w", apperr.ErrStorage, err), so that
// callers can branch on the class with errors.Is and still see the cause.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidStyle is returned for a report style outside the supported set.
	ErrInvalidStyle = fmt.Errorf("%w: unsupported report style", ErrValidation)
	// ErrNotFound marks a referenced user or report that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoData means aggregation never ran for the requested key.
	ErrNoData = errors.New("no data for this date")
	// ErrStorage marks a failed durable read or write.
	ErrStorage = errors.New("storage failure")
	// ErrGenerationFailed marks a text generator failure other than a timeout.
	ErrGenerationFailed = errors.New("report generation failed")
	// ErrTimeout marks a text generator call that ran past its deadline.
	ErrTimeout = errors.New("report generation timed out")
)
