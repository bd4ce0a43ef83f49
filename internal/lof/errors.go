package lof

import (
	"errors"
	"fmt"
)

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrInvalidParameter = errors.New("lof: invalid parameter")
	ErrInsufficientData = errors.New("lof: insufficient data")
)

// InvalidParameterError reports a neighborhood size, contamination, or input
// value the scorer cannot work with.
type InvalidParameterError struct {
	Name   string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("lof: invalid parameter %s=%v: %s", e.Name, e.Value, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error {
	return ErrInvalidParameter
}

// InsufficientDataError reports a series too short to form a neighborhood.
type InsufficientDataError struct {
	Points           int
	NeighborhoodSize int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("lof: insufficient data: %d points, neighborhood size %d needs at least %d",
		e.Points, e.NeighborhoodSize, e.NeighborhoodSize+1)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}
