package models

import "errors"

var (
	// ErrInvalidParameter indicates a bad scale, kernel length or option value.
	ErrInvalidParameter = errors.New("hessianshape: invalid parameter")
	// ErrInvalidAxis indicates an axis outside 0..ndim-1 for the field.
	ErrInvalidAxis = errors.New("hessianshape: invalid axis")
	// ErrShapeMismatch indicates fields that must share a shape do not,
	// or a field whose dimensionality the operation does not support.
	ErrShapeMismatch = errors.New("hessianshape: shape mismatch")
	// ErrDegenerateThreshold indicates Otsu selected the lowest bin. It is a
	// warning: the threshold is still returned.
	ErrDegenerateThreshold = errors.New("hessianshape: degenerate threshold")
	// ErrNumericGuard indicates a zero denominator was replaced by a zero
	// response. It is counted and logged, never returned as a failure.
	ErrNumericGuard = errors.New("hessianshape: numeric guard triggered")
)
