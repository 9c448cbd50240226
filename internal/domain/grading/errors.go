package grading

import "errors"

var (
	ErrNotFound       = errors.New("grade not found")
	ErrInvalidScore   = errors.New("score must be a number between 0 and 100")
	ErrInvalidSection = errors.New("unknown grading section")
	ErrReviewNotOpen  = errors.New("an overall grade needs an open review")
)
