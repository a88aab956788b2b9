package model

import "errors"

// Sentinel not-found errors for repository lookups, following the
// project's convention of comparing with errors.Is rather than string
// matching.
var (
	ErrTermNotFound       = errors.New("term not found")
	ErrCourseNotFound     = errors.New("course not found")
	ErrInstructorNotFound = errors.New("instructor not found")
	ErrJobNotFound        = errors.New("job not found")
)
