package service

import (
	"errors"

	"github.com/noah-isme/gema-tutor-analytics/internal/sentinel"
)

func denialOutcome(err error) string {
	switch {
	case errors.Is(err, sentinel.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, sentinel.ErrOutOfScope):
		return "out_of_scope"
	case errors.Is(err, sentinel.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
