package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/geoportal/internal/apperr"
)

// toHuma maps an apperr kind onto the matching HTTP error.
func toHuma(err error) error {
	if err == nil {
		return nil
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return huma.Error404NotFound(err.Error())
	case apperr.KindInvalidFormat, apperr.KindGeometry:
		return huma.Error422UnprocessableEntity(err.Error())
	case apperr.KindConfiguration:
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
