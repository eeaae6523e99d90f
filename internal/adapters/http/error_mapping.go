package httpadapter

import (
	"net/http"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrListNotFound), domain.IsKind(err, domain.ErrItemNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrForbidden),
		domain.IsKind(err, domain.ErrUpstream),
		domain.IsKind(err, domain.ErrUnreachable),
		domain.IsKind(err, domain.ErrModel):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
