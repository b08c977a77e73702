package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrWong99/salescoach/internal/coach"
	"github.com/MrWong99/salescoach/internal/coaching"
	"github.com/MrWong99/salescoach/internal/observe"
	"github.com/MrWong99/salescoach/internal/resilience"
)

// Error kinds reported in [ErrorBody.Kind].
const (
	KindInvalidRequest   = "invalid_request"
	KindNotFound         = "not_found"
	KindUnsupportedMedia = "unsupported_media"
	KindAPI              = "api"
	KindParse            = "parse"
	KindStructure        = "structure"
	KindTimeout          = "timeout"
	KindInternal         = "internal"
)

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error    string           `json:"error"`
	Kind     string           `json:"kind"`
	Provider coach.ProviderID `json:"provider,omitempty"`

	// UpstreamStatus is the backend's HTTP status for api errors.
	UpstreamStatus int `json:"upstreamStatus,omitempty"`

	// Missing lists the absent fields for structure errors.
	Missing []string `json:"missing,omitempty"`
}

// requestError is a client mistake detected by the API layer itself.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{status: http.StatusBadRequest, msg: msg}
}

// classify maps err to an HTTP status and body.
func classify(err error) (int, ErrorBody) {
	var (
		reqErr    *requestError
		mediaErr  *coach.UnsupportedMediaError
		parseErr  *coach.ParseError
		structErr *coach.StructureError
		apiErr    *coach.APIError
	)
	switch {
	case errors.As(err, &reqErr):
		kind := KindInvalidRequest
		if reqErr.status == http.StatusNotFound {
			kind = KindNotFound
		}
		return reqErr.status, ErrorBody{Error: reqErr.msg, Kind: kind}
	case errors.Is(err, coach.ErrEmptyInput), errors.Is(err, coaching.ErrProviderUnavailable):
		return http.StatusBadRequest, ErrorBody{Error: err.Error(), Kind: KindInvalidRequest}
	case errors.Is(err, coaching.ErrUnknownHistory):
		return http.StatusNotFound, ErrorBody{Error: err.Error(), Kind: KindNotFound}
	case errors.As(err, &mediaErr):
		return http.StatusUnsupportedMediaType, ErrorBody{Error: err.Error(), Kind: KindUnsupportedMedia, Provider: mediaErr.Provider}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorBody{Error: err.Error(), Kind: KindTimeout}
	case errors.As(err, &parseErr):
		return http.StatusBadGateway, ErrorBody{Error: err.Error(), Kind: KindParse, Provider: parseErr.Provider}
	case errors.As(err, &structErr):
		return http.StatusBadGateway, ErrorBody{Error: err.Error(), Kind: KindStructure, Provider: structErr.Provider, Missing: structErr.Missing}
	case errors.As(err, &apiErr):
		body := ErrorBody{Error: err.Error(), Kind: KindAPI, Provider: coach.ProviderID(apiErr.Provider), UpstreamStatus: apiErr.StatusCode}
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			return http.StatusServiceUnavailable, body
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return http.StatusTooManyRequests, body
		}
		return http.StatusBadGateway, body
	}
	return http.StatusInternalServerError, ErrorBody{Error: "internal error", Kind: KindInternal}
}

// respondError writes the classified error. Server-side failures are logged
// with the request's trace context.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Warn("api: request failed",
			"path", r.URL.Path,
			"status", status,
			"kind", body.Kind,
			"err", err,
		)
	}
	respondJSON(w, status, body)
}
