package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/fetch"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/grants"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/graphql"
	pricequery "github.com/Cogwheel-Validator/grant-explorer/explorer/price_query"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Error          string `json:"error"`
	Service        string `json:"service,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// statusFor maps an error to the HTTP status of the API response. Upstream failures are
// reported as 502 with the upstream status in the body.
func statusFor(err error) (int, errorResponse) {
	body := errorResponse{Error: err.Error()}

	var statusErr *fetch.StatusError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, grants.ErrInvalidAddress):
		return http.StatusBadRequest, body
	case errors.Is(err, grants.ErrProgramNotFound), errors.Is(err, grants.ErrRoundNotFound),
		errors.Is(err, pricequery.ErrNoMarketData):
		return http.StatusNotFound, body
	case errors.Is(err, pricequery.ErrUnsupportedChain):
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &statusErr):
		body.Service = statusErr.Service
		body.UpstreamStatus = statusErr.Status
		return http.StatusBadGateway, body
	case errors.Is(err, graphql.ErrGraphQL):
		body.Service = fetch.ServiceGraphQL
		return http.StatusBadGateway, body
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, body
	default:
		return http.StatusInternalServerError, body
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		Logger.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		Logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}
