package cfapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cloudflare/cloudflare-go"
)

var ErrMissingCredentials = errors.New("missing required credentials")

// DefaultErrorMessage is used when Cloudflare does not explain a failure.
const DefaultErrorMessage = "An error occurred"

// APIError is a failed upstream call. Details is the upstream JSON body when
// there was one, otherwise the transport error text.
type APIError struct {
	Status  int
	Message string
	Details any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudflare api: %d %s", e.Status, e.Message)
}

func (e *APIError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// upstreamBody is the part of the v4 response envelope used for errors.
type upstreamBody struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// newAPIError builds an APIError from a non-2xx upstream response.
func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status, Message: DefaultErrorMessage}
	var env upstreamBody
	if err := json.Unmarshal(body, &env); err == nil {
		e.Details = json.RawMessage(body)
		if len(env.Errors) > 0 && env.Errors[0].Message != "" {
			e.Message = env.Errors[0].Message
		}
	} else if len(body) > 0 {
		e.Details = string(body)
	}
	return e
}

// StatusOf maps err onto the HTTP status returned to the caller.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var hs interface{ HTTPStatus() int }
	if errors.As(err, &hs) {
		return hs.HTTPStatus()
	}
	if errors.Is(err, ErrMissingCredentials) {
		return http.StatusBadRequest
	}
	var (
		notFound *cloudflare.NotFoundError
		authn    *cloudflare.AuthenticationError
		authz    *cloudflare.AuthorizationError
		limited  *cloudflare.RatelimitError
		service  *cloudflare.ServiceError
		request  *cloudflare.RequestError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &authn):
		return http.StatusUnauthorized
	case errors.As(err, &authz):
		return http.StatusForbidden
	case errors.As(err, &limited):
		return http.StatusTooManyRequests
	case errors.As(err, &service):
		return http.StatusBadGateway
	case errors.As(err, &request):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// MessageOf returns the first Cloudflare error message in err's chain, or err's text.
func MessageOf(err error) string {
	var api *APIError
	if errors.As(err, &api) {
		return api.Message
	}
	var cf interface{ ErrorMessages() []string }
	if errors.As(err, &cf) {
		if msgs := cf.ErrorMessages(); len(msgs) > 0 && msgs[0] != "" {
			return msgs[0]
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
