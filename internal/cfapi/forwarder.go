package cfapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"cfpanel/internal/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
)

// Response is a successful upstream reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Forwarder relays internal routes to the Cloudflare API without decoding them.
type Forwarder struct {
	client *resty.Client
}

// NewForwarder returns a forwarder for baseURL (e.g. https://api.cloudflare.com/client/v4).
// Requests are not retried.
func NewForwarder(baseURL string, timeout time.Duration) *Forwarder {
	c := resty.NewWithClient(newHTTPClient(timeout)).
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Forwarder{client: c}
}

// Do sends method to the translated route. The body is sent for every method but GET.
// query is a raw query string appended to the upstream URL. Non-2xx replies are
// returned as *APIError, transport failures as an *APIError with status 500.
func (f *Forwarder) Do(ctx context.Context, method, route string, creds Credentials, body []byte, query string) (_ *Response, err error) {
	if err := creds.Require(ScopeOf(route)); err != nil {
		return nil, err
	}
	path := Translate(route, creds)
	if query != "" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + query
	}
	ctx, span := telemetry.StartSpan(ctx, "cloudflare.forward",
		attribute.String("http.method", method),
		attribute.String("cfpanel.route", route),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	req := f.client.R().SetContext(ctx).SetHeaderMultiValues(creds.Header())
	if method != http.MethodGet && len(body) > 0 {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, &APIError{Status: http.StatusInternalServerError, Message: DefaultErrorMessage, Details: err.Error()}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, newAPIError(resp.StatusCode(), resp.Body())
	}
	return &Response{Status: resp.StatusCode(), Header: resp.Header(), Body: resp.Body()}, nil
}
