package outbound

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// requestOptions is the ephemeral per-call descriptor: method and URL are
// passed positionally, everything else accumulates here. It has no identity
// beyond the call it shapes.
type requestOptions struct {
	headers http.Header
	query   url.Values
	body    []byte
	service string
	err     error
}

// RequestOption customizes a single call.
type RequestOption func(*requestOptions)

// WithHeader adds one header to the request.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = http.Header{}
		}
		o.headers.Add(key, value)
	}
}

// WithHeaders merges a header map into the request.
func WithHeaders(headers http.Header) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = http.Header{}
		}
		for key, values := range headers {
			for _, v := range values {
				o.headers.Add(key, v)
			}
		}
	}
}

// WithQuery adds one query parameter to the request URL.
func WithQuery(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		o.query.Add(key, value)
	}
}

// WithQueryParams merges query parameters into the request URL.
func WithQueryParams(params url.Values) RequestOption {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		for key, values := range params {
			for _, v := range values {
				o.query.Add(key, v)
			}
		}
	}
}

// WithBody sets the raw request body. The bytes are re-read on every retry
// attempt.
func WithBody(body []byte) RequestOption {
	return func(o *requestOptions) {
		o.body = body
	}
}

// WithJSONBody marshals v as the request body and sets the content type.
func WithJSONBody(v interface{}) RequestOption {
	return func(o *requestOptions) {
		data, err := json.Marshal(v)
		if err != nil {
			o.err = fmt.Errorf("marshal request body: %w", err)
			return
		}
		o.body = data
		if o.headers == nil {
			o.headers = http.Header{}
		}
		o.headers.Set("Content-Type", "application/json")
	}
}

// WithService tags the call with an upstream service name, selecting which
// circuit breaker bucket it counts against.
func WithService(name string) RequestOption {
	return func(o *requestOptions) {
		o.service = name
	}
}

func buildRequestOptions(opts []RequestOption) (*requestOptions, error) {
	o := &requestOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeValidation,
			Message: "invalid request options",
			Cause:   o.err,
		}
	}
	return o, nil
}

// decodeBody decodes a JSON response body into out.
func decodeBody(resp *http.Response, out interface{}) error {
	return json.NewDecoder(resp.Body).Decode(out)
}

// targetURL appends accumulated query parameters to the raw URL.
func (o *requestOptions) targetURL(rawURL string) (string, error) {
	if len(o.query) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for key, values := range o.query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
