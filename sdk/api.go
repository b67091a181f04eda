package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
)

// API is the Receiver-backed client for the assessment backend's JSON
// endpoints. It turns endpoints into Commands that an Invoker can run.
//
// Example:
//
//	type Administration struct {
//	    ID   string `json:"id"`
//	    Name string `json:"name"`
//	}
//
//	getAdmin := sdk.Get[Administration](api, "getAdministration",
//	    sdk.BuildPath("/administrations/{0}", adminID))
//	admin, err := sdk.Run(ctx, invoker, getAdmin, nil)
type API struct {
	receiver *Receiver
}

// NewAPI wraps a Receiver
func NewAPI(receiver *Receiver) *API {
	return &API{receiver: receiver}
}

// Receiver returns the underlying Receiver for raw requests
func (a *API) Receiver() *Receiver {
	return a.receiver
}

// Do sends body as JSON to endpoint and decodes a 2xx response into out (when
// non-nil). A nil body, including a nil pointer, map or slice, sends no body
// and no Content-Type. A non-2xx response becomes an *APIError.
func (a *API) Do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	header := http.Header{}
	header.Set("Accept", "application/json")

	var bodyReader io.Reader
	if !isNilBody(body) {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		header.Set("Content-Type", "application/json")
	}

	resp, err := a.receiver.Request(ctx, endpoint, &RequestOptions{
		Method: method,
		Header: header,
		Body:   bodyReader,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		if resp.Request != nil {
			apiErr.RequestID = resp.Request.Header.Get(HeaderRequestID)
		}
		return apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func isNilBody(body interface{}) bool {
	if body == nil {
		return true
	}
	v := reflect.ValueOf(body)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// parseAPIError decodes an error body, falling back to the raw text
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if len(body) > 0 {
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}

// EndpointCommand is a Command that calls one JSON endpoint of the backend.
// Input is either a query (for GET and DELETE) or a JSON body.
type EndpointCommand[I, O any] struct {
	api        *API
	name       string
	method     string
	endpoint   string
	idempotent bool
	queryInput bool
}

// Name implements Command
func (c *EndpointCommand[I, O]) Name() string {
	return c.name
}

// Idempotent implements Command
func (c *EndpointCommand[I, O]) Idempotent() bool {
	return c.idempotent
}

// Method returns the HTTP method the command uses
func (c *EndpointCommand[I, O]) Method() string {
	return c.method
}

// Endpoint returns the path appended to the base URL
func (c *EndpointCommand[I, O]) Endpoint() string {
	return c.endpoint
}

// Execute implements Command
func (c *EndpointCommand[I, O]) Execute(ctx context.Context, input I) (O, error) {
	var out O
	endpoint := c.endpoint
	var body interface{}

	if c.queryInput {
		if q, ok := any(input).(url.Values); ok && len(q) > 0 {
			sep := "?"
			if strings.Contains(endpoint, "?") {
				sep = "&"
			}
			endpoint += sep + q.Encode()
		}
	} else {
		body = input
	}

	if err := c.api.Do(ctx, c.method, endpoint, body, &out); err != nil {
		return out, err
	}
	return out, nil
}

func newEndpointCommand[I, O any](api *API, name, method, endpoint string, idempotent, queryInput bool) *EndpointCommand[I, O] {
	return &EndpointCommand[I, O]{
		api:        api,
		name:       name,
		method:     method,
		endpoint:   endpoint,
		idempotent: idempotent,
		queryInput: queryInput,
	}
}

// Get builds an idempotent GET command; its input is the query string
func Get[O any](api *API, name, endpoint string) Command[url.Values, O] {
	return newEndpointCommand[url.Values, O](api, name, http.MethodGet, endpoint, true, true)
}

// Delete builds an idempotent DELETE command; its input is the query string
func Delete[O any](api *API, name, endpoint string) Command[url.Values, O] {
	return newEndpointCommand[url.Values, O](api, name, http.MethodDelete, endpoint, true, true)
}

// Put builds an idempotent PUT command sending input as the JSON body
func Put[I, O any](api *API, name, endpoint string) Command[I, O] {
	return newEndpointCommand[I, O](api, name, http.MethodPut, endpoint, true, false)
}

// Post builds a non-idempotent POST command sending input as the JSON body
func Post[I, O any](api *API, name, endpoint string) Command[I, O] {
	return newEndpointCommand[I, O](api, name, http.MethodPost, endpoint, false, false)
}

// Patch builds a non-idempotent PATCH command sending input as the JSON body
func Patch[I, O any](api *API, name, endpoint string) Command[I, O] {
	return newEndpointCommand[I, O](api, name, http.MethodPatch, endpoint, false, false)
}

// WithIdempotency returns cmd with its idempotency flag replaced, e.g. for a
// POST that carries a client-generated deduplication key.
//
//	submit := sdk.WithIdempotency(sdk.Post[Trial, Ack](api, "writeTrial", path), true)
func WithIdempotency[I, O any](cmd Command[I, O], idempotent bool) Command[I, O] {
	return &idempotencyOverride[I, O]{Command: cmd, idempotent: idempotent}
}

type idempotencyOverride[I, O any] struct {
	Command[I, O]
	idempotent bool
}

func (c *idempotencyOverride[I, O]) Idempotent() bool {
	return c.idempotent
}

// BuildPath replaces {0}, {1}, ... placeholders in pattern with the escaped
// args.
//
//	sdk.BuildPath("/users/{0}/assignments/{1}", "u 1", "a/2")
//	// "/users/u%201/assignments/a%2F2"
func BuildPath(pattern string, args ...string) string {
	path := pattern
	for i, arg := range args {
		placeholder := fmt.Sprintf("{%d}", i)
		// QueryEscape encodes '/', '=' and '&'; spaces must be %20 in a path
		escaped := strings.ReplaceAll(url.QueryEscape(arg), "+", "%20")
		path = strings.Replace(path, placeholder, escaped, 1)
	}
	return path
}
