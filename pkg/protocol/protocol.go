// Package protocol defines the request, response and event types shared by
// the HTTP server, the verb handlers and the CLI.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Request is a parsed inbound call.
type Request struct {
	Method  string            `json:"httpMethod,omitempty"`
	Path    string            `json:"path"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Query   map[string]string `json:"queryStringParameters,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Collection returns the first path segment, e.g. "blog" for "/blog/3".
func (r *Request) Collection() string {
	for _, seg := range strings.Split(r.Path, "/") {
		if seg != "" {
			return seg
		}
	}
	return ""
}

// PostID returns the last path segment, e.g. "3" for "/blog/3".
func (r *Request) PostID() string {
	segs := strings.Split(strings.TrimRight(r.Path, "/"), "/")
	return segs[len(segs)-1]
}

// QueryParam returns the query parameter key, or "".
func (r *Request) QueryParam(key string) string {
	return r.Query[key]
}

// DecodeBody unmarshals the request body into v. An empty body leaves v
// untouched.
func (r *Request) DecodeBody(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// PostBody is the body of create and update calls.
type PostBody struct {
	// MetaData is kept raw so attribute order survives decoding.
	MetaData json.RawMessage `json:"metaData,omitempty"`
	// Content replaces the stored content when present.
	Content json.RawMessage `json:"content,omitempty"`
	// Media maps media names to data URLs to add.
	Media map[string]string `json:"media,omitempty"`
	// DeleteMedia lists media names to remove from the post.
	DeleteMedia []string `json:"deleteMedia,omitempty"`
}

// Event is a proxy-style gateway event. Body holds the JSON request body
// encoded as a string.
type Event struct {
	HTTPMethod            string            `json:"httpMethod"`
	Path                  string            `json:"path"`
	Body                  *string           `json:"body"`
	QueryStringParameters map[string]string `json:"queryStringParameters"`
	Headers               map[string]string `json:"headers"`
}

// ParseEvent decodes a gateway event into a Request.
func ParseEvent(data []byte) (*Request, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("There was an error parsing request event. %w", err)
	}

	req := &Request{
		Method:  strings.ToUpper(ev.HTTPMethod),
		Path:    ev.Path,
		Query:   ev.QueryStringParameters,
		Headers: ev.Headers,
	}
	if ev.Body != nil && *ev.Body != "" {
		if !json.Valid([]byte(*ev.Body)) {
			return nil, fmt.Errorf("There was an error parsing event body. invalid JSON")
		}
		req.Body = json.RawMessage(*ev.Body)
	}
	return req, nil
}

// DefaultHeaders returns the CORS headers set on every response.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type",
		"Access-Control-Allow-Methods": "OPTIONS,POST,GET,PUT,DELETE",
	}
}

// ErrorDetail carries a human readable error message.
type ErrorDetail struct {
	Message string `json:"message"`
}

// ErrorBody is the body of every failed call.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// NewErrorBody returns an ErrorBody for message.
func NewErrorBody(message string) ErrorBody {
	return ErrorBody{Error: ErrorDetail{Message: message}}
}

// Response is the outbound envelope. Body is JSON encoded as a string.
type Response struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	Body            string            `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
}

// Format builds the envelope for a call result. A non-empty errMessage
// replaces body with an ErrorBody.
func Format(body any, errMessage string, status int) (*Response, error) {
	if errMessage != "" {
		body = NewErrorBody(errMessage)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode response body: %w", err)
	}
	return &Response{
		StatusCode: status,
		Headers:    DefaultHeaders(),
		Body:       string(data),
	}, nil
}
