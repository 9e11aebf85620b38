// Package method implements the verb handlers behind the HTTP server and the
// CLI. Each handler takes a parsed request and a collection manager and
// returns a Result ready to be wrapped in a response envelope.
package method

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/subaquatic-pierre/postmanager/internal/post"
	"github.com/subaquatic-pierre/postmanager/pkg/protocol"
)

// Result is the outcome of a verb. Err is empty on success.
type Result struct {
	Body   any
	Err    string
	Status int
}

// Response formats the result as a response envelope.
func (r Result) Response() (*protocol.Response, error) {
	return protocol.Format(r.Body, r.Err, r.Status)
}

// Handler runs one verb against a collection.
type Handler func(ctx context.Context, req *protocol.Request, m *post.Manager) Result

func ok(body any) Result {
	return Result{Body: body, Status: http.StatusOK}
}

// fail formats "<context>. <cause>" and picks a status from the error kind.
func fail(msg string, err error) Result {
	return Result{
		Body:   map[string]any{},
		Err:    fmt.Sprintf("%s. %v", msg, err),
		Status: StatusFor(err),
	}
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, post.ErrNotFound), errors.Is(err, post.ErrMediaNotFound):
		return http.StatusNotFound
	case errors.Is(err, post.ErrValidation), errors.Is(err, post.ErrInvalidDataURL):
		return http.StatusBadRequest
	case errors.Is(err, post.ErrMediaExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Dispatch routes req to a handler by method and path shape:
// GET /{collection} lists, GET /{collection}/{id} fetches, POST creates,
// PUT updates and DELETE deletes.
func Dispatch(ctx context.Context, req *protocol.Request, m *post.Manager) Result {
	h, found := Lookup(req.Method, hasPostID(req))
	if !found {
		return Result{
			Body:   map[string]any{},
			Err:    fmt.Sprintf("Method not allowed. %s %s", req.Method, req.Path),
			Status: http.StatusMethodNotAllowed,
		}
	}
	return h(ctx, req, m)
}

// Lookup returns the handler for an HTTP method. withID reports whether the
// request path names a post.
func Lookup(httpMethod string, withID bool) (Handler, bool) {
	switch strings.ToUpper(httpMethod) {
	case http.MethodGet:
		if withID {
			return Get, true
		}
		return List, true
	case http.MethodPost:
		return Create, true
	case http.MethodPut:
		return Update, true
	case http.MethodDelete:
		return Delete, true
	}
	return nil, false
}

func hasPostID(req *protocol.Request) bool {
	n := 0
	for _, seg := range strings.Split(req.Path, "/") {
		if seg != "" {
			n++
		}
	}
	return n > 1
}

func parsePostID(req *protocol.Request) (int, error) {
	raw := req.PostID()
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, &post.Error{Kind: post.ErrValidation, Message: fmt.Sprintf("invalid post id %q", raw)}
	}
	return id, nil
}

func decodeBody(req *protocol.Request) (protocol.PostBody, error) {
	var body protocol.PostBody
	if err := req.DecodeBody(&body); err != nil {
		return body, &post.Error{Kind: post.ErrValidation, Message: err.Error()}
	}
	return body, nil
}

// List returns the whole index, or {"id": n} for the post whose title
// matches the "title" query parameter.
func List(ctx context.Context, req *protocol.Request, m *post.Manager) Result {
	if title := req.QueryParam("title"); title != "" {
		id, err := m.TitleToID(ctx, title)
		if err != nil {
			return fail("Unable to list posts", err)
		}
		return ok(map[string]int{"id": id})
	}

	index, err := m.Index(ctx)
	if err != nil {
		return fail("Unable to list posts", err)
	}
	return ok(index)
}

// Get returns {"post": ...} for the post named by the last path segment.
func Get(ctx context.Context, req *protocol.Request, m *post.Manager) Result {
	id, err := parsePostID(req)
	if err != nil {
		return fail("Blog not found", err)
	}
	p, err := m.GetByID(ctx, id)
	if err != nil {
		return fail("Blog not found", err)
	}
	return ok(map[string]any{"post": p.ToJSON()})
}

// Create builds a post from {"metaData", "content", "media"} and saves it.
// Any id in metaData is ignored; a new one is always allocated.
func Create(ctx context.Context, req *protocol.Request, m *post.Manager) Result {
	body, err := decodeBody(req)
	if err != nil {
		return fail("There was an error getting metaData from request body", err)
	}
	if len(body.MetaData) == 0 {
		return fail("There was an error getting metaData from request body",
			&post.Error{Kind: post.ErrValidation, Message: "metaData is required"})
	}

	attrs, err := post.ParseAttrs(body.MetaData)
	if err != nil {
		return fail("There was an error creating post", err)
	}
	kept := attrs[:0]
	for _, a := range attrs {
		if a.Key != "id" {
			kept = append(kept, a)
		}
	}

	p, err := m.NewPost(ctx, kept, body.Content)
	if err != nil {
		return fail("There was an error creating post", err)
	}
	if err := addMedia(p, body.Media); err != nil {
		return fail("There was an error creating post", err)
	}

	if err := m.SavePost(ctx, p); err != nil {
		return fail("There was an error saving post", err)
	}
	return ok(map[string]any{"post": p.ToJSON()})
}

// Update merges metaData into the post, replaces its content when given,
// and stages media additions and deletions before saving.
func Update(ctx context.Context, req *protocol.Request, m *post.Manager) Result {
	id, err := parsePostID(req)
	if err != nil {
		return fail("There was an error updating post data", err)
	}
	body, err := decodeBody(req)
	if err != nil {
		return fail("There was an error updating post data", err)
	}

	p, err := m.GetByID(ctx, id)
	if err != nil {
		return fail("There was an error updating post data", err)
	}
	if len(body.MetaData) > 0 {
		if err := p.UpdateMeta(body.MetaData); err != nil {
			return fail("There was an error updating post data", err)
		}
	}
	if len(body.Content) > 0 {
		if err := p.SetContent(body.Content); err != nil {
			return fail("There was an error updating post data", err)
		}
	}
	if err := addMedia(p, body.Media); err != nil {
		return fail("There was an error updating post data", err)
	}
	for _, name := range body.DeleteMedia {
		p.DeleteMedia(name)
	}

	if err := m.SavePost(ctx, p); err != nil {
		return fail("There was an error saving post", err)
	}
	return ok(map[string]any{"post": p.ToJSON()})
}

// Delete removes the post and returns {"deleted": true, "post_id": id}.
func Delete(ctx context.Context, req *protocol.Request, m *post.Manager) Result {
	id, err := parsePostID(req)
	if err != nil {
		return fail("Unable to delete post from post_manager", err)
	}
	if err := m.DeletePost(ctx, id); err != nil {
		return fail("Unable to delete post from post_manager", err)
	}
	return ok(map[string]any{"deleted": true, "post_id": id})
}

func addMedia(p *post.Post, media map[string]string) error {
	names := make([]string, 0, len(media))
	for name := range media {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := p.AddMedia(media[name], name, true); err != nil {
			return err
		}
	}
	return nil
}
