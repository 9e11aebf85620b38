package post

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/subaquatic-pierre/postmanager/internal/logging"
	"github.com/subaquatic-pierre/postmanager/internal/metrics"
	"github.com/subaquatic-pierre/postmanager/internal/storage"
)

// Collection-level object names.
const (
	IndexFile    = "index.json"
	LatestIDFile = "latest_id.json"
)

type latestID struct {
	LatestID int `json:"latest_id"`
}

// Manager maintains a collection of posts: the index of their metadata,
// the id counter and the per-post subtrees. It performs no locking; callers
// with concurrent writers must serialize mutations.
type Manager struct {
	adapter *storage.Adapter
	name    string
}

// NewManager opens the collection rooted at adapter, creating index.json
// and latest_id.json when they do not exist. name labels metrics and logs.
func NewManager(ctx context.Context, adapter *storage.Adapter, name string) (*Manager, error) {
	m := &Manager{adapter: adapter, name: name}

	var index []json.RawMessage
	if err := adapter.GetJSON(ctx, IndexFile, &index); err != nil {
		if !storage.IsNotFound(err) {
			return nil, &ManagerError{Op: "init index", Err: err}
		}
		if err := adapter.SaveJSON(ctx, []any{}, IndexFile); err != nil {
			return nil, &ManagerError{Op: "init index", Err: err}
		}
	}

	var counter latestID
	if err := adapter.GetJSON(ctx, LatestIDFile, &counter); err != nil {
		if !storage.IsNotFound(err) {
			return nil, &ManagerError{Op: "init latest id", Err: err}
		}
		if err := adapter.SaveJSON(ctx, latestID{}, LatestIDFile); err != nil {
			return nil, &ManagerError{Op: "init latest id", Err: err}
		}
	}

	metrics.SetIndexSize(name, len(index))
	return m, nil
}

// Name returns the collection name.
func (m *Manager) Name() string { return m.name }

// Adapter returns the collection adapter.
func (m *Manager) Adapter() *storage.Adapter { return m.adapter }

// Index returns the metadata of every post, in index order.
func (m *Manager) Index(ctx context.Context) ([]*Meta, error) {
	var raw []json.RawMessage
	if err := m.adapter.GetJSON(ctx, IndexFile, &raw); err != nil {
		return nil, err
	}
	metas := make([]*Meta, 0, len(raw))
	for i, entry := range raw {
		meta, err := ParseMeta(nil, entry)
		if err != nil {
			return nil, newError(ErrConsistency, "index entry %d: %v", i, err)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// findOne scans the index for exactly one entry matching match.
func (m *Manager) findOne(ctx context.Context, match func(*Meta) bool, notFound string) (*Meta, error) {
	index, err := m.Index(ctx)
	if err != nil {
		return nil, err
	}
	var found []*Meta
	for _, meta := range index {
		if match(meta) {
			found = append(found, meta)
		}
	}
	switch len(found) {
	case 0:
		return nil, newError(ErrNotFound, "%s", notFound)
	case 1:
		return found[0], nil
	default:
		return nil, newError(ErrConsistency, "More than one blog with that ID found")
	}
}

// GetMeta returns the index entry for id.
func (m *Manager) GetMeta(ctx context.Context, id int) (*Meta, error) {
	return m.findOne(ctx, func(meta *Meta) bool {
		return meta.ID() == id
	}, "No blog with that ID found")
}

// GetByID loads the post with id.
func (m *Manager) GetByID(ctx context.Context, id int) (*Post, error) {
	meta, err := m.GetMeta(ctx, id)
	if err != nil {
		return nil, err
	}
	return New(ctx, m.PostAdapter(id), meta, nil)
}

// TitleToID returns the id of the post titled title.
func (m *Manager) TitleToID(ctx context.Context, title string) (int, error) {
	meta, err := m.findOne(ctx, func(meta *Meta) bool {
		return meta.Title() == title
	}, "No blog with that title found")
	if err != nil {
		return 0, err
	}
	return meta.ID(), nil
}

// NewPostID hands out the stored counter value and stores its successor.
// On a fresh collection the first call returns 0.
func (m *Manager) NewPostID(ctx context.Context) (int, error) {
	var counter latestID
	if err := m.adapter.GetJSON(ctx, LatestIDFile, &counter); err != nil {
		return 0, err
	}
	id := counter.LatestID
	if err := m.adapter.SaveJSON(ctx, latestID{LatestID: id + 1}, LatestIDFile); err != nil {
		return 0, err
	}
	return id, nil
}

// PostAdapter returns the adapter for the subtree of post id.
func (m *Manager) PostAdapter(id int) *storage.Adapter {
	return m.adapter.Child(strconv.Itoa(id) + "/")
}

// NewPost builds an unsaved post from attrs and content. A new id is
// allocated when attrs carries none.
func (m *Manager) NewPost(ctx context.Context, attrs []Attr, content json.RawMessage) (*Post, error) {
	hasID := false
	for _, a := range attrs {
		if a.Key == "id" {
			hasID = true
			break
		}
	}
	if !hasID {
		id, err := m.NewPostID(ctx)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attr{Key: "id", Value: json.RawMessage(strconv.Itoa(id))})
	}

	meta, err := NewMeta(nil, attrs)
	if err != nil {
		return nil, err
	}
	if content == nil {
		content = emptyContent
	}
	return New(ctx, m.PostAdapter(meta.ID()), meta, content)
}

// SavePost writes the post and then upserts its metadata into the index.
// An existing entry is replaced in place; a new one is appended. The index
// is not written when the post itself fails to save.
func (m *Manager) SavePost(ctx context.Context, p *Post) (err error) {
	defer func() {
		metrics.RecordPostOperation("save", err == nil)
		if err != nil {
			err = &ManagerError{Op: "Post could not be saved", Err: err}
		}
	}()

	var index []json.RawMessage
	if err := m.adapter.GetJSON(ctx, IndexFile, &index); err != nil {
		return err
	}

	entry, err := json.Marshal(p.Meta())
	if err != nil {
		return err
	}

	replaced := false
	for i, raw := range index {
		meta, err := ParseMeta(nil, raw)
		if err != nil {
			return newError(ErrConsistency, "index entry %d: %v", i, err)
		}
		if meta.ID() == p.ID() {
			index[i] = entry
			replaced = true
		}
	}
	if !replaced {
		index = append(index, entry)
	}

	if err := p.Save(ctx); err != nil {
		return err
	}
	if err := m.adapter.SaveJSON(ctx, index, IndexFile); err != nil {
		return err
	}

	metrics.SetIndexSize(m.name, len(index))
	logging.Info("post saved",
		logging.Collection(m.name),
		logging.PostID(p.ID()),
		zap.Bool("new", !replaced))
	return nil
}

// DeletePost removes the post's whole subtree and its index entry.
func (m *Manager) DeletePost(ctx context.Context, id int) (err error) {
	defer func() { metrics.RecordPostOperation("delete", err == nil) }()

	p, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := p.Adapter().DeleteAll(ctx); err != nil {
		return &ManagerError{Op: "delete post files", Err: err}
	}

	var index []json.RawMessage
	if err := m.adapter.GetJSON(ctx, IndexFile, &index); err != nil {
		return &ManagerError{Op: "delete post", Err: err}
	}
	kept := make([]json.RawMessage, 0, len(index))
	for i, raw := range index {
		meta, err := ParseMeta(nil, raw)
		if err != nil {
			return newError(ErrConsistency, "index entry %d: %v", i, err)
		}
		if meta.ID() != id {
			kept = append(kept, raw)
		}
	}
	if err := m.adapter.SaveJSON(ctx, kept, IndexFile); err != nil {
		return &ManagerError{Op: "delete post", Err: err}
	}

	metrics.SetIndexSize(m.name, len(kept))
	logging.Info("post deleted", logging.Collection(m.name), logging.PostID(id))
	return nil
}

// ListFiles lists every file in the collection, relative to its root.
func (m *Manager) ListFiles(ctx context.Context) ([]string, error) {
	return m.adapter.ListFiles(ctx)
}
