// Package post implements posts and the collection manager that indexes
// them. A post's metadata, content and media live under one storage
// subtree:
//
//	<id>/meta_data.json
//	<id>/content.json
//	<id>/media/media_index.json
//	<id>/media/<name>.<ext>
package post

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/subaquatic-pierre/postmanager/internal/storage"
)

// ContentFile is the per-post content object name.
const ContentFile = "content.json"

var emptyContent = json.RawMessage(`""`)

// Post composes a post's metadata, content and media over the post's
// storage subtree.
type Post struct {
	adapter *storage.Adapter
	meta    *Meta
	content json.RawMessage
	media   *MediaCollection
}

// JSON is the projection of a post returned to callers.
type JSON struct {
	MetaData   *Meta                 `json:"meta_data"`
	Content    json.RawMessage       `json:"content"`
	MediaIndex map[string]MediaEntry `json:"media_index"`
}

// New builds a post rooted at adapter. When content is nil it is read from
// content.json, defaulting to "" if none is stored. meta is rebound to
// adapter.
func New(ctx context.Context, adapter *storage.Adapter, meta *Meta, content json.RawMessage) (*Post, error) {
	if meta == nil {
		return nil, newError(ErrValidation, "post requires meta data")
	}
	meta.adapter = adapter
	if content != nil && len(content) == 0 {
		content = emptyContent
	}

	p := &Post{adapter: adapter, meta: meta, content: content}
	if p.content == nil {
		var stored json.RawMessage
		err := adapter.GetJSON(ctx, ContentFile, &stored)
		switch {
		case err == nil:
			p.content = stored
		case storage.IsNotFound(err):
			p.content = emptyContent
		default:
			return nil, fmt.Errorf("load content of post %d: %w", meta.ID(), err)
		}
	}

	media, err := LoadMediaCollection(ctx, adapter.Child("media/"))
	if err != nil {
		return nil, fmt.Errorf("load media of post %d: %w", meta.ID(), err)
	}
	p.media = media
	return p, nil
}

// ID returns the post id.
func (p *Post) ID() int { return p.meta.ID() }

// Meta returns the post metadata.
func (p *Post) Meta() *Meta { return p.meta }

// Media returns the post media collection.
func (p *Post) Media() *MediaCollection { return p.media }

// Adapter returns the adapter rooted at the post's subtree.
func (p *Post) Adapter() *storage.Adapter { return p.adapter }

// Content returns the content as JSON.
func (p *Post) Content() json.RawMessage { return p.content }

// SetContent replaces the content with raw JSON. Empty input stores "".
func (p *Post) SetContent(raw json.RawMessage) error {
	if len(raw) == 0 {
		p.content = emptyContent
		return nil
	}
	if !json.Valid(raw) {
		return newError(ErrValidation, "content is not valid JSON")
	}
	p.content = append(json.RawMessage(nil), raw...)
	return nil
}

// UpdateMeta merges a JSON object into the metadata.
func (p *Post) UpdateMeta(data []byte) error {
	return p.meta.UpdateJSON(data)
}

// AddMedia stages a data URL under name.
func (p *Post) AddMedia(dataURL, name string, overwrite bool) error {
	return p.media.AddMedia(dataURL, name, overwrite)
}

// RemoveMedia unstages an addition.
func (p *Post) RemoveMedia(name string) bool {
	return p.media.RemoveMedia(name)
}

// DeleteMedia marks stored media for deletion.
func (p *Post) DeleteMedia(name string) {
	p.media.DeleteMedia(name)
}

// GetMedia returns stored media in the given format.
func (p *Post) GetMedia(ctx context.Context, name, format string) (string, error) {
	return p.media.GetMedia(ctx, name, format)
}

// Save writes content, metadata and media in that order. The three writes
// are independent; a failure leaves earlier writes in place.
func (p *Post) Save(ctx context.Context) error {
	if err := p.adapter.SaveJSON(ctx, p.content, ContentFile); err != nil {
		return fmt.Errorf("save content: %w", err)
	}
	if err := p.meta.Save(ctx); err != nil {
		return fmt.Errorf("save meta data: %w", err)
	}
	if err := p.media.Save(ctx); err != nil {
		return fmt.Errorf("save media: %w", err)
	}
	return nil
}

// ToJSON returns the post projection.
func (p *Post) ToJSON() JSON {
	return JSON{
		MetaData:   p.meta,
		Content:    p.content,
		MediaIndex: p.media.Index(),
	}
}

// ListFiles lists every file stored under the post, relative to it.
func (p *Post) ListFiles(ctx context.Context) ([]string, error) {
	return p.adapter.ListFiles(ctx)
}
