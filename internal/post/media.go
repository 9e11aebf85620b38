package post

import (
	"context"
	"encoding/base64"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/subaquatic-pierre/postmanager/internal/logging"
	"github.com/subaquatic-pierre/postmanager/internal/metrics"
	"github.com/subaquatic-pierre/postmanager/internal/storage"
)

// MediaIndexFile is the media index object name under a post's media/ root.
const MediaIndexFile = "media_index.json"

// Return formats for GetMedia.
const (
	FormatDataURL   = "data_url"
	FormatByte64    = "byte64"
	FormatByte64Str = "byte64_str"
)

// MediaEntry describes one stored media item.
type MediaEntry struct {
	FileType string `json:"file_type"`
	Filename string `json:"filename"`
}

type pendingMedia struct {
	data     []byte
	fileType string
}

// MediaCollection tracks a post's binary attachments. Additions and
// deletions are staged in memory and written together by Save.
type MediaCollection struct {
	adapter        *storage.Adapter
	index          map[string]MediaEntry
	pendingAdds    map[string]pendingMedia
	pendingDeletes []string
}

// LoadMediaCollection reads media_index.json under adapter. A missing index
// yields an empty collection.
func LoadMediaCollection(ctx context.Context, adapter *storage.Adapter) (*MediaCollection, error) {
	index := make(map[string]MediaEntry)
	if err := adapter.GetJSON(ctx, MediaIndexFile, &index); err != nil {
		if !storage.IsNotFound(err) {
			return nil, err
		}
		index = make(map[string]MediaEntry)
	}
	return &MediaCollection{
		adapter:     adapter,
		index:       index,
		pendingAdds: make(map[string]pendingMedia),
	}, nil
}

// mimeToken matches one side of a type/subtype pair.
var mimeToken = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9!#$&^_.+-]*$`)

// ValidateMediaName rejects names that could leave the post's media/
// namespace once turned into a filename.
func ValidateMediaName(name string) error {
	switch {
	case name == "":
		return newError(ErrValidation, "media name is required")
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."), strings.HasPrefix(name, "."):
		return newError(ErrValidation, "invalid media name %q", name)
	}
	return nil
}

// ParseDataURL splits a base64 data URL of the form
// data:<type>/<subtype>;base64,<payload> into its MIME type and bytes.
func ParseDataURL(dataURL string) (string, []byte, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok {
		return "", nil, newError(ErrInvalidDataURL, "data url has no payload separator")
	}
	rest, ok := strings.CutPrefix(header, "data:")
	if !ok {
		return "", nil, newError(ErrInvalidDataURL, "data url must start with data:")
	}
	params := strings.Split(rest, ";")
	fileType := params[0]
	mainType, subType, ok := strings.Cut(fileType, "/")
	if !ok || mainType == "" || subType == "" {
		return "", nil, newError(ErrInvalidDataURL, "data url has no MIME type")
	}
	if !mimeToken.MatchString(mainType) || !mimeToken.MatchString(subType) {
		return "", nil, newError(ErrInvalidDataURL, "invalid MIME type %q", fileType)
	}
	if params[len(params)-1] != "base64" {
		return "", nil, newError(ErrInvalidDataURL, "data url must be base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, newError(ErrInvalidDataURL, "decode data url payload: %v", err)
	}
	return fileType, data, nil
}

// FileExt returns the stored file extension for a MIME type: "txt" for
// every text/* type, otherwise the subtype.
func FileExt(fileType string) string {
	mainType, subType, _ := strings.Cut(fileType, "/")
	if mainType == "text" {
		return "txt"
	}
	return subType
}

// AddMedia stages a data URL under name. With overwrite false, a name that
// is already stored or staged is rejected with ErrMediaExists.
func (c *MediaCollection) AddMedia(dataURL, name string, overwrite bool) error {
	if err := ValidateMediaName(name); err != nil {
		return err
	}
	if !overwrite {
		_, stored := c.index[name]
		_, staged := c.pendingAdds[name]
		if stored || staged {
			return newError(ErrMediaExists, "media %q already exists", name)
		}
	}

	fileType, data, err := ParseDataURL(dataURL)
	if err != nil {
		return err
	}
	c.pendingAdds[name] = pendingMedia{data: data, fileType: fileType}
	return nil
}

// RemoveMedia drops a staged addition. It reports false when name was not
// staged.
func (c *MediaCollection) RemoveMedia(name string) bool {
	if _, ok := c.pendingAdds[name]; !ok {
		return false
	}
	delete(c.pendingAdds, name)
	return true
}

// DeleteMedia marks name for deletion on the next Save. A name that is only
// staged, never saved, is simply unstaged without touching storage.
func (c *MediaCollection) DeleteMedia(name string) {
	_, staged := c.pendingAdds[name]
	delete(c.pendingAdds, name)
	if _, stored := c.index[name]; !stored && staged {
		return
	}
	for _, n := range c.pendingDeletes {
		if n == name {
			return
		}
	}
	c.pendingDeletes = append(c.pendingDeletes, name)
}

// GetMediaBytes fetches the stored bytes of name.
func (c *MediaCollection) GetMediaBytes(ctx context.Context, name string) ([]byte, MediaEntry, error) {
	entry, ok := c.index[name]
	if !ok {
		return nil, MediaEntry{}, newError(ErrMediaNotFound, "media %q not found", name)
	}
	data, err := c.adapter.GetBytes(ctx, entry.Filename)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, MediaEntry{}, &Error{Kind: ErrMediaNotFound, Message: err.Error()}
		}
		return nil, MediaEntry{}, err
	}
	return data, entry, nil
}

// GetMedia returns stored media re-encoded per format: a data URL, or the
// bare base64 payload for FormatByte64 and FormatByte64Str.
func (c *MediaCollection) GetMedia(ctx context.Context, name, format string) (string, error) {
	data, entry, err := c.GetMediaBytes(ctx, name)
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	switch format {
	case FormatByte64, FormatByte64Str:
		return encoded, nil
	case FormatDataURL, "":
		return "data:" + entry.FileType + ";base64," + encoded, nil
	default:
		return "", newError(ErrValidation, "unknown media format %q", format)
	}
}

// Index returns a copy of the durable media index.
func (c *MediaCollection) Index() map[string]MediaEntry {
	out := make(map[string]MediaEntry, len(c.index))
	for k, v := range c.index {
		out[k] = v
	}
	return out
}

// Pending reports whether Save has anything to write.
func (c *MediaCollection) Pending() bool {
	return len(c.pendingAdds) > 0 || len(c.pendingDeletes) > 0
}

// Save writes staged additions, then applies staged deletions, then
// persists the index. It makes no storage calls when nothing is staged.
// Deletion failures are logged and skipped.
func (c *MediaCollection) Save(ctx context.Context) error {
	if !c.Pending() {
		return nil
	}

	names := make([]string, 0, len(c.pendingAdds))
	for name := range c.pendingAdds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		media := c.pendingAdds[name]
		if old, ok := c.index[name]; ok {
			// the extension may change with the type, so replace rather
			// than overwrite
			if err := c.adapter.DeleteFile(ctx, old.Filename); err != nil {
				return err
			}
		}

		filename := name + "." + FileExt(media.fileType)
		if err := c.adapter.SaveBytes(ctx, media.data, filename); err != nil {
			return err
		}
		c.index[name] = MediaEntry{FileType: media.fileType, Filename: filename}
		delete(c.pendingAdds, name)
	}
	metrics.RecordMediaSaved("add", len(names))

	deleted := 0
	for _, name := range c.pendingDeletes {
		entry, ok := c.index[name]
		if !ok {
			continue
		}
		if err := c.adapter.DeleteFile(ctx, entry.Filename); err != nil {
			logging.Warn("media delete failed",
				logging.Root(c.adapter.Root()),
				logging.Media(name),
				zap.Error(err))
			continue
		}
		delete(c.index, name)
		deleted++
	}
	c.pendingDeletes = nil
	metrics.RecordMediaSaved("delete", deleted)

	return c.adapter.SaveJSON(ctx, c.index, MediaIndexFile)
}
