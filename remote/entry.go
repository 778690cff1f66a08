package remote

import "encoding/json"

// EntryKind distinguishes a directory entry from a regular file. The SDK
// encodes this as a mimeType sentinel (DirMimeType); everywhere else in this
// module it is this small enum instead of an ad-hoc bool, per spec.md §9's
// "avoid ad-hoc booleans where a sum type is clearer" guidance.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryDir
)

// Entry represents one remote object as returned by a listing or stat call.
// It is immutable per request; callers re-fetch when a listing's ETag
// changes (spec.md §3).
type Entry struct {
	ID       string
	Name     string
	Kind     EntryKind
	ParentID string // only populated by list_multi
	Size     int64  // only meaningful for EntryFile
}

func (e Entry) IsDir() bool { return e.Kind == EntryDir }

// wireEntry mirrors the JSON shape of one element in a filesSearch/parents
// "files" array.
type wireEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	ParentID string `json:"parentID,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

func (w wireEntry) toEntry() Entry {
	kind := EntryFile
	if w.MimeType == DirMimeType {
		kind = EntryDir
	}
	return Entry{
		ID:       w.ID,
		Name:     w.Name,
		Kind:     kind,
		ParentID: w.ParentID,
		Size:     w.Size,
	}
}

type listResponse struct {
	Files []wireEntry `json:"files"`
}

func parseListResponse(body []byte) ([]Entry, error) {
	var parsed listResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(parsed.Files))
	for _, w := range parsed.Files {
		entries = append(entries, w.toEntry())
	}
	return entries, nil
}
