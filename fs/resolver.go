package fs

import (
	"strings"

	"github.com/sbencoding/wd_bridge/remote"
)

// resolved is the outcome of resolving an absolute path to a remote id.
type resolved struct {
	id    string
	isDir bool
}

// resolveOutcome distinguishes the three terminal states resolve() can land
// in, mirroring spec.md §4.3's "(id, is_dir) | NotExist | IsFile" contract
// (IsFile covers "a non-final path segment names a file, so nothing beneath
// it can exist").
type resolveOutcome int

const (
	outcomeFound resolveOutcome = iota
	outcomeNotExist
	outcomeNotADir
)

// resolver walks an absolute path down from the root id, consulting and
// populating the path→id cache and the per-directory listing cache as it
// goes (spec.md §4.3). It holds no state of its own beyond a reference to
// the shared cache and remote client — grounded on the teacher's
// `Cache.GetPath` walk, generalized from a locally-materialized inode tree
// to pure id resolution since this bridge keeps no local copy of directory
// contents.
type resolver struct {
	client *remote.Client
	cache  *cache
}

func newResolver(client *remote.Client, c *cache) *resolver {
	return &resolver{client: client, cache: c}
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

func parentPath(path string) string {
	path = normalizePath(path)
	if path == "/" {
		return "/"
	}
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

func baseName(path string) string {
	path = normalizePath(path)
	if path == "/" {
		return ""
	}
	idx := strings.LastIndex(path, "/")
	return path[idx+1:]
}

// resolve implements spec.md §4.3's algorithm exactly: root short-circuit,
// PathId hit, then a segment-by-segment walk using cached-or-fresh listings,
// linearly searching each listing for the matching child name. It never
// fabricates an intermediate result beyond what it actually verified against
// a listing.
func (r *resolver) resolve(path string) (resolved, resolveOutcome, *remote.Failure) {
	path = normalizePath(path)
	if path == "/" {
		return resolved{id: rootID, isDir: true}, outcomeFound, nil
	}
	if id, isDir, ok := r.cache.PathEntry(path); ok {
		return resolved{id: id, isDir: isDir}, outcomeFound, nil
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	currentID := rootID
	currentPath := ""

	for i, name := range segments {
		currentPath += "/" + name
		last := i == len(segments)-1

		if id, isDir, ok := r.cache.PathEntry(currentPath); ok {
			if !isDir {
				if !last {
					return resolved{}, outcomeNotADir, nil
				}
				return resolved{id: id, isDir: false}, outcomeFound, nil
			}
			currentID = id
			continue
		}

		entries, failure := r.listDir(currentID)
		if failure != nil {
			return resolved{}, outcomeNotExist, failure
		}

		var match *remote.Entry
		for i := range entries {
			if entries[i].Name == name {
				match = &entries[i]
				break
			}
		}
		if match == nil {
			return resolved{}, outcomeNotExist, nil
		}

		r.cache.InsertPathID(currentPath, match.ID, match.IsDir())

		if match.IsDir() {
			currentID = match.ID
			continue
		}

		// a file matched; if there are remaining segments beneath it, the
		// path cannot exist.
		if !last {
			return resolved{}, outcomeNotADir, nil
		}
		return resolved{id: match.ID, isDir: false}, outcomeFound, nil
	}

	return resolved{id: currentID, isDir: true}, outcomeFound, nil
}

// listDir fetches (or revalidates) the listing for dirID, updating the
// listing cache per spec.md §4.2's revalidation discipline.
func (r *resolver) listDir(dirID string) ([]remote.Entry, *remote.Failure) {
	entries, _, failure := r.listDirFresh(dirID)
	return entries, failure
}

// listDirFresh is listDir plus whether the listing actually changed (2xx)
// versus was revalidated unchanged (304) — readdir needs this to decide
// between re-priming the subfolder-count cache from a fresh list_multi or
// merely re-marking the existing counts hot (spec.md §4.2).
func (r *resolver) listDirFresh(dirID string) (entries []remote.Entry, fresh bool, failure *remote.Failure) {
	url := listingCacheKey(dirID)
	var etag string
	if entry, ok := r.cache.Listing(url); ok {
		etag = entry.etag
	}

	result := r.client.List(dirID, etag)
	switch result.Status() {
	case remote.StatusNotModified:
		entry, _ := r.cache.Listing(url)
		return entry.entries, false, nil
	case remote.StatusOK:
		value := result.Value()
		r.cache.StoreListing(url, value.ETag, value.Entries)
		return value.Entries, true, nil
	default:
		return nil, false, result.Err()
	}
}

// listingCacheKey is the string the listing cache is keyed by: one entry per
// directory id is sufficient since `remote.ListFields` never varies per
// call site (spec.md §3: "keyed by the fully qualified SDK URL for the
// listing" — the id already uniquely determines that URL here).
func listingCacheKey(dirID string) string {
	return "list:" + dirID
}
