package fs

import (
	"sync"

	"github.com/sbencoding/wd_bridge/remote"
)

// hotToken is a one-shot freshness marker. It starts hot (true) and a single
// caller may Take() it; every caller after the first sees it cold. This is
// how readdir's subfolder-count/file-size prefetch hands its results to the
// very next getattr without a TTL: the burst of stats that follows a listdir
// is satisfied for free, and anything after that burst falls through to a
// real network call.
type hotToken struct {
	taken bool
}

func newHotToken() *hotToken { return &hotToken{} }

// Take returns true the first time it is called on a fresh token, false on
// every call after.
func (h *hotToken) Take() bool {
	if h == nil || h.taken {
		return false
	}
	h.taken = true
	return true
}

type listingEntry struct {
	etag    string
	entries []remote.Entry
}

type subfolderEntry struct {
	count int
	hot   *hotToken
}

type fileSizeEntry struct {
	size int64
	hot  *hotToken
}

// pathEntry is what the path→id map stores: the remote id plus whether it
// names a directory, so a cache hit on a file's full path doesn't have to be
// re-verified against a listing to know its kind.
type pathEntry struct {
	id    string
	isDir bool
}

// cache is the Cache Layer (spec.md §4.2): a path→id map, a per-parent
// listing cache keyed by the SDK listing URL and revalidated with the
// server's ETag, a subfolder-count cache, and a file-size cache — the last
// two carrying one-shot hot/cold markers so a readdir's prefetch feeds the
// getattr burst that immediately follows it without extra round trips.
//
// Entries are created lazily and replaced wholesale on a fresh response; none
// of the four maps has a TTL, since freshness for the listing map comes from
// server-side ETag revalidation and the other two are bounded by their
// one-shot tokens rather than by time.
type cache struct {
	mu sync.RWMutex

	pathID         map[string]pathEntry // fully qualified path -> remote id/kind
	listing        map[string]listingEntry
	subfolderCount map[string]subfolderEntry // dir id -> count
	fileSize       map[string]fileSizeEntry  // file id -> size
}

const rootID = "root"

func newCache() *cache {
	c := &cache{
		pathID:         make(map[string]pathEntry),
		listing:        make(map[string]listingEntry),
		subfolderCount: make(map[string]subfolderEntry),
		fileSize:       make(map[string]fileSizeEntry),
	}
	c.pathID["/"] = pathEntry{id: rootID, isDir: true}
	return c
}

// PathEntry returns the remote id and kind cached for path, if any. This is
// what resolve() needs to return a terminal result straight from a cache hit
// without re-verifying the entry's kind against a listing.
func (c *cache) PathEntry(path string) (id string, isDir bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.pathID[path]
	return e.id, e.isDir, ok
}

// InsertPathID records the id and kind that path resolves to. Every id
// recorded here was observed either in a listing response or as the Location
// header of a creation request (spec.md §3 invariant 2).
func (c *cache) InsertPathID(path, id string, isDir bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pathID[path] = pathEntry{id: id, isDir: isDir}
}

// DeletePathID forgets path, used on unlink/rmdir/rename-away.
func (c *cache) DeletePathID(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pathID, path)
}

// RenamePathID moves everything cached under oldPath to newPath, including
// any descendants (a directory rename moves its whole cached subtree).
func (c *cache) RenamePathID(oldPath, newPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := oldPath + "/"
	for p, e := range c.pathID {
		if p == oldPath {
			delete(c.pathID, p)
			c.pathID[newPath] = e
			continue
		}
		if len(p) > len(prefix) && p[:len(prefix)] == prefix {
			delete(c.pathID, p)
			c.pathID[newPath+p[len(oldPath):]] = e
		}
	}
}

// Listing returns the stored listing for url and its etag, used to send
// If-None-Match on the next fetch.
func (c *cache) Listing(url string) (listingEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.listing[url]
	return e, ok
}

// StoreListing replaces the listing stored for url wholesale; a 304 leaves
// the prior entry untouched instead of calling this (spec.md §3 invariant
// 3: only a fresh response with a new etag replaces stored entries).
func (c *cache) StoreListing(url, etag string, entries []remote.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listing[url] = listingEntry{etag: etag, entries: entries}
}

// SubfolderCount returns the cached count for dirID and whether it was
// still hot; calling this always consumes the hot marker if present.
func (c *cache) SubfolderCount(dirID string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.subfolderCount[dirID]
	if !ok {
		return 0, false
	}
	return e.count, e.hot.Take()
}

// StoreSubfolderCount records count for dirID as hot, as readdir does after
// its list_multi prefetch succeeds (or after a 304, where the prior count is
// kept but re-marked hot — see PreserveSubfolderCount).
func (c *cache) StoreSubfolderCount(dirID string, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subfolderCount[dirID] = subfolderEntry{count: count, hot: newHotToken()}
}

// PreserveSubfolderCount re-marks an existing count hot without changing its
// value, for the 304 case: the listing didn't change, so neither did the
// subfolder count, but the next getattr should still get the free hit.
func (c *cache) PreserveSubfolderCount(dirID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.subfolderCount[dirID]
	if !ok {
		return
	}
	e.hot = newHotToken()
	c.subfolderCount[dirID] = e
}

// FileSize returns the cached size for fileID and whether it was still hot;
// calling this always consumes the hot marker if present.
func (c *cache) FileSize(fileID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.fileSize[fileID]
	if !ok {
		return 0, false
	}
	return e.size, e.hot.Take()
}

// StoreFileSize records size for fileID as hot, as readdir does from the
// listing payload's size field.
func (c *cache) StoreFileSize(fileID string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fileSize[fileID] = fileSizeEntry{size: size, hot: newHotToken()}
}

// InvalidateSize drops a stale size entry outright, used after a write
// changes a file's length and no fresher server value is known yet.
func (c *cache) InvalidateSize(fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.fileSize, fileID)
}
