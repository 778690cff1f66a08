package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbencoding/wd_bridge/remote"
)

func TestHotToken_OneShot(t *testing.T) {
	t.Parallel()

	tok := newHotToken()
	assert.True(t, tok.Take())
	assert.False(t, tok.Take())
	assert.False(t, tok.Take())
}

func TestHotToken_NilIsAlwaysCold(t *testing.T) {
	t.Parallel()

	var tok *hotToken
	assert.False(t, tok.Take())
}

func TestCache_PathEntryRoundTrip(t *testing.T) {
	t.Parallel()

	c := newCache()
	id, isDir, ok := c.PathEntry("/")
	require.True(t, ok)
	assert.Equal(t, rootID, id)
	assert.True(t, isDir)

	_, _, ok = c.PathEntry("/missing")
	assert.False(t, ok)

	c.InsertPathID("/docs", "docs-id", true)
	id, isDir, ok = c.PathEntry("/docs")
	require.True(t, ok)
	assert.Equal(t, "docs-id", id)
	assert.True(t, isDir)

	c.DeletePathID("/docs")
	_, _, ok = c.PathEntry("/docs")
	assert.False(t, ok)
}

func TestCache_RenamePathID_MovesSubtree(t *testing.T) {
	t.Parallel()

	c := newCache()
	c.InsertPathID("/docs", "docs-id", true)
	c.InsertPathID("/docs/a.txt", "a-id", false)
	c.InsertPathID("/docs/sub", "sub-id", true)
	c.InsertPathID("/docs/sub/b.txt", "b-id", false)
	c.InsertPathID("/other", "other-id", true)

	c.RenamePathID("/docs", "/archive")

	_, _, ok := c.PathEntry("/docs")
	assert.False(t, ok)
	_, _, ok = c.PathEntry("/docs/a.txt")
	assert.False(t, ok)

	id, _, ok := c.PathEntry("/archive")
	require.True(t, ok)
	assert.Equal(t, "docs-id", id)

	id, _, ok = c.PathEntry("/archive/a.txt")
	require.True(t, ok)
	assert.Equal(t, "a-id", id)

	id, _, ok = c.PathEntry("/archive/sub/b.txt")
	require.True(t, ok)
	assert.Equal(t, "b-id", id)

	id, _, ok = c.PathEntry("/other")
	require.True(t, ok)
	assert.Equal(t, "other-id", id)
}

func TestCache_RenamePathID_DoesNotTouchSiblingWithSharedPrefix(t *testing.T) {
	t.Parallel()

	c := newCache()
	c.InsertPathID("/docs", "docs-id", true)
	c.InsertPathID("/docs2", "docs2-id", true)

	c.RenamePathID("/docs", "/archive")

	id, _, ok := c.PathEntry("/docs2")
	require.True(t, ok)
	assert.Equal(t, "docs2-id", id)
}

func TestCache_Listing(t *testing.T) {
	t.Parallel()

	c := newCache()
	_, ok := c.Listing("list:root")
	assert.False(t, ok)

	entries := []remote.Entry{{ID: "1", Name: "a"}}
	c.StoreListing("list:root", "etag-1", entries)

	got, ok := c.Listing("list:root")
	require.True(t, ok)
	assert.Equal(t, "etag-1", got.etag)
	assert.Equal(t, entries, got.entries)
}

func TestCache_SubfolderCount_HotThenCold(t *testing.T) {
	t.Parallel()

	c := newCache()
	_, hit := c.SubfolderCount("dir-1")
	assert.False(t, hit)

	c.StoreSubfolderCount("dir-1", 3)

	count, hit := c.SubfolderCount("dir-1")
	require.True(t, hit)
	assert.Equal(t, 3, count)

	count, hit = c.SubfolderCount("dir-1")
	assert.False(t, hit)
	assert.Equal(t, 3, count)
}

func TestCache_PreserveSubfolderCount_ReheatsWithoutChangingValue(t *testing.T) {
	t.Parallel()

	c := newCache()
	c.StoreSubfolderCount("dir-1", 5)
	c.SubfolderCount("dir-1") // consume the hot token

	_, hit := c.SubfolderCount("dir-1")
	require.False(t, hit)

	c.PreserveSubfolderCount("dir-1")
	count, hit := c.SubfolderCount("dir-1")
	require.True(t, hit)
	assert.Equal(t, 5, count)
}

func TestCache_PreserveSubfolderCount_NoopWhenAbsent(t *testing.T) {
	t.Parallel()

	c := newCache()
	c.PreserveSubfolderCount("never-stored")
	_, hit := c.SubfolderCount("never-stored")
	assert.False(t, hit)
}

func TestCache_FileSize_HotThenInvalidate(t *testing.T) {
	t.Parallel()

	c := newCache()
	c.StoreFileSize("file-1", 42)

	size, hit := c.FileSize("file-1")
	require.True(t, hit)
	assert.Equal(t, int64(42), size)

	_, hit = c.FileSize("file-1")
	assert.False(t, hit)

	c.StoreFileSize("file-1", 100)
	c.InvalidateSize("file-1")
	_, hit = c.FileSize("file-1")
	assert.False(t, hit)
}
