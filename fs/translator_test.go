package fs

import (
	"io"
	"net/http"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbencoding/wd_bridge/remote"
)

func newTestFilesystem(client *remote.Client) *Filesystem {
	return NewFilesystem(client)
}

func TestGetattr_Root(t *testing.T) {
	t.Parallel()

	client := newFakeClient(t, fakeTree(t, "etag-1", nil))
	fsys := newTestFilesystem(client)

	info, errno := fsys.getattr("/")
	require.Equal(t, syscall.Errno(0), errno)
	assert.True(t, info.isDir)
}

func TestReaddir_PopulatesPathIDAndSubfolderCounts(t *testing.T) {
	t.Parallel()

	calls := 0
	client := newFakeClient(t, muxHandler(map[string]http.HandlerFunc{
		"/sdk/v2/filesSearch/parents": func(w http.ResponseWriter, r *http.Request) {
			calls++
			ids := r.URL.Query().Get("ids")
			fields := r.URL.Query().Get("fields")
			require.NotEmpty(t, fields, "every list call must specify fields=")
			wantSize := strings.Contains(fields, "size")
			switch ids {
			case "root":
				w.Write([]byte(`{"files":[
					{"id":"d1","name":"dir1","mimeType":"application/x.wd.dir"},
					{"id":"f1","name":"file1.txt","mimeType":"text/plain"` + sizeField(wantSize, 11) + `}
				]}`))
			case "d1":
				w.Write([]byte(`{"files":[
					{"id":"d1sub","name":"sub.txt","mimeType":"text/plain"` + sizeField(wantSize, 1) + `,"parentID":"d1"}
				]}`))
			default:
				w.Write([]byte(`{"files":[]}`))
			}
		},
	}))
	fsys := newTestFilesystem(client)

	entries, errno := fsys.readdir("/")
	require.Equal(t, syscall.Errno(0), errno)
	require.Len(t, entries, 2)

	id, _, ok := fsys.cache.PathEntry("/dir1")
	require.True(t, ok)
	assert.Equal(t, "d1", id)

	id, _, ok = fsys.cache.PathEntry("/file1.txt")
	require.True(t, ok)
	assert.Equal(t, "f1", id)

	size, hit := fsys.cache.FileSize("f1")
	require.True(t, hit)
	assert.Equal(t, int64(11), size)

	// the list_multi prefetch should have primed dir1's subfolder count
	// without any further getattr-triggered network call.
	callsBeforeGetattr := calls
	info, errno := fsys.getattr("/dir1")
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint32(2), info.nlink) // "." + ".." with zero subdirectories
	assert.Equal(t, callsBeforeGetattr, calls, "a hot subfolder count must not issue a network call")
}

func TestGetattr_FollowingReaddir_UsesHotFileSize(t *testing.T) {
	t.Parallel()

	statCalls := 0
	client := newFakeClient(t, muxHandler(map[string]http.HandlerFunc{
		"/sdk/v2/filesSearch/parents": func(w http.ResponseWriter, r *http.Request) {
			fields := r.URL.Query().Get("fields")
			require.NotEmpty(t, fields, "every list call must specify fields=")
			wantSize := strings.Contains(fields, "size")
			w.Write([]byte(`{"files":[{"id":"f1","name":"file1.txt","mimeType":"text/plain"` + sizeField(wantSize, 11) + `}]}`))
		},
		"/sdk/v2/files/f1": func(w http.ResponseWriter, r *http.Request) {
			statCalls++
			w.Write([]byte(`{"size":999}`))
		},
	}))
	fsys := newTestFilesystem(client)

	_, errno := fsys.readdir("/")
	require.Equal(t, syscall.Errno(0), errno)

	info, errno := fsys.getattr("/file1.txt")
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint64(11), info.size)
	assert.Equal(t, 0, statCalls, "readdir's hot size must satisfy the next getattr without a stat call")

	// the hot token is one-shot: a second getattr falls through to StatSize.
	_, errno = fsys.getattr("/file1.txt")
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, 1, statCalls)
}

func TestCreateWriteRelease_ProducesExactBytes(t *testing.T) {
	t.Parallel()

	var written []byte
	var closed bool
	client := newFakeClient(t, muxHandler(map[string]http.HandlerFunc{
		"/sdk/v2/filesSearch/parents": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"files":[]}`))
		},
		"/sdk/v2/files/resumable": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", "sdk/v2/files/new-id")
			w.WriteHeader(http.StatusOK)
		},
		"/sdk/v2/files/new-id/resumable/content": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("done") == "true" {
				closed = true
				w.WriteHeader(http.StatusOK)
				return
			}
			body, _ := io.ReadAll(r.Body)
			written = append(written, body...)
			w.WriteHeader(http.StatusOK)
		},
	}))
	fsys := newTestFilesystem(client)

	errno := fsys.create("/new.txt")
	require.Equal(t, syscall.Errno(0), errno)

	n, errno := fsys.write("/new.txt", 0, []byte("hello world"))
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, 11, n)

	errno = fsys.release("/new.txt")
	require.Equal(t, syscall.Errno(0), errno)
	assert.True(t, closed)
	assert.Equal(t, "hello world", string(written))

	id, _, ok := fsys.cache.PathEntry("/new.txt")
	require.True(t, ok)
	assert.Equal(t, "new-id", id)
}

func TestOpenForWriteThenRelease_ShadowCopyOverwrite(t *testing.T) {
	t.Parallel()

	client := newFakeClient(t, muxHandler(map[string]http.HandlerFunc{
		"/sdk/v2/filesSearch/parents": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"files":[{"id":"orig-id","name":"file.bin","mimeType":"application/octet-stream","size":3}]}`))
		},
		"/sdk/v2/files/orig-id": func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodDelete {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.Write([]byte(`{"size":3}`))
		},
		"/sdk/v2/files/orig-id/content": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte("abc"))
		},
		"/sdk/v2/files/resumable": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", "sdk/v2/files/temp-id")
			w.WriteHeader(http.StatusOK)
		},
		"/sdk/v2/files/temp-id/resumable/content": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
		"/sdk/v2/files/temp-id/patch": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}))
	fsys := newTestFilesystem(client)

	errno := fsys.openForWrite("/file.bin")
	require.Equal(t, syscall.Errno(0), errno)

	n, errno := fsys.write("/file.bin", 0, []byte("xyz"))
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, 3, n)

	errno = fsys.release("/file.bin")
	require.Equal(t, syscall.Errno(0), errno)

	id, _, ok := fsys.cache.PathEntry("/file.bin")
	require.True(t, ok)
	assert.Equal(t, "temp-id", id)
}

func TestRename_CrossDirectoryMove(t *testing.T) {
	t.Parallel()

	var patchBodies []string
	client := newFakeClient(t, muxHandler(map[string]http.HandlerFunc{
		"/sdk/v2/filesSearch/parents": func(w http.ResponseWriter, r *http.Request) {
			ids := r.URL.Query().Get("ids")
			switch ids {
			case "root":
				w.Write([]byte(`{"files":[
					{"id":"d1","name":"src","mimeType":"application/x.wd.dir"},
					{"id":"d2","name":"dst","mimeType":"application/x.wd.dir"}
				]}`))
			case "d1":
				w.Write([]byte(`{"files":[{"id":"f1","name":"a.txt","mimeType":"text/plain"}]}`))
			case "d2":
				w.Write([]byte(`{"files":[]}`))
			default:
				w.Write([]byte(`{"files":[]}`))
			}
		},
		"/sdk/v2/files/f1/patch": func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			patchBodies = append(patchBodies, string(body))
			w.WriteHeader(http.StatusOK)
		},
	}))
	fsys := newTestFilesystem(client)

	// a cross-directory rename that also changes the basename must issue
	// both a move (parentID patch) and a rename (name patch).
	errno := fsys.rename("/src/a.txt", "/dst/b.txt", false, false)
	require.Equal(t, syscall.Errno(0), errno)

	require.Len(t, patchBodies, 2)
	assert.Contains(t, patchBodies[0], `"parentID":"d2"`)
	assert.Contains(t, patchBodies[1], `"name":"b.txt"`)

	_, _, ok := fsys.cache.PathEntry("/src/a.txt")
	assert.False(t, ok)
	id, _, ok := fsys.cache.PathEntry("/dst/b.txt")
	require.True(t, ok)
	assert.Equal(t, "f1", id)
}

func TestRename_RejectsExchange(t *testing.T) {
	t.Parallel()

	client := newFakeClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be made for an exchange rename")
	})
	fsys := newTestFilesystem(client)

	errno := fsys.rename("/a", "/b", true, false)
	assert.Equal(t, syscall.EINVAL, errno)
}

func TestListDir304_ReturnsByteIdenticalEntries(t *testing.T) {
	t.Parallel()

	client := newFakeClient(t, fakeTree(t, "etag-1", nil))
	fsys := newTestFilesystem(client)

	first, errno := fsys.readdir("/")
	require.Equal(t, syscall.Errno(0), errno)

	second, errno := fsys.readdir("/")
	require.Equal(t, syscall.Errno(0), errno)

	assert.Equal(t, first, second)
}
