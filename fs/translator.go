package fs

import (
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sbencoding/wd_bridge/remote"
)

// attrInfo is the plain-data result of getattr, independent of any FUSE
// type so it can be unit tested without a go-fuse context.
type attrInfo struct {
	isDir bool
	size  uint64
	nlink uint32
}

const (
	dirMode  = uint32(0755)
	fileMode = uint32(0644)
)

// getattr implements spec.md §4.5's getattr contract.
func (fsys *Filesystem) getattr(path string) (attrInfo, syscall.Errno) {
	path = normalizePath(path)

	if session, ok := fsys.sessions.get(path); ok && session.kind == kindNewCreate && session.state == stateOpen {
		return attrInfo{isDir: false, size: 0, nlink: 1}, 0
	}

	res, outcome, failure := fsys.resolver.resolve(path)
	if outcome != outcomeFound {
		return attrInfo{}, errnoForOutcome(outcome, failure)
	}

	if res.isDir {
		count, hit := fsys.cache.SubfolderCount(res.id)
		if !hit {
			fresh, failure := fsys.countSubfolders(res.id)
			if failure != nil {
				return attrInfo{}, errnoFor(failure)
			}
			count = fresh
		}
		return attrInfo{isDir: true, size: 4096, nlink: 2 + uint32(count)}, 0
	}

	size, hit := fsys.cache.FileSize(res.id)
	if !hit {
		result := fsys.client.StatSize(res.id, "")
		if result.IsFailed() {
			return attrInfo{}, errnoFor(result.Err())
		}
		size = result.Value().Size
	}
	return attrInfo{isDir: false, size: uint64(size), nlink: 1}, 0
}

// countSubfolders lists dirID directly to count its directory children, the
// "else listing to compute" fallback spec.md §4.5 names when no hot entry
// is available (e.g. a getattr with no preceding readdir).
func (fsys *Filesystem) countSubfolders(dirID string) (int, *remote.Failure) {
	entries, failure := fsys.resolver.listDir(dirID)
	if failure != nil {
		return 0, failure
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			count++
		}
	}
	return count, nil
}

// direntry is one readdir result, independent of FUSE types.
type direntry struct {
	name  string
	isDir bool
}

// readdir implements spec.md §4.5's readdir contract: emit each child name
// from a fresh-or-revalidated listing while populating PathId, prefetching
// subfolder counts via a single list_multi, and marking file sizes hot.
func (fsys *Filesystem) readdir(path string) ([]direntry, syscall.Errno) {
	path = normalizePath(path)

	var dirID string
	if path == "/" {
		dirID = rootID
	} else {
		res, outcome, failure := fsys.resolver.resolve(path)
		if outcome != outcomeFound {
			return nil, errnoForOutcome(outcome, failure)
		}
		if !res.isDir {
			return nil, syscall.ENOTDIR
		}
		dirID = res.id
	}

	entries, fresh, failure := fsys.resolver.listDirFresh(dirID)
	if failure != nil {
		return nil, errnoFor(failure)
	}

	out := make([]direntry, 0, len(entries))
	var subdirIDs []string
	for _, e := range entries {
		childPath := path
		if childPath == "/" {
			childPath = ""
		}
		childPath += "/" + e.Name
		fsys.cache.InsertPathID(childPath, e.ID, e.IsDir())

		if e.IsDir() {
			subdirIDs = append(subdirIDs, e.ID)
		} else {
			fsys.cache.StoreFileSize(e.ID, e.Size)
		}
		out = append(out, direntry{name: e.Name, isDir: e.IsDir()})
	}

	if len(subdirIDs) > 0 {
		if fresh {
			fsys.primeSubfolderCounts(subdirIDs)
		} else {
			for _, id := range subdirIDs {
				fsys.cache.PreserveSubfolderCount(id)
			}
		}
	}

	return out, 0
}

// primeSubfolderCounts issues one list_multi across subdirIDs and, when it
// succeeds, stores a hot subfolder count for each, derived from how many of
// the returned entries are directories under each parent (spec.md §4.5
// readdir step b).
func (fsys *Filesystem) primeSubfolderCounts(subdirIDs []string) {
	counts := make(map[string]int, len(subdirIDs))
	for _, id := range subdirIDs {
		counts[id] = 0
	}

	result := fsys.client.ListMulti(strings.Join(subdirIDs, ","), "")
	if !result.IsOK() {
		// leave the dirs cold: the next getattr falls through to an
		// individual listing instead of trusting a count nobody fetched.
		return
	}
	for _, e := range result.Value().Entries {
		if e.IsDir() {
			counts[e.ParentID]++
		}
	}
	for id, count := range counts {
		fsys.cache.StoreSubfolderCount(id, count)
	}
}

// read implements spec.md §4.5's read contract.
func (fsys *Filesystem) read(path string, offset int64, length int) ([]byte, syscall.Errno) {
	path = normalizePath(path)
	res, outcome, failure := fsys.resolver.resolve(path)
	if outcome != outcomeFound {
		return nil, errnoForOutcome(outcome, failure)
	}
	if res.isDir {
		return nil, syscall.EISDIR
	}
	result := fsys.client.ReadRange(res.id, offset, length)
	if result.IsFailed() {
		return nil, errnoFor(result.Err())
	}
	return result.Value().Data, 0
}

// write implements spec.md §4.5's write contract: delegate to whatever
// session create/open/truncate installed for path. The cached size for the
// file being replaced is invalidated once, in release(), when the new id is
// known — there is nothing to invalidate here mid-session.
func (fsys *Filesystem) write(path string, offset int64, data []byte) (int, syscall.Errno) {
	n, failure := fsys.sessions.write(normalizePath(path), offset, data)
	if failure != nil {
		return 0, errnoFor(failure)
	}
	return n, 0
}

// create implements spec.md §4.5's create(): open a new resumable upload in
// the parent and install a NewCreate session without closing it.
func (fsys *Filesystem) create(path string) syscall.Errno {
	path = normalizePath(path)
	parent := parentPath(path)
	parentRes, outcome, failure := fsys.resolver.resolve(parent)
	if outcome != outcomeFound || !parentRes.isDir {
		return errnoForOutcome(outcome, failure)
	}
	if f := fsys.sessions.openNewCreate(path, parentRes.id, baseName(path)); f != nil {
		return errnoFor(f)
	}
	return 0
}

// openForWrite implements the write half of spec.md §4.5's open(): install a
// ShadowCopy session copying the full original size. Read-only and
// truncate-flag opens never reach here; bridgeNode.Open returns early for
// them.
func (fsys *Filesystem) openForWrite(path string) syscall.Errno {
	path = normalizePath(path)
	res, outcome, failure := fsys.resolver.resolve(path)
	if outcome != outcomeFound {
		return errnoForOutcome(outcome, failure)
	}
	if res.isDir {
		return syscall.EISDIR
	}
	size, hit := fsys.cache.FileSize(res.id)
	if !hit {
		result := fsys.client.StatSize(res.id, "")
		if result.IsFailed() {
			return errnoFor(result.Err())
		}
		size = result.Value().Size
	}
	parent := parentPath(path)
	parentRes, outcome, failure := fsys.resolver.resolve(parent)
	if outcome != outcomeFound {
		return errnoForOutcome(outcome, failure)
	}
	if f := fsys.sessions.openShadowCopy(path, parentRes.id, res.id, baseName(path), size); f != nil {
		return errnoFor(f)
	}
	return 0
}

// truncate implements spec.md §4.5's truncate(): a no-op growing the file,
// otherwise a ShadowCopy session copying only [0, newSize).
func (fsys *Filesystem) truncate(path string, newSize uint64) syscall.Errno {
	path = normalizePath(path)
	res, outcome, failure := fsys.resolver.resolve(path)
	if outcome != outcomeFound {
		return errnoForOutcome(outcome, failure)
	}
	if res.isDir {
		return syscall.EISDIR
	}
	size, hit := fsys.cache.FileSize(res.id)
	if !hit {
		result := fsys.client.StatSize(res.id, "")
		if result.IsFailed() {
			return errnoFor(result.Err())
		}
		size = result.Value().Size
	}
	if newSize >= uint64(size) {
		return 0
	}
	parent := parentPath(path)
	parentRes, outcome, failure := fsys.resolver.resolve(parent)
	if outcome != outcomeFound {
		return errnoForOutcome(outcome, failure)
	}
	if f := fsys.sessions.openShadowCopy(path, parentRes.id, res.id, baseName(path), int64(newSize)); f != nil {
		return errnoFor(f)
	}
	fsys.cache.StoreFileSize(res.id, int64(newSize))
	return 0
}

// release implements spec.md §4.5's release(): finalize any session live
// for path, re-keying PathId on success.
func (fsys *Filesystem) release(path string) syscall.Errno {
	path = normalizePath(path)
	newID, failure := fsys.sessions.release(path)
	if failure != nil {
		return errnoFor(failure)
	}
	if newID != "" {
		fsys.cache.InsertPathID(path, newID, false)
		fsys.cache.InvalidateSize(newID)
	}
	return 0
}

// mkdir implements spec.md §4.5's mkdir().
func (fsys *Filesystem) mkdir(path string) syscall.Errno {
	path = normalizePath(path)
	parent := parentPath(path)
	parentRes, outcome, failure := fsys.resolver.resolve(parent)
	if outcome != outcomeFound || !parentRes.isDir {
		return errnoForOutcome(outcome, failure)
	}
	result := fsys.client.MakeDir(baseName(path), parentRes.id)
	if result.IsFailed() {
		return errnoFor(result.Err())
	}
	fsys.cache.InsertPathID(path, result.Value(), true)
	return 0
}

// unlink implements spec.md §4.5's unlink()/rmdir() (rmdir reuses this,
// matching the teacher's Rmdir-calls-Unlink pattern). Any write session still
// open for path is aborted rather than left to finalize against a removed id.
func (fsys *Filesystem) unlink(path string) syscall.Errno {
	path = normalizePath(path)
	res, outcome, failure := fsys.resolver.resolve(path)
	if outcome != outcomeFound {
		return errnoForOutcome(outcome, failure)
	}
	result := fsys.client.Remove(res.id)
	if result.IsFailed() {
		return errnoFor(result.Err())
	}
	fsys.sessions.abort(path)
	fsys.cache.DeletePathID(path)
	fsys.cache.InvalidateSize(res.id)
	return 0
}

// rename implements spec.md §4.5's rename(): reject EXCHANGE, honor
// NOREPLACE, move then/or rename as needed, and re-key PathId.
func (fsys *Filesystem) rename(oldPath, newPath string, exchange, noReplace bool) syscall.Errno {
	if exchange {
		return syscall.EINVAL
	}
	oldPath = normalizePath(oldPath)
	newPath = normalizePath(newPath)

	oldRes, outcome, failure := fsys.resolver.resolve(oldPath)
	if outcome != outcomeFound {
		return errnoForOutcome(outcome, failure)
	}

	targetRes, targetOutcome, targetFailure := fsys.resolver.resolve(newPath)
	if targetOutcome == outcomeFound {
		if noReplace {
			return syscall.EEXIST
		}
		result := fsys.client.Remove(targetRes.id)
		if result.IsFailed() {
			return errnoFor(result.Err())
		}
		fsys.sessions.abort(newPath)
		fsys.cache.DeletePathID(newPath)
	} else if targetOutcome == outcomeNotADir {
		return errnoForOutcome(targetOutcome, targetFailure)
	}

	oldParent := parentPath(oldPath)
	newParent := parentPath(newPath)
	oldName := baseName(oldPath)
	newName := baseName(newPath)

	if oldParent != newParent {
		newParentRes, outcome, failure := fsys.resolver.resolve(newParent)
		if outcome != outcomeFound || !newParentRes.isDir {
			return errnoForOutcome(outcome, failure)
		}
		result := fsys.client.Move(oldRes.id, newParentRes.id)
		if result.IsFailed() {
			return errnoFor(result.Err())
		}
	}
	if oldName != newName {
		result := fsys.client.Rename(oldRes.id, newName)
		if result.IsFailed() {
			return errnoFor(result.Err())
		}
	}

	fsys.cache.RenamePathID(oldPath, newPath)
	return 0
}

// utimens implements spec.md §4.5's utimens(): no-op unless mtime is set,
// since the remote has no access-time concept.
func (fsys *Filesystem) utimens(path string, mtime *time.Time) syscall.Errno {
	if mtime == nil {
		return 0
	}
	path = normalizePath(path)
	res, outcome, failure := fsys.resolver.resolve(path)
	if outcome != outcomeFound {
		return errnoForOutcome(outcome, failure)
	}
	result := fsys.client.SetMTime(res.id, mtime.Unix())
	if result.IsFailed() {
		return errnoFor(result.Err())
	}
	return 0
}

func errnoForOutcome(outcome resolveOutcome, failure *remote.Failure) syscall.Errno {
	if failure != nil {
		return errnoFor(failure)
	}
	switch outcome {
	case outcomeNotExist:
		return syscall.ENOENT
	case outcomeNotADir:
		return syscall.ENOTDIR
	default:
		return 0
	}
}

func modeFor(isDir bool) uint32 {
	if isDir {
		return dirMode
	}
	return fileMode
}

func currentOwner() (uid, gid uint32) {
	return uint32(os.Getuid()), uint32(os.Getgid())
}
