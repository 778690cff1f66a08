package fs

import (
	"context"
	"syscall"
	"time"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// renameNoReplace and renameExchange mirror the kernel's RENAME_NOREPLACE /
// RENAME_EXCHANGE bits as delivered through the FUSE rename flags argument;
// named locally since they're the only two bits this translator inspects
// (spec.md §4.5 rename()).
const (
	renameNoReplace = 0x1
	renameExchange  = 0x2
)

// bridgeNode is the go-fuse v2 NodeEmbedder for one path. Unlike the
// teacher's Inode, it carries no cached DriveItem payload: every callback
// re-resolves through Filesystem against the Cache Layer and Path Resolver,
// since this bridge has no locally-materialized object tree to keep in
// sync — the remote id store is the only source of truth, and the four
// cache maps in fs.cache are what make repeated resolution cheap.
type bridgeNode struct {
	gofs.Inode

	fsys *Filesystem
	path string
}

var _ gofs.NodeGetattrer = (*bridgeNode)(nil)
var _ gofs.NodeReaddirer = (*bridgeNode)(nil)
var _ gofs.NodeLookuper = (*bridgeNode)(nil)
var _ gofs.NodeReader = (*bridgeNode)(nil)
var _ gofs.NodeWriter = (*bridgeNode)(nil)
var _ gofs.NodeCreater = (*bridgeNode)(nil)
var _ gofs.NodeOpener = (*bridgeNode)(nil)
var _ gofs.NodeReleaser = (*bridgeNode)(nil)
var _ gofs.NodeMkdirer = (*bridgeNode)(nil)
var _ gofs.NodeRmdirer = (*bridgeNode)(nil)
var _ gofs.NodeUnlinker = (*bridgeNode)(nil)
var _ gofs.NodeRenamer = (*bridgeNode)(nil)
var _ gofs.NodeSetattrer = (*bridgeNode)(nil)

func (n *bridgeNode) childPath(name string) string {
	if n.path == "/" {
		return "/" + name
	}
	return n.path + "/" + name
}

func fillAttr(out *fuse.Attr, info attrInfo) {
	uid, gid := currentOwner()
	now := uint64(time.Now().Unix())
	out.Size = info.size
	out.Nlink = info.nlink
	out.Mode = modeFor(info.isDir)
	out.Mtime = now
	out.Atime = now
	out.Ctime = now
	out.Owner = fuse.Owner{Uid: uid, Gid: gid}
}

func (n *bridgeNode) Getattr(ctx context.Context, f gofs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	info, errno := n.fsys.getattr(n.path)
	if errno != 0 {
		return errno
	}
	fillAttr(&out.Attr, info)
	return 0
}

func (n *bridgeNode) Setattr(ctx context.Context, f gofs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if mtime, valid := in.GetMTime(); valid {
		if errno := n.fsys.utimens(n.path, &mtime); errno != 0 {
			return errno
		}
	}
	if size, valid := in.GetSize(); valid {
		if errno := n.fsys.truncate(n.path, size); errno != 0 {
			return errno
		}
	}
	info, errno := n.fsys.getattr(n.path)
	if errno != 0 {
		return errno
	}
	fillAttr(&out.Attr, info)
	return 0
}

func (n *bridgeNode) Readdir(ctx context.Context) (gofs.DirStream, syscall.Errno) {
	entries, errno := n.fsys.readdir(n.path)
	if errno != 0 {
		return nil, errno
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, fuse.DirEntry{Name: e.name, Mode: modeFor(e.isDir)})
	}
	return gofs.NewListDirStream(out), 0
}

func (n *bridgeNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	info, errno := n.fsys.getattr(childPath)
	if errno != 0 {
		return nil, errno
	}
	fillAttr(&out.Attr, info)
	child := &bridgeNode{fsys: n.fsys, path: childPath}
	return n.NewInode(ctx, child, gofs.StableAttr{Mode: modeFor(info.isDir)}), 0
}

func (n *bridgeNode) Read(ctx context.Context, f gofs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, errno := n.fsys.read(n.path, off, len(dest))
	if errno != 0 {
		return nil, errno
	}
	return fuse.ReadResultData(data), 0
}

func (n *bridgeNode) Write(ctx context.Context, f gofs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, errno := n.fsys.write(n.path, off, data)
	if errno != 0 {
		return 0, errno
	}
	return uint32(written), 0
}

func (n *bridgeNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofs.Inode, gofs.FileHandle, uint32, syscall.Errno) {
	childPath := n.childPath(name)
	if errno := n.fsys.create(childPath); errno != 0 {
		return nil, nil, 0, errno
	}
	out.Attr.Mode = fileMode | fuse.S_IFREG
	child := &bridgeNode{fsys: n.fsys, path: childPath}
	return n.NewInode(ctx, child, gofs.StableAttr{Mode: fuse.S_IFREG}), nil, 0, 0
}

func (n *bridgeNode) Open(ctx context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	const writeMask = syscall.O_WRONLY | syscall.O_RDWR
	if int(flags)&writeMask == 0 {
		// read-only: reads go direct to the original id, no shadow copy.
		return nil, 0, 0
	}
	if int(flags)&syscall.O_TRUNC != 0 {
		// truncate-flag-only: the kernel's accompanying Setattr(size=0) call
		// installs the ShadowCopy session via fsys.truncate; installing one
		// here too would orphan it, since only one session can be live for a
		// path at a time (spec.md §4.5 open()).
		return nil, 0, 0
	}
	if errno := n.fsys.openForWrite(n.path); errno != 0 {
		return nil, 0, errno
	}
	return nil, 0, 0
}

func (n *bridgeNode) Release(ctx context.Context, f gofs.FileHandle) syscall.Errno {
	return n.fsys.release(n.path)
}

func (n *bridgeNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	if errno := n.fsys.mkdir(childPath); errno != 0 {
		return nil, errno
	}
	out.Attr.Mode = dirMode | fuse.S_IFDIR
	out.Attr.Nlink = 2
	child := &bridgeNode{fsys: n.fsys, path: childPath}
	return n.NewInode(ctx, child, gofs.StableAttr{Mode: fuse.S_IFDIR}), 0
}

func (n *bridgeNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return n.fsys.unlink(n.childPath(name))
}

// Rmdir reuses Unlink, matching the teacher's Rmdir-calls-Unlink pattern:
// the remote's delete call is symmetric for files and empty directories.
func (n *bridgeNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.fsys.unlink(n.childPath(name))
}

func (n *bridgeNode) Rename(ctx context.Context, name string, newParent gofs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	newParentNode, ok := newParent.(*bridgeNode)
	if !ok {
		return syscall.EINVAL
	}
	oldPath := n.childPath(name)
	newPath := newParentNode.childPath(newName)
	exchange := flags&renameExchange != 0
	noReplace := flags&renameNoReplace != 0
	return n.fsys.rename(oldPath, newPath, exchange, noReplace)
}
