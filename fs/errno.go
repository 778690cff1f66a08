package fs

import (
	"syscall"

	"github.com/sbencoding/wd_bridge/remote"
)

// errnoFor maps a classified remote failure to the POSIX error number the
// translator surfaces at the FUSE boundary (spec.md §7). Anything not
// explicitly named there falls through to EIO, never a panic across the FS
// boundary.
func errnoFor(f *remote.Failure) syscall.Errno {
	if f == nil {
		return 0
	}
	switch f.Kind {
	case remote.ErrNotFound:
		return syscall.ENOENT
	case remote.ErrNotADirectory:
		return syscall.ENOTDIR
	case remote.ErrAlreadyExists:
		return syscall.EEXIST
	case remote.ErrUnsupported:
		return syscall.EINVAL
	case remote.ErrBadCredentials, remote.ErrAuthExpired:
		// re-login is not attempted mid-operation (spec.md §4.5, §9 Open
		// Question #2); surfaced the same as any other I/O failure.
		return syscall.EIO
	case remote.ErrTransportFailure:
		return syscall.EREMOTEIO
	default:
		return syscall.EIO
	}
}
