package fs

import (
	"context"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBridgeNodeOpen_ReadOnlyIsNoop(t *testing.T) {
	t.Parallel()

	client := newFakeClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s for a read-only open", r.URL.Path)
	})
	n := &bridgeNode{fsys: NewFilesystem(client), path: "/doc.txt"}

	_, _, errno := n.Open(context.Background(), syscall.O_RDONLY)
	assert.Equal(t, syscall.Errno(0), errno)
}

func TestBridgeNodeOpen_TruncateOnlyIsNoop(t *testing.T) {
	t.Parallel()

	client := newFakeClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s for a truncate-only open", r.URL.Path)
	})
	n := &bridgeNode{fsys: NewFilesystem(client), path: "/doc.txt"}

	_, _, errno := n.Open(context.Background(), syscall.O_WRONLY|syscall.O_TRUNC)
	assert.Equal(t, syscall.Errno(0), errno)
}
