// Package remote implements typed operations over the WD MyCloud device SDK:
// login, directory listing, stat, resumable upload, range reads, and the
// rename/move/delete/mtime patch calls. It is the only package in this module
// that knows about the SDK's wire format.
package remote

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DirMimeType is the sentinel mimeType value the SDK uses to mark a file
// object as a directory.
const DirMimeType = "application/x.wd.dir"

// multipartBoundary is fixed by the SDK; it is not negotiated per-request.
const multipartBoundary = "287032381131322"

// ListFields is the field set requested for a single-parent listing.
const ListFields = "id,mimeType,name,size"

// ListFieldsMulti is the field set requested for a multi-parent listing,
// which additionally asks for parentID so the caller can group results by
// directory without a second round trip.
const ListFieldsMulti = "id,mimeType,name,parentID"

func endpointBase(host string) string {
	return fmt.Sprintf("https://%s.remotewd.com/", host)
}

func sdkPath(host, suffix string) string {
	return endpointBase(host) + "sdk/v2/" + suffix
}

func listURL(host, parentID, fields string) string {
	return sdkPath(host, fmt.Sprintf(
		"filesSearch/parents?ids=%s&fields=%s&pretty=false&orderBy=name&order=asc;",
		url.QueryEscape(parentID), fields,
	))
}

func statURL(host, fileID string) string {
	return sdkPath(host, fmt.Sprintf("files/%s?pretty=false&fields=size", url.PathEscape(fileID)))
}

func mkdirURL(host string) string {
	return sdkPath(host, "files?resolveNameConflict=true")
}

func resumableOpenURL(host string) string {
	return sdkPath(host, "files/resumable?resolveNameConflict=0&done=false")
}

func resumableContentURL(host, location string, offset int64) string {
	return fmt.Sprintf("%s%s/resumable/content?offset=%d&done=false", endpointBase(host), location, offset)
}

func resumableCloseURL(host, fileID string) string {
	return sdkPath(host, fmt.Sprintf("files/%s/resumable/content?done=true", url.PathEscape(fileID)))
}

func fileContentURL(host, fileID string) string {
	return sdkPath(host, fmt.Sprintf("files/%s/content?download=true", url.PathEscape(fileID)))
}

func fileURL(host, fileID string) string {
	return sdkPath(host, "files/"+url.PathEscape(fileID))
}

func patchURL(host, fileID string) string {
	return sdkPath(host, fmt.Sprintf("files/%s/patch", url.PathEscape(fileID)))
}

func rangeHeader(offset int64, length int) string {
	return fmt.Sprintf("bytes=%d-%d", offset, offset+int64(length)-1)
}

// formatMTime renders t in the SDK's odd RFC3339 variant: the usual
// "%Y-%m-%dT%H:%M:%S" plus a `:`-separated local UTC offset, e.g.
// "2019-12-12T12:12:12+02:00". time.Format's "-07:00" layout verb already
// produces the colon, so this is mostly a thin wrapper — kept as its own
// function because the wire format is a spec requirement, not an accident of
// whatever layout happened to be convenient.
func formatMTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05-07:00")
}

// multipartRelated builds a multipart/related body with one JSON part, using
// the SDK's fixed boundary. Returns the body bytes and the Content-Type
// header value to send with it.
func multipartRelated(jsonPart []byte) (body []byte, contentType string) {
	var b strings.Builder
	b.WriteString("--")
	b.WriteString(multipartBoundary)
	b.WriteString("\r\nContent-Type: application/json; charset=UTF-8\r\n\r\n")
	b.Write(jsonPart)
	b.WriteString("\r\n--")
	b.WriteString(multipartBoundary)
	b.WriteString("--\r\n")
	return []byte(b.String()), "multipart/related; boundary=" + multipartBoundary
}

// LocationToFileID extracts the new object id from a resumable-open
// response's Location header, which is the last path segment. Exported for
// the write-session manager, which must recover the id FileWriteClose and
// Rename need from the location FileWriteOpen returned.
func LocationToFileID(location string) string {
	return locationToID(location)
}

// locationToID extracts the new object id from a resumable-open or mkdir
// response's Location header, which is the last path segment.
func locationToID(location string) string {
	location = strings.TrimSuffix(location, "/")
	idx := strings.LastIndex(location, "/")
	if idx == -1 {
		return location
	}
	return location[idx+1:]
}
