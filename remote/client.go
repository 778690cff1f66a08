package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Client wraps one shared *http.Client over one Endpoint/Session pair.
// All Remote Client operations in spec.md §4.1 are methods on it.
//
// The transport is built once and reused across every call so that
// connection pooling, the DNS cache and the TLS session cache are shared
// across concurrent FUSE callbacks (spec.md §5: "without shared state these
// services become an HTTPS session churn bottleneck"). Using a single
// *http.Client already gives Go's http.Transport its
// connection-pool/keepalive sharing for free; what still needs
// explicit attention is forcing IPv4 resolution, since IPv6 lookups have
// been observed to stall against this SDK (spec.md §4.1).
type Client struct {
	httpClient *http.Client
	session    Session
	endpoint   Endpoint
}

// defaultTimeoutSeconds is used when NewClient is called with timeoutSeconds
// <= 0, i.e. by every caller that has no ambient config loaded yet.
const defaultTimeoutSeconds = 30

// NewClient builds the shared HTTP client, tuning dial/response-header
// timeouts from timeoutSeconds (the config layer's requestTimeoutSeconds
// knob; <= 0 falls back to defaultTimeoutSeconds). Call SetSession/
// SetEndpoint once login and endpoint detection succeed.
func NewClient(timeoutSeconds int) *Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}
	timeout := time.Duration(timeoutSeconds) * time.Second

	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			// force IPv4: resolving AAAA records against this SDK has been
			// observed to stall (spec.md §4.1).
			if network == "tcp" || network == "tcp6" {
				network = "tcp4"
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
	}
}

// SetSession installs the bearer tokens produced by Login.
func (c *Client) SetSession(s Session) { c.session = s }

// SetEndpoint installs the host prefix selected by DetectEndpoint.
func (c *Client) SetEndpoint(e Endpoint) { c.endpoint = e }

// Session returns the currently installed session (mostly for tests).
func (c *Client) Session() Session { return c.session }

// SetTransport overrides the shared client's RoundTripper. Production callers
// never need this; it exists so package fs's tests can redirect the fixed
// *.remotewd.com URLs this package builds at an httptest.Server.
func (c *Client) SetTransport(rt http.RoundTripper) { c.httpClient.Transport = rt }

func (c *Client) authedRequest(method, reqURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		return nil, err
	}
	bearerHeader(req, c.session.IDToken)
	return req, nil
}

// ListResult is the payload of a successful List/ListMulti call.
type ListResult struct {
	Entries []Entry
	ETag    string
}

// List fetches the children of parentID, honoring an existing ETag via
// If-None-Match (spec.md §4.1 list / §4.2 Listing cache contract).
func (c *Client) List(parentID string, etag string) Result[ListResult] {
	return c.list(listURL(c.endpoint.Host, parentID, ListFields), etag)
}

// ListMulti fetches children across multiple parent ids in one round trip,
// additionally populating Entry.ParentID, used to prefetch subfolder counts
// during readdir (spec.md §4.1 list_multi).
func (c *Client) ListMulti(parentIDCSV string, etag string) Result[ListResult] {
	return c.list(listURL(c.endpoint.Host, parentIDCSV, ListFieldsMulti), etag)
}

func (c *Client) list(reqURL, etag string) Result[ListResult] {
	req, err := c.authedRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return Failed[ListResult](ErrTransportFailure, 0, err.Error())
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[ListResult](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return NotModified[ListResult]()
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logFailure(reqURL, resp.StatusCode, body)
		return Failed[ListResult](classifyStatus(resp.StatusCode), resp.StatusCode, string(body))
	}

	entries, err := parseListResponse(body)
	if err != nil {
		return Failed[ListResult](ErrParse, resp.StatusCode, err.Error())
	}
	return OK(ListResult{Entries: entries, ETag: resp.Header.Get("ETag")})
}

// StatResult is the payload of a successful StatSize call.
type StatResult struct {
	Size int64
	ETag string
}

// StatSize fetches just the size field of a file (spec.md §4.1 stat_size).
func (c *Client) StatSize(fileID string, etag string) Result[StatResult] {
	req, err := c.authedRequest(http.MethodGet, statURL(c.endpoint.Host, fileID), nil)
	if err != nil {
		return Failed[StatResult](ErrTransportFailure, 0, err.Error())
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[StatResult](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return NotModified[StatResult]()
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logFailure(statURL(c.endpoint.Host, fileID), resp.StatusCode, body)
		return Failed[StatResult](classifyStatus(resp.StatusCode), resp.StatusCode, string(body))
	}

	var parsed struct {
		Size int64 `json:"size"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Failed[StatResult](ErrParse, resp.StatusCode, err.Error())
	}
	return OK(StatResult{Size: parsed.Size, ETag: resp.Header.Get("ETag")})
}

type mkdirPayload struct {
	Name     string `json:"name"`
	ParentID string `json:"parentID"`
	MimeType string `json:"mimeType"`
}

// MakeDir creates a directory named name under parentID, returning the new
// id parsed from the Location response header (spec.md §4.1 make_dir).
func (c *Client) MakeDir(name, parentID string) Result[string] {
	payload, _ := json.Marshal(mkdirPayload{Name: name, ParentID: parentID, MimeType: DirMimeType})
	body, contentType := multipartRelated(payload)

	req, err := c.authedRequest(http.MethodPost, mkdirURL(c.endpoint.Host), bytes.NewReader(body))
	if err != nil {
		return Failed[string](ErrTransportFailure, 0, err.Error())
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[string](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusConflict {
			return Failed[string](ErrAlreadyExists, resp.StatusCode, string(respBody))
		}
		logFailure(mkdirURL(c.endpoint.Host), resp.StatusCode, respBody)
		return Failed[string](classifyStatus(resp.StatusCode), resp.StatusCode, string(respBody))
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return Failed[string](ErrParse, resp.StatusCode, "missing Location header")
	}
	return OK(locationToID(location))
}

type resumableOpenPayload struct {
	Name     string `json:"name"`
	ParentID string `json:"parentID"`
	MTime    string `json:"mTime"`
}

// FileWriteOpen allocates a resumable upload under parentID, returning the
// resumable location path (spec.md §4.1 file_write_open).
func (c *Client) FileWriteOpen(parentID, name string, mtime time.Time) Result[string] {
	payload, _ := json.Marshal(resumableOpenPayload{
		Name:     name,
		ParentID: parentID,
		MTime:    formatMTime(mtime),
	})
	body, contentType := multipartRelated(payload)

	req, err := c.authedRequest(http.MethodPost, resumableOpenURL(c.endpoint.Host), bytes.NewReader(body))
	if err != nil {
		return Failed[string](ErrTransportFailure, 0, err.Error())
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[string](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logFailure(resumableOpenURL(c.endpoint.Host), resp.StatusCode, respBody)
		return Failed[string](classifyStatus(resp.StatusCode), resp.StatusCode, string(respBody))
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return Failed[string](ErrParse, resp.StatusCode, "missing Location header")
	}
	return OK(location)
}

// WriteChunk PUTs one chunk of bytes at offset to an open resumable upload
// (spec.md §4.1 write_chunk).
func (c *Client) WriteChunk(location string, offset int64, data []byte) Result[struct{}] {
	reqURL := resumableContentURL(c.endpoint.Host, location, offset)
	req, err := c.authedRequest(http.MethodPut, reqURL, bytes.NewReader(data))
	if err != nil {
		return Failed[struct{}](ErrTransportFailure, 0, err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[struct{}](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logFailure(reqURL, resp.StatusCode, body)
		return Failed[struct{}](classifyStatus(resp.StatusCode), resp.StatusCode, string(body))
	}
	return OK(struct{}{})
}

// FileWriteClose finalizes a resumable upload, turning the temp object into
// a regularly listable file (spec.md §4.1 file_write_close).
func (c *Client) FileWriteClose(newFileID string) Result[struct{}] {
	reqURL := resumableCloseURL(c.endpoint.Host, newFileID)
	req, err := c.authedRequest(http.MethodPut, reqURL, nil)
	if err != nil {
		return Failed[struct{}](ErrTransportFailure, 0, err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[struct{}](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logFailure(reqURL, resp.StatusCode, body)
		return Failed[struct{}](classifyStatus(resp.StatusCode), resp.StatusCode, string(body))
	}
	return OK(struct{}{})
}

// ReadResult is the payload of a successful ReadRange call.
type ReadResult struct {
	Data []byte
}

// ReadRange fetches [offset, offset+length) of fileID's content. A 416
// (range not satisfiable, e.g. an empty file) is treated as a successful
// zero-byte read (spec.md §4.1 read_range).
func (c *Client) ReadRange(fileID string, offset int64, length int) Result[ReadResult] {
	if length == 0 {
		return OK(ReadResult{Data: nil})
	}
	reqURL := fileContentURL(c.endpoint.Host, fileID)
	req, err := c.authedRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return Failed[ReadResult](ErrTransportFailure, 0, err.Error())
	}
	req.Header.Set("Range", rangeHeader(offset, length))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[ReadResult](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return OK(ReadResult{Data: nil})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failed[ReadResult](ErrTransportFailure, 0, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logFailure(reqURL, resp.StatusCode, body)
		return Failed[ReadResult](classifyStatus(resp.StatusCode), resp.StatusCode, string(body))
	}
	return OK(ReadResult{Data: body})
}

// Remove deletes an object by id (spec.md §4.1 remove).
func (c *Client) Remove(id string) Result[struct{}] {
	reqURL := fileURL(c.endpoint.Host, id)
	req, err := c.authedRequest(http.MethodDelete, reqURL, nil)
	if err != nil {
		return Failed[struct{}](ErrTransportFailure, 0, err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[struct{}](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return Failed[struct{}](ErrNotFound, resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusNoContent && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		logFailure(reqURL, resp.StatusCode, body)
		return Failed[struct{}](classifyStatus(resp.StatusCode), resp.StatusCode, string(body))
	}
	return OK(struct{}{})
}

type patchPayload struct {
	Name     string `json:"name,omitempty"`
	ParentID string `json:"parentID,omitempty"`
	MTime    string `json:"mTime,omitempty"`
}

func (c *Client) patch(id string, payload patchPayload) Result[struct{}] {
	data, _ := json.Marshal(payload)
	reqURL := patchURL(c.endpoint.Host, id)
	req, err := c.authedRequest(http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return Failed[struct{}](ErrTransportFailure, 0, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[struct{}](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logFailure(reqURL, resp.StatusCode, body)
		return Failed[struct{}](classifyStatus(resp.StatusCode), resp.StatusCode, string(body))
	}
	return OK(struct{}{})
}

// Rename changes an object's name in place (spec.md §4.1 rename).
func (c *Client) Rename(id, newName string) Result[struct{}] {
	return c.patch(id, patchPayload{Name: newName, MTime: formatMTime(time.Now())})
}

// Move changes an object's parent (spec.md §4.1 move).
func (c *Client) Move(id, newParentID string) Result[struct{}] {
	return c.patch(id, patchPayload{ParentID: newParentID})
}

// SetMTime updates an object's modification time (spec.md §4.1 set_mtime).
func (c *Client) SetMTime(id string, epochSeconds int64) Result[struct{}] {
	return c.patch(id, patchPayload{MTime: formatMTime(time.Unix(epochSeconds, 0).UTC())})
}

func logFailure(url string, status int, body []byte) {
	const maxSnippet = 256
	snippet := body
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}
	ev := log.Warn()
	if status >= 500 {
		ev = log.Error()
	}
	ev.Str("url", url).Int("status", status).Bytes("body", snippet).Msg("remote request failed")
}
