package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

const deviceDirectoryURL = "https://prod.wdckeystone.com/device/v1/user/"

// Device is one entry from the device-directory enumeration.
type Device struct {
	ID   string
	Name string
}

// deviceListResponse mirrors original_source/src/bridge.cpp's get_user_devices
// (lines 580-588): the device directory wraps its entries in a top-level
// "data" object and names the id field "deviceId", not a bare array of
// "id"/"name".
type deviceListResponse struct {
	Data []struct {
		DeviceID string `json:"deviceId"`
		Name     string `json:"name"`
	} `json:"data"`
}

// UserDevices lists the MyCloud devices registered to the given Auth0
// subject (spec.md §4.1 user_devices / §6 device directory service).
func (c *Client) UserDevices(userID string) Result[[]Device] {
	reqURL := deviceDirectoryURL + url.PathEscape(userID)
	req, _ := http.NewRequest(http.MethodGet, reqURL, nil)
	bearerHeader(req, c.session.IDToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[[]Device](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failed[[]Device](classifyStatus(resp.StatusCode), resp.StatusCode, string(body))
	}

	var parsed deviceListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Failed[[]Device](ErrParse, resp.StatusCode, err.Error())
	}

	devices := make([]Device, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		devices = append(devices, Device{ID: d.DeviceID, Name: d.Name})
	}
	return OK(devices)
}

// Endpoint is the device-qualified URL host prefix selected at startup
// (spec.md §3). It is immutable once DetectEndpoint succeeds.
type Endpoint struct {
	Host string
}

// DetectEndpoint probes candidate host prefixes for deviceHint and returns
// the first one that answers an authenticated request, establishing the
// Endpoint the rest of the session uses (spec.md §4.1 detect_endpoint,
// §9 Open Question on fallback behavior).
//
// The device_id passed on the command line (spec.md §6) is itself usable
// directly as the host token in the common case; we still probe it before
// committing, since an unreachable or stale device id should fail fast at
// startup (exit code 1, spec.md §6) rather than fail confusingly on the
// first filesystem operation.
func (c *Client) DetectEndpoint(deviceHint string) Result[Endpoint] {
	candidates := []string{deviceHint}

	for _, host := range candidates {
		probeURL := listURL(host, "root", ListFields)
		req, _ := http.NewRequest(http.MethodGet, probeURL, nil)
		bearerHeader(req, c.session.IDToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Warn().Str("host", host).Err(err).Msg("endpoint probe failed")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return OK(Endpoint{Host: host})
		}
		log.Warn().Str("host", host).Int("status", resp.StatusCode).Msg("endpoint probe rejected")
	}

	return Failed[Endpoint](ErrTransportFailure, 0,
		fmt.Sprintf("no reachable endpoint for device %q", deviceHint))
}
