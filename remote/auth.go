package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// authClientID, authConnection and authDevice are fixed by the SDK's Auth0
// tenant configuration (spec.md §6) — unlike a normal OAuth2 client
// registration, this is a single hardcoded password-grant client shared by
// every installation.
const (
	authClientID   = "56pjpE1J4c6ZyATz3sYP8cMT47CZd6rk"
	authConnection = "Username-Password-Authentication"
	authDevice     = "123456789"
	authGrantType  = "password"
	authScope      = "openid offline_access"
	authURL        = "https://wdc.auth0.com/oauth/ro"
	userInfoURL    = "https://wdc.auth0.com/userinfo"
)

// Session holds the bearer tokens produced by login. Its lifetime is the
// process (spec.md §3); there is no token-refresh path (spec.md §9 Open
// Question: "Session token refresh on 401 is not implemented").
type Session struct {
	IDToken     string
	AccessToken string
}

type loginRequest struct {
	ClientID   string `json:"client_id"`
	Connection string `json:"connection"`
	Device     string `json:"device"`
	GrantType  string `json:"grant_type"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Scope      string `json:"scope"`
}

type loginResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
}

// Login exchanges a username/password for a Session via the fixed Auth0
// password-grant endpoint (spec.md §4.1/§6). A 401 is classified as
// ErrBadCredentials, a 400 as ErrBadRequest, matching the status-code policy
// in spec.md §6.
func (c *Client) Login(username, password string) Result[Session] {
	payload, _ := json.Marshal(loginRequest{
		ClientID:   authClientID,
		Connection: authConnection,
		Device:     authDevice,
		GrantType:  authGrantType,
		Username:   username,
		Password:   password,
		Scope:      authScope,
	})

	req, err := http.NewRequest(http.MethodPost, authURL, bytes.NewReader(payload))
	if err != nil {
		return Failed[Session](ErrTransportFailure, 0, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[Session](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		log.Warn().Int("status", resp.StatusCode).Msg("login rejected: bad credentials")
		return Failed[Session](ErrBadCredentials, resp.StatusCode, string(body))
	case resp.StatusCode == http.StatusBadRequest:
		log.Warn().Int("status", resp.StatusCode).Msg("login rejected: bad request")
		return Failed[Session](ErrBadRequest, resp.StatusCode, string(body))
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed loginResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return Failed[Session](ErrParse, resp.StatusCode, err.Error())
		}
		return OK(Session{IDToken: parsed.IDToken, AccessToken: parsed.AccessToken})
	default:
		log.Error().Int("status", resp.StatusCode).Msg("login failed")
		return Failed[Session](ErrProtocolFailure, resp.StatusCode, string(body))
	}
}

// userInfoResponse mirrors original_source/src/bridge.cpp's
// auth0_get_userid (line 561), which reads the subject out of "user_id";
// "sub" is accepted too since some Auth0 /userinfo responses use the
// standard OIDC claim name instead.
type userInfoResponse struct {
	UserID string `json:"user_id"`
	Sub    string `json:"sub"`
}

// UserID fetches the Auth0 subject identifier for the given access token,
// used to enumerate devices (spec.md §4.1 user_id / §6 Auth0 userinfo).
func (c *Client) UserID(accessToken string) Result[string] {
	req, _ := http.NewRequest(http.MethodGet, userInfoURL, nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Failed[string](ErrTransportFailure, 0, err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failed[string](classifyStatus(resp.StatusCode), resp.StatusCode, string(body))
	}

	var parsed userInfoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Failed[string](ErrParse, resp.StatusCode, err.Error())
	}
	if parsed.UserID != "" {
		return OK(parsed.UserID)
	}
	return OK(parsed.Sub)
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return ErrAuthExpired
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 500:
		return ErrProtocolFailure
	default:
		return ErrProtocolFailure
	}
}

func bearerHeader(req *http.Request, idToken string) {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", idToken))
}
