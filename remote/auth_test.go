package remote

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_Success(t *testing.T) {
	t.Parallel()

	client := newRedirectedClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		var parsed loginRequest
		require.NoError(t, json.Unmarshal(body, &parsed))
		assert.Equal(t, authClientID, parsed.ClientID)
		assert.Equal(t, "alice", parsed.Username)
		assert.Equal(t, "hunter2", parsed.Password)

		w.Write([]byte(`{"id_token":"id-tok","access_token":"access-tok"}`))
	})

	result := client.Login("alice", "hunter2")
	require.True(t, result.IsOK())
	assert.Equal(t, "id-tok", result.Value().IDToken)
	assert.Equal(t, "access-tok", result.Value().AccessToken)
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()

	client := newRedirectedClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	result := client.Login("alice", "wrong")
	require.True(t, result.IsFailed())
	assert.Equal(t, ErrBadCredentials, result.Err().Kind)
}

func TestLogin_BadRequest(t *testing.T) {
	t.Parallel()

	client := newRedirectedClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	result := client.Login("", "")
	require.True(t, result.IsFailed())
	assert.Equal(t, ErrBadRequest, result.Err().Kind)
}

func TestLogin_ServerError(t *testing.T) {
	t.Parallel()

	client := newRedirectedClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	result := client.Login("alice", "hunter2")
	require.True(t, result.IsFailed())
	assert.Equal(t, ErrProtocolFailure, result.Err().Kind)
}

func TestUserID(t *testing.T) {
	t.Parallel()

	client := newRedirectedClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"user_id":"auth0|12345"}`))
	})

	result := client.UserID("access-tok")
	require.True(t, result.IsOK())
	assert.Equal(t, "auth0|12345", result.Value())
}

func TestUserID_Unauthorized(t *testing.T) {
	t.Parallel()

	client := newRedirectedClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	result := client.UserID("stale-token")
	require.True(t, result.IsFailed())
	assert.Equal(t, ErrAuthExpired, result.Err().Kind)
}
