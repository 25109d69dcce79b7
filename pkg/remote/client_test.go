package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/pkg/config"
)

func newTestClient(serverURL string) *Client {
	return New(config.RemoteConfig{
		BaseURL:           serverURL,
		Timeout:           2 * time.Second,
		DeviceID:          "device-1",
		DeviceTokenSecret: "test_secret",
		DeviceTokenTTL:    time.Hour,
	})
}

func TestClientPushSuccess(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.Push(context.Background(), models.EntityChecklistItem, models.ActionCreate, "ci-1",
		models.SyncPayload{"id": "ci-1", "isCompleted": true})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/v1/field-sync/checklist-items", gotPath)
	assert.True(t, strings.HasPrefix(gotAuth, "Bearer "))
}

func TestClientPushUpdateRoutesWithID(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.Push(context.Background(), models.EntityFieldEvidence, models.ActionUpdate, "ev-1", models.SyncPayload{})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/v1/field-sync/field-evidence/ev-1", gotPath)
}

func TestClientPushConflictCarriesServerState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error":       map[string]string{"code": "CONFLICT", "message": "stale version"},
			"serverState": map[string]interface{}{"id": "ci-1", "isCompleted": false},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.Push(context.Background(), models.EntityChecklistItem, models.ActionUpdate, "ci-1", models.SyncPayload{})
	require.Error(t, err)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Contains(t, err.Error(), "Conflict")
	require.NotNil(t, conflict.ServerState)

	var state map[string]interface{}
	require.NoError(t, json.Unmarshal(conflict.ServerState, &state))
	assert.Equal(t, false, state["isCompleted"])
}

func TestClientPushServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.Push(context.Background(), models.EntityDraftFinding, models.ActionCreate, "df-1", models.SyncPayload{})
	require.Error(t, err)

	var transient *TransientError
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, http.StatusBadGateway, transient.Status)
}

func TestClientPushNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := newTestClient(server.URL)
	err := client.Push(context.Background(), models.EntityChecklistItem, models.ActionCreate, "ci-1", models.SyncPayload{})
	require.Error(t, err)

	var transient *TransientError
	require.True(t, errors.As(err, &transient))
}

func TestClientPushValidationRejectionIsPlainError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.Push(context.Background(), models.EntityChecklistItem, models.ActionCreate, "ci-1", models.SyncPayload{})
	require.Error(t, err)

	var transient *TransientError
	assert.False(t, errors.As(err, &transient))
	var conflict *ConflictError
	assert.False(t, errors.As(err, &conflict))
}

func TestClientFetchChecklist(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/field-sync/reviews/rev-1/checklist", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": "ci-1", "reviewId": "rev-1", "title": "Ramp inspection", "syncStatus": "synced"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	items, err := client.FetchChecklist(context.Background(), "rev-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ci-1", items[0].ID)
	assert.Equal(t, "Ramp inspection", items[0].Title)
}
