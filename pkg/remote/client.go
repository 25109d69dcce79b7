// Package remote implements the client for the peer-review programme's
// mutation API. The sync engine pushes queued local mutations through it and
// relies on the client to tell a version conflict apart from a transient
// failure, because the two route to very different queue-entry states.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/pkg/config"
)

// ConflictError reports an optimistic-concurrency rejection. ServerState
// carries the server's current entity snapshot when the server included one;
// it may be nil (best-effort, see the conflict resolver contract).
type ConflictError struct {
	ServerState json.RawMessage
	Message     string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("Conflict: %s", e.Message)
	}
	return "Conflict: version mismatch"
}

// TransientError marks failures worth retrying: network errors and 5xx.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient remote failure: %v", e.Err)
	}
	return fmt.Sprintf("transient remote failure: status %d", e.Status)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Client talks to the remote mutation API on behalf of one field device.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	deviceID    string
	tokenSecret []byte
	tokenTTL    time.Duration

	mu          sync.Mutex
	cachedToken string
	tokenExpiry time.Time
}

// New builds a client. The request timeout defaults to 30s; the retry and
// backoff model in the sync engine depends on requests eventually failing
// rather than hanging.
func New(cfg config.RemoteConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: timeout},
		deviceID:    cfg.DeviceID,
		tokenSecret: []byte(cfg.DeviceTokenSecret),
		tokenTTL:    cfg.DeviceTokenTTL,
	}
}

// conflictEnvelope mirrors the API's 409 body.
type conflictEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ServerState json.RawMessage `json:"serverState"`
}

// Push transmits one queued mutation. A nil return means the server accepted
// the write. The error is a *ConflictError on a 409, a *TransientError on
// network failure or 5xx, and a plain error on other rejections.
func (c *Client) Push(ctx context.Context, entityType models.EntityType, action models.SyncAction, entityID string, payload models.SyncPayload) error {
	method, url, err := c.route(entityType, action, entityID)
	if err != nil {
		return err
	}

	var body io.Reader
	if action != models.ActionDelete {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		var envelope conflictEnvelope
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = json.Unmarshal(raw, &envelope)
		return &ConflictError{ServerState: envelope.ServerState, Message: envelope.Error.Message}
	case resp.StatusCode >= 500:
		return &TransientError{Status: resp.StatusCode}
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote rejected %s %s: status %d: %s", method, url, resp.StatusCode, bytes.TrimSpace(raw))
	}
}

// FetchChecklist bootstraps a review's checklist from the server. Used when
// a review is initialized for offline use and the local store has no items.
func (c *Client) FetchChecklist(ctx context.Context, reviewID string) ([]models.ChecklistItem, error) {
	url := fmt.Sprintf("%s/api/v1/field-sync/reviews/%s/checklist", c.baseURL, reviewID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("review %s not found upstream", reviewID)
	}
	if resp.StatusCode >= 500 {
		return nil, &TransientError{Status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch checklist: status %d", resp.StatusCode)
	}

	var out struct {
		Data []models.ChecklistItem `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode checklist: %w", err)
	}
	return out.Data, nil
}

// Ping probes upstream reachability; the aggregate SyncStatus reports its
// outcome as isOnline.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 500 {
		return &TransientError{Status: resp.StatusCode}
	}
	return nil
}

// route maps (entityType, action) onto the endpoint family. The switch is
// exhaustive over the closed EntityType set.
func (c *Client) route(entityType models.EntityType, action models.SyncAction, entityID string) (method, url string, err error) {
	var segment string
	switch entityType {
	case models.EntityChecklistItem:
		segment = "checklist-items"
	case models.EntityFieldEvidence:
		segment = "field-evidence"
	case models.EntityDraftFinding:
		segment = "draft-findings"
	default:
		return "", "", fmt.Errorf("unknown entity type %q", entityType)
	}

	base := fmt.Sprintf("%s/api/v1/field-sync/%s", c.baseURL, segment)
	switch action {
	case models.ActionCreate:
		return http.MethodPost, base, nil
	case models.ActionUpdate:
		return http.MethodPut, fmt.Sprintf("%s/%s", base, entityID), nil
	case models.ActionDelete:
		return http.MethodDelete, fmt.Sprintf("%s/%s", base, entityID), nil
	default:
		return "", "", fmt.Errorf("unknown sync action %q", action)
	}
}

// authorize attaches a short-lived signed device token. Tokens are cached
// until shortly before expiry to avoid re-signing on every queue entry.
func (c *Client) authorize(req *http.Request) error {
	if len(c.tokenSecret) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachedToken == "" || time.Until(c.tokenExpiry) < 30*time.Second {
		ttl := c.tokenTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		expiry := time.Now().Add(ttl)
		claims := jwt.RegisteredClaims{
			Subject:   c.deviceID,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.tokenSecret)
		if err != nil {
			return fmt.Errorf("sign device token: %w", err)
		}
		c.cachedToken = token
		c.tokenExpiry = expiry
	}

	req.Header.Set("Authorization", "Bearer "+c.cachedToken)
	return nil
}
