package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const clientAPIPrefix = "/_matrix/client/v3"

// Client is a thin client over the Matrix client-server API. It covers the
// handful of endpoints the bot needs: login, sync, sending room messages,
// fetching single events, and typing notifications.
type Client struct {
	http          *http.Client
	homeserverURL string
	accessToken   string
	userID        string
	deviceID      string
}

type Options struct {
	HomeserverURL string
	HTTPClient    *http.Client
}

func New(opts Options) (*Client, error) {
	base := strings.TrimSpace(strings.TrimRight(opts.HomeserverURL, "/"))
	if base == "" {
		return nil, fmt.Errorf("homeserver_url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Long-poll sync needs headroom beyond the sync timeout itself.
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		http:          httpClient,
		homeserverURL: base,
	}, nil
}

// UserID returns the authenticated user id, empty before login or restore.
func (c *Client) UserID() string { return c.userID }

func (c *Client) DeviceID() string { return c.deviceID }

func (c *Client) AccessToken() string { return c.accessToken }

// Session holds persisted credentials for restoring a login.
type Session struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// Restore adopts an existing session without hitting the homeserver.
func (c *Client) Restore(s Session) error {
	if strings.TrimSpace(s.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(s.AccessToken) == "" {
		return fmt.Errorf("access_token is required")
	}
	c.userID = s.UserID
	c.accessToken = s.AccessToken
	c.deviceID = s.DeviceID
	return nil
}

// Session returns the current credentials for persistence.
func (c *Client) Session() Session {
	return Session{UserID: c.userID, AccessToken: c.accessToken, DeviceID: c.deviceID}
}

// Login performs a password login and stores the returned credentials on the
// client.
func (c *Client) Login(ctx context.Context, userID, password, deviceName string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user_id is required")
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	payload := map[string]any{
		"type": "m.login.password",
		"identifier": map[string]any{
			"type": "m.id.user",
			"user": userID,
		},
		"password":                    password,
		"initial_device_display_name": deviceName,
	}
	var out struct {
		UserID      string `json:"user_id"`
		AccessToken string `json:"access_token"`
		DeviceID    string `json:"device_id"`
	}
	if err := c.do(ctx, http.MethodPost, clientAPIPrefix+"/login", nil, payload, &out); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}
	c.userID = out.UserID
	c.accessToken = out.AccessToken
	c.deviceID = out.DeviceID
	return nil
}

// WhoAmI verifies the access token and returns the user id it belongs to.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	var out struct {
		UserID string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodGet, clientAPIPrefix+"/account/whoami", nil, nil, &out); err != nil {
		return "", fmt.Errorf("matrix whoami: %w", err)
	}
	return out.UserID, nil
}

// SyncResponse is the subset of the /sync payload the bot consumes.
type SyncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join map[string]JoinedRoom `json:"join"`
	} `json:"rooms"`
}

type JoinedRoom struct {
	Timeline struct {
		Events []Event `json:"events"`
	} `json:"timeline"`
}

// Sync long-polls /sync from the given batch token. An empty since requests
// the full current state.
func (c *Client) Sync(ctx context.Context, since string, timeout time.Duration) (SyncResponse, error) {
	q := url.Values{}
	q.Set("timeout", fmt.Sprintf("%d", timeout.Milliseconds()))
	if since != "" {
		q.Set("since", since)
	} else {
		q.Set("full_state", "true")
	}
	var out SyncResponse
	if err := c.do(ctx, http.MethodGet, clientAPIPrefix+"/sync", q, nil, &out); err != nil {
		return SyncResponse{}, fmt.Errorf("matrix sync: %w", err)
	}
	return out, nil
}

// SendMessage sends an m.text message, optionally with an HTML rendering and
// a reply relation, and returns the new event id.
func (c *Client) SendMessage(ctx context.Context, roomID, body, formattedBody, replyToID string) (string, error) {
	if strings.TrimSpace(roomID) == "" {
		return "", fmt.Errorf("room_id is required")
	}
	if body == "" {
		return "", fmt.Errorf("body is required")
	}

	content := map[string]any{
		"msgtype": "m.text",
		"body":    body,
	}
	if formattedBody != "" {
		content["format"] = "org.matrix.custom.html"
		content["formatted_body"] = formattedBody
	}
	if replyToID != "" {
		content["m.relates_to"] = map[string]any{
			"m.in_reply_to": map[string]any{"event_id": replyToID},
		}
	}

	txnID := uuid.New().String()
	path := fmt.Sprintf("%s/rooms/%s/send/m.room.message/%s",
		clientAPIPrefix, url.PathEscape(roomID), txnID)
	var out struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(ctx, http.MethodPut, path, nil, content, &out); err != nil {
		return "", fmt.Errorf("matrix send: %w", err)
	}
	return out.EventID, nil
}

// RoomEvent fetches a single event by id.
func (c *Client) RoomEvent(ctx context.Context, roomID, eventID string) (Event, error) {
	if strings.TrimSpace(roomID) == "" {
		return Event{}, fmt.Errorf("room_id is required")
	}
	if strings.TrimSpace(eventID) == "" {
		return Event{}, fmt.Errorf("event_id is required")
	}
	path := fmt.Sprintf("%s/rooms/%s/event/%s",
		clientAPIPrefix, url.PathEscape(roomID), url.PathEscape(eventID))
	var out Event
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return Event{}, fmt.Errorf("matrix event %s: %w", eventID, err)
	}
	if out.RoomID == "" {
		out.RoomID = roomID
	}
	return out, nil
}

// Typing sets or clears the typing indicator in a room. Best effort; callers
// usually log and move on when it fails.
func (c *Client) Typing(ctx context.Context, roomID string, typing bool, timeout time.Duration) error {
	path := fmt.Sprintf("%s/rooms/%s/typing/%s",
		clientAPIPrefix, url.PathEscape(roomID), url.PathEscape(c.userID))
	payload := map[string]any{"typing": typing}
	if typing {
		payload["timeout"] = timeout.Milliseconds()
	}
	if err := c.do(ctx, http.MethodPut, path, nil, payload, nil); err != nil {
		return fmt.Errorf("matrix typing: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	endpoint := c.homeserverURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Errcode string `json:"errcode"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Errcode != "" {
			return fmt.Errorf("http %d: %s (%s)", resp.StatusCode, apiErr.Errcode, apiErr.Error)
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
