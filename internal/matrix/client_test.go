package matrix

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{HomeserverURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, srv
}

func TestLoginStoresCredentials(t *testing.T) {
	var gotBody map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/_matrix/client/v3/login" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id":"@askaosus:aosus.org","access_token":"tok123","device_id":"DEV1"}`))
	}))

	if err := c.Login(context.Background(), "@askaosus:aosus.org", "secret", "askaosus-bot"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if gotBody["type"] != "m.login.password" {
		t.Fatalf("login type = %v, want m.login.password", gotBody["type"])
	}
	if c.UserID() != "@askaosus:aosus.org" {
		t.Fatalf("UserID() = %q", c.UserID())
	}
	if c.AccessToken() != "tok123" {
		t.Fatalf("AccessToken() = %q", c.AccessToken())
	}
	if c.DeviceID() != "DEV1" {
		t.Fatalf("DeviceID() = %q", c.DeviceID())
	}
}

func TestRestoreRequiresCredentials(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())
	if err := c.Restore(Session{UserID: "@askaosus:aosus.org"}); err == nil {
		t.Fatalf("Restore() without token error = nil, want error")
	}
	if err := c.Restore(Session{UserID: "@askaosus:aosus.org", AccessToken: "tok"}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if got := c.Session(); got.AccessToken != "tok" {
		t.Fatalf("Session().AccessToken = %q, want tok", got.AccessToken)
	}
}

func TestSendMessageBuildsReplyRelation(t *testing.T) {
	var gotPath string
	var gotAuth string
	var gotContent map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotContent); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"event_id":"$sent"}`))
	}))
	if err := c.Restore(Session{UserID: "@askaosus:aosus.org", AccessToken: "tok"}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	eventID, err := c.SendMessage(context.Background(), "!room:aosus.org", "hello\nworld", "hello<br>world", "$orig")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if eventID != "$sent" {
		t.Fatalf("event id = %q, want $sent", eventID)
	}
	if !strings.HasPrefix(gotPath, "/_matrix/client/v3/rooms/") || !strings.Contains(gotPath, "/send/m.room.message/") {
		t.Fatalf("unexpected send path %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotContent["msgtype"] != "m.text" || gotContent["body"] != "hello\nworld" {
		t.Fatalf("content = %v", gotContent)
	}
	if gotContent["format"] != "org.matrix.custom.html" || gotContent["formatted_body"] != "hello<br>world" {
		t.Fatalf("formatted content = %v", gotContent)
	}
	relates, _ := gotContent["m.relates_to"].(map[string]any)
	inReply, _ := relates["m.in_reply_to"].(map[string]any)
	if inReply["event_id"] != "$orig" {
		t.Fatalf("m.in_reply_to = %v", relates)
	}
}

func TestSendMessagePlainTextOmitsFormat(t *testing.T) {
	var gotContent map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotContent)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"event_id":"$sent"}`))
	}))
	_ = c.Restore(Session{UserID: "@askaosus:aosus.org", AccessToken: "tok"})

	if _, err := c.SendMessage(context.Background(), "!room:aosus.org", "plain", "", ""); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if _, ok := gotContent["format"]; ok {
		t.Fatalf("format present for plain message: %v", gotContent)
	}
	if _, ok := gotContent["m.relates_to"]; ok {
		t.Fatalf("relation present without reply id: %v", gotContent)
	}
}

func TestSyncParsesTimelineEvents(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/v3/sync" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"next_batch": "s42",
			"rooms": {"join": {"!room:aosus.org": {"timeline": {"events": [
				{"event_id":"$e1","type":"m.room.message","sender":"@user:aosus.org",
				 "origin_server_ts":1700000000000,
				 "content":{"msgtype":"m.text","body":"hi"}}
			]}}}}
		}`))
	}))
	_ = c.Restore(Session{UserID: "@askaosus:aosus.org", AccessToken: "tok"})

	resp, err := c.Sync(context.Background(), "s41", 30*time.Second)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if resp.NextBatch != "s42" {
		t.Fatalf("next_batch = %q", resp.NextBatch)
	}
	room, ok := resp.Rooms.Join["!room:aosus.org"]
	if !ok || len(room.Timeline.Events) != 1 {
		t.Fatalf("timeline = %+v", resp.Rooms)
	}
	if room.Timeline.Events[0].EventID != "$e1" {
		t.Fatalf("event id = %q", room.Timeline.Events[0].EventID)
	}
	if !strings.Contains(gotQuery, "since=s41") || !strings.Contains(gotQuery, "timeout=30000") {
		t.Fatalf("sync query = %q", gotQuery)
	}
}

func TestSyncInitialRequestsFullState(t *testing.T) {
	var gotQuery string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"next_batch":"s1"}`))
	}))
	_ = c.Restore(Session{UserID: "@askaosus:aosus.org", AccessToken: "tok"})

	if _, err := c.Sync(context.Background(), "", 30*time.Second); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !strings.Contains(gotQuery, "full_state=true") {
		t.Fatalf("initial sync query = %q, want full_state=true", gotQuery)
	}
	if strings.Contains(gotQuery, "since=") {
		t.Fatalf("initial sync query = %q, want no since", gotQuery)
	}
}

func TestRoomEventFillsRoomID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"event_id":"$e1","type":"m.room.message","sender":"@user:aosus.org",
			"content":{"msgtype":"m.text","body":"hi"}}`))
	}))
	_ = c.Restore(Session{UserID: "@askaosus:aosus.org", AccessToken: "tok"})

	ev, err := c.RoomEvent(context.Background(), "!room:aosus.org", "$e1")
	if err != nil {
		t.Fatalf("RoomEvent() error = %v", err)
	}
	if ev.RoomID != "!room:aosus.org" {
		t.Fatalf("RoomID = %q, want filled from request", ev.RoomID)
	}
}

func TestErrorsCarryMatrixErrcode(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errcode":"M_FORBIDDEN","error":"Invalid password"}`))
	}))

	err := c.Login(context.Background(), "@askaosus:aosus.org", "wrong", "askaosus-bot")
	if err == nil {
		t.Fatalf("Login() error = nil, want M_FORBIDDEN")
	}
	if !strings.Contains(err.Error(), "M_FORBIDDEN") || !strings.Contains(err.Error(), "403") {
		t.Fatalf("error = %v, want status and errcode", err)
	}
}
