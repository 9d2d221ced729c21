package botrun

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aosus/askaosus/engage"
)

type sentMessage struct {
	roomID        string
	body          string
	formattedBody string
	replyToID     string
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	typing   []bool
	sendErr  error
	nextID   int
	typeErrs int
}

func (f *fakeTransport) SendMessage(ctx context.Context, roomID, body, formattedBody, replyToID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{roomID, body, formattedBody, replyToID})
	return fmt.Sprintf("$sent%d", f.nextID), nil
}

func (f *fakeTransport) Typing(ctx context.Context, roomID string, typing bool, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.typeErrs > 0 {
		f.typeErrs--
		return fmt.Errorf("typing failed")
	}
	f.typing = append(f.typing, typing)
	return nil
}

type fakeAnswerer struct {
	answer    string
	err       error
	questions []string
}

func (f *fakeAnswerer) Answer(ctx context.Context, question string) (string, error) {
	f.questions = append(f.questions, question)
	return f.answer, f.err
}

type fakeRecorder struct {
	records []string
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, roomID, eventID string) error {
	f.records = append(f.records, eventID)
	return f.err
}

const botID = "@askaosus:aosus.org"

func textMsg(id, replyTo, sender, body string, ts int64) engage.Message {
	return engage.Message{
		ID:        id,
		RoomID:    "!room:aosus.org",
		Sender:    sender,
		Timestamp: ts,
		ReplyToID: replyTo,
		Content:   engage.TextContent{Body: body},
	}
}

func newTestHandler(t *testing.T, transport *fakeTransport, answerer *fakeAnswerer, store Recorder) (*Handler, *engage.Gate, *engage.SentRegistry) {
	t.Helper()
	matcher, err := engage.NewMatcher([]string{"@askaosus", "askaosus"})
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}
	registry := engage.NewSentRegistry(100)
	gate := engage.NewGate(engage.GateOptions{})
	engine := &engage.Engine{
		BotID:   botID,
		Policy:  engage.PolicyMention,
		Matcher: matcher,
		Resolver: &engage.Resolver{Fetcher: engage.FetcherFunc(
			func(ctx context.Context, roomID, eventID string) (engage.Message, error) {
				return engage.Message{}, fmt.Errorf("not found")
			},
		)},
		Registry:   registry,
		DepthLimit: 10,
	}
	h, err := New(Options{
		BotID:     botID,
		Transport: transport,
		Engine:    engine,
		Answerer:  answerer,
		Gate:      gate,
		Registry:  registry,
		Store:     store,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h, gate, registry
}

func nowMs() int64 { return time.Now().UnixMilli() }

func TestHandleEventAnswersMention(t *testing.T) {
	transport := &fakeTransport{}
	answerer := &fakeAnswerer{answer: "جرب هذا الرابط\n\nhttps://discourse.aosus.org/t/42"}
	recorder := &fakeRecorder{}
	h, gate, registry := newTestHandler(t, transport, answerer, recorder)
	gate.Arm()

	h.HandleEvent(context.Background(), textMsg("$q", "", "@user:aosus.org", "@askaosus how do I update?", nowMs()))

	if len(answerer.questions) != 1 || answerer.questions[0] != "how do I update?" {
		t.Fatalf("questions = %v", answerer.questions)
	}
	if len(transport.sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(transport.sent))
	}
	sent := transport.sent[0]
	if sent.replyToID != "$q" {
		t.Fatalf("replyToID = %q, want $q", sent.replyToID)
	}
	if !strings.Contains(sent.formattedBody, "<br>") {
		t.Fatalf("formattedBody = %q, want newline conversion", sent.formattedBody)
	}
	if !registry.Contains("$sent1") {
		t.Fatalf("registry missing sent event id")
	}
	if len(recorder.records) != 1 || recorder.records[0] != "$sent1" {
		t.Fatalf("recorder = %v", recorder.records)
	}
	// Typing on, then off.
	if len(transport.typing) != 2 || !transport.typing[0] || transport.typing[1] {
		t.Fatalf("typing sequence = %v, want [true false]", transport.typing)
	}
}

func TestHandleEventSkipsOwnMessages(t *testing.T) {
	transport := &fakeTransport{}
	answerer := &fakeAnswerer{answer: "x"}
	h, gate, _ := newTestHandler(t, transport, answerer, nil)
	gate.Arm()

	h.HandleEvent(context.Background(), textMsg("$m", "", botID, "@askaosus echo", nowMs()))
	if len(transport.sent) != 0 || len(answerer.questions) != 0 {
		t.Fatalf("own message was processed")
	}
}

func TestHandleEventDropsUnarmedAndStale(t *testing.T) {
	transport := &fakeTransport{}
	answerer := &fakeAnswerer{answer: "x"}
	h, gate, _ := newTestHandler(t, transport, answerer, nil)

	// Before Arm nothing passes.
	h.HandleEvent(context.Background(), textMsg("$m1", "", "@user:aosus.org", "@askaosus hi", nowMs()))
	if len(transport.sent) != 0 {
		t.Fatalf("unarmed gate let a message through")
	}

	gate.Arm()
	// Stale timestamp from before the start is dropped.
	h.HandleEvent(context.Background(), textMsg("$m2", "", "@user:aosus.org", "@askaosus hi", nowMs()-3600_000))
	if len(transport.sent) != 0 {
		t.Fatalf("stale message was processed")
	}
}

func TestHandleEventIgnoresNonMention(t *testing.T) {
	transport := &fakeTransport{}
	answerer := &fakeAnswerer{answer: "x"}
	h, gate, _ := newTestHandler(t, transport, answerer, nil)
	gate.Arm()

	h.HandleEvent(context.Background(), textMsg("$m", "", "@user:aosus.org", "just chatting", nowMs()))
	if len(answerer.questions) != 0 {
		t.Fatalf("non-mention reached the answerer")
	}
	if len(transport.typing) != 0 {
		t.Fatalf("typing sent for ignored message")
	}
}

func TestHandleEventSendsApologyOnAnswerError(t *testing.T) {
	transport := &fakeTransport{}
	answerer := &fakeAnswerer{answer: "عذراً، حدث خطأ", err: fmt.Errorf("llm down")}
	h, gate, _ := newTestHandler(t, transport, answerer, nil)
	gate.Arm()

	h.HandleEvent(context.Background(), textMsg("$m", "", "@user:aosus.org", "@askaosus help", nowMs()))
	if len(transport.sent) != 1 || transport.sent[0].body != "عذراً، حدث خطأ" {
		t.Fatalf("sent = %+v, want apology text", transport.sent)
	}
}

func TestHandleEventSendFailureLeavesRegistryUntouched(t *testing.T) {
	transport := &fakeTransport{sendErr: fmt.Errorf("http 502")}
	answerer := &fakeAnswerer{answer: "x"}
	recorder := &fakeRecorder{}
	h, gate, registry := newTestHandler(t, transport, answerer, recorder)
	gate.Arm()

	h.HandleEvent(context.Background(), textMsg("$m", "", "@user:aosus.org", "@askaosus help", nowMs()))
	if registry.Len() != 0 {
		t.Fatalf("registry grew despite send failure")
	}
	if len(recorder.records) != 0 {
		t.Fatalf("recorder wrote despite send failure")
	}
}

type panickingAnswerer struct{}

func (panickingAnswerer) Answer(ctx context.Context, question string) (string, error) {
	panic("answer blew up")
}

func TestHandleEventRecoversFromPanic(t *testing.T) {
	transport := &fakeTransport{}
	matcher, err := engage.NewMatcher([]string{"@askaosus", "askaosus"})
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}
	registry := engage.NewSentRegistry(100)
	gate := engage.NewGate(engage.GateOptions{})
	engine := &engage.Engine{
		BotID:      botID,
		Policy:     engage.PolicyMention,
		Matcher:    matcher,
		Resolver:   &engage.Resolver{Fetcher: engage.FetcherFunc(nil)},
		Registry:   registry,
		DepthLimit: 10,
	}
	h, err := New(Options{
		BotID:     botID,
		Transport: transport,
		Engine:    engine,
		Answerer:  panickingAnswerer{},
		Gate:      gate,
		Registry:  registry,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	gate.Arm()

	// Must not panic outward.
	h.HandleEvent(context.Background(), textMsg("$m", "", "@user:aosus.org", "@askaosus help", nowMs()))
	if len(transport.sent) != 0 {
		t.Fatalf("message sent despite answerer panic")
	}
}
