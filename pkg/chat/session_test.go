package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"github.com/portfolia/console/pkg/gateway"
	"github.com/portfolia/console/pkg/store/jsonl"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGateway replays scripted replies and records every request.
type fakeGateway struct {
	mu       sync.Mutex
	requests []gateway.ChatRequest
	replies  []fakeReply
	release  chan struct{}
	started  chan struct{}
}

type fakeReply struct {
	resp *gateway.ChatResponse
	err  error
}

func (f *fakeGateway) Chat(ctx context.Context, req gateway.ChatRequest) (*gateway.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var r fakeReply
	if len(f.replies) > 0 {
		r, f.replies = f.replies[0], f.replies[1:]
	} else {
		r = fakeReply{resp: &gateway.ChatResponse{Response: "ok", ConversationID: "default"}}
	}
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return r.resp, r.err
}

func (f *fakeGateway) Requests() []gateway.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.ChatRequest(nil), f.requests...)
}

var ignoreVolatile = cmpopts.IgnoreFields(Turn{}, "ID", "CreatedAt")

func TestSend_ScenarioCarriesConversationID(t *testing.T) {
	gw := &fakeGateway{replies: []fakeReply{
		{resp: &gateway.ChatResponse{
			Response:       "I built ODIN and RESCUE-5G.",
			ConversationID: "X",
			Sources:        []gateway.Source{{Source: "https://preserve-he.eu/"}},
			ToolUsed:       "rag",
		}},
		{resp: &gateway.ChatResponse{Response: "More detail.", ConversationID: "X"}},
	}}
	s := New(gw)
	ctx := context.Background()

	if !s.Send(ctx, "What projects have you built?") {
		t.Fatal("expected send to be accepted")
	}

	want := []Turn{
		{Role: RoleUser, Content: "What projects have you built?"},
		{Role: RoleAssistant, Content: "I built ODIN and RESCUE-5G.", Sources: []Source{{Source: "https://preserve-he.eu/"}}, Tool: "rag"},
	}
	if diff := cmp.Diff(want, s.Turns(), ignoreVolatile); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
	if got := s.ConversationID(); got != "X" {
		t.Errorf("expected conversation id X, got %q", got)
	}

	s.Send(ctx, "Tell me more")

	reqs := gw.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].ConversationID != "" {
		t.Errorf("first request should carry no conversation id, got %q", reqs[0].ConversationID)
	}
	if reqs[1].ConversationID != "X" {
		t.Errorf("second request should carry X, got %q", reqs[1].ConversationID)
	}
	for i, r := range reqs {
		if !r.IncludeSources {
			t.Errorf("request %d did not ask for sources", i)
		}
	}
}

func TestSend_TurnCountIsTwicePerSend(t *testing.T) {
	gw := &fakeGateway{}
	s := New(gw)

	msgs := []string{"one", "two", "three", "four"}
	for _, m := range msgs {
		s.Send(context.Background(), m)
	}

	turns := s.Turns()
	if len(turns) != 2*len(msgs) {
		t.Fatalf("expected %d turns, got %d", 2*len(msgs), len(turns))
	}
	for i, m := range msgs {
		if turns[2*i].Role != RoleUser || turns[2*i].Content != m {
			t.Errorf("turn %d: expected user %q, got %+v", 2*i, m, turns[2*i])
		}
		if turns[2*i+1].Role != RoleAssistant {
			t.Errorf("turn %d: expected assistant, got %+v", 2*i+1, turns[2*i+1])
		}
	}
}

func TestSend_BlankIsNoop(t *testing.T) {
	gw := &fakeGateway{}
	s := New(gw)

	for _, text := range []string{"", "   ", "\n\t "} {
		if s.Send(context.Background(), text) {
			t.Errorf("blank %q should be rejected", text)
		}
	}
	if len(s.Turns()) != 0 || len(gw.Requests()) != 0 {
		t.Error("blank sends must not change the log or hit the gateway")
	}
}

func TestSend_TrimsMessage(t *testing.T) {
	gw := &fakeGateway{}
	s := New(gw)
	s.Send(context.Background(), "  hello  ")

	if got := gw.Requests()[0].Message; got != "hello" {
		t.Errorf("expected trimmed message, got %q", got)
	}
	if got := s.Turns()[0].Content; got != "hello" {
		t.Errorf("expected trimmed user turn, got %q", got)
	}
}

func TestSend_WhilePendingIsNoop(t *testing.T) {
	gw := &fakeGateway{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := New(gw)

	done := make(chan bool)
	go func() { done <- s.Send(context.Background(), "first") }()

	<-gw.started
	if !s.Pending() {
		t.Fatal("expected pending while request is in flight")
	}
	before := len(s.Turns())
	if before != 1 {
		t.Fatalf("expected the optimistic user turn, got %d turns", before)
	}

	if s.Send(context.Background(), "second") {
		t.Error("send while pending should be rejected")
	}
	if s.Trigger(context.Background(), "third") {
		t.Error("trigger while pending should be rejected")
	}
	if got := len(s.Turns()); got != before {
		t.Errorf("log changed while pending: %d -> %d", before, got)
	}

	close(gw.release)
	if !<-done {
		t.Error("first send should have been accepted")
	}
	if s.Pending() {
		t.Error("pending should clear after the reply")
	}
	if got := len(gw.Requests()); got != 1 {
		t.Errorf("expected exactly one request, got %d", got)
	}
}

func TestSend_FailureAppendsErrorTurn(t *testing.T) {
	gw := &fakeGateway{replies: []fakeReply{
		{resp: &gateway.ChatResponse{Response: "hi", ConversationID: "conv-1"}},
		{err: &gateway.APIError{Op: "chat", StatusCode: 500}},
		{err: errors.New("connection refused")},
	}}
	s := New(gw)
	ctx := context.Background()

	s.Send(ctx, "hello")
	s.Send(ctx, "break")

	turns := s.Turns()
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	last := turns[3]
	if last.Role != RoleAssistant || last.Content != ErrorReply || !last.Failed {
		t.Errorf("expected error reply, got %+v", last)
	}
	if s.Pending() {
		t.Error("pending should clear after a failure")
	}
	if got := s.ConversationID(); got != "conv-1" {
		t.Errorf("failure must not change conversation id, got %q", got)
	}

	// No retry: the next send is a new request carrying the old id.
	s.Send(ctx, "again")
	reqs := gw.Requests()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	if reqs[2].Message != "again" || reqs[2].ConversationID != "conv-1" {
		t.Errorf("unexpected third request %+v", reqs[2])
	}
}

func TestSend_FailureBeforeAnyReplyKeepsIDEmpty(t *testing.T) {
	gw := &fakeGateway{replies: []fakeReply{{err: errors.New("down")}}}
	s := New(gw)
	s.Send(context.Background(), "hello")

	if s.ConversationID() != "" {
		t.Errorf("expected empty conversation id, got %q", s.ConversationID())
	}
}

func TestSend_ServerIDOverwrites(t *testing.T) {
	gw := &fakeGateway{replies: []fakeReply{
		{resp: &gateway.ChatResponse{Response: "a", ConversationID: "first"}},
		{resp: &gateway.ChatResponse{Response: "b", ConversationID: "second"}},
	}}
	s := New(gw)
	s.Send(context.Background(), "one")
	s.Send(context.Background(), "two")

	if got := s.ConversationID(); got != "second" {
		t.Errorf("expected server id to overwrite, got %q", got)
	}
}

func TestGreetingPrecedesSends(t *testing.T) {
	s := New(&fakeGateway{}, WithGreeting(DefaultGreeting))
	s.Send(context.Background(), "hi")

	turns := s.Turns()
	if len(turns) != 3 {
		t.Fatalf("expected greeting + 2 turns, got %d", len(turns))
	}
	if turns[0].Role != RoleAssistant || turns[0].Content != DefaultGreeting {
		t.Errorf("unexpected greeting %+v", turns[0])
	}
}

func TestSubscribe_NotifiesOnChange(t *testing.T) {
	s := New(&fakeGateway{})
	updates := s.Subscribe()

	s.Send(context.Background(), "hi")

	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("expected an update notification")
	}
}

func TestTranscriptRecordsTurns(t *testing.T) {
	m, err := jsonl.NewManager(filepath.Join(t.TempDir(), "transcripts"))
	if err != nil {
		t.Fatal(err)
	}
	tr, err := m.NewTranscript("http://backend")
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	gw := &fakeGateway{replies: []fakeReply{
		{resp: &gateway.ChatResponse{Response: "reply", ConversationID: "c1", ToolUsed: "direct"}},
	}}
	s := New(gw, WithTranscript(tr))
	s.Send(context.Background(), "question")

	entries, err := tr.Entries()
	if err != nil {
		t.Fatal(err)
	}
	turns := s.Turns()
	if len(entries) != len(turns) {
		t.Fatalf("expected %d entries, got %d", len(turns), len(entries))
	}
	for i, e := range entries {
		if e.ID != turns[i].ID || e.Turn.Content != turns[i].Content || e.Turn.Role != string(turns[i].Role) {
			t.Errorf("entry %d does not match turn: %+v vs %+v", i, e, turns[i])
		}
	}
	if entries[1].ConversationID != "c1" || entries[1].Turn.Tool != "direct" {
		t.Errorf("assistant entry lost metadata: %+v", entries[1])
	}
}

func TestSend_ConcurrentCallersOneWins(t *testing.T) {
	gw := &fakeGateway{release: make(chan struct{})}
	s := New(gw)

	const n = 8
	var wg sync.WaitGroup
	accepted := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			accepted <- s.Send(context.Background(), fmt.Sprintf("msg %d", i))
		}(i)
	}

	// Let every caller reach the guard before the single request resolves.
	deadline := time.Now().Add(time.Second)
	for len(gw.Requests()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(gw.release)
	wg.Wait()
	close(accepted)

	wins := 0
	for ok := range accepted {
		if ok {
			wins++
		}
	}
	// Callers that arrived after the first reply may also be accepted, but
	// no two requests were ever in flight together, so the log stays paired.
	turns := s.Turns()
	if len(turns) != 2*wins {
		t.Errorf("expected %d turns for %d accepted sends, got %d", 2*wins, wins, len(turns))
	}
	for i := 0; i < len(turns); i += 2 {
		if turns[i].Role != RoleUser || turns[i+1].Role != RoleAssistant {
			t.Errorf("turns %d/%d not a user/assistant pair", i, i+1)
		}
	}
}
