package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	nostr "github.com/nbd-wtf/go-nostr"
)

// mockSink records every frame written to it.
type mockSink struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
}

func (m *mockSink) Write(f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, f)
	return nil
}

func (m *mockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSink) snapshot() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.frames))
	copy(out, m.frames)
	return out
}

// mockStream blocks forever on Read until closed, simulating an idle
// but live relay socket; the test drives the scenario entirely through
// commands, never through inbound frames.
type mockStream struct {
	done chan struct{}
}

func newMockStream() *mockStream { return &mockStream{done: make(chan struct{})} }

func (s *mockStream) Read() ([]byte, error) {
	<-s.done
	return nil, errClosedStream
}

type mockDialer struct {
	sink   *mockSink
	stream *mockStream
}

func (d *mockDialer) Dial(ctx context.Context, url, proxy string) (Sink, Stream, error) {
	return d.sink, d.stream, nil
}

type discardInbound struct{}

func (discardInbound) Send(ReceivedMsg) {}

var errClosedStream = &streamClosedErr{}

type streamClosedErr struct{}

func (*streamClosedErr) Error() string { return "mock stream closed" }

// S6 — Relay termination ordering: three SendMsg enqueued, then
// terminate(); all three texts must appear before the Close frame,
// status must end at Terminated, and a subsequent SendMsg must fail
// with RelayEventSender.
func TestRelayTerminationOrdering(t *testing.T) {
	sink := &mockSink{}
	dialer := &mockDialer{sink: sink, stream: newMockStream()}
	r := New("wss://example.invalid", "", discardInbound{}, dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Connect(ctx, true)
	if got := r.Status(); got != Connected {
		t.Fatalf("status after connect = %v, want Connected", got)
	}

	for i := 0; i < 3; i++ {
		env := &nostr.EventEnvelope{Event: nostr.Event{ID: "evt"}}
		if err := r.SendMsg(env); err != nil {
			t.Fatalf("SendMsg %d: %v", i, err)
		}
	}
	if err := r.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if r.Status() == Terminated {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("relay did not reach Terminated in time, status=%v", r.Status())
		case <-time.After(5 * time.Millisecond):
		}
	}

	frames := sink.snapshot()
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4 (3 text + 1 close)", len(frames))
	}
	for i := 0; i < 3; i++ {
		if frames[i].Kind != FrameText {
			t.Fatalf("frame %d kind = %v, want FrameText", i, frames[i].Kind)
		}
	}
	if frames[3].Kind != FrameClose {
		t.Fatalf("frame 3 kind = %v, want FrameClose", frames[3].Kind)
	}

	if err := r.SendMsg(&nostr.EventEnvelope{Event: nostr.Event{ID: "late"}}); err == nil {
		t.Fatalf("expected SendMsg after Terminate to fail")
	}
}

func TestRelayStatusStringer(t *testing.T) {
	cases := map[Status]string{
		Initialized:  "Initialized",
		Connecting:   "Connecting",
		Connected:    "Connected",
		Disconnected: "Disconnected",
		Terminated:   "Terminated",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestTerminationFlagCollapsesSupervisorWithoutWriter(t *testing.T) {
	sink := &mockSink{}
	dialer := &mockDialer{sink: sink, stream: newMockStream()}
	r := New("wss://example.invalid", "", discardInbound{}, dialer)
	r.tickInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Connect(ctx, false)
	r.terminating.Set()

	deadline := time.After(1 * time.Second)
	for {
		if r.Status() == Terminated {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("supervisor did not reach Terminated, status=%v", r.Status())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
