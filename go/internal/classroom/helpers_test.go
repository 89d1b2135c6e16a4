package classroom

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/activity"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/captions"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/events"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/room"
)

type testMember struct {
	id   string
	role room.Role

	mu     sync.Mutex
	events []*events.Event
	closed bool
}

func (m *testMember) ID() string { return m.id }

func (m *testMember) Send(data []byte) bool {
	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, &ev)
	return true
}

func (m *testMember) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *testMember) received() []*events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*events.Event(nil), m.events...)
}

func (m *testMember) types() []events.EventType {
	var out []events.EventType
	for _, ev := range m.received() {
		out = append(out, ev.Type)
	}
	return out
}

func (m *testMember) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *testMember) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *testMember) waitFor(t *testing.T, typ events.EventType) *events.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range m.received() {
			if ev.Type == typ {
				return ev
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s never received %s", m.id, typ)
	return nil
}

func (m *testMember) waitCount(t *testing.T, n int) []*events.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := m.received(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s received %v, expected at least %d events", m.id, m.types(), n)
	return nil
}

// roleAuthorizer trusts the role stored on the test member
type roleAuthorizer struct{}

func (roleAuthorizer) RoleFor(m room.Member, code string) room.Role {
	if tm, ok := m.(*testMember); ok && tm.role != "" {
		return tm.role
	}
	return room.RoleViewer
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []activity.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev activity.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type stubStream struct {
	results chan captions.Transcript
	once    sync.Once
}

func (s *stubStream) Send(chunk []byte) error             { return nil }
func (s *stubStream) Results() <-chan captions.Transcript { return s.results }
func (s *stubStream) Err() error                          { return nil }
func (s *stubStream) Close() error {
	s.once.Do(func() { close(s.results) })
	return nil
}

type stubRecognizer struct{ opened int }

func (r *stubRecognizer) Open(ctx context.Context, cfg captions.StreamConfig) (captions.RecognitionStream, error) {
	r.opened++
	return &stubStream{results: make(chan captions.Transcript)}, nil
}

type stubTranslator struct{}

func (stubTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	return "[" + target + "] " + text, nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *clockwork.FakeClock, *recordingPublisher, *stubRecognizer) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	pub := &recordingPublisher{}
	rec := &stubRecognizer{}
	c := New(Deps{
		Clock:      clock,
		Recognizer: rec,
		Translator: stubTranslator{},
		Publisher:  pub,
		Authorizer: roleAuthorizer{},
	}, DefaultConfig())
	t.Cleanup(c.Close)
	return c, clock, pub, rec
}

func join(t *testing.T, c *Coordinator, m *testMember, code string) {
	t.Helper()
	raw, _ := json.Marshal(code)
	if err := c.Join(context.Background(), m, raw); err != nil {
		t.Fatalf("join %s: %v", code, err)
	}
}

func timerPayload(t *testing.T, ev *events.Event) events.TimerPayload {
	t.Helper()
	var p events.TimerPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("bad timer payload: %v", err)
	}
	return p
}

func objectivePayload(t *testing.T, ev *events.Event) string {
	t.Helper()
	var p events.ObjectivePayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("bad objective payload: %v", err)
	}
	return p.Text
}
