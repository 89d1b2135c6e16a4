package classroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/seandavisproductions/teacher-toolkit/go/internal/events"
	"github.com/seandavisproductions/teacher-toolkit/go/internal/room"
)

func TestJoinResyncIsUnicast(t *testing.T) {
	c, clock, _, _ := newTestCoordinator(t)
	teacher := &testMember{id: "teacher", role: room.RolePresenter}
	early := &testMember{id: "early"}

	join(t, c, teacher, "ABC123")
	join(t, c, early, "ABC123")

	c.Handle(context.Background(), teacher, events.SetObjective{SessionCode: "ABC123", ObjectiveText: "Fractions"})
	c.Handle(context.Background(), teacher, events.StartTimer{SessionCode: "ABC123", SecondsRemaining: 300})
	clock.Advance(1500 * time.Millisecond)
	teacher.waitCount(t, 6)

	teacher.reset()
	early.reset()

	late := &testMember{id: "late"}
	join(t, c, late, "ABC123")

	got := late.received()
	if len(got) != 3 {
		t.Fatalf("expected 3 resync events, got %v", late.types())
	}
	if got[0].Type != events.EventTypeTimerUpdate || got[1].Type != events.EventTypeObjectiveUpdate || got[2].Type != events.EventTypeJoined {
		t.Fatalf("unexpected resync order: %v", late.types())
	}
	snap := timerPayload(t, got[0])
	if !snap.Running || snap.SecondsRemaining > 299 || snap.SecondsRemaining < 298 {
		t.Fatalf("unexpected timer snapshot: %+v", snap)
	}
	if text := objectivePayload(t, got[1]); text != "Fractions" {
		t.Fatalf("unexpected objective %q", text)
	}

	if n := len(teacher.received()) + len(early.received()); n != 0 {
		t.Fatalf("join leaked %d events to existing members", n)
	}
}

func TestJoinEmptySessionResyncsDefaults(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	student := &testMember{id: "s"}
	join(t, c, student, "FRESH1")

	got := student.received()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %v", student.types())
	}
	if snap := timerPayload(t, got[0]); snap.Running || snap.SecondsRemaining != 0 {
		t.Fatalf("unexpected default timer: %+v", snap)
	}
	if text := objectivePayload(t, got[1]); text != "" {
		t.Fatalf("unexpected default objective %q", text)
	}
}

func TestMalformedJoinDisconnects(t *testing.T) {
	for _, raw := range []string{`123`, `""`, `null`, ``} {
		t.Run(raw, func(t *testing.T) {
			c, _, _, _ := newTestCoordinator(t)
			m := &testMember{id: "m"}

			err := c.Join(context.Background(), m, json.RawMessage(raw))
			if !errors.Is(err, ErrInvalidSessionCode) {
				t.Fatalf("expected ErrInvalidSessionCode, got %v", err)
			}
			if !m.isClosed() {
				t.Fatal("connection should be closed")
			}
			if types := m.types(); len(types) != 1 || types[0] != events.EventTypeSessionError {
				t.Fatalf("expected a single sessionError, got %v", types)
			}
			if _, ok := c.rooms.RoomOf(m); ok {
				t.Fatal("rejected member joined a room")
			}
		})
	}
}

func TestCrossSessionCommandRejected(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	teacherA := &testMember{id: "ta", role: room.RolePresenter}
	studentB := &testMember{id: "sb"}
	join(t, c, teacherA, "ROOMA")
	join(t, c, studentB, "ROOMB")
	studentB.reset()

	err := c.Handle(context.Background(), teacherA, events.SetObjective{SessionCode: "ROOMB", ObjectiveText: "hijack"})
	if !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
	if c.objectives.Snapshot("ROOMB") != "" {
		t.Fatal("cross-session objective was applied")
	}

	if err := c.Handle(context.Background(), teacherA, events.SetObjective{SessionCode: "ROOMA", ObjectiveText: "ours"}); err != nil {
		t.Fatalf("own session: %v", err)
	}
	if len(studentB.received()) != 0 {
		t.Fatalf("ROOMB member received %v", studentB.types())
	}
	if c.objectives.Snapshot("ROOMA") != "ours" {
		t.Fatal("objective not applied to own session")
	}
}

func TestViewerCannotMutate(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	student := &testMember{id: "s"}
	join(t, c, student, "ABC")

	for _, cmd := range []events.Command{
		events.StartTimer{SessionCode: "ABC", SecondsRemaining: 10},
		events.ResetTimer{SessionCode: "ABC"},
		events.SetObjective{SessionCode: "ABC", ObjectiveText: "nope"},
		events.StartCaptions{SessionCode: "ABC", Language: "en-US"},
	} {
		if err := c.Handle(context.Background(), student, cmd); !errors.Is(err, ErrNotPresenter) {
			t.Fatalf("%s: expected ErrNotPresenter, got %v", cmd.Type(), err)
		}
	}
	if c.timers.Running("ABC") || c.objectives.Snapshot("ABC") != "" {
		t.Fatal("viewer command mutated state")
	}
}

func TestCommandBeforeJoin(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	m := &testMember{id: "m", role: room.RolePresenter}

	err := c.Handle(context.Background(), m, events.StartTimer{SessionCode: "ABC", SecondsRemaining: 5})
	if !errors.Is(err, ErrNotInSession) {
		t.Fatalf("expected ErrNotInSession, got %v", err)
	}
	if m.isClosed() {
		t.Fatal("protocol violation should not close the connection")
	}
}

func TestTimerBroadcastToRoom(t *testing.T) {
	c, clock, _, _ := newTestCoordinator(t)
	teacher := &testMember{id: "t", role: room.RolePresenter}
	student := &testMember{id: "s"}
	join(t, c, teacher, "ABC")
	join(t, c, student, "ABC")
	student.reset()

	c.Handle(context.Background(), teacher, events.StartTimer{SessionCode: "ABC", SecondsRemaining: 2})
	clock.Advance(time.Second)
	student.waitCount(t, 2)
	clock.Advance(time.Second)

	var seq []int
	for _, ev := range student.waitCount(t, 3) {
		p := timerPayload(t, ev)
		seq = append(seq, p.SecondsRemaining)
	}
	if len(seq) != 3 || seq[0] != 2 || seq[1] != 1 || seq[2] != 0 {
		t.Fatalf("unexpected countdown %v", seq)
	}

	c.Handle(context.Background(), teacher, events.ResetTimer{SessionCode: "ABC"})
	student.waitFor(t, events.EventTypeTimerReset)
}

func TestAudioBeforeCaptionsIsDropped(t *testing.T) {
	c, _, _, rec := newTestCoordinator(t)
	teacher := &testMember{id: "t", role: room.RolePresenter}
	join(t, c, teacher, "ABC")

	if c.PushAudio(teacher, []byte{1, 2, 3}) {
		t.Fatal("audio without a stream should be dropped")
	}
	if teacher.isClosed() {
		t.Fatal("dropped audio should not close the connection")
	}

	if err := c.Handle(context.Background(), teacher, events.StartCaptions{SessionCode: "ABC", Language: "en-US"}); err != nil {
		t.Fatalf("start captions: %v", err)
	}
	if rec.opened != 1 {
		t.Fatalf("expected one stream, got %d", rec.opened)
	}
	if !c.PushAudio(teacher, []byte{1, 2, 3}) {
		t.Fatal("audio should reach the stream")
	}

	student := &testMember{id: "s"}
	join(t, c, student, "ABC")
	if c.PushAudio(student, []byte{1}) {
		t.Fatal("viewer audio should be dropped")
	}
}

func TestLeaveStopsCaptionsKeepsState(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	teacher := &testMember{id: "t", role: room.RolePresenter}
	join(t, c, teacher, "ABC")

	c.Handle(context.Background(), teacher, events.StartTimer{SessionCode: "ABC", SecondsRemaining: 60})
	c.Handle(context.Background(), teacher, events.SetObjective{SessionCode: "ABC", ObjectiveText: "Poetry"})
	c.Handle(context.Background(), teacher, events.StartCaptions{SessionCode: "ABC", Language: "en-US"})

	c.Disconnect(teacher)
	c.Disconnect(teacher)

	if c.captions.Active(teacher) {
		t.Fatal("caption stream should be stopped on disconnect")
	}
	if !c.timers.Running("ABC") || c.objectives.Snapshot("ABC") != "Poetry" {
		t.Fatal("disconnect must not touch timer or objective")
	}
}

func TestTranslationUnicastToRequester(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	teacher := &testMember{id: "t", role: room.RolePresenter}
	student := &testMember{id: "s"}
	other := &testMember{id: "o"}
	join(t, c, teacher, "ABC")
	join(t, c, student, "ABC")
	join(t, c, other, "ABC")
	teacher.reset()
	other.reset()

	err := c.Handle(context.Background(), student, events.RequestTranslation{Text: "good morning", SourceLanguage: "en", TargetLanguage: "es"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	ev := student.waitFor(t, events.EventTypeTranslationResult)
	var p events.TranslationResultPayload
	json.Unmarshal(ev.Data, &p)
	if p.Text != "[es] good morning" || p.SourceText != "good morning" {
		t.Fatalf("unexpected translation %+v", p)
	}
	if len(teacher.received())+len(other.received()) != 0 {
		t.Fatal("translation leaked to other members")
	}
}

func TestRejoinMovesMember(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	m := &testMember{id: "m"}
	join(t, c, m, "ONE")
	join(t, c, m, "TWO")

	if c.rooms.Members("ONE") != 0 || c.rooms.Members("TWO") != 1 {
		t.Fatal("rejoin should move the member")
	}
}

type stubCodes struct{ known map[string]bool }

func (s stubCodes) Exists(ctx context.Context, code string) (bool, error) {
	return s.known[code], nil
}

func TestRequireKnownCode(t *testing.T) {
	config := DefaultConfig()
	config.RequireKnownCode = true
	c := New(Deps{Codes: stubCodes{known: map[string]bool{"REAL01": true}}}, config)

	m := &testMember{id: "m"}
	if err := c.Join(context.Background(), m, json.RawMessage(`"FAKE01"`)); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	if !m.isClosed() {
		t.Fatal("unknown code should close the connection")
	}

	ok := &testMember{id: "ok"}
	if err := c.Join(context.Background(), ok, json.RawMessage(`"REAL01"`)); err != nil {
		t.Fatalf("known code rejected: %v", err)
	}
}

func TestActivitySkipsTransientEvents(t *testing.T) {
	c, clock, pub, _ := newTestCoordinator(t)
	teacher := &testMember{id: "t", role: room.RolePresenter}
	join(t, c, teacher, "ABC")

	c.Handle(context.Background(), teacher, events.SetObjective{SessionCode: "ABC", ObjectiveText: "Maps"})
	c.Handle(context.Background(), teacher, events.StartTimer{SessionCode: "ABC", SecondsRemaining: 3})
	clock.Advance(time.Second)
	teacher.waitCount(t, 6)

	got := pub.types()
	want := []string{"objectiveUpdate", "timerUpdate"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("recorded %v, want %v", got, want)
	}
}

func TestReaperEvictsIdleSessions(t *testing.T) {
	c, clock, _, _ := newTestCoordinator(t)
	teacher := &testMember{id: "t", role: room.RolePresenter}

	join(t, c, teacher, "IDLE")
	c.Handle(context.Background(), teacher, events.SetObjective{SessionCode: "IDLE", ObjectiveText: "old"})
	join(t, c, teacher, "BUSY")
	c.Handle(context.Background(), teacher, events.StartTimer{SessionCode: "BUSY", SecondsRemaining: 1_000_000})
	c.Leave(teacher)

	clock.Advance(time.Hour)
	if n := c.reapIdle(); n != 0 {
		t.Fatalf("evicted %d sessions before the TTL", n)
	}

	clock.Advance(2 * time.Hour)
	if n := c.reapIdle(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if c.objectives.Snapshot("IDLE") != "" {
		t.Fatal("idle objective not removed")
	}
	if !c.timers.Running("BUSY") {
		t.Fatal("session with a running timer was evicted")
	}
}

func TestReaperDoesNotWipeConcurrentWrites(t *testing.T) {
	c, clock, _, _ := newTestCoordinator(t)

	const sessions = 50
	codes := make([]string, sessions)
	for i := range codes {
		codes[i] = fmt.Sprintf("ROOM%02d", i)
		m := &testMember{id: "old-" + codes[i]}
		join(t, c, m, codes[i])
		c.Leave(m)
	}
	clock.Advance(3 * time.Hour)

	stop := make(chan struct{})
	reaped := make(chan struct{})
	go func() {
		defer close(reaped)
		for {
			select {
			case <-stop:
				return
			default:
				c.reapIdle()
			}
		}
	}()

	var wg sync.WaitGroup
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			teacher := &testMember{id: "t-" + code, role: room.RolePresenter}
			raw, _ := json.Marshal(code)
			if err := c.Join(context.Background(), teacher, raw); err != nil {
				t.Errorf("join %s: %v", code, err)
				return
			}
			if err := c.Handle(context.Background(), teacher, events.SetObjective{SessionCode: code, ObjectiveText: "goal " + code}); err != nil {
				t.Errorf("set objective %s: %v", code, err)
			}
			c.Leave(teacher)
		}(code)
	}
	wg.Wait()
	close(stop)
	<-reaped

	for _, code := range codes {
		if got := c.objectives.Snapshot(code); got != "goal "+code {
			t.Errorf("objective for %s = %q after concurrent reap", code, got)
		}
	}
}

func TestReaperKeepsOccupiedSessions(t *testing.T) {
	c, clock, _, _ := newTestCoordinator(t)
	student := &testMember{id: "s"}
	join(t, c, student, "FULL")

	clock.Advance(5 * time.Hour)
	if n := c.reapIdle(); n != 0 {
		t.Fatalf("occupied session evicted")
	}
}

func TestRunReaps(t *testing.T) {
	c, clock, _, _ := newTestCoordinator(t)
	m := &testMember{id: "m"}
	join(t, c, m, "GONE")
	c.Leave(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("reaper never started: %v", err)
	}
	clock.Advance(3 * time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for len(c.Sessions()) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(c.Sessions()) != 0 {
		t.Fatalf("session not reaped: %+v", c.Sessions())
	}
}

func TestStateReportsLiveValues(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	teacher := &testMember{id: "t", role: room.RolePresenter}
	join(t, c, teacher, "ABC")
	c.Handle(context.Background(), teacher, events.SetObjective{SessionCode: "ABC", ObjectiveText: "Volcanoes"})
	c.Handle(context.Background(), teacher, events.StartTimer{SessionCode: "ABC", SecondsRemaining: 45})

	state := c.State("ABC")
	if state.Members != 1 || state.Objective != "Volcanoes" || !state.Timer.Running || state.Timer.SecondsRemaining != 45 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.LastActivity == nil {
		t.Fatal("tracked session should report activity")
	}
}
