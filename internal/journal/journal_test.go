package journal_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stemsi/exstem-client/internal/journal"
	"github.com/stemsi/exstem-client/internal/telemetry"
)

func openTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestLaunchRoundTrip(t *testing.T) {
	j := openTestJournal(t)

	if _, ok, err := j.LastLaunch(7); err != nil || ok {
		t.Fatalf("LastLaunch on empty journal = ok=%v, err=%v", ok, err)
	}

	first := time.UnixMilli(1700000000000)
	if err := j.RecordLaunch(7, first); err != nil {
		t.Fatalf("RecordLaunch: %v", err)
	}
	got, ok, err := j.LastLaunch(7)
	if err != nil || !ok {
		t.Fatalf("LastLaunch = ok=%v, err=%v", ok, err)
	}
	if !got.Equal(first) {
		t.Errorf("launch = %v, want %v", got, first)
	}

	// Upsert replaces.
	second := first.Add(10 * time.Second)
	if err := j.RecordLaunch(7, second); err != nil {
		t.Fatalf("RecordLaunch again: %v", err)
	}
	got, _, _ = j.LastLaunch(7)
	if !got.Equal(second) {
		t.Errorf("launch = %v, want %v", got, second)
	}

	// Other attempts are isolated.
	if _, ok, _ := j.LastLaunch(8); ok {
		t.Error("attempt 8 must not see attempt 7's launch")
	}
}

func TestEventSpoolOrderAndAck(t *testing.T) {
	j := openTestJournal(t)

	at := time.UnixMilli(1700000000000)
	events := []telemetry.Event{
		{ID: "ev-1", AttemptID: 7, Type: "tab_blur", Payload: json.RawMessage(`{"reason":"sigtstp"}`), ClientTS: at},
		{ID: "ev-2", AttemptID: 7, Type: "reconnect", Payload: json.RawMessage(`{}`), ClientTS: at.Add(time.Second)},
		{ID: "ev-3", AttemptID: 9, Type: "tab_blur", Payload: json.RawMessage(`{}`), ClientTS: at},
	}
	for _, ev := range events {
		if err := j.AppendEvent(ev); err != nil {
			t.Fatalf("AppendEvent(%s): %v", ev.ID, err)
		}
	}

	pending, err := j.PendingEvents(7)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d events, want 2", len(pending))
	}
	if pending[0].ID != "ev-1" || pending[1].ID != "ev-2" {
		t.Errorf("order = %s, %s; want ev-1, ev-2", pending[0].ID, pending[1].ID)
	}
	if pending[0].Type != "tab_blur" || string(pending[0].Payload) != `{"reason":"sigtstp"}` {
		t.Errorf("event = %+v", pending[0])
	}
	if !pending[0].ClientTS.Equal(at) {
		t.Errorf("client ts = %v, want %v", pending[0].ClientTS, at)
	}

	if err := j.RemoveEvent("ev-1"); err != nil {
		t.Fatalf("RemoveEvent: %v", err)
	}
	pending, _ = j.PendingEvents(7)
	if len(pending) != 1 || pending[0].ID != "ev-2" {
		t.Errorf("after ack: %+v", pending)
	}

	// Removing an unknown id is fine.
	if err := j.RemoveEvent("ev-1"); err != nil {
		t.Errorf("RemoveEvent of acked id: %v", err)
	}
}

func TestSpoolSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ev := telemetry.Event{ID: "ev-1", AttemptID: 7, Type: "tab_blur", Payload: json.RawMessage(`{}`), ClientTS: time.UnixMilli(1700000000000)}
	if err := j.AppendEvent(ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j, err = journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	pending, err := j.PendingEvents(7)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "ev-1" {
		t.Errorf("pending after reopen = %+v", pending)
	}
}
