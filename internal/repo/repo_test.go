package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"smsmock/internal/db"
	"smsmock/internal/domain"
	"smsmock/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn}
}

func testMessage(sid string) domain.Message {
	url := "http://example.com/cb"
	return domain.Message{
		MessageSid:  sid,
		Provider:    "twilio",
		FromNumber:  "+14155552671",
		ToNumber:    "+12125551234",
		Body:        "hello",
		Status:      domain.StatusQueued,
		CallbackURL: &url,
		CreatedAt:   "2024-03-15T10:30:00Z",
		UpdatedAt:   "2024-03-15T10:30:00Z",
	}
}

func TestMessageRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if err := r.InsertMessage(ctx, testMessage("SM1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetMessage(ctx, "SM1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FromNumber != "+14155552671" || got.Body != "hello" || got.Status != domain.StatusQueued {
		t.Fatalf("unexpected message: %+v", got)
	}
	if got.CallbackURL == nil || *got.CallbackURL != "http://example.com/cb" {
		t.Fatalf("callback url not round-tripped: %v", got.CallbackURL)
	}

	if err := r.UpdateMessageStatus(ctx, "SM1", domain.StatusSent, "2024-03-15T10:30:02Z"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ = r.GetMessage(ctx, "SM1")
	if got.Status != domain.StatusSent || got.UpdatedAt != "2024-03-15T10:30:02Z" {
		t.Fatalf("status update not applied: %+v", got)
	}

	if _, err := r.GetMessage(ctx, "SM-missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.UpdateMessageStatus(ctx, "SM-missing", domain.StatusSent, "x"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMessageNullableFields(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	m := testMessage("SM2")
	m.Body = ""
	m.CallbackURL = nil
	if err := r.InsertMessage(ctx, m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetMessage(ctx, "SM2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Body != "" || got.CallbackURL != nil {
		t.Fatalf("expected empty body and nil callback url: %+v", got)
	}
}

func TestListMessagesPagination(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m := testMessage(fmt.Sprintf("SM%d", i))
		m.CreatedAt = fmt.Sprintf("2024-03-15T10:30:0%dZ", i)
		if err := r.InsertMessage(ctx, m); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	items, err := r.ListMessages(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	// Newest first.
	if items[0].MessageSid != "SM4" || items[1].MessageSid != "SM3" {
		t.Fatalf("unexpected order: %s, %s", items[0].MessageSid, items[1].MessageSid)
	}
	items, _ = r.ListMessages(ctx, 2, 4)
	if len(items) != 1 || items[0].MessageSid != "SM0" {
		t.Fatalf("unexpected offset page: %+v", items)
	}
}

func TestCallRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	twiml := "http://example.com/twiml"
	c := domain.Call{
		CallSid:    "CA1",
		Provider:   "twilio",
		FromNumber: "+14155552671",
		ToNumber:   "+12125551234",
		Status:     domain.StatusQueued,
		TwimlURL:   &twiml,
		CreatedAt:  "2024-03-15T10:30:00Z",
		UpdatedAt:  "2024-03-15T10:30:00Z",
	}
	if err := r.InsertCall(ctx, c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetCall(ctx, "CA1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TwimlURL == nil || *got.TwimlURL != twiml {
		t.Fatalf("twiml url not round-tripped: %v", got.TwimlURL)
	}
	if got.CallbackURL != nil {
		t.Fatalf("expected nil callback url: %v", got.CallbackURL)
	}

	if err := r.UpdateCallStatus(ctx, "CA1", domain.StatusRinging, "2024-03-15T10:30:02Z"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = r.GetCall(ctx, "CA1")
	if got.Status != domain.StatusRinging {
		t.Fatalf("status update not applied: %+v", got)
	}
}

func TestDeliveryEvents(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	msgSid := "SM1"
	callSid := "CA1"
	for _, status := range []string{domain.StatusSent, domain.StatusDelivered} {
		if _, err := r.InsertDeliveryEvent(ctx, domain.DeliveryEvent{
			MessageSid: &msgSid,
			EventType:  "status_update",
			Status:     status,
			CreatedAt:  "2024-03-15T10:30:00Z",
		}); err != nil {
			t.Fatalf("insert event: %v", err)
		}
	}
	if _, err := r.InsertDeliveryEvent(ctx, domain.DeliveryEvent{
		CallSid:   &callSid,
		EventType: "status_update",
		Status:    domain.StatusRinging,
		CreatedAt: "2024-03-15T10:30:00Z",
	}); err != nil {
		t.Fatalf("insert event: %v", err)
	}

	events, err := r.ListDeliveryEvents(ctx, msgSid, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d message events, want 2", len(events))
	}
	// Insertion order.
	if events[0].Status != domain.StatusSent || events[1].Status != domain.StatusDelivered {
		t.Fatalf("unexpected order: %+v", events)
	}

	events, _ = r.ListDeliveryEvents(ctx, "", callSid, 0)
	if len(events) != 1 || events[0].Status != domain.StatusRinging {
		t.Fatalf("unexpected call events: %+v", events)
	}

	events, _ = r.ListDeliveryEvents(ctx, "", "", 0)
	if len(events) != 3 {
		t.Fatalf("got %d total events, want 3", len(events))
	}
}

func TestCallbackLogs(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	code := 500
	id, err := r.InsertCallbackLog(ctx, domain.CallbackLog{
		TargetURL:     "http://example.com/cb",
		Payload:       `{"MessageSid":"SM1"}`,
		StatusCode:    &code,
		ResponseBody:  "boom",
		AttemptNumber: 1,
		Outcome:       domain.OutcomeRetryableFailure,
		CreatedAt:     "2024-03-15T10:30:00Z",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetCallbackLog(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.StatusCode == nil || *got.StatusCode != 500 {
		t.Fatalf("status code not round-tripped: %v", got.StatusCode)
	}
	if got.Outcome != domain.OutcomeRetryableFailure {
		t.Fatalf("unexpected outcome: %s", got.Outcome)
	}

	// Transport failure rows have no status code.
	id2, err := r.InsertCallbackLog(ctx, domain.CallbackLog{
		TargetURL:     "http://example.com/cb",
		Payload:       "{}",
		AttemptNumber: 2,
		Outcome:       domain.OutcomeTerminalFailure,
		CreatedAt:     "2024-03-15T10:30:05Z",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, _ = r.GetCallbackLog(ctx, id2)
	if got.StatusCode != nil {
		t.Fatalf("expected nil status code: %v", got.StatusCode)
	}

	if _, err := r.GetCallbackLog(ctx, 9999); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	logs, err := r.ListCallbackLogs(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d logs, want 2", len(logs))
	}
}

func TestStatisticsAndClear(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	sid := "SM1"
	if err := r.InsertMessage(ctx, testMessage(sid)); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertCall(ctx, domain.Call{CallSid: "CA1", Provider: "twilio", FromNumber: "a", ToNumber: "b", Status: domain.StatusQueued, CreatedAt: "x", UpdatedAt: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.InsertDeliveryEvent(ctx, domain.DeliveryEvent{MessageSid: &sid, EventType: "status_update", Status: domain.StatusSent, CreatedAt: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.InsertCallbackLog(ctx, domain.CallbackLog{TargetURL: "u", Payload: "{}", AttemptNumber: 1, Outcome: domain.OutcomeSuccess, CreatedAt: "x"}); err != nil {
		t.Fatal(err)
	}

	stats, err := r.Statistics(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Messages != 1 || stats.Calls != 1 || stats.Callbacks != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	n, err := r.ClearMessages(ctx)
	if err != nil || n != 1 {
		t.Fatalf("clear messages: n=%d err=%v", n, err)
	}
	if events, _ := r.ListDeliveryEvents(ctx, sid, "", 0); len(events) != 0 {
		t.Fatalf("message delivery events should be cleared: %+v", events)
	}

	counts, err := r.ClearAll(ctx)
	if err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if counts.Messages != 0 || counts.Calls != 1 || counts.Callbacks != 1 {
		t.Fatalf("unexpected clear counts: %+v", counts)
	}
	stats, _ = r.Statistics(ctx)
	if stats.Messages != 0 || stats.Calls != 0 || stats.Callbacks != 0 {
		t.Fatalf("expected empty tables: %+v", stats)
	}
}
