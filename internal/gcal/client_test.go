package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hai-app/go-study-backend/internal/extapi"
)

func TestListCalendars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me/calendarList" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":"primary","summary":"My Calendar","primary":true},{"id":"c2","summary":"Shared"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	cals, err := c.ListCalendars(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("list calendars: %v", err)
	}
	if len(cals) != 2 || !cals[0].Primary {
		t.Fatalf("calendars = %+v", cals)
	}
}

func TestListEvents(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendars/primary/events" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		gotQuery = map[string]string{
			"timeMin":      q.Get("timeMin"),
			"timeMax":      q.Get("timeMax"),
			"singleEvents": q.Get("singleEvents"),
			"orderBy":      q.Get("orderBy"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":"ev1","summary":"Study session","start":{"dateTime":"2026-09-02T10:00:00Z"},"end":{"dateTime":"2026-09-02T11:00:00Z"}},{"id":"ev2","summary":"Holiday","start":{"date":"2026-09-07"},"end":{"date":"2026-09-08"}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	min := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	events, err := c.ListEvents(context.Background(), "tok-1", "primary", min, time.Time{}, 7)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if gotQuery["timeMin"] != "2026-09-01T00:00:00Z" || gotQuery["timeMax"] != "2026-09-08T00:00:00Z" {
		t.Fatalf("window = %v", gotQuery)
	}
	if gotQuery["singleEvents"] != "true" || gotQuery["orderBy"] != "startTime" {
		t.Fatalf("expansion params = %v", gotQuery)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Start.DateTime == nil {
		t.Fatal("timed event lost its dateTime")
	}
	if events[1].Start.Date != "2026-09-07" {
		t.Fatalf("all-day start = %+v", events[1].Start)
	}
}

func TestCreateEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/calendars/primary/events" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body Event
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Summary != "Exam review" {
			t.Errorf("summary = %q", body.Summary)
		}
		body.ID = "created-1"
		body.HTMLLink = "https://calendar.example/created-1"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	start := time.Date(2026, 9, 3, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	c := New(srv.URL)
	created, err := c.CreateEvent(context.Background(), "tok-1", "primary", Event{
		Summary: "Exam review",
		Start:   EventTime{DateTime: &start},
		End:     EventTime{DateTime: &end},
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if created.ID != "created-1" || created.HTMLLink == "" {
		t.Fatalf("created = %+v", created)
	}
}

func TestSetEventReminder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/calendars/primary/events/ev1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Reminders struct {
				UseDefault bool       `json:"useDefault"`
				Overrides  []Reminder `json:"overrides"`
			} `json:"reminders"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Reminders.UseDefault {
			t.Error("useDefault should be false")
		}
		if len(body.Reminders.Overrides) != 1 || body.Reminders.Overrides[0] != (Reminder{Method: "popup", Minutes: 30}) {
			t.Errorf("overrides = %+v", body.Reminders.Overrides)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"ev1","summary":"Study session","start":{},"end":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	ev, err := c.SetEventReminder(context.Background(), "tok-1", "primary", "ev1", 30)
	if err != nil {
		t.Fatalf("set reminder: %v", err)
	}
	if ev.ID != "ev1" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"insufficient scope"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.ListCalendars(context.Background(), "tok-1")
	var apiErr *extapi.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *extapi.Error, got %T: %v", err, err)
	}
	if apiErr.Provider != "google" || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}
