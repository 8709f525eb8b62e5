package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hai-app/go-study-backend/internal/canvas"
	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/gcal"
	"github.com/hai-app/go-study-backend/internal/llm"
	"github.com/hai-app/go-study-backend/internal/tokens"
)

func dispatchTool(reg *Registry, ctx context.Context, name, args string) Invocation {
	return reg.Dispatch(ctx, llm.ToolCall{
		ID:       "call-1",
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: json.RawMessage(args)},
	})
}

func TestBuildRegistry(t *testing.T) {
	reg, err := BuildRegistry(Deps{UpcomingDays: 7})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	want := []string{
		"create_calendar_event",
		"create_task",
		"get_study_progress",
		"get_task",
		"get_upcoming_assignments_and_quizzes",
		"list_calendar_events",
		"list_courses",
		"list_tasks",
		"sync_calendar",
	}
	tools := reg.ChatTools()
	if len(tools) != len(want) {
		t.Fatalf("tools = %d, want %d", len(tools), len(want))
	}
	for i, name := range want {
		if tools[i].Function.Name != name {
			t.Fatalf("tools[%d] = %s, want %s", i, tools[i].Function.Name, name)
		}
	}
}

func TestTools_MissingIntegrationIsFailureData(t *testing.T) {
	db := newAgentDB(t)
	if err := db.AutoMigrate(&domain.Integration{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	reg, err := BuildRegistry(Deps{
		DB:           db,
		Tokens:       tokens.NewStore(db, nil, 0),
		UpcomingDays: 7,
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	ctx := WithUser(context.Background(), "u1")
	inv := dispatchTool(reg, ctx, "list_courses", `{}`)
	if inv.State != StateFailure {
		t.Fatalf("state = %s, output = %q", inv.State, inv.Output)
	}
	if inv.Output != "canvas is not connected for this user" {
		t.Fatalf("output = %q", inv.Output)
	}
}

func TestTools_TaskLifecycle(t *testing.T) {
	db := newAgentDB(t)
	if err := db.AutoMigrate(&domain.Task{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	reg, err := BuildRegistry(Deps{DB: db, UpcomingDays: 7})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	ctx := WithUser(context.Background(), "u1")

	inv := dispatchTool(reg, ctx, "create_task", `{"name":"Read chapter 4","type":"study","due_at":"2026-09-05T18:00:00Z"}`)
	if inv.State != StateResult {
		t.Fatalf("create state = %s, output = %q", inv.State, inv.Output)
	}
	var created domain.Task
	if err := json.Unmarshal([]byte(inv.Output), &created); err != nil {
		t.Fatalf("decode created task: %v", err)
	}
	if created.Type != domain.TaskStudy || created.DueAt == nil {
		t.Fatalf("created = %+v", created)
	}

	inv = dispatchTool(reg, ctx, "get_task", `{"task_id":"`+created.ID+`"}`)
	if inv.State != StateResult {
		t.Fatalf("get state = %s, output = %q", inv.State, inv.Output)
	}

	// The other user's registry view is isolated by the context user.
	otherCtx := WithUser(context.Background(), "u2")
	inv = dispatchTool(reg, otherCtx, "get_task", `{"task_id":"`+created.ID+`"}`)
	if inv.State != StateFailure {
		t.Fatalf("cross-user get state = %s", inv.State)
	}

	inv = dispatchTool(reg, ctx, "get_task", `{}`)
	if inv.State != StateFailure {
		t.Fatal("missing required task_id should fail")
	}

	inv = dispatchTool(reg, ctx, "create_task", `{"name":"x","due_at":"tomorrow"}`)
	if inv.State != StateFailure {
		t.Fatal("non-RFC3339 due_at should fail")
	}

	inv = dispatchTool(reg, ctx, "list_tasks", `{}`)
	if inv.State != StateResult {
		t.Fatalf("list state = %s", inv.State)
	}
	var listed struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(inv.Output), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Tasks) != 1 {
		t.Fatalf("tasks = %+v", listed.Tasks)
	}
}

func TestTools_SyncCalendar(t *testing.T) {
	canvasSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"plannable_type":"assignment","course_id":101,"context_name":"Operating Systems","html_url":"/a1","plannable":{"title":"A1","due_at":"2026-09-04T23:59:00Z"},"submissions":{"submitted":false}},
			{"plannable_type":"quiz","course_id":101,"context_name":"Operating Systems","html_url":"/q1","plannable":{"title":"Quiz 1"},"submissions":false}
		]`))
	}))
	defer canvasSrv.Close()

	var createdEvents []gcal.Event
	gcalSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev gcal.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode event: %v", err)
		}
		createdEvents = append(createdEvents, ev)
		ev.ID = "created"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ev)
	}))
	defer gcalSrv.Close()

	db := newAgentDB(t)
	if err := db.AutoMigrate(&domain.Integration{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	store := tokens.NewStore(db, nil, 0)
	store.Put("u1", domain.ProviderCanvas, tokens.Credential{AccessToken: "c-tok"})
	store.Put("u1", domain.ProviderGoogle, tokens.Credential{AccessToken: "g-tok"})

	reg, err := BuildRegistry(Deps{
		DB:           db,
		Tokens:       store,
		Canvas:       canvas.New(canvasSrv.URL),
		GCal:         gcal.New(gcalSrv.URL),
		UpcomingDays: 7,
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	ctx := WithUser(context.Background(), "u1")
	inv := dispatchTool(reg, ctx, "sync_calendar", `{}`)
	if inv.State != StateResult {
		t.Fatalf("state = %s, output = %q", inv.State, inv.Output)
	}
	var out struct {
		Created int      `json:"created"`
		Skipped int      `json:"skipped"`
		Titles  []string `json:"titles"`
	}
	if err := json.Unmarshal([]byte(inv.Output), &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	// The dated assignment becomes an event; the undated quiz is skipped.
	if out.Created != 1 || out.Skipped != 1 {
		t.Fatalf("output = %+v", out)
	}
	if len(createdEvents) != 1 || createdEvents[0].Summary != "A1" {
		t.Fatalf("events = %+v", createdEvents)
	}
	ev := createdEvents[0]
	if ev.Start.DateTime == nil || ev.End.DateTime == nil {
		t.Fatal("event missing times")
	}
	if got := ev.End.DateTime.Sub(*ev.Start.DateTime); got.Hours() != 1 {
		t.Fatalf("event length = %v, want one hour ending at the due date", got)
	}
}
