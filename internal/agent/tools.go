package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/hai-app/go-study-backend/internal/canvas"
	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/gcal"
	"github.com/hai-app/go-study-backend/internal/repo"
	"github.com/hai-app/go-study-backend/internal/tokens"
)

// Deps carries everything the built-in tools need. The registry built from
// it is shared across users; per-user state comes from the context.
type Deps struct {
	DB           *gorm.DB
	Tokens       *tokens.Store
	Canvas       *canvas.Client
	GCal         *gcal.Client
	UpcomingDays int
}

// BuildRegistry assembles the full tool set. The set is closed: this is the
// only place tools are registered.
func BuildRegistry(d Deps) (*Registry, error) {
	r := NewRegistry()
	all := []Tool{
		MustNewTool("list_courses",
			"List the student's active Canvas courses.",
			d.listCourses),
		MustNewTool("get_upcoming_assignments_and_quizzes",
			"Get upcoming unsubmitted assignments and quizzes from Canvas. Defaults to the next few days when no range is given.",
			d.upcomingWork),
		MustNewTool("get_study_progress",
			"Get the student's current and final grade for each Canvas course.",
			d.studyProgress),
		MustNewTool("list_tasks",
			"List the student's tasks, soonest deadline first.",
			d.listTasks),
		MustNewTool("get_task",
			"Get one task by its id.",
			d.getTask),
		MustNewTool("create_task",
			"Create a task for the student. Times are RFC 3339 timestamps.",
			d.createTask),
		MustNewTool("list_calendar_events",
			"List upcoming events from the student's Google Calendar.",
			d.listCalendarEvents),
		MustNewTool("create_calendar_event",
			"Create an event in the student's Google Calendar. Times are RFC 3339 timestamps.",
			d.createCalendarEvent),
		MustNewTool("sync_calendar",
			"Copy upcoming Canvas assignments and quizzes into the student's Google Calendar as events.",
			d.syncCalendar),
	}
	for _, t := range all {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// token resolves a valid credential for the acting user, refreshing when the
// provider supports it. A missing integration comes back as a plain error so
// the dispatcher records it as a tool failure instead of aborting the turn.
func (d Deps) token(ctx context.Context, provider domain.Provider) (string, error) {
	userID := UserFrom(ctx)
	if userID == "" {
		return "", errors.New("no acting user on context")
	}
	cred, err := d.Tokens.Valid(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenNotFound) {
			return "", fmt.Errorf("%s is not connected for this user", provider)
		}
		return "", err
	}
	return cred.AccessToken, nil
}

type emptyInput struct{}

type courseView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

type listCoursesOutput struct {
	Courses []courseView `json:"courses"`
}

func (d Deps) listCourses(ctx context.Context, _ emptyInput) (listCoursesOutput, error) {
	token, err := d.token(ctx, domain.ProviderCanvas)
	if err != nil {
		return listCoursesOutput{}, err
	}
	courses, err := d.Canvas.ListCourses(ctx, token)
	if err != nil {
		return listCoursesOutput{}, err
	}
	out := listCoursesOutput{Courses: make([]courseView, 0, len(courses))}
	for _, c := range courses {
		out.Courses = append(out.Courses, courseView{ID: c.ID, Name: c.Name, Code: c.CourseCode})
	}
	return out, nil
}

type upcomingInput struct {
	DaysAhead int `json:"days_ahead,omitempty" jsonschema:"description=How many days ahead to look. Omit for the default window."`
}

func (d Deps) upcomingWork(ctx context.Context, in upcomingInput) (*canvas.UpcomingWork, error) {
	token, err := d.token(ctx, domain.ProviderCanvas)
	if err != nil {
		return nil, err
	}
	days := d.UpcomingDays
	if in.DaysAhead > 0 {
		days = in.DaysAhead
	}
	return d.Canvas.UpcomingWork(ctx, token, time.Time{}, time.Time{}, days)
}

type progressItem struct {
	CourseID     int64    `json:"course_id"`
	CourseName   string   `json:"course_name,omitempty"`
	CurrentScore *float64 `json:"current_score"`
	FinalScore   *float64 `json:"final_score"`
}

type progressOutput struct {
	Courses []progressItem `json:"courses"`
}

func (d Deps) studyProgress(ctx context.Context, _ emptyInput) (progressOutput, error) {
	token, err := d.token(ctx, domain.ProviderCanvas)
	if err != nil {
		return progressOutput{}, err
	}
	grades, err := d.Canvas.SelfEnrollments(ctx, token)
	if err != nil {
		return progressOutput{}, err
	}

	// Names come from the locally synced courses; unsynced ones keep just
	// the Canvas id.
	names := map[int64]string{}
	if userID := UserFrom(ctx); userID != "" {
		if local, err := repo.ListCourses(ctx, d.DB, userID); err == nil {
			for _, c := range local {
				names[c.CanvasID] = c.Name
			}
		}
	}

	out := progressOutput{Courses: make([]progressItem, 0, len(grades))}
	for _, g := range grades {
		out.Courses = append(out.Courses, progressItem{
			CourseID:     g.CourseID,
			CourseName:   names[g.CourseID],
			CurrentScore: g.CurrentScore,
			FinalScore:   g.FinalScore,
		})
	}
	return out, nil
}

type listTasksOutput struct {
	Tasks []domain.Task `json:"tasks"`
}

func (d Deps) listTasks(ctx context.Context, _ emptyInput) (listTasksOutput, error) {
	userID := UserFrom(ctx)
	if userID == "" {
		return listTasksOutput{}, errors.New("no acting user on context")
	}
	ts, err := repo.ListTasks(ctx, d.DB, userID)
	if err != nil {
		return listTasksOutput{}, err
	}
	return listTasksOutput{Tasks: ts}, nil
}

type getTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"required,description=The task id."`
}

func (d Deps) getTask(ctx context.Context, in getTaskInput) (*domain.Task, error) {
	userID := UserFrom(ctx)
	if userID == "" {
		return nil, errors.New("no acting user on context")
	}
	t, err := repo.GetTask(ctx, d.DB, in.TaskID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("task %s not found", in.TaskID)
		}
		return nil, err
	}
	return t, nil
}

type createTaskInput struct {
	Name        string `json:"name" jsonschema:"required,description=Short task name."`
	Description string `json:"description,omitempty" jsonschema:"description=Longer description."`
	Type        string `json:"type,omitempty" jsonschema:"description=One of assignment quiz study other. Defaults to other."`
	DueAt       string `json:"due_at,omitempty" jsonschema:"description=Deadline as an RFC 3339 timestamp."`
	StartAt     string `json:"start_at,omitempty" jsonschema:"description=Planned start as an RFC 3339 timestamp."`
	EndAt       string `json:"end_at,omitempty" jsonschema:"description=Planned end as an RFC 3339 timestamp."`
	Link        string `json:"link,omitempty" jsonschema:"description=Related URL."`
}

func (d Deps) createTask(ctx context.Context, in createTaskInput) (*domain.Task, error) {
	userID := UserFrom(ctx)
	if userID == "" {
		return nil, errors.New("no acting user on context")
	}

	taskType := domain.TaskOther
	if in.Type != "" {
		taskType = domain.TaskType(in.Type)
		if !taskType.Valid() {
			return nil, fmt.Errorf("unknown task type %q", in.Type)
		}
	}

	dueAt, err := parseTime("due_at", in.DueAt)
	if err != nil {
		return nil, err
	}
	startAt, err := parseTime("start_at", in.StartAt)
	if err != nil {
		return nil, err
	}
	endAt, err := parseTime("end_at", in.EndAt)
	if err != nil {
		return nil, err
	}

	return repo.CreateTask(ctx, d.DB, &domain.Task{
		UserID:      userID,
		Name:        in.Name,
		Description: in.Description,
		Type:        taskType,
		DueAt:       dueAt,
		StartAt:     startAt,
		EndAt:       endAt,
		Link:        in.Link,
	})
}

type listEventsInput struct {
	CalendarID string `json:"calendar_id,omitempty" jsonschema:"description=Calendar id. Defaults to primary."`
	DaysAhead  int    `json:"days_ahead,omitempty" jsonschema:"description=How many days ahead to look. Omit for the default window."`
}

type listEventsOutput struct {
	Events []gcal.Event `json:"events"`
}

func (d Deps) listCalendarEvents(ctx context.Context, in listEventsInput) (listEventsOutput, error) {
	token, err := d.token(ctx, domain.ProviderGoogle)
	if err != nil {
		return listEventsOutput{}, err
	}
	calendarID := in.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	days := d.UpcomingDays
	if in.DaysAhead > 0 {
		days = in.DaysAhead
	}
	evs, err := d.GCal.ListEvents(ctx, token, calendarID, time.Time{}, time.Time{}, days)
	if err != nil {
		return listEventsOutput{}, err
	}
	return listEventsOutput{Events: evs}, nil
}

type createEventInput struct {
	Summary     string `json:"summary" jsonschema:"required,description=Event title."`
	Description string `json:"description,omitempty" jsonschema:"description=Event body text."`
	Start       string `json:"start" jsonschema:"required,description=Start as an RFC 3339 timestamp."`
	End         string `json:"end" jsonschema:"required,description=End as an RFC 3339 timestamp."`
	CalendarID  string `json:"calendar_id,omitempty" jsonschema:"description=Calendar id. Defaults to primary."`
}

func (d Deps) createCalendarEvent(ctx context.Context, in createEventInput) (*gcal.Event, error) {
	token, err := d.token(ctx, domain.ProviderGoogle)
	if err != nil {
		return nil, err
	}
	start, err := parseTime("start", in.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseTime("end", in.End)
	if err != nil {
		return nil, err
	}
	calendarID := in.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return d.GCal.CreateEvent(ctx, token, calendarID, gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       gcal.EventTime{DateTime: start},
		End:         gcal.EventTime{DateTime: end},
	})
}

type syncCalendarInput struct {
	DaysAhead int `json:"days_ahead,omitempty" jsonschema:"description=How many days ahead to sync. Omit for the default window."`
}

type syncCalendarOutput struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Titles  []string `json:"titles,omitempty"`
}

// syncCalendar copies upcoming Canvas work into the primary Google calendar,
// one hour-long event ending at each due date. Items without a due date
// cannot be placed and are counted as skipped.
func (d Deps) syncCalendar(ctx context.Context, in syncCalendarInput) (syncCalendarOutput, error) {
	canvasToken, err := d.token(ctx, domain.ProviderCanvas)
	if err != nil {
		return syncCalendarOutput{}, err
	}
	googleToken, err := d.token(ctx, domain.ProviderGoogle)
	if err != nil {
		return syncCalendarOutput{}, err
	}

	days := d.UpcomingDays
	if in.DaysAhead > 0 {
		days = in.DaysAhead
	}
	work, err := d.Canvas.UpcomingWork(ctx, canvasToken, time.Time{}, time.Time{}, days)
	if err != nil {
		return syncCalendarOutput{}, err
	}

	var out syncCalendarOutput
	for _, item := range append(work.Assignments, work.Quizzes...) {
		if item.DueAt == nil {
			out.Skipped++
			continue
		}
		start := item.DueAt.Add(-time.Hour)
		_, err := d.GCal.CreateEvent(ctx, googleToken, "primary", gcal.Event{
			Summary:     item.Title,
			Description: "Due for " + item.CourseName + " (Canvas course " + strconv.FormatInt(item.CourseID, 10) + ")",
			Start:       gcal.EventTime{DateTime: &start},
			End:         gcal.EventTime{DateTime: item.DueAt},
		})
		if err != nil {
			return out, err
		}
		out.Created++
		out.Titles = append(out.Titles, item.Title)
	}
	return out, nil
}

func parseTime(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp: %v", field, err)
	}
	return &t, nil
}
