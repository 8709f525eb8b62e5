// Package canvas adapts the Canvas LMS REST API to the shapes the
// rest of the service consumes: active course listings, course detail with
// grades, and upcoming graded work drawn from the planner feed.
package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hai-app/go-study-backend/internal/extapi"
)

const providerName = "canvas"

// Client talks to a Canvas instance on behalf of a single request. The
// bearer token is passed per call because every user carries their own.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a Client for the given Canvas base URL (e.g.
// https://school.instructure.com).
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// Course is an active enrollment as Canvas reports it.
type Course struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	CourseCode string `json:"course_code"`
}

// CourseDetail adds grade and teacher information to a course.
type CourseDetail struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	CourseCode   string   `json:"course_code"`
	Teachers     []string `json:"teachers"`
	CurrentScore *float64 `json:"current_score"`
	FinalScore   *float64 `json:"final_score"`
}

// WorkItem is a single upcoming assignment or quiz normalized from the
// planner feed.
type WorkItem struct {
	Title      string     `json:"title"`
	CourseID   int64      `json:"course_id"`
	CourseName string     `json:"course_name"`
	DueAt      *time.Time `json:"due_at"`
	HTMLURL    string     `json:"html_url"`
}

// UpcomingWork groups planner items by kind.
type UpcomingWork struct {
	Assignments []WorkItem `json:"assignments"`
	Quizzes     []WorkItem `json:"quizzes"`
}

// ListCourses returns the user's active student enrollments. It is also the
// connect-time validation call: a bad token or base URL surfaces here as an
// *extapi.Error before anything is persisted.
func (c *Client) ListCourses(ctx context.Context, token string) ([]Course, error) {
	q := url.Values{}
	q.Set("enrollment_type", "student")
	q.Set("enrollment_state", "active")
	q.Set("per_page", "100")

	var out []Course
	if err := c.getJSON(ctx, token, "/api/v1/courses", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCourse returns one course with teacher names and the user's current
// grade pulled from their own enrollment.
func (c *Client) GetCourse(ctx context.Context, token string, courseID int64) (*CourseDetail, error) {
	q := url.Values{}
	q.Add("include[]", "teachers")

	var raw struct {
		ID         int64  `json:"id"`
		Name       string `json:"name"`
		CourseCode string `json:"course_code"`
		Teachers   []struct {
			DisplayName string `json:"display_name"`
		} `json:"teachers"`
	}
	path := "/api/v1/courses/" + strconv.FormatInt(courseID, 10)
	if err := c.getJSON(ctx, token, path, q, &raw); err != nil {
		return nil, err
	}

	detail := &CourseDetail{
		ID:         raw.ID,
		Name:       raw.Name,
		CourseCode: raw.CourseCode,
	}
	for _, t := range raw.Teachers {
		detail.Teachers = append(detail.Teachers, t.DisplayName)
	}

	current, final, err := c.courseGrades(ctx, token, courseID)
	if err != nil {
		return nil, err
	}
	detail.CurrentScore = current
	detail.FinalScore = final
	return detail, nil
}

// EnrollmentGrade is the user's standing in one course.
type EnrollmentGrade struct {
	CourseID     int64    `json:"course_id"`
	CurrentScore *float64 `json:"current_score"`
	FinalScore   *float64 `json:"final_score"`
}

// SelfEnrollments returns grade standing for every active enrollment in a
// single call.
func (c *Client) SelfEnrollments(ctx context.Context, token string) ([]EnrollmentGrade, error) {
	q := url.Values{}
	q.Set("state", "active")
	q.Set("per_page", "100")

	var raw []struct {
		CourseID int64 `json:"course_id"`
		Grades   struct {
			CurrentScore *float64 `json:"current_score"`
			FinalScore   *float64 `json:"final_score"`
		} `json:"grades"`
	}
	if err := c.getJSON(ctx, token, "/api/v1/users/self/enrollments", q, &raw); err != nil {
		return nil, err
	}
	out := make([]EnrollmentGrade, 0, len(raw))
	for _, e := range raw {
		out = append(out, EnrollmentGrade{
			CourseID:     e.CourseID,
			CurrentScore: e.Grades.CurrentScore,
			FinalScore:   e.Grades.FinalScore,
		})
	}
	return out, nil
}

func (c *Client) courseGrades(ctx context.Context, token string, courseID int64) (current, final *float64, err error) {
	q := url.Values{}
	q.Set("user_id", "self")

	var enrollments []struct {
		Grades struct {
			CurrentScore *float64 `json:"current_score"`
			FinalScore   *float64 `json:"final_score"`
		} `json:"grades"`
	}
	path := "/api/v1/courses/" + strconv.FormatInt(courseID, 10) + "/enrollments"
	if err := c.getJSON(ctx, token, path, q, &enrollments); err != nil {
		return nil, nil, err
	}
	if len(enrollments) == 0 {
		return nil, nil, nil
	}
	g := enrollments[0].Grades
	return g.CurrentScore, g.FinalScore, nil
}

// plannerSubmissions tolerates the two shapes Canvas emits: an object with
// per-state booleans, or a bare false when the item has no submission.
type plannerSubmissions struct {
	Submitted bool `json:"submitted"`
}

func (s *plannerSubmissions) UnmarshalJSON(data []byte) error {
	if string(data) == "false" || string(data) == "null" {
		*s = plannerSubmissions{}
		return nil
	}
	type alias plannerSubmissions
	return json.Unmarshal(data, (*alias)(s))
}

type plannerItem struct {
	PlannableType string `json:"plannable_type"`
	CourseID      int64  `json:"course_id"`
	ContextName   string `json:"context_name"`
	HTMLURL       string `json:"html_url"`
	Plannable     struct {
		Title string     `json:"title"`
		DueAt *time.Time `json:"due_at"`
	} `json:"plannable"`
	Submissions plannerSubmissions `json:"submissions"`
}

// UpcomingWork fetches planner items in [start, end) and normalizes them
// into assignments and quizzes. A zero start defaults to now and a zero end
// to start plus defaultDays. Items already submitted are excluded, and
// plannable types other than assignment and quiz are dropped with a warning
// so new Canvas item kinds never break the feed.
func (c *Client) UpcomingWork(ctx context.Context, token string, start, end time.Time, defaultDays int) (*UpcomingWork, error) {
	now := time.Now().UTC()
	if start.IsZero() {
		start = now
	}
	if end.IsZero() {
		end = start.AddDate(0, 0, defaultDays)
	}

	q := url.Values{}
	q.Set("start_date", start.UTC().Format(time.RFC3339))
	q.Set("end_date", end.UTC().Format(time.RFC3339))
	q.Set("per_page", "100")

	var items []plannerItem
	if err := c.getJSON(ctx, token, "/api/v1/planner/items", q, &items); err != nil {
		return nil, err
	}

	work := &UpcomingWork{
		Assignments: []WorkItem{},
		Quizzes:     []WorkItem{},
	}
	for _, it := range items {
		if it.Submissions.Submitted {
			continue
		}
		w := WorkItem{
			Title:      it.Plannable.Title,
			CourseID:   it.CourseID,
			CourseName: it.ContextName,
			DueAt:      it.Plannable.DueAt,
			HTMLURL:    it.HTMLURL,
		}
		switch it.PlannableType {
		case "assignment":
			work.Assignments = append(work.Assignments, w)
		case "quiz":
			work.Quizzes = append(work.Quizzes, w)
		default:
			log.Warn().
				Str("plannable_type", it.PlannableType).
				Str("title", it.Plannable.Title).
				Msg("canvas: dropping unrecognized planner item")
		}
	}
	return work, nil
}

func (c *Client) getJSON(ctx context.Context, token, path string, q url.Values, out any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("canvas: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("canvas: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return extapi.FromResponse(providerName, resp)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(out); err != nil {
		return fmt.Errorf("canvas: decode %s: %w", path, err)
	}
	return nil
}
