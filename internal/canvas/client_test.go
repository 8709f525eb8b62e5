package canvas

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hai-app/go-study-backend/internal/extapi"
)

func TestListCourses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/courses" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("enrollment_type") != "student" || q.Get("enrollment_state") != "active" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":101,"name":"Operating Systems","course_code":"CS350"},{"id":102,"name":"Databases","course_code":"CS348"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	courses, err := c.ListCourses(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("list courses: %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("got %d courses, want 2", len(courses))
	}
	if courses[0].ID != 101 || courses[0].CourseCode != "CS350" {
		t.Fatalf("first course = %+v", courses[0])
	}
}

func TestListCourses_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"message":"Invalid access token."}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.ListCourses(context.Background(), "bad")
	var apiErr *extapi.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *extapi.Error, got %T: %v", err, err)
	}
	if apiErr.Provider != "canvas" || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestGetCourse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/courses/101":
			if r.URL.Query().Get("include[]") != "teachers" {
				t.Errorf("include = %v", r.URL.Query())
			}
			w.Write([]byte(`{"id":101,"name":"Operating Systems","course_code":"CS350","teachers":[{"display_name":"A. Turing"},{"display_name":"G. Hopper"}]}`))
		case "/api/v1/courses/101/enrollments":
			if r.URL.Query().Get("user_id") != "self" {
				t.Errorf("user_id = %q", r.URL.Query().Get("user_id"))
			}
			w.Write([]byte(`[{"grades":{"current_score":87.5,"final_score":85.0}}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	detail, err := c.GetCourse(context.Background(), "tok-1", 101)
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if len(detail.Teachers) != 2 || detail.Teachers[0] != "A. Turing" {
		t.Fatalf("teachers = %v", detail.Teachers)
	}
	if detail.CurrentScore == nil || *detail.CurrentScore != 87.5 {
		t.Fatalf("current score = %v", detail.CurrentScore)
	}
	if detail.FinalScore == nil || *detail.FinalScore != 85.0 {
		t.Fatalf("final score = %v", detail.FinalScore)
	}
}

func TestSelfEnrollments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/users/self/enrollments" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"course_id":101,"grades":{"current_score":90.0}},{"course_id":102,"grades":{}}]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	grades, err := c.SelfEnrollments(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("self enrollments: %v", err)
	}
	if len(grades) != 2 {
		t.Fatalf("got %d enrollments, want 2", len(grades))
	}
	if grades[0].CurrentScore == nil || *grades[0].CurrentScore != 90.0 {
		t.Fatalf("first grade = %+v", grades[0])
	}
	if grades[1].CurrentScore != nil {
		t.Fatalf("second grade should have no score, got %v", *grades[1].CurrentScore)
	}
}

func TestUpcomingWork(t *testing.T) {
	due := time.Date(2026, 9, 4, 23, 59, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/planner/items" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("start_date") == "" || q.Get("end_date") == "" {
			t.Errorf("planner window missing: %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"plannable_type":"assignment","course_id":101,"context_name":"Operating Systems","html_url":"/a1","plannable":{"title":"A1","due_at":"2026-09-04T23:59:00Z"},"submissions":{"submitted":false}},
			{"plannable_type":"assignment","course_id":101,"context_name":"Operating Systems","html_url":"/a0","plannable":{"title":"A0"},"submissions":{"submitted":true}},
			{"plannable_type":"quiz","course_id":102,"context_name":"Databases","html_url":"/q1","plannable":{"title":"Quiz 1"},"submissions":false},
			{"plannable_type":"announcement","course_id":102,"context_name":"Databases","html_url":"/ann","plannable":{"title":"Welcome"},"submissions":null}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	work, err := c.UpcomingWork(context.Background(), "tok-1", time.Time{}, time.Time{}, 7)
	if err != nil {
		t.Fatalf("upcoming work: %v", err)
	}
	if len(work.Assignments) != 1 {
		t.Fatalf("assignments = %+v, want the submitted one excluded", work.Assignments)
	}
	a := work.Assignments[0]
	if a.Title != "A1" || a.CourseName != "Operating Systems" {
		t.Fatalf("assignment = %+v", a)
	}
	if a.DueAt == nil || !a.DueAt.Equal(due) {
		t.Fatalf("due = %v, want %v", a.DueAt, due)
	}
	if len(work.Quizzes) != 1 || work.Quizzes[0].Title != "Quiz 1" {
		t.Fatalf("quizzes = %+v", work.Quizzes)
	}
}

func TestUpcomingWork_WindowDefaults(t *testing.T) {
	var gotStart, gotEnd string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start_date")
		gotEnd = r.URL.Query().Get("end_date")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if _, err := c.UpcomingWork(context.Background(), "tok-1", start, time.Time{}, 14); err != nil {
		t.Fatalf("upcoming work: %v", err)
	}
	if gotStart != "2026-09-01T00:00:00Z" {
		t.Fatalf("start_date = %q", gotStart)
	}
	if gotEnd != "2026-09-15T00:00:00Z" {
		t.Fatalf("end_date = %q, want start plus 14 days", gotEnd)
	}
}
