// Package gcal adapts the Google Calendar v3 REST API. Every call takes a
// bearer token from the token store; refresh is the store's concern, not
// this package's.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hai-app/go-study-backend/internal/extapi"
)

const providerName = "google"

// Client calls the Google Calendar API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a Client for the given API base, normally
// https://www.googleapis.com/calendar/v3.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// Calendar is an entry from the user's calendar list.
type Calendar struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Primary bool   `json:"primary"`
}

// EventTime carries either a timed instant or an all-day date, matching the
// wire representation so all-day events round-trip unchanged.
type EventTime struct {
	DateTime *time.Time `json:"dateTime,omitempty"`
	Date     string     `json:"date,omitempty"`
	TimeZone string     `json:"timeZone,omitempty"`
}

// Reminder is a single event reminder override.
type Reminder struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

// Event is a calendar event in the subset of fields the service uses.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
	HTMLLink    string    `json:"htmlLink,omitempty"`
	Reminders   *struct {
		UseDefault bool       `json:"useDefault"`
		Overrides  []Reminder `json:"overrides,omitempty"`
	} `json:"reminders,omitempty"`
}

// ListCalendars returns the user's calendar list.
func (c *Client) ListCalendars(ctx context.Context, token string) ([]Calendar, error) {
	var out struct {
		Items []Calendar `json:"items"`
	}
	if err := c.do(ctx, token, http.MethodGet, "/users/me/calendarList", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ListEvents returns single (expanded) events in [timeMin, timeMax) ordered
// by start time. A zero timeMin defaults to now and a zero timeMax to
// timeMin plus defaultDays.
func (c *Client) ListEvents(ctx context.Context, token, calendarID string, timeMin, timeMax time.Time, defaultDays int) ([]Event, error) {
	if timeMin.IsZero() {
		timeMin = time.Now().UTC()
	}
	if timeMax.IsZero() {
		timeMax = timeMin.AddDate(0, 0, defaultDays)
	}

	q := url.Values{}
	q.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
	q.Set("timeMax", timeMax.UTC().Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", "250")

	var out struct {
		Items []Event `json:"items"`
	}
	path := "/calendars/" + url.PathEscape(calendarID) + "/events"
	if err := c.do(ctx, token, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateEvent inserts an event and returns the created resource, including
// the server-assigned ID and link.
func (c *Client) CreateEvent(ctx context.Context, token, calendarID string, ev Event) (*Event, error) {
	var out Event
	path := "/calendars/" + url.PathEscape(calendarID) + "/events"
	if err := c.do(ctx, token, http.MethodPost, path, nil, ev, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetEventReminder replaces the event's reminders with a single popup
// override firing the given number of minutes before start.
func (c *Client) SetEventReminder(ctx context.Context, token, calendarID, eventID string, minutes int) (*Event, error) {
	patch := map[string]any{
		"reminders": map[string]any{
			"useDefault": false,
			"overrides":  []Reminder{{Method: "popup", Minutes: minutes}},
		},
	}
	var out Event
	path := "/calendars/" + url.PathEscape(calendarID) + "/events/" + url.PathEscape(eventID)
	if err := c.do(ctx, token, http.MethodPatch, path, nil, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, token, method, path string, q url.Values, body, out any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gcal: encode body: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("gcal: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("gcal: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return extapi.FromResponse(providerName, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(out); err != nil {
		return fmt.Errorf("gcal: decode %s: %w", path, err)
	}
	return nil
}
