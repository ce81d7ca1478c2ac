// Package garmin is the session adapter for the unofficial Garmin Connect API.
// All loosely-shaped JSON from the remote service is decoded exactly once,
// here; everything downstream works with typed values and opaque payload
// blobs.
package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/coachsync/internal/observability"
)

const defaultTimeout = 30 * time.Second

// WorkoutSummary is the typed projection of one remote workout. Raw preserves
// the verbatim remote representation for later re-upload.
type WorkoutSummary struct {
	GarminWorkoutID string
	Name            string
	SportKey        string
	Description     string
	Raw             json.RawMessage
}

// Client talks to the Garmin Connect API. It holds no per-user state; Login
// produces a Session bound to one account.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures optional Client behaviour.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, primarily for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient constructs a Client. timeout bounds every remote call; on expiry
// the call is classified as a connectivity failure.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session is an authenticated handle on one Garmin Connect account. A session
// can go stale mid-use; every operation independently reports the same fault
// taxonomy as Login.
type Session struct {
	client *Client
	token  string
}

// Login authenticates against Garmin Connect. The returned error, when
// non-nil, is always a *Fault.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	const op = "login"

	body, err := json.Marshal(map[string]string{"username": email, "password": password})
	if err != nil {
		return nil, &Fault{Kind: FaultUnexpected, Op: op, Reason: "encode login payload", err: err}
	}

	payload, fault := c.do(ctx, op, http.MethodPost, "/signin", "", body)
	if fault != nil {
		return nil, fault
	}

	fields, err := decodeObject(payload)
	if err != nil {
		return nil, &Fault{Kind: FaultUnexpected, Op: op, Reason: "malformed login response", err: err}
	}
	token := stringField(fields, "token")
	if token == "" {
		return nil, &Fault{Kind: FaultAuth, Op: op, Reason: "login response carried no session token"}
	}

	return &Session{client: c, token: token}, nil
}

// FetchProfileName returns the display name of the logged-in account. Used as
// a cheap connectivity probe when connecting or testing credentials.
func (s *Session) FetchProfileName(ctx context.Context) (string, error) {
	const op = "fetch_profile"

	payload, fault := s.client.do(ctx, op, http.MethodGet, "/userprofile-service/socialProfile", s.token, nil)
	if fault != nil {
		return "", fault
	}

	fields, err := decodeObject(payload)
	if err != nil {
		return "", &Fault{Kind: FaultUnexpected, Op: op, Reason: "malformed profile response", err: err}
	}
	if name := stringField(fields, "displayName"); name != "" {
		return name, nil
	}
	return stringField(fields, "fullName"), nil
}

// ListWorkouts fetches all workouts stored in the account. Sport-key
// extraction tolerates both shapes Garmin has been observed to return for
// sportType: a nested object with sportTypeKey, or a bare string.
func (s *Session) ListWorkouts(ctx context.Context) ([]WorkoutSummary, error) {
	const op = "list_workouts"

	payload, fault := s.client.do(ctx, op, http.MethodGet, "/workout-service/workouts", s.token, nil)
	if fault != nil {
		return nil, fault
	}

	var items []map[string]any
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, &Fault{Kind: FaultUnexpected, Op: op, Reason: "malformed workout list", err: err}
	}

	summaries := make([]WorkoutSummary, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, &Fault{Kind: FaultUnexpected, Op: op, Reason: "reserialize workout", err: err}
		}

		name := stringField(item, "workoutName")
		if name == "" {
			name = "Unnamed Workout"
		}

		summaries = append(summaries, WorkoutSummary{
			GarminWorkoutID: stringField(item, "workoutId"),
			Name:            name,
			SportKey:        sportKey(item),
			Description:     stringField(item, "description"),
			Raw:             raw,
		})
	}
	return summaries, nil
}

// UploadWorkout pushes a workout payload into the account and returns the
// external id Garmin assigned to the new workout.
func (s *Session) UploadWorkout(ctx context.Context, payload []byte) (string, error) {
	const op = "upload_workout"

	respPayload, fault := s.client.do(ctx, op, http.MethodPost, "/workout-service/workout", s.token, payload)
	if fault != nil {
		return "", fault
	}

	fields, err := decodeObject(respPayload)
	if err != nil {
		return "", &Fault{Kind: FaultUnexpected, Op: op, Reason: "malformed upload response", err: err}
	}

	newID := stringField(fields, "workoutId")
	if newID == "" {
		return "", &Fault{Kind: FaultUnexpected, Op: op, Reason: "upload response carried no workoutId"}
	}
	return newID, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body []byte) ([]byte, *Fault) {
	start := time.Now()
	payload, fault := c.roundTrip(ctx, op, method, path, token, body)
	outcome := "ok"
	if fault != nil {
		outcome = string(fault.Kind)
	}
	observability.ObserveGarminRequest(op, outcome, time.Since(start))
	return payload, fault
}

func (c *Client) roundTrip(ctx context.Context, op, method, path, token string, body []byte) ([]byte, *Fault) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &Fault{Kind: FaultUnexpected, Op: op, Reason: "build request", err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(op, resp.StatusCode)
	}
	return payload, nil
}

func decodeObject(payload []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// stringField renders a loosely-typed JSON field as a string. Garmin returns
// workout ids as numbers in some responses and strings in others.
func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func sportKey(item map[string]any) string {
	switch v := item["sportType"].(type) {
	case map[string]any:
		return stringField(v, "sportTypeKey")
	case string:
		return v
	default:
		return ""
	}
}
