package plenariosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Plenario HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: bearerToken,
		Timeout:     10 * time.Second,
	}
}

// Session represents the API session model (partial).
type Session struct {
	ID          string    `json:"id"`
	Number      int       `json:"number"`
	Year        int       `json:"year"`
	Type        string    `json:"type"`
	TermID      string    `json:"term_id,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	Finalized   bool      `json:"finalized"`
}

type Agenda struct {
	ID               string  `json:"id"`
	SessionID        string  `json:"session_id"`
	Status           string  `json:"status"`
	CurrentItemID    *string `json:"current_item_id,omitempty"`
	TotalRealSeconds int64   `json:"total_real_seconds"`
}

// Item is an agenda item.
type Item struct {
	ID                 string     `json:"id"`
	Section            string     `json:"section"`
	Rank               int        `json:"rank"`
	Title              string     `json:"title"`
	MatterID           *string    `json:"matter_id,omitempty"`
	ActionType         string     `json:"action_type"`
	Status             string     `json:"status"`
	AccumulatedSeconds int64      `json:"accumulated_seconds"`
	RealTimeSeconds    *int64     `json:"real_time_seconds,omitempty"`
	CurrentRound       int        `json:"current_round"`
	FinalRounds        int        `json:"final_rounds"`
	Interstitial       bool       `json:"interstitial"`
	HoldDueAt          *time.Time `json:"hold_due_at,omitempty"`
}

type SessionAgenda struct {
	Session Session `json:"session"`
	Agenda  Agenda  `json:"agenda"`
	Items   []Item  `json:"items"`
}

type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	TermID string `json:"term_id"`
	Active bool   `json:"active"`
}

// Matter is a bill or other proposition.
type Matter struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Number      int     `json:"number"`
	Year        int     `json:"year"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	VoteOutcome *string `json:"vote_outcome,omitempty"`
}

type Attendance struct {
	SessionID string `json:"session_id"`
	MemberID  string `json:"member_id"`
	Present   bool   `json:"present"`
}

type Ballot struct {
	ID       string `json:"id"`
	MatterID string `json:"matter_id"`
	MemberID string `json:"member_id"`
	Round    int    `json:"round"`
	Value    string `json:"value"`
}

// TallyResult uses the chamber's vocabulary for its keys.
type TallyResult struct {
	Sim       int    `json:"sim"`
	Nao       int    `json:"nao"`
	Abstencao int    `json:"abstencao"`
	Total     int    `json:"total"`
	Resultado string `json:"resultado"`
	Detalhe   string `json:"detalhe"`
}

type Hold struct {
	Item    Item      `json:"item"`
	DueAt   time.Time `json:"due_at"`
	Overdue bool      `json:"overdue"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor *int64  `json:"next_cursor,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Code returns the machine-readable error code from the response envelope.
func (e *APIError) Code() string {
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &env) != nil {
		return ""
	}
	return env.Error.Code
}

// CreateSession schedules a session.
func (c *Client) CreateSession(ctx context.Context, number, year int, scheduledAt time.Time, termID string) (SessionAgenda, error) {
	body := map[string]any{
		"number":       number,
		"year":         year,
		"scheduled_at": scheduledAt.UTC().Format(time.RFC3339),
	}
	if termID != "" {
		body["term_id"] = termID
	}
	var resp SessionAgenda
	err := c.do(ctx, http.MethodPost, "sessions", body, &resp)
	return resp, err
}

// GetSession accepts a session ID or a session-{number}-{year} slug.
func (c *Client) GetSession(ctx context.Context, ref string) (SessionAgenda, error) {
	var resp SessionAgenda
	err := c.do(ctx, http.MethodGet, sessionPath(ref, ""), nil, &resp)
	return resp, err
}

func (c *Client) ApproveAgenda(ctx context.Context, ref string, force bool) (Agenda, error) {
	var resp Agenda
	err := c.do(ctx, http.MethodPost, sessionPath(ref, "agenda/approve"), map[string]any{"force": force}, &resp)
	return resp, err
}

func (c *Client) StartSession(ctx context.Context, ref string) (SessionAgenda, error) {
	var resp SessionAgenda
	err := c.do(ctx, http.MethodPost, sessionPath(ref, "start"), nil, &resp)
	return resp, err
}

func (c *Client) FinalizeSession(ctx context.Context, ref string) (SessionAgenda, error) {
	var resp SessionAgenda
	err := c.do(ctx, http.MethodPost, sessionPath(ref, "finalize"), nil, &resp)
	return resp, err
}

// AddItem appends an item; matterID may be empty for items without a matter.
func (c *Client) AddItem(ctx context.Context, ref, section, title, matterID, actionType string) (Item, error) {
	body := map[string]any{"section": section}
	if title != "" {
		body["title"] = title
	}
	if matterID != "" {
		body["matter_id"] = matterID
	}
	if actionType != "" {
		body["action_type"] = actionType
	}
	var resp Item
	err := c.do(ctx, http.MethodPost, sessionPath(ref, "items"), body, &resp)
	return resp, err
}

// ItemAction posts one of start, pause, resume or vote on an item.
func (c *Client) ItemAction(ctx context.Context, ref, itemID, action string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, sessionPath(ref, "items/"+url.PathEscape(itemID)+"/"+action), nil, &resp)
	return resp, err
}

func (c *Client) FinalizeItem(ctx context.Context, ref, itemID, outcome, notes string) (Item, error) {
	body := map[string]any{"outcome": outcome}
	if notes != "" {
		body["notes"] = notes
	}
	var resp Item
	err := c.do(ctx, http.MethodPost, sessionPath(ref, "items/"+url.PathEscape(itemID)+"/finalize"), body, &resp)
	return resp, err
}

func (c *Client) RequestHold(ctx context.Context, ref, itemID, memberID string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, sessionPath(ref, "items/"+url.PathEscape(itemID)+"/hold"), map[string]any{"member_id": memberID}, &resp)
	return resp, err
}

func (c *Client) ListHolds(ctx context.Context, ref string) ([]Hold, error) {
	var resp struct {
		Items []Hold `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, sessionPath(ref, "holds"), nil, &resp)
	return resp.Items, err
}

func (c *Client) RegisterMember(ctx context.Context, name, termID string) (Member, error) {
	var resp Member
	err := c.do(ctx, http.MethodPost, "members", map[string]any{"name": name, "term_id": termID}, &resp)
	return resp, err
}

func (c *Client) CreateMatter(ctx context.Context, matterType string, number, year int, title string) (Matter, error) {
	body := map[string]any{
		"type":   matterType,
		"number": number,
		"year":   year,
		"title":  title,
	}
	var resp Matter
	err := c.do(ctx, http.MethodPost, "matters", body, &resp)
	return resp, err
}

func (c *Client) GetMatter(ctx context.Context, id string) (Matter, error) {
	var resp Matter
	err := c.do(ctx, http.MethodGet, "matters/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) MarkAttendance(ctx context.Context, ref, memberID string, present bool) (Attendance, error) {
	var resp Attendance
	err := c.do(ctx, http.MethodPost, sessionPath(ref, "attendance"), map[string]any{"member_id": memberID, "present": present}, &resp)
	return resp, err
}

func (c *Client) CastBallot(ctx context.Context, ref, matterID, memberID, value string) (Ballot, error) {
	body := map[string]any{
		"matter_id": matterID,
		"member_id": memberID,
		"value":     value,
	}
	var resp Ballot
	err := c.do(ctx, http.MethodPost, sessionPath(ref, "ballots"), body, &resp)
	return resp, err
}

// Tally counts the ballots of the matter's current round.
func (c *Client) Tally(ctx context.Context, ref, matterID string) (TallyResult, error) {
	var resp struct {
		Result TallyResult `json:"result"`
	}
	err := c.do(ctx, http.MethodGet, sessionPath(ref, "matters/"+url.PathEscape(matterID)+"/tally"), nil, &resp)
	return resp.Result, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, sessionRef string, limit int, cursor int64) (PaginatedEvents, error) {
	q := url.Values{}
	if sessionRef != "" {
		q.Set("session", sessionRef)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor > 0 {
		q.Set("cursor", fmt.Sprintf("%d", cursor))
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func sessionPath(ref, p string) string {
	out := "sessions/" + url.PathEscape(ref)
	if p != "" {
		out += "/" + strings.TrimLeft(p, "/")
	}
	return out
}

func (c *Client) base() string {
	basePath := strings.Trim(c.BasePath, "/")
	if basePath == "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + basePath
}
