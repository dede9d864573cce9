package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"plenario/internal/config"
	"plenario/internal/db"
	"plenario/internal/domain"
	"plenario/internal/engine"
	"plenario/internal/migrate"
	plenariosdk "plenario/sdk/go"
)

const (
	testSecret = "test-secret"
	testTerm   = "2025-2028"
)

// testNow is a Friday; sessions are scheduled three days later.
var testNow = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return testNow }
	if err := e.Repo.UpsertChamberConfig(context.Background(), cfg, testNow); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return e
}

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	e := newTestEngine(t, config.Default())
	if auth.JWTSecret == "" {
		auth.JWTSecret = testSecret
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := SignToken(testSecret, subject, "", "", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error body %s: %v", string(data), err)
	}
	return env
}

func TestPlenaryOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	ctx := context.Background()
	sdk := plenariosdk.New(srv.URL, token(t, "secretaria"))

	var members []plenariosdk.Member
	for _, name := range []string{"Ana", "Bruno", "Carla"} {
		m, err := sdk.RegisterMember(ctx, name, testTerm)
		if err != nil {
			t.Fatalf("register member: %v", err)
		}
		members = append(members, m)
	}
	matter, err := sdk.CreateMatter(ctx, "PL", 12, 2024, "Dispoe sobre a arborizacao urbana")
	if err != nil {
		t.Fatalf("create matter: %v", err)
	}
	view, err := sdk.CreateSession(ctx, 1, 2024, testNow.Add(72*time.Hour), testTerm)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if view.Agenda.Status != "draft" {
		t.Fatalf("expected draft agenda, got %s", view.Agenda.Status)
	}
	const ref = "session-1-2024"
	item, err := sdk.AddItem(ctx, ref, "ordem_do_dia", "", matter.ID, "voting")
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if item.Title != matter.Title {
		t.Fatalf("item should take the matter title, got %q", item.Title)
	}
	if _, err := sdk.ApproveAgenda(ctx, ref, false); err != nil {
		t.Fatalf("approve agenda: %v", err)
	}
	for _, m := range members {
		if _, err := sdk.MarkAttendance(ctx, ref, m.ID, true); err != nil {
			t.Fatalf("attendance: %v", err)
		}
	}
	started, err := sdk.StartSession(ctx, ref)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if started.Session.ID != view.Session.ID || started.Agenda.CurrentItemID == nil || *started.Agenda.CurrentItemID != item.ID {
		t.Fatalf("unexpected started session %+v", started)
	}
	if _, err := sdk.ItemAction(ctx, ref, item.ID, "start"); err != nil {
		t.Fatalf("start item: %v", err)
	}
	voting, err := sdk.ItemAction(ctx, ref, item.ID, "vote")
	if err != nil || voting.Status != "in_voting" {
		t.Fatalf("open voting: %+v %v", voting, err)
	}
	for i, m := range members {
		value := "yes"
		if i == 2 {
			value = "no"
		}
		if _, err := sdk.CastBallot(ctx, ref, matter.ID, m.ID, value); err != nil {
			t.Fatalf("cast ballot: %v", err)
		}
	}
	res, err := sdk.Tally(ctx, ref, matter.ID)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if res.Sim != 2 || res.Nao != 1 || res.Abstencao != 0 || res.Total != 3 || res.Resultado != "APROVADA" {
		t.Fatalf("unexpected tally %+v", res)
	}
	done, err := sdk.FinalizeItem(ctx, ref, item.ID, "approved", "")
	if err != nil || done.Status != "approved" {
		t.Fatalf("finalize item: %+v %v", done, err)
	}
	got, err := sdk.GetMatter(ctx, matter.ID)
	if err != nil || got.Status != "approved" {
		t.Fatalf("matter should be approved: %+v %v", got, err)
	}

	page, err := sdk.EventsPage(ctx, ref, 3, 0)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) != 3 || page.NextCursor == nil {
		t.Fatalf("expected a full first page with a cursor, got %d items", len(page.Items))
	}
	if page.Items[0].ActorID != "secretaria" {
		t.Fatalf("events should record the token subject, got %q", page.Items[0].ActorID)
	}
	next, err := sdk.EventsPage(ctx, ref, 3, *page.NextCursor)
	if err != nil || len(next.Items) == 0 || next.Items[0].ID >= page.Items[2].ID {
		t.Fatalf("second page should continue below the cursor: %+v %v", next, err)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	auth := map[string]string{"Authorization": "Bearer " + token(t, "secretaria")}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sessions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Error.Code != "unauthorized" {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sessions", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Error.Code != "invalid_credentials" {
		t.Fatalf("expected 401 for a bad token, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sessions/session-9-2024", nil, auth)
	if res.StatusCode != http.StatusNotFound || decodeError(t, data).Error.Code != "not_found" {
		t.Fatalf("expected 404 for unknown slug, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", map[string]any{
		"number":       4,
		"year":         2024,
		"scheduled_at": testNow.Add(72 * time.Hour).Format(time.RFC3339),
	}, auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create session status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions/session-4-2024/agenda/approve", nil, auth)
	env := decodeError(t, data)
	if res.StatusCode != http.StatusUnprocessableEntity || env.Error.Code != "validation_failed" || env.Error.Message != "agenda has no items" {
		t.Fatalf("expected 422 for an empty agenda, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions/session-4-2024/items", map[string]any{
		"section":   "ordem_do_dia",
		"matter_id": "ghost",
	}, auth)
	env = decodeError(t, data)
	if res.StatusCode != http.StatusNotFound || env.Error.Details["kind"] != "matter" || env.Error.Details["id"] != "ghost" {
		t.Fatalf("expected 404 naming the matter, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions/session-4-2024/items/x/finalize", map[string]any{
		"outcome": "maybe",
	}, auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown outcome, got %d: %s", res.StatusCode, string(data))
	}
}

func TestQuorumShortfallDetails(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	ctx := context.Background()
	sdk := plenariosdk.New(srv.URL, token(t, "secretaria"))
	var members []plenariosdk.Member
	for _, name := range []string{"Ana", "Bruno", "Carla", "Davi", "Elis"} {
		m, err := sdk.RegisterMember(ctx, name, testTerm)
		if err != nil {
			t.Fatal(err)
		}
		members = append(members, m)
	}
	matter, _ := sdk.CreateMatter(ctx, "PL", 3, 2024, "Denomina logradouro")
	if _, err := sdk.CreateSession(ctx, 2, 2024, testNow.Add(72*time.Hour), testTerm); err != nil {
		t.Fatal(err)
	}
	item, err := sdk.AddItem(ctx, "session-2-2024", "ordem_do_dia", "", matter.ID, "voting")
	if err != nil {
		t.Fatal(err)
	}
	sdk.ApproveAgenda(ctx, "session-2-2024", false)
	sdk.MarkAttendance(ctx, "session-2-2024", members[0].ID, true)
	sdk.MarkAttendance(ctx, "session-2-2024", members[1].ID, true)
	if _, err := sdk.StartSession(ctx, "session-2-2024"); err != nil {
		t.Fatal(err)
	}
	sdk.ItemAction(ctx, "session-2-2024", item.ID, "start")

	_, err = sdk.ItemAction(ctx, "session-2-2024", item.ID, "vote")
	var apiErr *plenariosdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Code() != "validation_failed" {
		t.Fatalf("expected quorum validation error, got %v", err)
	}
	env := decodeError(t, []byte(apiErr.Body))
	// absolute majority of five is three
	if env.Error.Details["required"] != float64(3) || env.Error.Details["present"] != float64(2) || env.Error.Details["shortfall"] != float64(1) {
		t.Fatalf("unexpected quorum details %+v", env.Error.Details)
	}

	_, err = sdk.RequestHold(ctx, "session-2-2024", item.ID, "ghost")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown member, got %v", err)
	}
	held, err := sdk.RequestHold(ctx, "session-2-2024", item.ID, members[3].ID)
	if err != nil || held.Status != "under_review" {
		t.Fatalf("request hold: %+v %v", held, err)
	}
	holds, err := sdk.ListHolds(ctx, "session-2-2024")
	if err != nil || len(holds) != 1 || holds[0].Overdue {
		t.Fatalf("expected one pending hold, got %+v %v", holds, err)
	}
}

func TestLegacyActorHeader(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowLegacyActorHeader: true})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/members", map[string]any{
		"name":    "Ana",
		"term_id": testTerm,
	}, map[string]string{"X-Actor-Id": "mesa"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register with actor header status %d: %s", res.StatusCode, string(data))
	}
	var m domain.Member
	if err := json.Unmarshal(data, &m); err != nil || !m.Active {
		t.Fatalf("unexpected member %s: %v", string(data), err)
	}

	closed := newTestServer(t, AuthConfig{})
	res, _ = doJSON(t, closed.Client(), http.MethodGet, closed.URL+"/v0/members", nil, map[string]string{"X-Actor-Id": "mesa"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("actor header must be refused unless enabled, got %d", res.StatusCode)
	}
}

func TestTokenAudience(t *testing.T) {
	srv := newTestServer(t, AuthConfig{Issuer: "plenario", Audience: "camara"})
	url := srv.URL + "/v0/sessions"
	wrong, _ := SignToken(testSecret, "mesa", "plenario", "outra", time.Hour)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, url, nil, map[string]string{"Authorization": "Bearer " + wrong})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("token for another audience must be refused, got %d", res.StatusCode)
	}
	right, _ := SignToken(testSecret, "mesa", "plenario", "camara", time.Hour)
	res, data := doJSON(t, srv.Client(), http.MethodGet, url, nil, map[string]string{"Authorization": "Bearer " + right})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list sessions status %d: %s", res.StatusCode, string(data))
	}
	if _, err := SignToken("", "mesa", "", "", 0); err == nil {
		t.Fatalf("signing without a secret must fail")
	}
}

func TestWebhookDelivery(t *testing.T) {
	var (
		mu       sync.Mutex
		received []webhookEvent
		headers  []http.Header
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("X-Plenario-Signature") != "sha256="+signPayload("s3cret", body) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mu.Lock()
		received = append(received, evt)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{ID: "painel", URL: hook.URL, Events: []string{"member.registered"}, Secret: "s3cret"}}
	e := newTestEngine(t, cfg)
	ctx := context.Background()
	if _, err := e.RegisterMember(ctx, domain.Member{Name: "Antes", TermID: testTerm}, "mesa"); err != nil {
		t.Fatal(err)
	}
	d := NewWebhookDispatcher(e, nil)
	d.Prime(ctx)

	if _, err := e.CreateMatter(ctx, domain.Matter{Type: "PL", Title: "Ignorada"}, "mesa"); err != nil {
		t.Fatal(err)
	}
	m, err := e.RegisterMember(ctx, domain.Member{Name: "Depois", TermID: testTerm}, "mesa")
	if err != nil {
		t.Fatal(err)
	}
	d.DispatchAll(ctx)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(received))
	}
	if received[0].Type != "member.registered" || received[0].EntityID != m.ID || received[0].ActorID != "mesa" {
		t.Fatalf("unexpected delivery %+v", received[0])
	}
	if headers[0].Get("X-Plenario-Event") != "member.registered" || headers[0].Get("X-Plenario-Delivery") == "" {
		t.Fatalf("missing delivery headers %v", headers[0])
	}
}

func TestOpenAPIConcurrentFetch(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()

	const n = 8
	bodies := make([][]byte, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := client.Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			bodies[i], errs[i] = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("fetch %d: %v", i, errs[i])
		}
		if !bytes.Equal(bodies[i], bodies[0]) {
			t.Fatalf("fetch %d returned a different document", i)
		}
	}
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(bodies[0], &doc); err != nil || len(doc.Paths) == 0 {
		t.Fatalf("openapi document should list paths: %v", err)
	}
}
