package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"trackline/internal/audit"
	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/migrate"
	"trackline/internal/repo"
	"trackline/internal/workflow"
)

type testServer struct {
	URL    string
	Repo   repo.Repo
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

var testClock = time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	runner := &workflow.Runner{
		Projects:  r,
		Templates: r,
		Audit:     audit.Writer{DB: conn, Now: func() time.Time { return testClock }},
		Now:       func() time.Time { return testClock },
	}
	handler, err := New(Config{
		Repo:     r,
		Runner:   runner,
		BasePath: "/api/v1",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
	})
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
		Repo:   r,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
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
	req.Header.Set("X-Actor-Id", "tester")
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

func TestHealthNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/health", nil)
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/projects", nil)
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
}

func TestProjectCRUD(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/projects", map[string]any{
		"title":  "Kanzlei Nord",
		"status": "Mailing Konzeptblatt",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, data)
	}
	var created domain.Project
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Bucket != string(domain.BucketPool) {
		t.Fatalf("default bucket = %q, want Pool", created.Bucket)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/api/v1/projects/"+created.ID, map[string]any{
		"due_date": "2025-03-01",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/api/v1/projects/"+created.ID, map[string]any{
		"bucket": "Nicht vorhanden",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid bucket status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/projects/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, data)
	}
	var got domain.Project
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.DueDate == nil || *got.DueDate != "2025-03-01" {
		t.Fatalf("due date = %v", got.DueDate)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api/v1/projects/"+created.ID, nil, nil)
	if res.StatusCode >= 300 {
		t.Fatalf("delete status %d: %s", res.StatusCode, data)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/projects/"+created.ID, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status %d", res.StatusCode)
	}
}

func TestRunEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/projects", map[string]any{
		"title":  "Kanzlei Nord",
		"status": "Mailing Konzeptblatt",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, data)
	}
	var created domain.Project
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/automaton/run", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("run status %d: %s", res.StatusCode, data)
	}
	var run RunResponse
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if run.Processed != 1 || run.Result != "ok" {
		t.Fatalf("run = %+v", run)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/projects/"+created.ID+"/logs", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("logs status %d: %s", res.StatusCode, data)
	}
	var logs []domain.AuditEntry
	if err := json.Unmarshal(data, &logs); err != nil {
		t.Fatalf("unmarshal logs: %v", err)
	}
	var sawTransition bool
	for _, e := range logs {
		if e.Action == "Mailing Konzeptblatt gesendet" {
			sawTransition = true
		}
	}
	if !sawTransition {
		t.Fatalf("missing transition entry, logs = %+v", logs)
	}

	// Second run finds nothing due.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/automaton/run", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second run status %d: %s", res.StatusCode, data)
	}
	if err := json.Unmarshal(data, &run); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if run.Result != "no_due_work" {
		t.Fatalf("second run = %+v", run)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/apikeys", map[string]any{
		"actor_id": "tm-1",
		"name":     "tm key",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, data)
	}
	var created APIKeyCreatedResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Key == "" {
		t.Fatal("plaintext key must be returned once")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/projects", nil)
	req.Header.Set("X-Api-Key", created.Key)
	res2, err := client.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("api key auth status %d", res2.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/v1/projects", nil)
	req.Header.Set("X-Api-Key", "tlk_wrong")
	res3, err := client.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer res3.Body.Close()
	if res3.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad key status %d, want 401", res3.StatusCode)
	}
}

func TestDashboardAndFirms(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/firms", map[string]any{
		"name":           "Kanzlei Nord",
		"contact_person": "A. Schmidt",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create firm status %d: %s", res.StatusCode, data)
	}
	var firm domain.LawFirm
	if err := json.Unmarshal(data, &firm); err != nil {
		t.Fatalf("unmarshal firm: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/projects", map[string]any{
		"title":       "Mandat 1",
		"law_firm_id": firm.ID,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/dashboard", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status %d: %s", res.StatusCode, data)
	}
	var summary []domain.FirmSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if len(summary) != 1 || summary[0].ProjectCount != 1 || summary[0].OpenCount != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}
