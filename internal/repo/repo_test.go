package repo_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trackline/internal/audit"
	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/migrate"
	"trackline/internal/repo"
	"trackline/internal/workflow"
)

type testEnv struct {
	Repo repo.Repo
	Ctx  context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return testEnv{Repo: repo.Repo{DB: conn}, Ctx: context.Background()}
}

func seedProject(t *testing.T, env testEnv, id string, bucket domain.Bucket, status string, due string) domain.Project {
	t.Helper()
	p := domain.Project{
		ID:        id,
		Title:     "Kanzlei " + id,
		Bucket:    string(bucket),
		Status:    status,
		Priority:  "normal",
		CreatedAt: "2025-03-01T00:00:00Z",
		UpdatedAt: "2025-03-01T00:00:00Z",
	}
	if due != "" {
		p.DueDate = &due
	}
	if err := env.Repo.InsertProject(env.Ctx, p); err != nil {
		t.Fatalf("insert project %s: %v", id, err)
	}
	return p
}

func TestGetProjectNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Repo.GetProject(env.Ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListOpenProjectsExcludesDone(t *testing.T) {
	env := newTestEnv(t)
	seedProject(t, env, "p-open", domain.BucketPool, "", "2025-03-01")
	seedProject(t, env, "p-noduedate", domain.BucketPool, "Mailing Konzeptblatt", "")
	seedProject(t, env, "p-done", domain.BucketFollowUp, domain.StatusDone, "2025-03-01")

	open, err := env.Repo.ListOpenProjects(env.Ctx)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open = %d, want 2", len(open))
	}
	for _, p := range open {
		if p.Status == domain.StatusDone {
			t.Fatalf("terminal project returned: %s", p.ID)
		}
	}
}

func TestUpdateProjectCompareAndSwap(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, "p-1", domain.BucketConceptSent, "", "2025-03-01")

	bucket := string(domain.BucketConceptReminderA)
	update := workflow.ProjectUpdate{Bucket: &bucket}
	if err := env.Repo.UpdateProject(env.Ctx, p.ID, update, p.UpdatedAt); err != nil {
		t.Fatalf("first update: %v", err)
	}
	// Second write with the stale token must be rejected.
	if err := env.Repo.UpdateProject(env.Ctx, p.ID, update, p.UpdatedAt); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	// Missing rows are not conflicts.
	if err := env.Repo.UpdateProject(env.Ctx, "missing", update, "whatever"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	got, err := env.Repo.GetProject(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Bucket != bucket {
		t.Fatalf("bucket = %q, want %q", got.Bucket, bucket)
	}
	if got.UpdatedAt == p.UpdatedAt {
		t.Fatal("updated_at must change on write")
	}
}

func TestPatchProjectClearsNullableFields(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, "p-1", domain.BucketPool, "", "2025-03-10")

	empty := ""
	if err := env.Repo.PatchProject(env.Ctx, p.ID, repo.ProjectPatch{DueDate: &empty}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	got, err := env.Repo.GetProject(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DueDate != nil {
		t.Fatalf("due date = %q, want cleared", *got.DueDate)
	}
}

func TestTemplateByNameMissIsNil(t *testing.T) {
	env := newTestEnv(t)
	tpl, err := env.Repo.TemplateByName(env.Ctx, "Mailing Konzeptblatt")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if tpl != nil {
		t.Fatalf("expected nil on miss, got %+v", tpl)
	}
	if err := env.Repo.InsertTemplate(env.Ctx, domain.Template{ID: "t-1", Name: "Mailing Konzeptblatt", Subject: "Konzeptblatt"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	tpl, err = env.Repo.TemplateByName(env.Ctx, "Mailing Konzeptblatt")
	if err != nil || tpl == nil {
		t.Fatalf("tpl = %v, err = %v", tpl, err)
	}
	if tpl.Subject != "Konzeptblatt" {
		t.Fatalf("subject = %q", tpl.Subject)
	}
}

func TestDashboardSummary(t *testing.T) {
	env := newTestEnv(t)
	firm := domain.LawFirm{ID: "f-1", Name: "Kanzlei Nord", CreatedAt: "2025-03-01T00:00:00Z"}
	if err := env.Repo.InsertLawFirm(env.Ctx, firm); err != nil {
		t.Fatalf("insert firm: %v", err)
	}
	open := seedProject(t, env, "p-1", domain.BucketPool, "", "")
	done := seedProject(t, env, "p-2", domain.BucketFollowUp, domain.StatusDone, "")
	for _, id := range []string{open.ID, done.ID} {
		firmID := firm.ID
		if err := env.Repo.PatchProject(env.Ctx, id, repo.ProjectPatch{LawFirmID: &firmID}); err != nil {
			t.Fatalf("assign firm: %v", err)
		}
	}

	summary, err := env.Repo.DashboardSummary(env.Ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(summary) != 1 {
		t.Fatalf("summary rows = %d, want 1", len(summary))
	}
	s := summary[0]
	if s.LawFirmName != "Kanzlei Nord" || s.ProjectCount != 2 || s.OpenCount != 1 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	hash := repo.HashAPIKey("  tlk_secret  ")
	if hash != repo.HashAPIKey("tlk_secret") {
		t.Fatal("hash must ignore surrounding whitespace")
	}
	k := domain.APIKey{ID: "k-1", ActorID: "tm-1", KeyHash: hash, CreatedAt: "2025-03-01T00:00:00Z"}
	if err := env.Repo.InsertAPIKey(env.Ctx, k); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := env.Repo.GetAPIKeyByHash(env.Ctx, hash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActorID != "tm-1" {
		t.Fatalf("actor = %q", got.ActorID)
	}
	if _, err := env.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey("wrong")); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// End-to-end pass: a Pool project with the mailing status moves to
// "Konzeptblatt gesendet" and both the transition and the dispatch land in
// the workflow log.
func TestRunnerAgainstSQLite(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	seedProject(t, env, "p-1", domain.BucketPool, "Mailing Konzeptblatt", "")
	if err := env.Repo.InsertTemplate(env.Ctx, domain.Template{ID: "t-1", Name: "Mailing Konzeptblatt"}); err != nil {
		t.Fatalf("insert template: %v", err)
	}

	runner := &workflow.Runner{
		Projects:  env.Repo,
		Templates: env.Repo,
		Audit:     audit.Writer{DB: env.Repo.DB, Now: func() time.Time { return now }},
		Now:       func() time.Time { return now },
	}
	sum, err := runner.RunOnce(env.Ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Processed != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	p, err := env.Repo.GetProject(env.Ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Bucket != string(domain.BucketConceptSent) {
		t.Fatalf("bucket = %q", p.Bucket)
	}
	if p.DueDate == nil || *p.DueDate != "2025-03-25" {
		t.Fatalf("due = %v, want 2025-03-25", p.DueDate)
	}
	if !strings.Contains(p.Notes, "04.03.25 - Konzeptblatt versendet") {
		t.Fatalf("notes = %q", p.Notes)
	}

	logs, err := env.Repo.ListProjectLogs(env.Ctx, "p-1", 0)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	var actions []string
	for _, e := range logs {
		actions = append(actions, e.Action)
	}
	if len(logs) != 2 {
		t.Fatalf("log entries = %v, want transition and dispatch", actions)
	}
	var sawTransition, sawDispatch bool
	for _, a := range actions {
		switch a {
		case "Mailing Konzeptblatt gesendet":
			sawTransition = true
		case "Email Mailing Konzeptblatt versendet":
			sawDispatch = true
		}
	}
	if !sawTransition || !sawDispatch {
		t.Fatalf("log actions = %v", actions)
	}

	// Running again on the same day is a no-op: the project is parked
	// three weeks out.
	sum, err = runner.RunOnce(env.Ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Processed != 0 || sum.Result() != "no_due_work" {
		t.Fatalf("second run summary = %+v", sum)
	}
}
