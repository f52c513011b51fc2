package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trackline/internal/domain"
	"trackline/internal/workflow"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a lost compare-and-swap: the row changed since
	// it was read.
	ErrConflict = errors.New("conflict: project modified concurrently")
)

const projectColumns = `id,title,law_firm_id,project_type,bucket,status,priority,start_date,due_date,COALESCE(notes,'') AS notes,COALESCE(metadata_json,'') AS metadata_json,COALESCE(checklist_json,'') AS checklist_json,created_at,updated_at`

func scanProjectRow(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var lawFirmID, projectType, startDate, dueDate sql.NullString
	err := scan(&p.ID, &p.Title, &lawFirmID, &projectType, &p.Bucket, &p.Status, &p.Priority,
		&startDate, &dueDate, &p.Notes, &p.MetadataJSON, &p.ChecklistJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if lawFirmID.Valid {
		p.LawFirmID = &lawFirmID.String
	}
	if projectType.Valid {
		p.ProjectType = &projectType.String
	}
	if startDate.Valid {
		p.StartDate = &startDate.String
	}
	if dueDate.Valid {
		p.DueDate = &dueDate.String
	}
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,title,law_firm_id,project_type,bucket,status,priority,start_date,due_date,notes,metadata_json,checklist_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, nullableStringPtr(p.LawFirmID), nullableStringPtr(p.ProjectType), p.Bucket, p.Status, p.Priority,
		nullableStringPtr(p.StartDate), nullableStringPtr(p.DueDate), nullable(p.Notes), nullable(p.MetadataJSON), nullable(p.ChecklistJSON),
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	p, err := scanProjectRow(row.Scan)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

type ProjectFilters struct {
	Bucket    string
	Status    string
	LawFirmID string
	Limit     int
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.Bucket != "" {
		clauses = append(clauses, "bucket=?")
		args = append(args, f.Bucket)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.LawFirmID != "" {
		clauses = append(clauses, "law_firm_id=?")
		args = append(args, f.LawFirmID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ListOpenProjects returns the automaton's candidate set: every project
// not yet terminal. Projects without a due date are included so that
// status-only rules are evaluated too.
func (r Repo) ListOpenProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE status != ? ORDER BY created_at ASC, id ASC`, domain.StatusDone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateProject applies a partial update. When expectedUpdatedAt is
// non-empty the write is guarded by a compare-and-swap on updated_at, so
// a concurrent manual edit cannot be silently overwritten by a stale
// automaton snapshot.
func (r Repo) UpdateProject(ctx context.Context, id string, update workflow.ProjectUpdate, expectedUpdatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if update.Bucket != nil {
		fields = append(fields, "bucket=?")
		args = append(args, *update.Bucket)
	}
	if update.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *update.Status)
	}
	if update.DueDate != nil {
		fields = append(fields, "due_date=?")
		args = append(args, nullable(*update.DueDate))
	}
	if update.Notes != nil {
		fields = append(fields, "notes=?")
		args = append(args, nullable(*update.Notes))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))

	query := fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ","))
	args = append(args, id)
	if expectedUpdatedAt != "" {
		query += ` AND updated_at=?`
		args = append(args, expectedUpdatedAt)
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		if expectedUpdatedAt == "" {
			return ErrNotFound
		}
		if _, err := r.GetProject(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// PatchProject is the unguarded variant used by the CRUD API; it writes
// whatever fields the caller supplies.
type ProjectPatch struct {
	Title         *string
	LawFirmID     *string
	ProjectType   *string
	Bucket        *string
	Status        *string
	Priority      *string
	StartDate     *string
	DueDate       *string
	Notes         *string
	MetadataJSON  *string
	ChecklistJSON *string
}

func (r Repo) PatchProject(ctx context.Context, id string, patch ProjectPatch) error {
	var (
		fields []string
		args   []any
	)
	set := func(column string, v *string, nullWhenEmpty bool) {
		if v == nil {
			return
		}
		fields = append(fields, column+"=?")
		if nullWhenEmpty {
			args = append(args, nullable(*v))
		} else {
			args = append(args, *v)
		}
	}
	set("title", patch.Title, false)
	set("law_firm_id", patch.LawFirmID, true)
	set("project_type", patch.ProjectType, true)
	set("bucket", patch.Bucket, false)
	set("status", patch.Status, false)
	set("priority", patch.Priority, false)
	set("start_date", patch.StartDate, true)
	set("due_date", patch.DueDate, true)
	set("notes", patch.Notes, true)
	set("metadata_json", patch.MetadataJSON, true)
	set("checklist_json", patch.ChecklistJSON, true)
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- law firms ---

func (r Repo) InsertLawFirm(ctx context.Context, f domain.LawFirm) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO law_firms(id,name,contact_person,general_info,created_at) VALUES (?,?,?,?,?)`,
		f.ID, f.Name, nullable(f.ContactPerson), nullable(f.GeneralInfo), f.CreatedAt)
	return err
}

func (r Repo) GetLawFirm(ctx context.Context, id string) (domain.LawFirm, error) {
	var f domain.LawFirm
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(contact_person,''),COALESCE(general_info,''),created_at FROM law_firms WHERE id=?`, id).
		Scan(&f.ID, &f.Name, &f.ContactPerson, &f.GeneralInfo, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) ListLawFirms(ctx context.Context) ([]domain.LawFirm, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(contact_person,''),COALESCE(general_info,''),created_at FROM law_firms ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LawFirm
	for rows.Next() {
		var f domain.LawFirm
		if err := rows.Scan(&f.ID, &f.Name, &f.ContactPerson, &f.GeneralInfo, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) UpdateLawFirm(ctx context.Context, id string, name, contactPerson, generalInfo *string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if contactPerson != nil {
		fields = append(fields, "contact_person=?")
		args = append(args, nullable(*contactPerson))
	}
	if generalInfo != nil {
		fields = append(fields, "general_info=?")
		args = append(args, nullable(*generalInfo))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE law_firms SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteLawFirm(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM law_firms WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- clerks ---

func (r Repo) InsertClerk(ctx context.Context, c domain.Clerk) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO clerks(id,law_firm_id,name,email,phone,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.LawFirmID, c.Name, nullable(c.Email), nullable(c.Phone), c.CreatedAt)
	return err
}

func (r Repo) ListClerks(ctx context.Context, lawFirmID string) ([]domain.Clerk, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,law_firm_id,name,COALESCE(email,''),COALESCE(phone,''),created_at FROM clerks WHERE law_firm_id=? ORDER BY name ASC`, lawFirmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Clerk
	for rows.Next() {
		var c domain.Clerk
		if err := rows.Scan(&c.ID, &c.LawFirmID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) DeleteClerk(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM clerks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- templates ---

func (r Repo) InsertTemplate(ctx context.Context, t domain.Template) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO templates(id,name,subject,body) VALUES (?,?,?,?)`,
		t.ID, t.Name, nullable(t.Subject), nullable(t.Body))
	return err
}

// TemplateByName resolves a template by exact name. A miss returns
// (nil, nil): template absence is a defined skip for the automaton, not
// an error.
func (r Repo) TemplateByName(ctx context.Context, name string) (*domain.Template, error) {
	var t domain.Template
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(subject,''),COALESCE(body,'') FROM templates WHERE name=?`, name).
		Scan(&t.ID, &t.Name, &t.Subject, &t.Body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(subject,''),COALESCE(body,'') FROM templates ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Template
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.Body); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTemplate(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM templates WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- workflow logs ---

func (r Repo) ListProjectLogs(ctx context.Context, projectID string, limit int) ([]domain.AuditEntry, error) {
	query := `SELECT id,project_id,action,COALESCE(details_json,''),created_at FROM workflow_logs WHERE project_id=? ORDER BY created_at DESC, id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.scanLogs(ctx, query, args...)
}

func (r Repo) LatestLogs(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.scanLogs(ctx, `SELECT id,project_id,action,COALESCE(details_json,''),created_at FROM workflow_logs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

func (r Repo) scanLogs(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Action, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- comments ---

func (r Repo) InsertComment(ctx context.Context, c domain.Comment) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO comments(id,project_id,author_id,message,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.ProjectID, nullable(c.AuthorID), c.Message, c.CreatedAt)
	return err
}

func (r Repo) ListComments(ctx context.Context, projectID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,COALESCE(author_id,''),message,created_at FROM comments WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.AuthorID, &c.Message, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- dashboard ---

// DashboardSummary mirrors the board's per-firm overview: project counts
// per law firm, plus how many are still open.
func (r Repo) DashboardSummary(ctx context.Context) ([]domain.FirmSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT f.id, f.name, COUNT(p.id),
       COALESCE(SUM(CASE WHEN p.status != ? THEN 1 ELSE 0 END), 0)
FROM law_firms f
LEFT JOIN projects p ON p.law_firm_id = f.id
GROUP BY f.id, f.name
ORDER BY f.name ASC`, domain.StatusDone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FirmSummary
	for rows.Next() {
		var s domain.FirmSummary
		if err := rows.Scan(&s.LawFirmID, &s.LawFirmName, &s.ProjectCount, &s.OpenCount); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
