package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Writer appends immutable entries to the workflow log. Entries are never
// updated or deleted.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, projectID, action string, details map[string]any) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	var detailsJSON any
	if len(details) > 0 {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		detailsJSON = string(data)
	}
	_, err := w.DB.ExecContext(ctx, `INSERT INTO workflow_logs(id,project_id,action,details_json,created_at) VALUES (?,?,?,?,?)`,
		uuid.New().String(), projectID, action, detailsJSON, ts)
	return err
}
