package server

import (
	"trackline/internal/domain"
	"trackline/internal/workflow"
)

// Request payloads

type CreateProjectRequest struct {
	Title       string  `json:"title"`
	LawFirmID   *string `json:"law_firm_id,omitempty"`
	ProjectType *string `json:"project_type,omitempty" enum:"Selbstbucher,Auftragsbuchhaltung"`
	Bucket      string  `json:"bucket,omitempty"`
	Status      string  `json:"status,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	StartDate   *string `json:"start_date,omitempty" format:"date"`
	DueDate     *string `json:"due_date,omitempty" format:"date"`
	Notes       string  `json:"notes,omitempty"`
}

type UpdateProjectRequest struct {
	Title       *string `json:"title,omitempty"`
	LawFirmID   *string `json:"law_firm_id,omitempty"`
	ProjectType *string `json:"project_type,omitempty" enum:"Selbstbucher,Auftragsbuchhaltung"`
	Bucket      *string `json:"bucket,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	StartDate   *string `json:"start_date,omitempty" format:"date"`
	DueDate     *string `json:"due_date,omitempty" format:"date"`
	Notes       *string `json:"notes,omitempty"`
}

type CreateLawFirmRequest struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person,omitempty"`
	GeneralInfo   string `json:"general_info,omitempty"`
}

type UpdateLawFirmRequest struct {
	Name          *string `json:"name,omitempty"`
	ContactPerson *string `json:"contact_person,omitempty"`
	GeneralInfo   *string `json:"general_info,omitempty"`
}

type CreateClerkRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type CreateTemplateRequest struct {
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
}

type CreateCommentRequest struct {
	Message string `json:"message"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type RunResponse struct {
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Result    string `json:"result" enum:"ok,no_due_work,partial_failure"`
}

func runResponse(s workflow.RunSummary) RunResponse {
	return RunResponse{
		Processed: s.Processed,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
		Result:    s.Result(),
	}
}

// APIKeyCreatedResponse carries the plaintext key exactly once.
type APIKeyCreatedResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type BoardResponse struct {
	Buckets []BoardColumn `json:"buckets"`
}

type BoardColumn struct {
	Name     string           `json:"name"`
	Projects []domain.Project `json:"projects"`
}
