package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/repo"
	"trackline/internal/workflow"
)

// Config for the HTTP API handler.
type Config struct {
	Repo     repo.Repo
	Runner   *workflow.Runner
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"project not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Trackline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Trackline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerRun(group, cfg.Runner)
	registerProjects(group, cfg.Repo)
	registerBoard(group, cfg.Repo)
	registerFirms(group, cfg.Repo)
	registerTemplates(group, cfg.Repo)
	registerDashboard(group, cfg.Repo)
	registerLogs(group, cfg.Repo)
	registerAPIKeys(group, cfg.Repo)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// registerRun exposes the automaton trigger. The run itself never fails
// on individual projects; only a failed candidate fetch is a 500.
func registerRun(api huma.API, runner *workflow.Runner) {
	huma.Register(api, huma.Operation{
		OperationID: "run-automaton",
		Method:      http.MethodPost,
		Path:        "/automaton/run",
		Summary:     "Run the workflow automaton once",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RunResponse `json:"body"`
	}, error) {
		sum, err := runner.RunOnce(ctx)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "run_failed", err.Error(), nil)
		}
		return &struct {
			Body RunResponse `json:"body"`
		}{Body: runResponse(sum)}, nil
	})
}

func registerProjects(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		now := nowRFC3339()
		p := domain.Project{
			ID:          uuid.New().String(),
			Title:       input.Body.Title,
			LawFirmID:   input.Body.LawFirmID,
			ProjectType: input.Body.ProjectType,
			Bucket:      string(domain.ParseBucket(input.Body.Bucket)),
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			StartDate:   input.Body.StartDate,
			DueDate:     input.Body.DueDate,
			Notes:       input.Body.Notes,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if p.Priority == "" {
			p.Priority = "normal"
		}
		if err := r.InsertProject(ctx, p); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Bucket    string `query:"bucket"`
		Status    string `query:"status"`
		LawFirmID string `query:"law_firm_id"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := r.ListProjects(ctx, repo.ProjectFilters{
			Bucket:    input.Bucket,
			Status:    input.Status,
			LawFirmID: input.LawFirmID,
			Limit:     input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := r.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Bucket != nil && !domain.KnownBucket(domain.Bucket(*input.Body.Bucket)) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid bucket %q", *input.Body.Bucket), nil)
		}
		patch := repo.ProjectPatch{
			Title:       input.Body.Title,
			LawFirmID:   input.Body.LawFirmID,
			ProjectType: input.Body.ProjectType,
			Bucket:      input.Body.Bucket,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			StartDate:   input.Body.StartDate,
			DueDate:     input.Body.DueDate,
			Notes:       input.Body.Notes,
		}
		if err := r.PatchProject(ctx, input.ProjectID, patch); err != nil {
			return nil, handleError(err)
		}
		p, err := r.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if err := r.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-logs",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/logs",
		Summary:     "Workflow log for a project, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []domain.AuditEntry `json:"body"`
	}, error) {
		if _, err := r.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		entries, err := r.ListProjectLogs(ctx, input.ProjectID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditEntry `json:"body"`
		}{Body: entries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-comment",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/comments",
		Summary:       "Comment on a project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      CreateCommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Message) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "message is required", nil)
		}
		if _, err := r.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		actorID, _ := actorIDFromContext(ctx)
		c := domain.Comment{
			ID:        uuid.New().String(),
			ProjectID: input.ProjectID,
			AuthorID:  actorID,
			Message:   input.Body.Message,
			CreatedAt: nowRFC3339(),
		}
		if err := r.InsertComment(ctx, c); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/comments",
		Summary:     "List project comments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Comment `json:"body"`
	}, error) {
		if _, err := r.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		comments, err := r.ListComments(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Comment `json:"body"`
		}{Body: comments}, nil
	})
}

// registerBoard renders the pipeline as ordered columns. Projects with an
// unknown bucket land in the first column.
func registerBoard(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/board",
		Summary:     "Pipeline board",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		items, err := r.ListProjects(ctx, repo.ProjectFilters{})
		if err != nil {
			return nil, handleError(err)
		}
		byBucket := make(map[domain.Bucket][]domain.Project, len(domain.Buckets))
		for _, p := range items {
			b := domain.ParseBucket(p.Bucket)
			byBucket[b] = append(byBucket[b], p)
		}
		resp := BoardResponse{Buckets: make([]BoardColumn, 0, len(domain.Buckets))}
		for _, b := range domain.Buckets {
			resp.Buckets = append(resp.Buckets, BoardColumn{
				Name:     string(b),
				Projects: byBucket[b],
			})
		}
		return &struct {
			Body BoardResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerFirms(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-firm",
		Method:        http.MethodPost,
		Path:          "/firms",
		Summary:       "Create law firm",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateLawFirmRequest `json:"body"`
	}) (*struct {
		Body domain.LawFirm `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		f := domain.LawFirm{
			ID:            uuid.New().String(),
			Name:          input.Body.Name,
			ContactPerson: input.Body.ContactPerson,
			GeneralInfo:   input.Body.GeneralInfo,
			CreatedAt:     nowRFC3339(),
		}
		if err := r.InsertLawFirm(ctx, f); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LawFirm `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-firms",
		Method:      http.MethodGet,
		Path:        "/firms",
		Summary:     "List law firms",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.LawFirm `json:"body"`
	}, error) {
		firms, err := r.ListLawFirms(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.LawFirm `json:"body"`
		}{Body: firms}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-firm",
		Method:      http.MethodGet,
		Path:        "/firms/{firm_id}",
		Summary:     "Get law firm",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FirmID string `path:"firm_id"`
	}) (*struct {
		Body domain.LawFirm `json:"body"`
	}, error) {
		f, err := r.GetLawFirm(ctx, input.FirmID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LawFirm `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-firm",
		Method:      http.MethodPatch,
		Path:        "/firms/{firm_id}",
		Summary:     "Update law firm",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		FirmID string               `path:"firm_id"`
		Body   UpdateLawFirmRequest `json:"body"`
	}) (*struct {
		Body domain.LawFirm `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := r.UpdateLawFirm(ctx, input.FirmID, input.Body.Name, input.Body.ContactPerson, input.Body.GeneralInfo); err != nil {
			return nil, handleError(err)
		}
		f, err := r.GetLawFirm(ctx, input.FirmID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LawFirm `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-firm",
		Method:      http.MethodDelete,
		Path:        "/firms/{firm_id}",
		Summary:     "Delete law firm",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FirmID string `path:"firm_id"`
	}) (*struct{}, error) {
		if err := r.DeleteLawFirm(ctx, input.FirmID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-clerk",
		Method:        http.MethodPost,
		Path:          "/firms/{firm_id}/clerks",
		Summary:       "Add clerk to a law firm",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		FirmID string             `path:"firm_id"`
		Body   CreateClerkRequest `json:"body"`
	}) (*struct {
		Body domain.Clerk `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if _, err := r.GetLawFirm(ctx, input.FirmID); err != nil {
			return nil, handleError(err)
		}
		c := domain.Clerk{
			ID:        uuid.New().String(),
			LawFirmID: input.FirmID,
			Name:      input.Body.Name,
			Email:     input.Body.Email,
			Phone:     input.Body.Phone,
			CreatedAt: nowRFC3339(),
		}
		if err := r.InsertClerk(ctx, c); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Clerk `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clerks",
		Method:      http.MethodGet,
		Path:        "/firms/{firm_id}/clerks",
		Summary:     "List clerks of a law firm",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FirmID string `path:"firm_id"`
	}) (*struct {
		Body []domain.Clerk `json:"body"`
	}, error) {
		if _, err := r.GetLawFirm(ctx, input.FirmID); err != nil {
			return nil, handleError(err)
		}
		clerks, err := r.ListClerks(ctx, input.FirmID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Clerk `json:"body"`
		}{Body: clerks}, nil
	})
}

func registerTemplates(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Create notification template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTemplateRequest `json:"body"`
	}) (*struct {
		Body domain.Template `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		t := domain.Template{
			ID:      uuid.New().String(),
			Name:    input.Body.Name,
			Subject: input.Body.Subject,
			Body:    input.Body.Body,
		}
		if err := r.InsertTemplate(ctx, t); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Template `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List notification templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Template `json:"body"`
	}, error) {
		templates, err := r.ListTemplates(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Template `json:"body"`
		}{Body: templates}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-template",
		Method:      http.MethodDelete,
		Path:        "/templates/{template_id}",
		Summary:     "Delete notification template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TemplateID string `path:"template_id"`
	}) (*struct{}, error) {
		if err := r.DeleteTemplate(ctx, input.TemplateID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDashboard(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Project counts per law firm",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.FirmSummary `json:"body"`
	}, error) {
		summary, err := r.DashboardSummary(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.FirmSummary `json:"body"`
		}{Body: summary}, nil
	})
}

func registerLogs(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "latest-logs",
		Method:      http.MethodGet,
		Path:        "/logs",
		Summary:     "Latest workflow log entries across projects",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []domain.AuditEntry `json:"body"`
	}, error) {
		entries, err := r.LatestLogs(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditEntry `json:"body"`
		}{Body: entries}, nil
	})
}

func registerAPIKeys(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyCreatedResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.ActorID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		plaintext := "tlk_" + strings.ReplaceAll(uuid.New().String(), "-", "")
		k := domain.APIKey{
			ID:        uuid.New().String(),
			ActorID:   input.Body.ActorID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(plaintext),
			CreatedAt: nowRFC3339(),
		}
		if err := r.InsertAPIKey(ctx, k); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyCreatedResponse `json:"body"`
		}{Body: APIKeyCreatedResponse{
			ID:        k.ID,
			ActorID:   k.ActorID,
			Name:      k.Name,
			Key:       plaintext,
			CreatedAt: k.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		keys, err := r.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := r.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Trackline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
