package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/datawipe/internal/application"
	"github.com/ericfisherdev/datawipe/internal/classify"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/retry"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error   string   `json:"error"`
	Columns []string `json:"columns,omitempty"`
}

// HealthResponse is the JSON representation of the health check.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// FormatResponse is a supported password-manager export layout.
type FormatResponse struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// AccountResponse is the JSON representation of an account. The password
// never leaves the server.
type AccountResponse struct {
	ID                 int64   `json:"id"`
	SiteName           string  `json:"site_name"`
	SiteURL            string  `json:"site_url"`
	Username           string  `json:"username"`
	Email              string  `json:"email"`
	HasPassword        bool    `json:"has_password"`
	Category           string  `json:"category"`
	CategoryConfidence float64 `json:"category_confidence"`
	CategoryReason     string  `json:"category_reason"`
	RiskLevel          string  `json:"risk_level"`
	DataSensitivity    string  `json:"data_sensitivity"`
	DeletionPriority   int     `json:"deletion_priority"`
	PriorityLabel      string  `json:"priority_label"`
	Status             string  `json:"status"`
	SourceFormat       string  `json:"source_format"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// DetectionResponse describes which export layout an upload matched.
type DetectionResponse struct {
	FormatID   string  `json:"format_id"`
	FormatName string  `json:"format_name"`
	Confidence float64 `json:"confidence"`
	Generic    bool    `json:"generic"`
}

// SkippedRowResponse is a CSV row that produced no account.
type SkippedRowResponse struct {
	Row      int    `json:"row"`
	Reason   string `json:"reason"`
	SiteName string `json:"site_name,omitempty"`
}

// ImportResponse is the result of an upload.
type ImportResponse struct {
	ImportID      string               `json:"import_id"`
	Filename      string               `json:"filename"`
	Encoding      string               `json:"encoding"`
	Detection     DetectionResponse    `json:"detection"`
	Imported      int                  `json:"imported"`
	Accounts      []AccountResponse    `json:"accounts"`
	SkippedCount  int                  `json:"skipped_count"`
	SkippedSample []SkippedRowResponse `json:"skipped_sample"`
}

// CategoryCountResponse is the number of accounts in one category.
type CategoryCountResponse struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

// RecommendationResponse is advice derived from the account mix.
type RecommendationResponse struct {
	Priority string `json:"priority"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// BulkActionResponse proposes handling a group of accounts together.
type BulkActionResponse struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category,omitempty"`
	AccountIDs  []int64 `json:"account_ids"`
	Priority    string  `json:"priority"`
}

// StatsResponse summarizes the stored accounts.
type StatsResponse struct {
	Total           int                      `json:"total"`
	ByCategory      []CategoryCountResponse  `json:"by_category"`
	ByRisk          map[string]int           `json:"by_risk"`
	Recommendations []RecommendationResponse `json:"recommendations"`
	BulkActions     []BulkActionResponse     `json:"bulk_actions"`
}

// TaskResponse is the JSON representation of a deletion task.
type TaskResponse struct {
	ID               int64  `json:"id"`
	AccountID        int64  `json:"account_id"`
	Method           string `json:"method"`
	Status           string `json:"status"`
	Attempts         int    `json:"attempts"`
	LastError        string `json:"last_error,omitempty"`
	RetryCount       int    `json:"retry_count"`
	RetryAfter       string `json:"retry_after,omitempty"`
	DeletionURL      string `json:"deletion_url,omitempty"`
	PrivacyEmail     string `json:"privacy_email,omitempty"`
	FallbackReason   string `json:"fallback_reason,omitempty"`
	ConfirmationText string `json:"confirmation_text,omitempty"`
	CreatedAt        string `json:"created_at"`
	ConfirmedAt      string `json:"confirmed_at,omitempty"`
	CompletedAt      string `json:"completed_at,omitempty"`

	// Populated only on the single task endpoint.
	Retry *RetryViewResponse `json:"retry,omitempty"`
}

// StartRequest is the request body for POST /api/v1/deletions. Method is
// "automated" (the default) or "email".
type StartRequest struct {
	AccountIDs []int64 `json:"account_ids"`
	Method     string  `json:"method,omitempty"`
}

// CategoryRequest is the request body for PUT /api/v1/accounts/{id}/category.
type CategoryRequest struct {
	Category  string `json:"category"`
	RiskLevel string `json:"risk_level,omitempty"`
}

// AuditRecordResponse is one audit trail entry.
type AuditRecordResponse struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	AccountID int64          `json:"account_id,omitempty"`
	TaskID    int64          `json:"task_id,omitempty"`
	Details   map[string]any `json:"details"`
	CreatedAt string         `json:"created_at"`
}

// AuditSummaryResponse counts audit entries.
type AuditSummaryResponse struct {
	Total   int            `json:"total"`
	Recent  int            `json:"recent"`
	Since   string         `json:"since"`
	Actions map[string]int `json:"actions"`
}

// ConflictResponse is an account that already had an active task.
type ConflictResponse struct {
	AccountID int64 `json:"account_id"`
	TaskID    int64 `json:"task_id,omitempty"`
}

// StartResponse is the result of starting deletions.
type StartResponse struct {
	Created   []TaskResponse     `json:"created"`
	Conflicts []ConflictResponse `json:"conflicts"`
}

// RetryViewResponse is the retry state of one task.
type RetryViewResponse struct {
	TaskID      int64  `json:"task_id"`
	Status      string `json:"status"`
	Class       string `json:"failure_class,omitempty"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	RetryAfter  string `json:"retry_after,omitempty"`
	CanRetry    bool   `json:"can_retry"`
	Reason      string `json:"reason,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// BulkSkipResponse is a failed task a bulk retry did not schedule.
type BulkSkipResponse struct {
	TaskID int64  `json:"task_id"`
	Reason string `json:"reason"`
}

// BulkRetryResponse is the result of POST /api/v1/retries.
type BulkRetryResponse struct {
	Scheduled []TaskResponse     `json:"scheduled"`
	Skipped   []BulkSkipResponse `json:"skipped"`
}

// StrategyResponse is the retry schedule for one failure class.
type StrategyResponse struct {
	Class            string  `json:"failure_class"`
	MaxAttempts      int     `json:"max_attempts"`
	BaseDelaySeconds float64 `json:"base_delay_seconds"`
	Multiplier       float64 `json:"multiplier"`
	Jitter           bool    `json:"jitter"`
}

// CredentialRequest is the request body for PUT /api/v1/credentials/{service}.
type CredentialRequest struct {
	Value string `json:"value"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func toFormatResponse(f model.FormatMapping) FormatResponse {
	return FormatResponse{ID: f.ID, Name: f.Name, Columns: f.Columns}
}

func toAccountResponse(a model.Account) AccountResponse {
	return AccountResponse{
		ID:                 a.ID,
		SiteName:           a.SiteName,
		SiteURL:            a.SiteURL,
		Username:           a.Username,
		Email:              a.Email,
		HasPassword:        !a.Secret.IsZero(),
		Category:           string(a.Category),
		CategoryConfidence: a.CategoryConfidence,
		CategoryReason:     a.CategoryReason,
		RiskLevel:          string(a.RiskLevel),
		DataSensitivity:    string(a.DataSensitivity),
		DeletionPriority:   a.DeletionPriority,
		PriorityLabel:      string(a.PriorityLabel),
		Status:             string(a.Status),
		SourceFormat:       a.SourceFormat,
		CreatedAt:          formatTime(a.CreatedAt),
		UpdatedAt:          formatTime(a.UpdatedAt),
	}
}

func toAccountResponses(accounts []model.Account) []AccountResponse {
	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	return resp
}

func toImportResponse(r application.ImportResult) ImportResponse {
	skipped := make([]SkippedRowResponse, 0, len(r.SkippedSample))
	for _, s := range r.SkippedSample {
		skipped = append(skipped, SkippedRowResponse{Row: s.Row, Reason: s.Reason, SiteName: s.SiteName})
	}
	return ImportResponse{
		ImportID: r.ImportID,
		Filename: r.Filename,
		Encoding: r.Encoding,
		Detection: DetectionResponse{
			FormatID:   r.Detection.FormatID,
			FormatName: r.Detection.FormatName,
			Confidence: r.Detection.Confidence,
			Generic:    r.Detection.Generic,
		},
		Imported:      len(r.Accounts),
		Accounts:      toAccountResponses(r.Accounts),
		SkippedCount:  r.SkippedCount,
		SkippedSample: skipped,
	}
}

func toStatsResponse(s classify.Stats) StatsResponse {
	resp := StatsResponse{
		Total:           s.Total,
		ByCategory:      make([]CategoryCountResponse, 0, len(s.ByCategory)),
		ByRisk:          make(map[string]int, len(s.ByRisk)),
		Recommendations: make([]RecommendationResponse, 0, len(s.Recommendations)),
		BulkActions:     make([]BulkActionResponse, 0, len(s.BulkActions)),
	}
	for _, c := range s.ByCategory {
		resp.ByCategory = append(resp.ByCategory, CategoryCountResponse{Category: string(c.Category), Name: c.Name, Count: c.Count})
	}
	for level, n := range s.ByRisk {
		resp.ByRisk[string(level)] = n
	}
	for _, r := range s.Recommendations {
		resp.Recommendations = append(resp.Recommendations, RecommendationResponse{Priority: string(r.Priority), Message: r.Message, Action: r.Action})
	}
	for _, b := range s.BulkActions {
		resp.BulkActions = append(resp.BulkActions, BulkActionResponse{
			Title:       b.Title,
			Description: b.Description,
			Category:    string(b.Category),
			AccountIDs:  b.AccountIDs,
			Priority:    string(b.Priority),
		})
	}
	return resp
}

func toTaskResponse(t model.DeletionTask) TaskResponse {
	return TaskResponse{
		ID:               t.ID,
		AccountID:        t.AccountID,
		Method:           string(t.Method),
		Status:           string(t.Status),
		Attempts:         t.Attempts,
		LastError:        t.LastError,
		RetryCount:       t.RetryCount,
		RetryAfter:       formatTimePtr(t.RetryAfter),
		DeletionURL:      t.DeletionURL,
		PrivacyEmail:     t.PrivacyEmail,
		FallbackReason:   t.FallbackReason,
		ConfirmationText: t.ConfirmationText,
		CreatedAt:        formatTime(t.CreatedAt),
		ConfirmedAt:      formatTimePtr(t.ConfirmedAt),
		CompletedAt:      formatTimePtr(t.CompletedAt),
	}
}

func toTaskResponses(tasks []model.DeletionTask) []TaskResponse {
	resp := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t))
	}
	return resp
}

func toStartResponse(r application.StartResult) StartResponse {
	conflicts := make([]ConflictResponse, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		conflicts = append(conflicts, ConflictResponse{AccountID: c.AccountID, TaskID: c.TaskID})
	}
	return StartResponse{Created: toTaskResponses(r.Created), Conflicts: conflicts}
}

func toRetryViewResponse(v application.RetryView) RetryViewResponse {
	return RetryViewResponse{
		TaskID:      v.Task.ID,
		Status:      string(v.Task.Status),
		Class:       string(v.Class),
		Attempts:    v.Attempts,
		MaxAttempts: v.MaxAttempts,
		RetryAfter:  formatTimePtr(v.RetryAfter),
		CanRetry:    v.CanRetry,
		Reason:      v.Reason,
		LastError:   v.Task.LastError,
	}
}

func toBulkRetryResponse(r application.BulkRetryReport) BulkRetryResponse {
	skipped := make([]BulkSkipResponse, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		skipped = append(skipped, BulkSkipResponse{TaskID: s.TaskID, Reason: s.Reason})
	}
	return BulkRetryResponse{Scheduled: toTaskResponses(r.Scheduled), Skipped: skipped}
}

func toStrategyResponse(class model.FailureClass, s retry.Strategy) StrategyResponse {
	return StrategyResponse{
		Class:            string(class),
		MaxAttempts:      s.MaxAttempts,
		BaseDelaySeconds: s.BaseDelay.Seconds(),
		Multiplier:       s.Multiplier,
		Jitter:           s.Jitter,
	}
}

func toAuditRecordResponses(records []model.AuditRecord) []AuditRecordResponse {
	resp := make([]AuditRecordResponse, 0, len(records))
	for _, rec := range records {
		details := rec.Details
		if details == nil {
			details = map[string]any{}
		}
		resp = append(resp, AuditRecordResponse{
			ID:        rec.ID,
			Action:    string(rec.Action),
			AccountID: rec.AccountID,
			TaskID:    rec.TaskID,
			Details:   details,
			CreatedAt: formatTime(rec.CreatedAt),
		})
	}
	return resp
}

func toAuditSummaryResponse(s model.AuditSummary) AuditSummaryResponse {
	actions := make(map[string]int, len(s.ByAction))
	for action, n := range s.ByAction {
		actions[string(action)] = n
	}
	return AuditSummaryResponse{
		Total:   s.Total,
		Recent:  s.Recent,
		Since:   formatTime(s.Since),
		Actions: actions,
	}
}
