package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/datawipe/internal/application"
	"github.com/ericfisherdev/datawipe/internal/catalog"
	"github.com/ericfisherdev/datawipe/internal/classify"
	"github.com/ericfisherdev/datawipe/internal/csvimport"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
	"github.com/ericfisherdev/datawipe/internal/retry"
)

// MaxUploadBytes bounds the size of an uploaded export.
const MaxUploadBytes = 10 << 20

// Importer stores uploaded exports.
type Importer interface {
	Import(ctx context.Context, filename string, data []byte) (application.ImportResult, error)
}

// AccountQuerier reads classified accounts and applies category overrides.
type AccountQuerier interface {
	List(ctx context.Context, category model.Category) ([]model.Account, error)
	Get(ctx context.Context, id int64) (model.Account, error)
	Stats(ctx context.Context) (classify.Stats, error)
	SetCategory(ctx context.Context, id int64, o application.CategoryOverride) (model.Account, error)
}

// DeletionManager drives deletion tasks.
type DeletionManager interface {
	Start(ctx context.Context, accountIDs []int64) (application.StartResult, error)
	StartEmail(ctx context.Context, accountIDs []int64) (application.StartResult, error)
	Confirm(ctx context.Context, taskID int64) (model.DeletionTask, error)
	Cancel(ctx context.Context, taskID int64) error
	Get(ctx context.Context, taskID int64) (model.DeletionTask, error)
	List(ctx context.Context, status model.TaskStatus) ([]model.DeletionTask, error)
}

// RetryManager schedules and reports retries of failed tasks.
type RetryManager interface {
	Schedule(ctx context.Context, taskID int64) (model.DeletionTask, error)
	Cancel(ctx context.Context, taskID int64) (model.DeletionTask, error)
	BulkRetry(ctx context.Context) (application.BulkRetryReport, error)
	Status(ctx context.Context) ([]application.RetryView, error)
	View(task model.DeletionTask) application.RetryView
	Policy() *retry.Policy
}

// AuditReader lists and summarizes the audit trail.
type AuditReader interface {
	List(ctx context.Context, filter driven.AuditFilter) ([]model.AuditRecord, error)
	Summary(ctx context.Context) (model.AuditSummary, error)
}

// CredentialManager stores secrets used by outbound integrations.
type CredentialManager interface {
	Set(ctx context.Context, service string, value model.Secret) error
	Delete(ctx context.Context, service string) error
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Catalog     *catalog.Catalog
	Imports     Importer
	Accounts    AccountQuerier
	Deletions   DeletionManager
	Retries     RetryManager
	Credentials CredentialManager
	Audit       AuditReader
	Logger      *slog.Logger
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	catalog     *catalog.Catalog
	imports     Importer
	accounts    AccountQuerier
	deletions   DeletionManager
	retries     RetryManager
	credentials CredentialManager
	audit       AuditReader
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		catalog:     d.Catalog,
		imports:     d.Imports,
		accounts:    d.Accounts,
		deletions:   d.Deletions,
		retries:     d.Retries,
		credentials: d.Credentials,
		audit:       d.Audit,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/formats", h.ListFormats)

	mux.HandleFunc("POST /api/v1/imports", h.Import)
	mux.HandleFunc("GET /api/v1/accounts", h.ListAccounts)
	mux.HandleFunc("GET /api/v1/accounts/stats", h.AccountStats)
	mux.HandleFunc("GET /api/v1/accounts/{id}", h.GetAccount)
	mux.HandleFunc("PUT /api/v1/accounts/{id}/category", h.SetAccountCategory)

	mux.HandleFunc("POST /api/v1/deletions", h.StartDeletions)
	mux.HandleFunc("GET /api/v1/deletions", h.ListDeletions)
	mux.HandleFunc("GET /api/v1/deletions/{id}", h.GetDeletion)
	mux.HandleFunc("POST /api/v1/deletions/{id}/confirm", h.ConfirmDeletion)
	mux.HandleFunc("DELETE /api/v1/deletions/{id}", h.CancelDeletion)

	mux.HandleFunc("POST /api/v1/deletions/{id}/retry", h.ScheduleRetry)
	mux.HandleFunc("DELETE /api/v1/deletions/{id}/retry", h.CancelRetry)
	mux.HandleFunc("POST /api/v1/retries", h.BulkRetry)
	mux.HandleFunc("GET /api/v1/retries", h.RetryStatus)
	mux.HandleFunc("GET /api/v1/retries/strategies", h.RetryStrategies)

	mux.HandleFunc("GET /api/v1/audit", h.ListAudit)
	mux.HandleFunc("GET /api/v1/audit/summary", h.AuditSummary)

	mux.HandleFunc("PUT /api/v1/credentials/{service}", h.SetCredential)
	mux.HandleFunc("DELETE /api/v1/credentials/{service}", h.DeleteCredential)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListFormats returns the export layouts the detector recognizes.
func (h *Handler) ListFormats(w http.ResponseWriter, _ *http.Request) {
	formats := h.catalog.Formats()
	resp := make([]FormatResponse, 0, len(formats))
	for _, f := range formats {
		resp = append(resp, toFormatResponse(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Import accepts an export either as the multipart field "file" or as the raw
// request body.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	filename, data, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	result, err := h.imports.Import(r.Context(), filename, data)
	if err != nil {
		h.writeServiceError(w, "import", err)
		return
	}

	writeJSON(w, http.StatusCreated, toImportResponse(result))
}

func readUpload(r *http.Request) (filename string, data []byte, err error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
			return "", nil, err
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return "", nil, errors.New(`multipart field "file" is required`)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		return hdr.Filename, data, err
	}

	data, err = io.ReadAll(r.Body)
	return r.URL.Query().Get("filename"), data, err
}

// ListAccounts returns stored accounts, optionally filtered by ?category=.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	category := model.Category(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}

	accounts, err := h.accounts.List(r.Context(), category)
	if err != nil {
		h.writeServiceError(w, "list accounts", err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponses(accounts))
}

// AccountStats returns category and risk counts with recommendations.
func (h *Handler) AccountStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.accounts.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, "account stats", err)
		return
	}

	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}

// GetAccount returns one account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "account")
	if !ok {
		return
	}

	acct, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get account", err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

// SetAccountCategory overrides an account's category and rescores it.
func (h *Handler) SetAccountCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "account")
	if !ok {
		return
	}

	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}

	acct, err := h.accounts.SetCategory(r.Context(), id, application.CategoryOverride{
		Category:  model.Category(req.Category),
		RiskLevel: model.Level(req.RiskLevel),
	})
	if err != nil {
		h.writeServiceError(w, "set account category", err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

// StartDeletions creates pending tasks for the requested accounts. A method
// of "email" skips the browser and sends the erasure request directly.
func (h *Handler) StartDeletions(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.AccountIDs) == 0 {
		writeError(w, http.StatusBadRequest, "account_ids is required")
		return
	}

	var (
		result application.StartResult
		err    error
	)
	switch model.DeletionMethod(req.Method) {
	case "", model.MethodAutomated:
		result, err = h.deletions.Start(r.Context(), req.AccountIDs)
	case model.MethodEmail:
		result, err = h.deletions.StartEmail(r.Context(), req.AccountIDs)
	default:
		writeError(w, http.StatusBadRequest, "method must be automated or email")
		return
	}
	if err != nil {
		h.writeServiceError(w, "start deletions", err)
		return
	}

	writeJSON(w, http.StatusAccepted, toStartResponse(result))
}

var taskStatuses = []model.TaskStatus{
	model.TaskStatusPending,
	model.TaskStatusInProgress,
	model.TaskStatusCompleted,
	model.TaskStatusFailed,
}

// ListDeletions returns tasks, optionally filtered by ?status=.
func (h *Handler) ListDeletions(w http.ResponseWriter, r *http.Request) {
	status := model.TaskStatus(r.URL.Query().Get("status"))
	if status != "" && !slices.Contains(taskStatuses, status) {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	tasks, err := h.deletions.List(r.Context(), status)
	if err != nil {
		h.writeServiceError(w, "list deletions", err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

// GetDeletion returns one task with its retry state.
func (h *Handler) GetDeletion(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.deletions.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get deletion", err)
		return
	}

	resp := toTaskResponse(task)
	view := toRetryViewResponse(h.retries.View(task))
	resp.Retry = &view
	writeJSON(w, http.StatusOK, resp)
}

// ConfirmDeletion confirms a pending task and runs it in the background.
func (h *Handler) ConfirmDeletion(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.deletions.Confirm(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "confirm deletion", err)
		return
	}

	writeJSON(w, http.StatusAccepted, toTaskResponse(task))
}

// CancelDeletion removes a task that has not finished.
func (h *Handler) CancelDeletion(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	if err := h.deletions.Cancel(r.Context(), id); err != nil {
		h.writeServiceError(w, "cancel deletion", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListAudit returns audit records, newest first. It accepts ?action=,
// ?account_id=, ?task_id=, ?limit= and ?offset=.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := driven.AuditFilter{Action: model.AuditAction(q.Get("action"))}

	for _, p := range []struct {
		name string
		dst  *int64
	}{
		{"account_id", &filter.AccountID},
		{"task_id", &filter.TaskID},
	} {
		if raw := q.Get(p.name); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || v <= 0 {
				writeError(w, http.StatusBadRequest, "invalid "+p.name)
				return
			}
			*p.dst = v
		}
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	} {
		if raw := q.Get(p.name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				writeError(w, http.StatusBadRequest, "invalid "+p.name)
				return
			}
			*p.dst = v
		}
	}

	records, err := h.audit.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, "list audit", err)
		return
	}

	writeJSON(w, http.StatusOK, toAuditRecordResponses(records))
}

// AuditSummary returns audit counts per action and for the last day.
func (h *Handler) AuditSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.audit.Summary(r.Context())
	if err != nil {
		h.writeServiceError(w, "audit summary", err)
		return
	}

	writeJSON(w, http.StatusOK, toAuditSummaryResponse(summary))
}

// taskID parses the {id} path value, writing a 400 when it is invalid.
func taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return pathID(w, r, "task")
}

func pathID(w http.ResponseWriter, r *http.Request, kind string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+kind+" id")
		return 0, false
	}
	return id, true
}

// errorStatus maps service sentinels to HTTP statuses.
var errorStatus = []struct {
	err    error
	status int
}{
	{driven.ErrAccountNotFound, http.StatusNotFound},
	{driven.ErrTaskNotFound, http.StatusNotFound},
	{application.ErrUnknownService, http.StatusNotFound},
	{application.ErrUnknownCategory, http.StatusBadRequest},
	{application.ErrUnknownRiskLevel, http.StatusBadRequest},
	{driven.ErrActiveTaskExists, http.StatusConflict},
	{application.ErrTaskNotPending, http.StatusConflict},
	{application.ErrTaskInFlight, http.StatusConflict},
	{application.ErrTaskNotFailed, http.StatusConflict},
	{application.ErrRetryNotScheduled, http.StatusConflict},
	{application.ErrRetryPending, http.StatusConflict},
	{application.ErrRetryExhausted, http.StatusConflict},
	{driven.ErrEncryptionKeyNotSet, http.StatusServiceUnavailable},
}

// writeServiceError translates an application error into a response.
// Unrecognized errors are logged and reported as a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var formatErr *csvimport.FormatError
	if errors.As(err, &formatErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   formatErr.Err.Error(),
			Columns: formatErr.Columns,
		})
		return
	}

	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.err.Error())
			return
		}
	}

	h.logger.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
