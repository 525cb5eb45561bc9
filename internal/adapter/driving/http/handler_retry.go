package httphandler

import (
	"net/http"
	"slices"
	"strings"
)

// ScheduleRetry arms a retry of a failed task.
func (h *Handler) ScheduleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.retries.Schedule(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "schedule retry", err)
		return
	}

	writeJSON(w, http.StatusAccepted, toRetryViewResponse(h.retries.View(task)))
}

// CancelRetry disarms a scheduled retry, leaving the task failed.
func (h *Handler) CancelRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.retries.Cancel(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "cancel retry", err)
		return
	}

	writeJSON(w, http.StatusOK, toRetryViewResponse(h.retries.View(task)))
}

// BulkRetry schedules every failed task that may still be retried.
func (h *Handler) BulkRetry(w http.ResponseWriter, r *http.Request) {
	report, err := h.retries.BulkRetry(r.Context())
	if err != nil {
		h.writeServiceError(w, "bulk retry", err)
		return
	}

	writeJSON(w, http.StatusOK, toBulkRetryResponse(report))
}

// RetryStatus returns the retry state of every failed or waiting task.
func (h *Handler) RetryStatus(w http.ResponseWriter, r *http.Request) {
	views, err := h.retries.Status(r.Context())
	if err != nil {
		h.writeServiceError(w, "retry status", err)
		return
	}

	resp := make([]RetryViewResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toRetryViewResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RetryStrategies returns the retry schedule per failure class.
func (h *Handler) RetryStrategies(w http.ResponseWriter, _ *http.Request) {
	strategies := h.retries.Policy().Strategies()

	resp := make([]StrategyResponse, 0, len(strategies))
	for class, s := range strategies {
		resp = append(resp, toStrategyResponse(class, s))
	}
	slices.SortFunc(resp, func(a, b StrategyResponse) int {
		return strings.Compare(a.Class, b.Class)
	})

	writeJSON(w, http.StatusOK, resp)
}
