package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
	"github.com/ericfisherdev/datawipe/internal/retry"
)

const msgRetryCancelled = "Retry cancelled by user"

// TaskExecutor runs deletion tasks on behalf of the retry timers.
// *DeletionService satisfies it.
type TaskExecutor interface {
	Execute(ctx context.Context, taskID int64) (model.DeletionTask, error)
	Reserve(taskID int64) (release func(), err error)
}

// RetryDeps are the collaborators of a RetryService.
type RetryDeps struct {
	Accounts driven.AccountStore
	Tasks    driven.TaskStore
	Audit    driven.AuditSink
	Executor TaskExecutor
	Policy   *retry.Policy
	Logger   *slog.Logger
	Clock    func() time.Time
	Sleep    Sleeper
}

// RetryView is the retry state of one task.
type RetryView struct {
	Task        model.DeletionTask
	Class       model.FailureClass
	Attempts    int
	MaxAttempts int
	RetryAfter  *time.Time
	CanRetry    bool
	Reason      string
}

// BulkSkip is a failed task BulkRetry did not schedule.
type BulkSkip struct {
	TaskID int64
	Reason string
}

// BulkRetryReport summarizes BulkRetry.
type BulkRetryReport struct {
	Scheduled []model.DeletionTask
	Skipped   []BulkSkip
}

// ResumeReport summarizes Resume.
type ResumeReport struct {
	Rearmed     int
	Interrupted int
}

// armedTimer is one pending retry wait.
type armedTimer struct {
	cancel context.CancelFunc
}

// RetryService schedules failed deletion tasks for another run after a
// failure-class backoff. Each scheduled retry waits in its own goroutine,
// owned by the service and drained by Close.
type RetryService struct {
	accounts driven.AccountStore
	tasks    driven.TaskStore
	audit    driven.AuditSink
	executor TaskExecutor
	policy   *retry.Policy
	logger   *slog.Logger
	now      func() time.Time
	sleep    Sleeper

	mu     sync.Mutex
	closed bool
	timers map[int64]*armedTimer
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRetryService creates a RetryService.
func NewRetryService(deps RetryDeps) *RetryService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	policy := deps.Policy
	if policy == nil {
		policy = retry.NewPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RetryService{
		accounts: deps.Accounts,
		tasks:    deps.Tasks,
		audit:    deps.Audit,
		executor: deps.Executor,
		policy:   policy,
		logger:   logger,
		now:      clock,
		sleep:    sleep,
		timers:   make(map[int64]*armedTimer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Policy returns the policy the service schedules with.
func (s *RetryService) Policy() *retry.Policy {
	return s.policy
}

// Schedule puts a failed task back to pending with a backoff delay and arms
// a timer that executes it when the delay elapses. A task that may not be
// retried is marked as exhausted and ErrRetryExhausted is returned. The task
// is reserved with the executor while it is rescheduled, so concurrent calls
// for the same task schedule it at most once.
func (s *RetryService) Schedule(ctx context.Context, taskID int64) (model.DeletionTask, error) {
	task, err := s.reschedule(ctx, taskID)
	if err != nil {
		return task, fmt.Errorf("schedule retry %d: %w", taskID, err)
	}
	s.arm(task.ID, *task.RetryAfter)
	return task, nil
}

func (s *RetryService) reschedule(ctx context.Context, taskID int64) (model.DeletionTask, error) {
	release, err := s.executor.Reserve(taskID)
	if err != nil {
		return model.DeletionTask{}, err
	}
	defer release()

	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return model.DeletionTask{}, err
	}
	if task.Status != model.TaskStatusFailed {
		return task, ErrTaskNotFailed
	}

	now := s.now().UTC()
	decision := s.policy.ShouldRetry(task, now)
	if !decision.Retry {
		s.exhaust(ctx, task, decision)
		return task, fmt.Errorf("%s: %w", decision.Reason, ErrRetryExhausted)
	}

	active, err := s.tasks.ActiveForAccount(ctx, task.AccountID)
	if err != nil {
		return task, err
	}
	if active != nil {
		return task, driven.ErrActiveTaskExists
	}

	delay := s.policy.Delay(task.Attempts+1, decision.Class)
	at := now.Add(delay)

	task.Status = model.TaskStatusPending
	task.RetryAfter = &at
	task.RetryCount++
	if err := s.tasks.Update(ctx, task); err != nil {
		return task, err
	}

	if err := s.accounts.UpdateStatus(ctx, task.AccountID, model.AccountStatusPending); err != nil {
		s.logger.Warn("update account status failed", "account_id", task.AccountID, "error", err)
	}

	s.record(ctx, model.AuditRetryScheduled, task, map[string]any{
		"class":         string(decision.Class),
		"delay_seconds": int64(delay.Seconds()),
		"retry_after":   at.Format(time.RFC3339),
		"retry_count":   task.RetryCount,
		"attempts":      task.Attempts,
	})
	s.logger.Info("retry scheduled",
		"task_id", task.ID, "class", decision.Class, "delay", delay, "retry_count", task.RetryCount)
	return task, nil
}

func (s *RetryService) exhaust(ctx context.Context, task model.DeletionTask, d retry.Decision) {
	if err := s.accounts.UpdateStatus(ctx, task.AccountID, model.AccountStatusNeedsAttention); err != nil {
		s.logger.Warn("update account status failed", "account_id", task.AccountID, "error", err)
	}

	s.record(ctx, model.AuditRetryExhausted, task, map[string]any{
		"class":        string(d.Class),
		"reason":       d.Reason,
		"attempts":     task.Attempts,
		"max_attempts": d.MaxAttempts,
	})
	s.logger.Warn("retries exhausted", "task_id", task.ID, "class", d.Class, "reason", d.Reason)
}

// arm starts the wait for a scheduled retry, replacing any earlier wait for
// the same task.
func (s *RetryService) arm(taskID int64, at time.Time) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if prev, ok := s.timers[taskID]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	timer := &armedTimer{cancel: cancel}
	s.timers[taskID] = timer
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.disarm(taskID, timer)

		if err := s.sleep(ctx, at.Sub(s.now())); err != nil {
			return
		}
		s.fire(ctx, taskID, at)
	}()
}

// disarm drops the wait for taskID if it is still timer.
func (s *RetryService) disarm(taskID int64, timer *armedTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timers[taskID] == timer {
		delete(s.timers, taskID)
	}
	timer.cancel()
}

// fire executes the task if it is still waiting on the retry armed for at.
func (s *RetryService) fire(ctx context.Context, taskID int64, at time.Time) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		s.logger.Warn("scheduled retry skipped", "task_id", taskID, "error", err)
		return
	}
	if !task.RetryScheduled() || !task.RetryAfter.Equal(at) {
		s.logger.Debug("scheduled retry superseded", "task_id", taskID, "status", task.Status)
		return
	}

	if _, err := s.executor.Execute(ctx, taskID); err != nil {
		s.logger.Warn("scheduled retry did not run", "task_id", taskID, "error", err)
	}
}

// Cancel stops a scheduled retry. The task goes back to failed.
func (s *RetryService) Cancel(ctx context.Context, taskID int64) (model.DeletionTask, error) {
	release, err := s.executor.Reserve(taskID)
	if err != nil {
		return model.DeletionTask{}, fmt.Errorf("cancel retry %d: %w", taskID, err)
	}
	defer release()

	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return model.DeletionTask{}, fmt.Errorf("cancel retry %d: %w", taskID, err)
	}
	if !task.RetryScheduled() {
		return task, fmt.Errorf("cancel retry %d: %w", taskID, ErrRetryNotScheduled)
	}

	task.Status = model.TaskStatusFailed
	task.LastError = msgRetryCancelled
	task.RetryAfter = nil
	if err := s.tasks.Update(ctx, task); err != nil {
		return task, fmt.Errorf("cancel retry %d: %w", taskID, err)
	}

	s.mu.Lock()
	if timer, ok := s.timers[taskID]; ok {
		timer.cancel()
	}
	s.mu.Unlock()

	if err := s.accounts.UpdateStatus(ctx, task.AccountID, model.AccountStatusFailed); err != nil {
		s.logger.Warn("update account status failed", "account_id", task.AccountID, "error", err)
	}

	s.record(ctx, model.AuditRetryCancelled, task, nil)
	s.logger.Info("retry cancelled", "task_id", taskID)
	return task, nil
}

// BulkRetry schedules every failed task the policy still allows.
func (s *RetryService) BulkRetry(ctx context.Context) (BulkRetryReport, error) {
	failed, err := s.tasks.ListByStatus(ctx, model.TaskStatusFailed)
	if err != nil {
		return BulkRetryReport{}, fmt.Errorf("bulk retry: %w", err)
	}

	var report BulkRetryReport
	now := s.now().UTC()
	for _, task := range failed {
		if d := s.policy.ShouldRetry(task, now); !d.Retry {
			report.Skipped = append(report.Skipped, BulkSkip{TaskID: task.ID, Reason: d.Reason})
			continue
		}

		scheduled, err := s.Schedule(ctx, task.ID)
		if err != nil {
			report.Skipped = append(report.Skipped, BulkSkip{TaskID: task.ID, Reason: err.Error()})
			continue
		}
		report.Scheduled = append(report.Scheduled, scheduled)
	}

	s.logger.Info("bulk retry", "scheduled", len(report.Scheduled), "skipped", len(report.Skipped))
	return report, nil
}

// View returns the retry state of a single task.
func (s *RetryService) View(task model.DeletionTask) RetryView {
	d := s.policy.ShouldRetry(task, s.now().UTC())
	v := RetryView{
		Task:        task,
		Class:       d.Class,
		Attempts:    task.Attempts,
		MaxAttempts: d.MaxAttempts,
		RetryAfter:  task.RetryAfter,
		CanRetry:    task.Status == model.TaskStatusFailed && d.Retry,
	}
	if task.Status == model.TaskStatusFailed && !d.Retry {
		v.Reason = d.Reason
	}
	return v
}

// Status returns the retry view of every failed task and every task waiting
// on a retry.
func (s *RetryService) Status(ctx context.Context) ([]RetryView, error) {
	tasks, err := s.tasks.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("retry status: %w", err)
	}

	var views []RetryView
	for _, task := range tasks {
		if task.Status == model.TaskStatusFailed || task.RetryScheduled() {
			views = append(views, s.View(task))
		}
	}
	return views, nil
}

// Resume restores retry state after a restart. Tasks left in_progress by a
// crash are failed, and scheduled retries are re-armed. Call it before any
// deletion runs start.
func (s *RetryService) Resume(ctx context.Context) (ResumeReport, error) {
	var report ResumeReport

	stranded, err := s.tasks.ListByStatus(ctx, model.TaskStatusInProgress)
	if err != nil {
		return report, fmt.Errorf("resume: %w", err)
	}
	for _, task := range stranded {
		task.Status = model.TaskStatusFailed
		task.LastError = msgInterrupted
		if err := s.tasks.Update(ctx, task); err != nil {
			return report, fmt.Errorf("resume task %d: %w", task.ID, err)
		}
		if err := s.accounts.UpdateStatus(ctx, task.AccountID, model.AccountStatusFailed); err != nil {
			s.logger.Warn("update account status failed", "account_id", task.AccountID, "error", err)
		}
		s.record(ctx, model.AuditTaskInterrupted, task, nil)
		report.Interrupted++
	}

	pending, err := s.tasks.ListByStatus(ctx, model.TaskStatusPending)
	if err != nil {
		return report, fmt.Errorf("resume: %w", err)
	}
	for _, task := range pending {
		if task.RetryAfter == nil {
			continue
		}
		s.arm(task.ID, *task.RetryAfter)
		report.Rearmed++
	}

	s.logger.Info("retry state resumed", "rearmed", report.Rearmed, "interrupted", report.Interrupted)
	return report, nil
}

// TaskFailed is the FailureObserver hook: it schedules a retry for task, or
// records that retries are exhausted.
func (s *RetryService) TaskFailed(ctx context.Context, task model.DeletionTask) {
	if _, err := s.Schedule(ctx, task.ID); err != nil && !errors.Is(err, ErrRetryExhausted) {
		s.logger.Warn("automatic retry not scheduled", "task_id", task.ID, "error", err)
	}
}

// Pending reports how many retries are currently armed.
func (s *RetryService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels all armed retries and waits for in-flight retry runs.
func (s *RetryService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *RetryService) record(ctx context.Context, action model.AuditAction, task model.DeletionTask, details map[string]any) {
	recordAudit(ctx, s.audit, s.logger, model.AuditRecord{
		Action:    action,
		AccountID: task.AccountID,
		TaskID:    task.ID,
		Details:   details,
		CreatedAt: s.now().UTC(),
	})
}
