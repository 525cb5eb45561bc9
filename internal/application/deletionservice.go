package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// msgInterrupted is the failure recorded when shutdown cuts a run short.
const msgInterrupted = "unexpected error: interrupted"

// FailureObserver is told about every task that ends a run in failed.
type FailureObserver func(ctx context.Context, task model.DeletionTask)

// DeletionDeps are the collaborators of a DeletionService. Navigator, Mailer
// and Enricher may be nil; the service degrades to the email path or fails
// the task as described on Execute.
type DeletionDeps struct {
	Accounts  driven.AccountStore
	Tasks     driven.TaskStore
	Audit     driven.AuditSink
	Navigator driven.Navigator
	Mailer    driven.Mailer
	Enricher  driven.Enricher
	Pacer     *Pacer
	Logger    *slog.Logger
	Clock     func() time.Time
}

// DeletionConfig holds the tunables of a DeletionService.
type DeletionConfig struct {
	// MaxDifficulty skips automation for sites rated harder than this. Zero disables the check.
	MaxDifficulty int

	// AutoConfirm dispatches newly created tasks without waiting for Confirm.
	AutoConfirm bool

	Requester      Requester
	PrivacyAliases []string
}

// StartConflict is an account that already had an active task.
type StartConflict struct {
	AccountID int64
	TaskID    int64
}

// StartResult reports the outcome of Start.
type StartResult struct {
	Created   []model.DeletionTask
	Conflicts []StartConflict
}

// BatchItem is the outcome of one task in a batch.
type BatchItem struct {
	TaskID int64
	Status model.TaskStatus
	Error  string
}

// BatchReport summarizes ProcessBatch.
type BatchReport struct {
	Items     []BatchItem
	Completed int
	Failed    int
	Errors    int
}

// DeletionService owns the deletion task state machine. A task moves from
// pending to in_progress, tries the automated path first, falls back to a GDPR
// erasure email, and ends completed or failed.
type DeletionService struct {
	accounts  driven.AccountStore
	tasks     driven.TaskStore
	audit     driven.AuditSink
	navigator driven.Navigator
	mailer    driven.Mailer
	enricher  driven.Enricher
	pacer     *Pacer
	cfg       DeletionConfig
	logger    *slog.Logger
	now       func() time.Time

	accountLocks keyedMutex
	inflight     inflightSet

	observerMu sync.RWMutex
	observer   FailureObserver

	queue *taskQueue

	mu      sync.Mutex
	closed  bool
	working bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDeletionService creates a DeletionService. Accounts, Tasks and Audit are required.
func NewDeletionService(deps DeletionDeps, cfg DeletionConfig) *DeletionService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	pacer := deps.Pacer
	if pacer == nil {
		pacer = NewPacer(2*time.Second, 5*time.Second, nil, nil)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &DeletionService{
		accounts:  deps.Accounts,
		tasks:     deps.Tasks,
		audit:     deps.Audit,
		navigator: deps.Navigator,
		mailer:    deps.Mailer,
		enricher:  deps.Enricher,
		pacer:     pacer,
		cfg:       cfg,
		logger:    logger,
		now:       clock,
		queue:     newTaskQueue(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetFailureObserver registers fn to be called after a run ends in failed.
func (s *DeletionService) SetFailureObserver(fn FailureObserver) {
	s.observerMu.Lock()
	defer s.observerMu.Unlock()
	s.observer = fn
}

// Start creates a pending task for each account. Accounts that already have
// an active task are reported as conflicts. All accounts must exist.
func (s *DeletionService) Start(ctx context.Context, accountIDs []int64) (StartResult, error) {
	return s.start(ctx, accountIDs, model.MethodAutomated)
}

// StartEmail is Start for tasks that skip the browser and go straight to the
// GDPR erasure email. The tasks still wait for Confirm unless AutoConfirm is set.
func (s *DeletionService) StartEmail(ctx context.Context, accountIDs []int64) (StartResult, error) {
	return s.start(ctx, accountIDs, model.MethodEmail)
}

func (s *DeletionService) start(ctx context.Context, accountIDs []int64, method model.DeletionMethod) (StartResult, error) {
	ids := slices.Clone(accountIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	accounts := make([]model.Account, 0, len(ids))
	for _, id := range ids {
		acct, err := s.accounts.Get(ctx, id)
		if err != nil {
			return StartResult{}, fmt.Errorf("start deletion: %w", err)
		}
		accounts = append(accounts, acct)
	}

	var result StartResult
	for _, acct := range accounts {
		task, conflict, err := s.createTask(ctx, acct, method)
		if err != nil {
			return result, err
		}
		if conflict != nil {
			result.Conflicts = append(result.Conflicts, *conflict)
			continue
		}
		result.Created = append(result.Created, task)
	}

	if s.cfg.AutoConfirm && len(result.Created) > 0 {
		batch := make([]int64, 0, len(result.Created))
		for i, task := range result.Created {
			confirmed, err := s.confirm(ctx, task)
			if err != nil {
				return result, err
			}
			result.Created[i] = confirmed
			batch = append(batch, task.ID)
		}
		s.Dispatch(batch)
	}

	return result, nil
}

func (s *DeletionService) createTask(ctx context.Context, acct model.Account, method model.DeletionMethod) (model.DeletionTask, *StartConflict, error) {
	unlock := s.accountLocks.Lock(acct.ID)
	defer unlock()

	active, err := s.tasks.ActiveForAccount(ctx, acct.ID)
	if err != nil {
		return model.DeletionTask{}, nil, fmt.Errorf("check active task: %w", err)
	}
	if active != nil {
		return model.DeletionTask{}, &StartConflict{AccountID: acct.ID, TaskID: active.ID}, nil
	}

	task, err := s.tasks.Create(ctx, model.DeletionTask{
		AccountID: acct.ID,
		Method:    method,
		Status:    model.TaskStatusPending,
		CreatedAt: s.now().UTC(),
	})
	if errors.Is(err, driven.ErrActiveTaskExists) {
		return model.DeletionTask{}, &StartConflict{AccountID: acct.ID}, nil
	}
	if err != nil {
		return model.DeletionTask{}, nil, fmt.Errorf("create task: %w", err)
	}

	if err := s.accounts.UpdateStatus(ctx, acct.ID, model.AccountStatusPending); err != nil {
		return task, nil, fmt.Errorf("update account status: %w", err)
	}

	s.record(ctx, model.AuditTaskCreated, task, map[string]any{
		"site":   acct.SiteName,
		"method": string(task.Method),
	})
	s.logger.Info("deletion task created",
		"task_id", task.ID, "account_id", acct.ID, "site", acct.SiteName, "method", method)

	return task, nil, nil
}

// Confirm records the user's go-ahead for a pending task and queues it for the
// worker. A task waiting on a scheduled retry is left to its timer.
func (s *DeletionService) Confirm(ctx context.Context, taskID int64) (model.DeletionTask, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return model.DeletionTask{}, fmt.Errorf("confirm task %d: %w", taskID, err)
	}

	task, err = s.confirm(ctx, task)
	if err != nil {
		return task, err
	}

	s.Dispatch([]int64{task.ID})
	return task, nil
}

func (s *DeletionService) confirm(ctx context.Context, task model.DeletionTask) (model.DeletionTask, error) {
	if !s.inflight.acquire(task.ID) {
		return task, fmt.Errorf("confirm task %d: %w", task.ID, ErrTaskInFlight)
	}
	defer s.inflight.release(task.ID)

	if task.Status != model.TaskStatusPending {
		return task, fmt.Errorf("confirm task %d: %w", task.ID, ErrTaskNotPending)
	}
	if task.RetryAfter != nil && task.RetryAfter.After(s.now()) {
		return task, fmt.Errorf("confirm task %d: retry at %s: %w",
			task.ID, task.RetryAfter.UTC().Format(time.RFC3339), ErrRetryPending)
	}

	if task.ConfirmedAt == nil {
		now := s.now().UTC()
		task.ConfirmedAt = &now
		if err := s.tasks.Update(ctx, task); err != nil {
			return task, fmt.Errorf("confirm task %d: %w", task.ID, err)
		}
	}

	s.record(ctx, model.AuditTaskConfirmed, task, nil)
	return task, nil
}

// Reserve marks the task as busy so no run can start until release is
// called. It returns ErrTaskInFlight if a run is already in progress.
func (s *DeletionService) Reserve(taskID int64) (release func(), err error) {
	if !s.inflight.acquire(taskID) {
		return nil, fmt.Errorf("reserve task %d: %w", taskID, ErrTaskInFlight)
	}
	return func() { s.inflight.release(taskID) }, nil
}

// Execute performs one run of a pending task.
//
// An email task goes straight to the erasure request. For an automated task
// the automated path needs a navigator. A navigator that supports the site
// runs with whatever hints enrichment produced; any other site also needs a
// working enricher, a deletion URL and a difficulty within MaxDifficulty.
// When automation is skipped, or the navigator does not succeed, the task switches to the email method while
// staying in_progress and a GDPR erasure request is mailed instead. A mail
// failure ends the task in failed with LastError set. Store errors and panics
// during the run also end it in failed, as "unexpected error: <message>".
//
// Deletion failures are reported through the returned task, not the error.
func (s *DeletionService) Execute(ctx context.Context, taskID int64) (model.DeletionTask, error) {
	if !s.inflight.acquire(taskID) {
		return model.DeletionTask{}, fmt.Errorf("execute task %d: %w", taskID, ErrTaskInFlight)
	}
	released := false
	release := func() {
		if !released {
			released = true
			s.inflight.release(taskID)
		}
	}
	defer release()

	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return model.DeletionTask{}, fmt.Errorf("execute task %d: %w", taskID, err)
	}
	if task.Status != model.TaskStatusPending {
		return task, fmt.Errorf("execute task %d: %w", taskID, ErrTaskNotPending)
	}

	acct, err := s.accounts.Get(ctx, task.AccountID)
	if err != nil {
		return task, fmt.Errorf("execute task %d: %w", taskID, err)
	}

	if err := s.begin(ctx, &task, acct); err != nil {
		return task, fmt.Errorf("start task %d: %w", taskID, err)
	}

	interrupted := s.runGuarded(ctx, &task, acct)
	release()

	if task.Status == model.TaskStatusFailed && !interrupted {
		s.observerMu.RLock()
		observer := s.observer
		s.observerMu.RUnlock()
		if observer != nil {
			observer(context.WithoutCancel(ctx), task)
		}
	}

	return task, nil
}

func (s *DeletionService) begin(ctx context.Context, task *model.DeletionTask, acct model.Account) error {
	task.Status = model.TaskStatusInProgress
	task.Attempts++
	task.RetryAfter = nil
	if err := s.tasks.Update(ctx, *task); err != nil {
		return err
	}

	if err := s.accounts.UpdateStatus(ctx, acct.ID, model.AccountStatusInProgress); err != nil {
		s.logger.Warn("update account status failed", "account_id", acct.ID, "error", err)
	}

	s.record(ctx, model.AuditTaskStarted, *task, map[string]any{
		"attempt": task.Attempts,
		"method":  string(task.Method),
		"site":    acct.SiteName,
	})
	s.logger.Info("deletion started", "task_id", task.ID, "site", acct.SiteName, "attempt", task.Attempts)
	return nil
}

// runGuarded runs the state machine and converts any escaping fault into a
// failed task. It reports whether the run was cut short by ctx.
func (s *DeletionService) runGuarded(ctx context.Context, task *model.DeletionTask, acct model.Account) (interrupted bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("deletion run panicked", "task_id", task.ID, "panic", r)
			s.fail(ctx, task, acct, fmt.Sprintf("unexpected error: %v", r))
		}
	}()

	err := s.run(ctx, task, acct)
	switch {
	case err == nil:
		return false
	case ctx.Err() != nil:
		s.fail(ctx, task, acct, msgInterrupted)
		s.record(ctx, model.AuditTaskInterrupted, *task, nil)
		return true
	default:
		s.fail(ctx, task, acct, "unexpected error: "+err.Error())
		return false
	}
}

func (s *DeletionService) run(ctx context.Context, task *model.DeletionTask, acct model.Account) error {
	hints, enrichErr := s.discover(ctx, acct)
	if hints.DeletionURL != "" {
		task.DeletionURL = hints.DeletionURL
	}

	if task.Method == model.MethodAutomated {
		outcome := s.automate(ctx, acct, hints, enrichErr)
		if outcome.Succeeded() {
			return s.complete(ctx, task, acct, outcome.ConfirmationText)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.fallBack(ctx, task, acct, outcome); err != nil {
			return err
		}
	}

	return s.sendErasureRequest(ctx, task, acct, hints)
}

func (s *DeletionService) discover(ctx context.Context, acct model.Account) (model.SiteMetadata, error) {
	if s.enricher == nil {
		return model.SiteMetadata{}, ErrEnricherUnavailable
	}

	hints, err := s.enricher.Discover(ctx, acct.SiteName, acct.SiteURL)
	if err != nil {
		if !errors.Is(err, ErrEnricherUnavailable) {
			s.logger.Warn("site enrichment failed", "site", acct.SiteName, "error", err)
		}
		return model.SiteMetadata{}, err
	}
	return hints, nil
}

func skipped(reason string) model.DeletionOutcome {
	return model.DeletionOutcome{Result: model.OutcomeSkipped, SkipReason: reason}
}

func (s *DeletionService) automate(ctx context.Context, acct model.Account, hints model.SiteMetadata, enrichErr error) model.DeletionOutcome {
	if s.navigator == nil {
		return skipped(model.SkipNoNavigator)
	}

	// A supported site carries its own difficulty rating, which the navigator enforces.
	if !s.navigator.Supports(acct.SiteURL) {
		switch {
		case enrichErr != nil:
			return skipped(model.SkipNoEnrichment)
		case hints.DeletionURL == "":
			return skipped(model.SkipNoDeletionURL)
		case s.cfg.MaxDifficulty > 0 && hints.DeletionDifficulty > s.cfg.MaxDifficulty:
			return skipped(model.SkipDifficultyTooHigh)
		}
	}

	outcome, err := s.navigator.AttemptDeletion(ctx, acct, hints)
	if err != nil {
		return model.DeletionOutcome{Result: model.OutcomeFailed, Error: err.Error()}
	}
	if outcome.Result == "" {
		outcome.Result = model.OutcomeFailed
	}
	return outcome
}

// fallBack switches the task to the email method. The task stays in_progress.
func (s *DeletionService) fallBack(ctx context.Context, task *model.DeletionTask, acct model.Account, outcome model.DeletionOutcome) error {
	action := model.AuditAutomationFailed
	if outcome.Result == model.OutcomeSkipped {
		action = model.AuditAutomationSkipped
	}
	s.record(ctx, action, *task, map[string]any{
		"site":   acct.SiteName,
		"reason": outcome.Reason(),
	})

	task.Method = model.MethodEmail
	task.FallbackReason = outcome.Reason()
	if err := s.tasks.Update(ctx, *task); err != nil {
		return fmt.Errorf("switch task to email: %w", err)
	}

	s.record(ctx, model.AuditFallbackEmail, *task, map[string]any{"reason": outcome.Reason()})
	s.logger.Info("falling back to email", "task_id", task.ID, "site", acct.SiteName, "reason", outcome.Reason())
	return nil
}

func (s *DeletionService) sendErasureRequest(ctx context.Context, task *model.DeletionTask, acct model.Account, hints model.SiteMetadata) error {
	recipient, source := erasureRecipient(hints, acct.SiteURL, s.cfg.PrivacyAliases)
	if recipient == "" {
		s.fail(ctx, task, acct, "no privacy contact found for "+acct.SiteName)
		return nil
	}
	task.PrivacyEmail = recipient

	if s.mailer == nil {
		s.fail(ctx, task, acct, "no mailer configured")
		return nil
	}

	body, err := erasureBody(acct, s.cfg.Requester, s.now())
	if err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, recipient, erasureSubject(acct), body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.fail(ctx, task, acct, err.Error())
		return nil
	}

	s.record(ctx, model.AuditEmailSent, *task, map[string]any{
		"recipient":        recipient,
		"recipient_source": source,
	})
	return s.complete(ctx, task, acct, "")
}

func (s *DeletionService) complete(ctx context.Context, task *model.DeletionTask, acct model.Account, confirmation string) error {
	now := s.now().UTC()
	task.Status = model.TaskStatusCompleted
	task.CompletedAt = &now
	task.ConfirmationText = confirmation
	task.LastError = ""
	if err := s.tasks.Update(ctx, *task); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	if err := s.accounts.UpdateStatus(ctx, acct.ID, model.AccountStatusCompleted); err != nil {
		s.logger.Warn("update account status failed", "account_id", acct.ID, "error", err)
	}

	s.record(ctx, model.AuditTaskCompleted, *task, map[string]any{
		"site":   acct.SiteName,
		"method": string(task.Method),
	})
	s.logger.Info("deletion completed", "task_id", task.ID, "site", acct.SiteName, "method", task.Method)
	return nil
}

// fail ends the task in failed. It persists even when ctx is cancelled so
// shutdown never leaves a task stranded in_progress.
func (s *DeletionService) fail(ctx context.Context, task *model.DeletionTask, acct model.Account, msg string) {
	ctx = context.WithoutCancel(ctx)

	task.Status = model.TaskStatusFailed
	task.LastError = msg
	if err := s.tasks.Update(ctx, *task); err != nil {
		s.logger.Error("persist failed task", "task_id", task.ID, "error", err)
	}

	if err := s.accounts.UpdateStatus(ctx, acct.ID, model.AccountStatusFailed); err != nil {
		s.logger.Warn("update account status failed", "account_id", acct.ID, "error", err)
	}

	s.record(ctx, model.AuditTaskFailed, *task, map[string]any{
		"site":   acct.SiteName,
		"method": string(task.Method),
		"error":  msg,
	})
	s.logger.Warn("deletion failed", "task_id", task.ID, "site", acct.SiteName, "error", msg)
}

// ProcessBatch executes tasks one at a time, pausing between them.
func (s *DeletionService) ProcessBatch(ctx context.Context, taskIDs []int64) BatchReport {
	var report BatchReport

	for i, id := range taskIDs {
		if i > 0 {
			if err := s.pacer.Wait(ctx); err != nil {
				for _, rest := range taskIDs[i:] {
					report.Items = append(report.Items, BatchItem{TaskID: rest, Error: err.Error()})
					report.Errors++
				}
				break
			}
		}

		task, err := s.Execute(ctx, id)
		item := BatchItem{TaskID: id, Status: task.Status}
		switch {
		case err != nil:
			item.Error = err.Error()
			report.Errors++
		case task.Status == model.TaskStatusCompleted:
			report.Completed++
		case task.Status == model.TaskStatusFailed:
			item.Error = task.LastError
			report.Failed++
		}
		report.Items = append(report.Items, item)
	}

	return report
}

// Dispatch queues tasks for the background worker. The worker runs queued
// tasks one at a time in arrival order and waits on the pacer before every
// run after its first, so confirmations arriving one by one are paced like a
// single batch. Tasks already queued are not added twice.
func (s *DeletionService) Dispatch(taskIDs []int64) {
	if len(taskIDs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("deletion service closed, tasks dropped", "tasks", len(taskIDs))
		return
	}
	if !s.working {
		s.working = true
		s.wg.Add(1)
		go s.work()
	}
	s.queue.push(taskIDs)
}

// Queued returns the number of tasks waiting for the worker.
func (s *DeletionService) Queued() int {
	return s.queue.len()
}

func (s *DeletionService) work() {
	defer s.wg.Done()

	ran := false
	for {
		id, ok := s.queue.pop(s.ctx)
		if !ok {
			return
		}
		if ran {
			if err := s.pacer.Wait(s.ctx); err != nil {
				return
			}
		}

		task, err := s.Execute(s.ctx, id)
		if err != nil {
			s.logger.Warn("queued deletion did not run", "task_id", id, "error", err)
			continue
		}
		ran = true
		s.logger.Info("queued deletion finished", "task_id", id, "status", task.Status, "queued", s.queue.len())
	}
}

// Close stops the worker and waits for the run in flight to end. Tasks still
// queued stay pending.
func (s *DeletionService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Cancel deletes a task that is pending, or in_progress with no run in
// flight, and returns its account to discovered.
func (s *DeletionService) Cancel(ctx context.Context, taskID int64) error {
	if !s.inflight.acquire(taskID) {
		return fmt.Errorf("cancel task %d: %w", taskID, ErrTaskInFlight)
	}
	defer s.inflight.release(taskID)

	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("cancel task %d: %w", taskID, err)
	}
	if !task.Status.Active() {
		return fmt.Errorf("cancel task %d: %w", taskID, ErrTaskNotPending)
	}

	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return fmt.Errorf("cancel task %d: %w", taskID, err)
	}
	if err := s.accounts.UpdateStatus(ctx, task.AccountID, model.AccountStatusDiscovered); err != nil {
		return fmt.Errorf("cancel task %d: %w", taskID, err)
	}

	s.record(ctx, model.AuditTaskCancelled, task, map[string]any{"previous_status": string(task.Status)})
	s.logger.Info("deletion task cancelled", "task_id", taskID, "account_id", task.AccountID)
	return nil
}

// Get returns a task.
func (s *DeletionService) Get(ctx context.Context, taskID int64) (model.DeletionTask, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return model.DeletionTask{}, fmt.Errorf("get task %d: %w", taskID, err)
	}
	return task, nil
}

// List returns all tasks, or only those in status when it is non-empty.
func (s *DeletionService) List(ctx context.Context, status model.TaskStatus) ([]model.DeletionTask, error) {
	if status == "" {
		return s.tasks.ListAll(ctx)
	}
	return s.tasks.ListByStatus(ctx, status)
}

// record writes an audit entry. Audit failures are logged and never abort a transition.
func (s *DeletionService) record(ctx context.Context, action model.AuditAction, task model.DeletionTask, details map[string]any) {
	recordAudit(ctx, s.audit, s.logger, model.AuditRecord{
		Action:    action,
		AccountID: task.AccountID,
		TaskID:    task.ID,
		Details:   details,
		CreatedAt: s.now().UTC(),
	})
}

func recordAudit(ctx context.Context, sink driven.AuditSink, logger *slog.Logger, rec model.AuditRecord) {
	if sink == nil {
		return
	}
	if err := sink.Record(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("audit record failed", "action", rec.Action, "task_id", rec.TaskID, "error", err)
	}
}
