package application_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/datawipe/internal/application"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

type harness struct {
	accounts *fakeAccountStore
	tasks    *fakeTaskStore
	audit    *fakeAudit
	mailer   *fakeMailer
	sleeps   *sleepRecorder
	svc      *application.DeletionService
}

type harnessOpts struct {
	navigator driven.Navigator
	enricher  driven.Enricher
	noMailer  bool
	cfg       application.DeletionConfig
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()

	h := &harness{
		accounts: newFakeAccountStore(),
		tasks:    newFakeTaskStore(),
		audit:    &fakeAudit{},
		mailer:   &fakeMailer{},
		sleeps:   &sleepRecorder{},
	}

	cfg := opts.cfg
	if cfg.PrivacyAliases == nil {
		cfg.PrivacyAliases = []string{"privacy", "data-protection", "gdpr", "legal", "support"}
	}
	if cfg.MaxDifficulty == 0 {
		cfg.MaxDifficulty = 8
	}

	deps := application.DeletionDeps{
		Accounts:  h.accounts,
		Tasks:     h.tasks,
		Audit:     h.audit,
		Navigator: opts.navigator,
		Enricher:  opts.enricher,
		Pacer:     application.NewPacer(2*time.Second, 5*time.Second, rand.New(rand.NewPCG(1, 2)), h.sleeps.sleep),
	}
	if !opts.noMailer {
		deps.Mailer = h.mailer
	}

	h.svc = application.NewDeletionService(deps, cfg)
	t.Cleanup(h.svc.Close)
	return h
}

// startOne creates a pending task for a fresh Facebook account.
func (h *harness) startOne(t *testing.T) (model.Account, model.DeletionTask) {
	t.Helper()
	acct := h.accounts.add(t, "Facebook", "https://facebook.com")
	res, err := h.svc.Start(context.Background(), []int64{acct.ID})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	return acct, res.Created[0]
}

func facebookHints() *fakeEnricher {
	return &fakeEnricher{meta: model.SiteMetadata{
		Domain:               "facebook.com",
		DeletionURL:          "https://www.facebook.com/help/delete_account",
		DeletionContactEmail: "dpo@facebook.com",
		DeletionDifficulty:   5,
	}}
}

func failingNavigator(msg string) *fakeNavigator {
	return &fakeNavigator{attempt: func(context.Context, model.Account, model.SiteMetadata) (model.DeletionOutcome, error) {
		return model.DeletionOutcome{Result: model.OutcomeFailed, Error: msg}, nil
	}}
}

func TestStart_CreatesPendingTasks(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()
	a := h.accounts.add(t, "Facebook", "https://facebook.com")
	b := h.accounts.add(t, "Netflix", "https://netflix.com")

	res, err := h.svc.Start(ctx, []int64{a.ID, b.ID, a.ID})
	require.NoError(t, err)

	require.Len(t, res.Created, 2)
	assert.Empty(t, res.Conflicts)
	for _, task := range res.Created {
		assert.Equal(t, model.TaskStatusPending, task.Status)
		assert.Equal(t, model.MethodAutomated, task.Method)
		assert.Equal(t, model.AccountStatusPending, h.accounts.status(task.AccountID))
	}
	assert.Equal(t, []model.AuditAction{model.AuditTaskCreated, model.AuditTaskCreated}, h.audit.actions())
}

func TestStart_ReportsConflictForActiveTask(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	acct, first := h.startOne(t)

	res, err := h.svc.Start(context.Background(), []int64{acct.ID})
	require.NoError(t, err)

	assert.Empty(t, res.Created)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, first.ID, res.Conflicts[0].TaskID)
}

func TestStart_UnknownAccount(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	_, err := h.svc.Start(context.Background(), []int64{404})
	assert.ErrorIs(t, err, driven.ErrAccountNotFound)
}

func TestStart_ConcurrentStartsCreateOneTask(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	acct := h.accounts.add(t, "Facebook", "https://facebook.com")

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.svc.Start(context.Background(), []int64{acct.ID})
			assert.NoError(t, err)
			mu.Lock()
			created += len(res.Created)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}

func TestStartEmail_SkipsNavigator(t *testing.T) {
	never := &fakeNavigator{
		scripted: []string{"https://facebook.com"},
		attempt: func(context.Context, model.Account, model.SiteMetadata) (model.DeletionOutcome, error) {
			t.Error("navigator must not be called")
			return model.DeletionOutcome{}, nil
		},
	}
	h := newHarness(t, harnessOpts{
		navigator: never,
		enricher:  facebookHints(),
		cfg:       application.DeletionConfig{AutoConfirm: true},
	})
	acct := h.accounts.add(t, "Facebook", "https://facebook.com")

	res, err := h.svc.StartEmail(context.Background(), []int64{acct.ID})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	task := res.Created[0]
	assert.Equal(t, model.MethodEmail, task.Method)
	assert.NotNil(t, task.ConfirmedAt)

	require.Eventually(t, func() bool {
		got, err := h.tasks.Get(context.Background(), task.ID)
		return err == nil && got.Status == model.TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err := h.tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "dpo@facebook.com", got.PrivacyEmail)
	assert.Empty(t, got.FallbackReason)
	assert.Zero(t, never.callCount())

	mails := h.mailer.sentMails()
	require.Len(t, mails, 1)
	assert.Equal(t, "dpo@facebook.com", mails[0].To)

	created, ok := h.audit.find(model.AuditTaskCreated)
	require.True(t, ok)
	assert.Equal(t, "email", created.Details["method"])
	_, skippedAutomation := h.audit.find(model.AuditAutomationSkipped)
	assert.False(t, skippedAutomation)
}

func TestStartEmail_WaitsForConfirm(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	acct := h.accounts.add(t, "Facebook", "https://facebook.com")

	res, err := h.svc.StartEmail(context.Background(), []int64{acct.ID})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, model.TaskStatusPending, res.Created[0].Status)
	assert.Nil(t, res.Created[0].ConfirmedAt)
	assert.Empty(t, h.mailer.sentMails())

	again, err := h.svc.StartEmail(context.Background(), []int64{acct.ID})
	require.NoError(t, err)
	assert.Len(t, again.Conflicts, 1)
}

func TestExecute_NavigatorSuccess(t *testing.T) {
	nav := &fakeNavigator{attempt: func(_ context.Context, _ model.Account, hints model.SiteMetadata) (model.DeletionOutcome, error) {
		assert.Equal(t, "https://www.facebook.com/help/delete_account", hints.DeletionURL)
		return model.DeletionOutcome{Result: model.OutcomeSucceeded, ConfirmationText: "Your account is scheduled for deletion"}, nil
	}}
	h := newHarness(t, harnessOpts{navigator: nav, enricher: facebookHints()})
	acct, task := h.startOne(t)

	got, err := h.svc.Execute(context.Background(), task.ID)
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Equal(t, model.MethodAutomated, got.Method)
	assert.Equal(t, 1, got.Attempts)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, "Your account is scheduled for deletion", got.ConfirmationText)
	assert.Equal(t, model.AccountStatusCompleted, h.accounts.status(acct.ID))
	assert.Empty(t, h.mailer.sentMails())
}

func TestExecute_NavigatorFailureFallsBackToEmailWhileInProgress(t *testing.T) {
	h := newHarness(t, harnessOpts{navigator: failingNavigator("captcha wall"), enricher: facebookHints()})
	_, task := h.startOne(t)

	var atSend model.DeletionTask
	h.mailer.onSend = func() {
		atSend, _ = h.tasks.Get(context.Background(), task.ID)
	}

	got, err := h.svc.Execute(context.Background(), task.ID)
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusInProgress, atSend.Status, "task stays in_progress until the mailer is called")
	assert.Equal(t, model.MethodEmail, atSend.Method)
	assert.Equal(t, "captcha wall", atSend.FallbackReason)

	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Equal(t, "dpo@facebook.com", got.PrivacyEmail)

	mails := h.mailer.sentMails()
	require.Len(t, mails, 1)
	assert.Equal(t, "dpo@facebook.com", mails[0].To)
	assert.Equal(t, "GDPR Article 17 Data Deletion Request - alice", mails[0].Subject)
	assert.Contains(t, mails[0].Body, "Dear Facebook Data Protection Team")

	assert.Equal(t, []model.AuditAction{
		model.AuditTaskCreated,
		model.AuditTaskStarted,
		model.AuditAutomationFailed,
		model.AuditFallbackEmail,
		model.AuditEmailSent,
		model.AuditTaskCompleted,
	}, h.audit.actions())

	sent, ok := h.audit.find(model.AuditEmailSent)
	require.True(t, ok)
	assert.Equal(t, "known", sent.Details["recipient_source"])
}

func TestExecute_MailerFailureEndsFailed(t *testing.T) {
	h := newHarness(t, harnessOpts{navigator: failingNavigator("site changed"), enricher: facebookHints()})
	h.mailer.err = errors.New("smtp: 550 mailbox unavailable")
	acct, task := h.startOne(t)

	got, err := h.svc.Execute(context.Background(), task.ID)
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, model.MethodEmail, got.Method)
	assert.Equal(t, "smtp: 550 mailbox unavailable", got.LastError)
	assert.Equal(t, model.AccountStatusFailed, h.accounts.status(acct.ID))

	stored, err := h.tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "smtp: 550 mailbox unavailable", stored.LastError)
}

func TestExecute_NoNavigatorGuessesPrivacyAlias(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	_, task := h.startOne(t)

	got, err := h.svc.Execute(context.Background(), task.ID)
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Equal(t, model.SkipNoNavigator, got.FallbackReason)
	assert.Equal(t, "privacy@facebook.com", got.PrivacyEmail)

	skipped, ok := h.audit.find(model.AuditAutomationSkipped)
	require.True(t, ok)
	assert.Equal(t, model.SkipNoNavigator, skipped.Details["reason"])

	sent, ok := h.audit.find(model.AuditEmailSent)
	require.True(t, ok)
	assert.Equal(t, "guessed", sent.Details["recipient_source"])
}

func TestExecute_SkipReasons(t *testing.T) {
	never := &fakeNavigator{attempt: func(context.Context, model.Account, model.SiteMetadata) (model.DeletionOutcome, error) {
		t.Error("navigator must not be called")
		return model.DeletionOutcome{}, nil
	}}

	tests := []struct {
		name     string
		enricher *fakeEnricher
		want     string
	}{
		{"enricher error", &fakeEnricher{err: errors.New("quota exceeded")}, model.SkipNoEnrichment},
		{"no deletion url", &fakeEnricher{meta: model.SiteMetadata{DeletionDifficulty: 3}}, model.SkipNoDeletionURL},
		{"too difficult", &fakeEnricher{meta: model.SiteMetadata{DeletionURL: "https://x.test/delete", DeletionDifficulty: 9}}, model.SkipDifficultyTooHigh},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, harnessOpts{navigator: never, enricher: tc.enricher})
			_, task := h.startOne(t)

			got, err := h.svc.Execute(context.Background(), task.ID)
			require.NoError(t, err)

			assert.Equal(t, tc.want, got.FallbackReason)
			assert.Equal(t, model.MethodEmail, got.Method)
			assert.Equal(t, model.TaskStatusCompleted, got.Status)
		})
	}
}

func TestExecute_ScriptedSiteSkipsEnrichmentChecks(t *testing.T) {
	tests := []struct {
		name     string
		enricher driven.Enricher
	}{
		{"no enricher", nil},
		{"enricher error", &fakeEnricher{err: errors.New("quota exceeded")}},
		{"no deletion url", &fakeEnricher{meta: model.SiteMetadata{DeletionContactEmail: "dpo@facebook.com"}}},
		{"rated too difficult", &fakeEnricher{meta: model.SiteMetadata{DeletionURL: "https://x.test/delete", DeletionDifficulty: 10}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nav := &fakeNavigator{
				scripted: []string{"https://facebook.com"},
				attempt: func(context.Context, model.Account, model.SiteMetadata) (model.DeletionOutcome, error) {
					return model.DeletionOutcome{Result: model.OutcomeSucceeded, ConfirmationText: "account deleted"}, nil
				},
			}
			h := newHarness(t, harnessOpts{navigator: nav, enricher: tc.enricher})
			_, task := h.startOne(t)

			got, err := h.svc.Execute(context.Background(), task.ID)
			require.NoError(t, err)

			assert.Equal(t, 1, nav.callCount())
			assert.Equal(t, model.TaskStatusCompleted, got.Status)
			assert.Equal(t, model.MethodAutomated, got.Method)
			assert.Empty(t, h.mailer.sentMails())
		})
	}
}

func TestExecute_NoMailerFails(t *testing.T) {
	h := newHarness(t, harnessOpts{noMailer: true})
	_, task := h.startOne(t)

	got, err := h.svc.Execute(context.Background(), task.ID)
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, "no mailer configured", got.LastError)
}

func TestExecute_PanicBecomesUnexpectedError(t *testing.T) {
	nav := &fakeNavigator{attempt: func(context.Context, model.Account, model.SiteMetadata) (model.DeletionOutcome, error) {
		panic("boom")
	}}
	h := newHarness(t, harnessOpts{navigator: nav, enricher: facebookHints()})
	acct, task := h.startOne(t)

	got, err := h.svc.Execute(context.Background(), task.ID)
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, "unexpected error: boom", got.LastError)
	assert.Equal(t, model.AccountStatusFailed, h.accounts.status(acct.ID))
}

func TestExecute_StoreErrorBecomesUnexpectedError(t *testing.T) {
	nav := failingNavigator("nope")
	h := newHarness(t, harnessOpts{navigator: nav, enricher: facebookHints()})
	_, task := h.startOne(t)

	// Let begin succeed, then make the fallback write fail.
	h.mailer.onSend = func() { t.Error("mailer must not be reached") }
	nav.attempt = func(context.Context, model.Account, model.SiteMetadata) (model.DeletionOutcome, error) {
		h.tasks.setFailUpdate(errors.New("disk I/O error"))
		return model.DeletionOutcome{Result: model.OutcomeFailed, Error: "nope"}, nil
	}

	got, err := h.svc.Execute(context.Background(), task.ID)
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.True(t, strings.HasPrefix(got.LastError, "unexpected error: "), got.LastError)
	assert.Contains(t, got.LastError, "disk I/O error")
}

func TestExecute_RequiresPendingTask(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	_, task := h.startOne(t)

	_, err := h.svc.Execute(context.Background(), task.ID)
	require.NoError(t, err)

	_, err = h.svc.Execute(context.Background(), task.ID)
	assert.ErrorIs(t, err, application.ErrTaskNotPending)

	_, err = h.svc.Confirm(context.Background(), task.ID)
	assert.ErrorIs(t, err, application.ErrTaskNotPending)

	_, err = h.svc.Execute(context.Background(), 999)
	assert.ErrorIs(t, err, driven.ErrTaskNotFound)
}

func TestExecute_SecondRunWhileInFlightRejected(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	nav := &fakeNavigator{attempt: func(context.Context, model.Account, model.SiteMetadata) (model.DeletionOutcome, error) {
		close(entered)
		<-unblock
		return model.DeletionOutcome{Result: model.OutcomeSucceeded}, nil
	}}
	h := newHarness(t, harnessOpts{navigator: nav, enricher: facebookHints()})
	_, task := h.startOne(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := h.svc.Execute(context.Background(), task.ID)
		assert.NoError(t, err)
	}()
	<-entered

	_, err := h.svc.Execute(context.Background(), task.ID)
	assert.ErrorIs(t, err, application.ErrTaskInFlight)

	err = h.svc.Cancel(context.Background(), task.ID)
	assert.ErrorIs(t, err, application.ErrTaskInFlight)

	close(unblock)
	<-done
}

func TestExecute_FailureObserverCalledOnFailure(t *testing.T) {
	h := newHarness(t, harnessOpts{noMailer: true})
	_, task := h.startOne(t)

	var observed []model.DeletionTask
	h.svc.SetFailureObserver(func(_ context.Context, failed model.DeletionTask) {
		observed = append(observed, failed)
	})

	_, err := h.svc.Execute(context.Background(), task.ID)
	require.NoError(t, err)

	require.Len(t, observed, 1)
	assert.Equal(t, task.ID, observed[0].ID)
	assert.Equal(t, model.TaskStatusFailed, observed[0].Status)
}

func TestExecute_CancelledContextMarksInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	nav := &fakeNavigator{attempt: func(ctx context.Context, _ model.Account, _ model.SiteMetadata) (model.DeletionOutcome, error) {
		cancel()
		return model.DeletionOutcome{}, ctx.Err()
	}}
	h := newHarness(t, harnessOpts{navigator: nav, enricher: facebookHints()})
	_, task := h.startOne(t)

	observed := false
	h.svc.SetFailureObserver(func(context.Context, model.DeletionTask) { observed = true })

	got, err := h.svc.Execute(ctx, task.ID)
	require.NoError(t, err)

	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, "unexpected error: interrupted", got.LastError)
	assert.False(t, observed, "interrupted runs are not retried automatically")
	assert.Empty(t, h.mailer.sentMails())
	_, ok := h.audit.find(model.AuditTaskInterrupted)
	assert.True(t, ok)
}

func TestCancel_PendingTask(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	acct, task := h.startOne(t)

	require.NoError(t, h.svc.Cancel(context.Background(), task.ID))

	_, err := h.tasks.Get(context.Background(), task.ID)
	assert.ErrorIs(t, err, driven.ErrTaskNotFound)
	assert.Equal(t, model.AccountStatusDiscovered, h.accounts.status(acct.ID))
	_, ok := h.audit.find(model.AuditTaskCancelled)
	assert.True(t, ok)

	// The account can be started again.
	res, err := h.svc.Start(context.Background(), []int64{acct.ID})
	require.NoError(t, err)
	assert.Len(t, res.Created, 1)
}

func TestCancel_StrandedInProgressTask(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	acct := h.accounts.add(t, "Facebook", "https://facebook.com")
	h.tasks.put(model.DeletionTask{AccountID: acct.ID, Status: model.TaskStatusInProgress, Method: model.MethodEmail})

	require.NoError(t, h.svc.Cancel(context.Background(), 1))
}

func TestCancel_FinishedTaskRejected(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	_, task := h.startOne(t)
	_, err := h.svc.Execute(context.Background(), task.ID)
	require.NoError(t, err)

	err = h.svc.Cancel(context.Background(), task.ID)
	assert.ErrorIs(t, err, application.ErrTaskNotPending)
}

func TestProcessBatch_PacesBetweenTasks(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	var ids []int64
	for _, site := range []string{"facebook", "netflix", "spotify"} {
		acct := h.accounts.add(t, site, "https://"+site+".com")
		res, err := h.svc.Start(context.Background(), []int64{acct.ID})
		require.NoError(t, err)
		ids = append(ids, res.Created[0].ID)
	}

	report := h.svc.ProcessBatch(context.Background(), ids)

	assert.Equal(t, 3, report.Completed)
	assert.Zero(t, report.Failed)
	require.Len(t, report.Items, 3)

	delays := h.sleeps.recorded()
	require.Len(t, delays, 2, "no pause before the first task")
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestProcessBatch_StopsWhenCancelled(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	a := h.accounts.add(t, "facebook", "https://facebook.com")
	b := h.accounts.add(t, "netflix", "https://netflix.com")
	res, err := h.svc.Start(context.Background(), []int64{a.ID, b.ID})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h.mailer.onSend = cancel

	report := h.svc.ProcessBatch(ctx, []int64{res.Created[0].ID, res.Created[1].ID})

	require.Len(t, report.Items, 2)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.Errors)

	second, err := h.tasks.Get(context.Background(), res.Created[1].ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, second.Status)
}

func TestConfirm_DispatchesInBackground(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	_, task := h.startOne(t)

	confirmed, err := h.svc.Confirm(context.Background(), task.ID)
	require.NoError(t, err)
	assert.NotNil(t, confirmed.ConfirmedAt)

	assert.Eventually(t, func() bool {
		got, err := h.tasks.Get(context.Background(), task.ID)
		return err == nil && got.Status == model.TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConfirm_RunsTasksOneAtATimeWithPacing(t *testing.T) {
	nav := &fakeNavigator{attempt: func(context.Context, model.Account, model.SiteMetadata) (model.DeletionOutcome, error) {
		time.Sleep(20 * time.Millisecond)
		return model.DeletionOutcome{Result: model.OutcomeSucceeded}, nil
	}}
	h := newHarness(t, harnessOpts{navigator: nav, enricher: facebookHints()})
	ctx := context.Background()

	var ids []int64
	for _, site := range []string{"facebook", "netflix", "spotify"} {
		acct := h.accounts.add(t, site, "https://"+site+".com")
		res, err := h.svc.Start(ctx, []int64{acct.ID})
		require.NoError(t, err)
		ids = append(ids, res.Created[0].ID)
	}

	for _, id := range ids {
		_, err := h.svc.Confirm(ctx, id)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		done, _ := h.tasks.ListByStatus(ctx, model.TaskStatusCompleted)
		return len(done) == 3
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, nav.callCount())
	assert.Equal(t, 1, nav.peakConcurrency(), "confirmed tasks never overlap")
	delays := h.sleeps.recorded()
	require.Len(t, delays, 2, "one pause between each pair of runs")
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestConfirm_QueuesTaskOnce(t *testing.T) {
	entered := make(chan struct{}, 2)
	unblock := make(chan struct{})
	nav := &fakeNavigator{attempt: func(context.Context, model.Account, model.SiteMetadata) (model.DeletionOutcome, error) {
		entered <- struct{}{}
		<-unblock
		return model.DeletionOutcome{Result: model.OutcomeSucceeded}, nil
	}}
	h := newHarness(t, harnessOpts{navigator: nav, enricher: facebookHints()})
	ctx := context.Background()
	_, first := h.startOne(t)
	b := h.accounts.add(t, "Netflix", "https://netflix.com")
	res, err := h.svc.Start(ctx, []int64{b.ID})
	require.NoError(t, err)
	second := res.Created[0]

	_, err = h.svc.Confirm(ctx, first.ID)
	require.NoError(t, err)
	<-entered

	_, err = h.svc.Confirm(ctx, second.ID)
	require.NoError(t, err)
	_, err = h.svc.Confirm(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.svc.Queued())

	close(unblock)
	require.Eventually(t, func() bool {
		done, _ := h.tasks.ListByStatus(ctx, model.TaskStatusCompleted)
		return len(done) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, nav.callCount())
	assert.Zero(t, h.svc.Queued())
}

func TestConfirm_RejectsTaskWaitingOnRetry(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	acct := h.accounts.add(t, "Facebook", "https://facebook.com")
	later := time.Now().Add(time.Hour)
	h.tasks.put(model.DeletionTask{
		AccountID:  acct.ID,
		Method:     model.MethodAutomated,
		Status:     model.TaskStatusPending,
		Attempts:   1,
		RetryCount: 1,
		RetryAfter: &later,
	})

	_, err := h.svc.Confirm(context.Background(), 1)
	require.ErrorIs(t, err, application.ErrRetryPending)

	stored, err := h.tasks.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, stored.ConfirmedAt)
	assert.Zero(t, h.svc.Queued())
	_, ok := h.audit.find(model.AuditTaskConfirmed)
	assert.False(t, ok)

	// Once the retry time has passed the task can be confirmed by hand.
	earlier := time.Now().Add(-time.Minute)
	stored.RetryAfter = &earlier
	h.tasks.put(stored)

	_, err = h.svc.Confirm(context.Background(), 1)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		got, err := h.tasks.Get(context.Background(), 1)
		return err == nil && got.Status == model.TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStart_AutoConfirmDispatches(t *testing.T) {
	h := newHarness(t, harnessOpts{cfg: application.DeletionConfig{AutoConfirm: true}})
	a := h.accounts.add(t, "facebook", "https://facebook.com")
	b := h.accounts.add(t, "netflix", "https://netflix.com")

	res, err := h.svc.Start(context.Background(), []int64{a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, res.Created, 2)

	assert.Eventually(t, func() bool {
		done, _ := h.tasks.ListByStatus(context.Background(), model.TaskStatusCompleted)
		return len(done) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, h.sleeps.recorded(), 1, "one paced batch")
}

func TestClose_StopsBackgroundBatches(t *testing.T) {
	nav := &fakeNavigator{attempt: func(ctx context.Context, _ model.Account, _ model.SiteMetadata) (model.DeletionOutcome, error) {
		<-ctx.Done()
		return model.DeletionOutcome{}, ctx.Err()
	}}
	h := newHarness(t, harnessOpts{navigator: nav, enricher: facebookHints()})
	_, task := h.startOne(t)

	_, err := h.svc.Confirm(context.Background(), task.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return nav.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.svc.Close()

	got, err := h.tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, "unexpected error: interrupted", got.LastError)

	// Dispatch after Close is dropped.
	h.svc.Dispatch([]int64{task.ID})
}

func TestList_FiltersByStatus(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	h.startOne(t)

	pending, err := h.svc.List(context.Background(), model.TaskStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	failed, err := h.svc.List(context.Background(), model.TaskStatusFailed)
	require.NoError(t, err)
	assert.Empty(t, failed)

	all, err := h.svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
