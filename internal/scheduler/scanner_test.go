package scheduler

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/notify"
	"github.com/issuetrack/backend/internal/store"
	"github.com/issuetrack/backend/internal/testutil"
)

type recordingNotifier struct {
	mu sync.Mutex
	// failTitles makes sends for issues with these titles fail.
	failTitles map[string]bool
	// blockTitles makes sends for these titles hang until ctx is done.
	blockTitles map[string]bool
	sent        []notify.Message
}

func (r *recordingNotifier) Send(ctx context.Context, msg notify.Message) error {
	for title := range r.blockTitles {
		if strings.Contains(msg.Subject, title) {
			<-ctx.Done()
			return ctx.Err()
		}
	}
	for title := range r.failTitles {
		if strings.Contains(msg.Subject, title) {
			return errors.New("relay refused")
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingNotifier) messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.sent...)
}

type fixture struct {
	db       *gorm.DB
	store    *store.Store
	notifier *recordingNotifier
	scanner  *Scanner
	now      time.Time
	owner    *model.User
	dev      *model.User
	maint    *model.User
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	s := store.New(db)
	n := &recordingNotifier{failTitles: map[string]bool{}, blockTitles: map[string]bool{}}
	f := &fixture{
		db:       db,
		store:    s,
		notifier: n,
		now:      time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		owner:    testutil.CreateUser(t, db, "owner", model.GlobalOwner),
		dev:      testutil.CreateUser(t, db, "dev", model.GlobalDeveloper),
		maint:    testutil.CreateUser(t, db, "maint", model.GlobalDeveloper),
	}
	f.scanner = NewScanner(s, s, s, n, ScannerConfig{SendTimeout: 50 * time.Millisecond, Workers: workers, MailDomain: "tracker.test"})
	f.scanner.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) project(t *testing.T, key string, alerts bool, members ...model.Member) *model.Project {
	t.Helper()
	p := testutil.CreateProject(t, f.db, key, f.owner, members...)
	if !alerts {
		require.NoError(t, f.db.Model(p).Update("email_alert_on_delayed_issue", false).Error)
	}
	return p
}

func (f *fixture) issue(t *testing.T, p *model.Project, title string, deadline time.Time) *model.Issue {
	t.Helper()
	is := &model.Issue{ProjectID: p.ID, Title: title, Status: model.StatusToDo, IssueType: model.TypeTask, Deadline: &deadline}
	require.NoError(t, f.db.Create(is).Error)
	return is
}

func (f *fixture) emailSent(t *testing.T, id uint) bool {
	t.Helper()
	is, err := f.store.GetIssue(context.Background(), id)
	require.NoError(t, err)
	return is.EmailSent
}

func TestScanAlertsDisabledLeavesIssuePending(t *testing.T) {
	f := newFixture(t, 1)
	p := f.project(t, "OFF", false)
	is := f.issue(t, p, "Quiet", f.now.Add(-time.Hour))

	report, err := f.scanner.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.notifier.messages())
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Skipped)
	assert.False(t, f.emailSent(t, is.ID))

	// Still a candidate on the next scan.
	report, err = f.scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
}

func TestScanMailsOwnersAndMaintainersOnly(t *testing.T) {
	f := newFixture(t, 1)
	p := f.project(t, "ON", true, model.Member{UserID: f.dev.ID, Role: model.ProjectDeveloper})
	is := f.issue(t, p, "Login broken", f.now.Add(-time.Hour))

	report, err := f.scanner.Run(context.Background())
	require.NoError(t, err)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{f.owner.Email}, msgs[0].To)
	assert.Equal(t, "Issue Login broken crossed deadline", msgs[0].Subject)
	assert.True(t, strings.HasSuffix(msgs[0].ID, "@tracker.test"))
	assert.Equal(t, 1, report.Notified)
	assert.True(t, f.emailSent(t, is.ID))
}

func TestScanIncludesMaintainers(t *testing.T) {
	f := newFixture(t, 1)
	p := f.project(t, "MNT", true,
		model.Member{UserID: f.maint.ID, Role: model.ProjectMaintainer},
		model.Member{UserID: f.dev.ID, Role: model.ProjectDeveloper},
	)
	f.issue(t, p, "Slow page", f.now.Add(-time.Minute))

	_, err := f.scanner.Run(context.Background())
	require.NoError(t, err)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	assert.ElementsMatch(t, []string{f.owner.Email, f.maint.Email}, msgs[0].To)
}

func TestScanIsIdempotent(t *testing.T) {
	f := newFixture(t, 4)
	p := f.project(t, "IDEM", true)
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		f.issue(t, p, title, f.now.Add(-time.Hour))
	}
	f.issue(t, p, "later", f.now.Add(time.Hour))

	first, err := f.scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, first.Notified)
	assert.Len(t, f.notifier.messages(), 5)

	second, err := f.scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Candidates)
	assert.Len(t, f.notifier.messages(), 5)
}

func TestScanIsolatesSendFailures(t *testing.T) {
	f := newFixture(t, 2)
	p := f.project(t, "ISO", true)
	bad := f.issue(t, p, "bad", f.now.Add(-2*time.Hour))
	good := f.issue(t, p, "good", f.now.Add(-time.Hour))
	f.notifier.failTitles["bad"] = true

	report, err := f.scanner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Notified)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Error(), "relay refused")
	assert.False(t, f.emailSent(t, bad.ID))
	assert.True(t, f.emailSent(t, good.ID))

	// The failed issue is retried next time.
	delete(f.notifier.failTitles, "bad")
	report, err = f.scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified)
	assert.True(t, f.emailSent(t, bad.ID))
}

func TestScanTimesOutStuckSend(t *testing.T) {
	f := newFixture(t, 1)
	p := f.project(t, "STK", true)
	stuck := f.issue(t, p, "stuck", f.now.Add(-2*time.Hour))
	next := f.issue(t, p, "next", f.now.Add(-time.Hour))
	f.notifier.blockTitles["stuck"] = true

	report, err := f.scanner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0], context.DeadlineExceeded)
	assert.False(t, f.emailSent(t, stuck.ID))
	assert.True(t, f.emailSent(t, next.ID))
}

// cancellingNotifier delivers the mail and then cancels the scan, as a
// client disconnect or shutdown would.
type cancellingNotifier struct {
	recordingNotifier
	cancel context.CancelFunc
}

func (c *cancellingNotifier) Send(ctx context.Context, msg notify.Message) error {
	err := c.recordingNotifier.Send(ctx, msg)
	c.cancel()
	return err
}

func TestScanFlagsDeliveredIssueAfterCancellation(t *testing.T) {
	f := newFixture(t, 1)
	p := f.project(t, "CXL", true)
	is := f.issue(t, p, "late", f.now.Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := &cancellingNotifier{cancel: cancel}
	f.scanner.notifier = n

	report, _ := f.scanner.Run(ctx)
	assert.Equal(t, 1, report.Notified)
	assert.Empty(t, report.Failures)
	assert.True(t, f.emailSent(t, is.ID))

	// A later scan finds nothing left to send.
	f.scanner.notifier = f.notifier
	report, err := f.scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Candidates)
	assert.Len(t, n.messages(), 1)
	assert.Empty(t, f.notifier.messages())
}

func TestScanEmptyRecipientListStillFlags(t *testing.T) {
	f := newFixture(t, 1)
	p := f.project(t, "EMP", true)
	// Drop the owner entry, leaving only a developer.
	p.Members = model.Members{{UserID: f.dev.ID, Role: model.ProjectDeveloper}}
	require.NoError(t, f.store.SaveProject(context.Background(), p))
	is := f.issue(t, p, "orphan", f.now.Add(-time.Hour))

	report, err := f.scanner.Run(context.Background())
	require.NoError(t, err)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].To)
	assert.Equal(t, 1, report.Notified)
	assert.True(t, f.emailSent(t, is.ID))
}

func TestScanSkipsMembersWithoutAccount(t *testing.T) {
	f := newFixture(t, 1)
	p := f.project(t, "GONE", true, model.Member{UserID: 9999, Role: model.ProjectMaintainer})
	f.issue(t, p, "ghost", f.now.Add(-time.Hour))

	_, err := f.scanner.Run(context.Background())
	require.NoError(t, err)

	msgs := f.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{f.owner.Email}, msgs[0].To)
}

func TestScanAfterProjectDeletion(t *testing.T) {
	f := newFixture(t, 1)
	p := f.project(t, "CAS", true)
	is := f.issue(t, p, "doomed", f.now.Add(-time.Hour))

	require.NoError(t, f.store.DeleteProject(context.Background(), p.ID))

	report, err := f.scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Candidates)
	assert.Empty(t, f.notifier.messages())

	_, err = f.store.GetIssue(context.Background(), is.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type failingIssues struct{ err error }

func (f failingIssues) OverdueUnnotified(context.Context, time.Time) iter.Seq2[model.Issue, error] {
	return func(yield func(model.Issue, error) bool) {
		yield(model.Issue{}, f.err)
	}
}

func (failingIssues) MarkNotified(context.Context, uint) (bool, error) { return false, nil }

func TestScanSurfacesQueryError(t *testing.T) {
	boom := errors.New("connection reset")
	s := NewScanner(failingIssues{err: boom}, nil, nil, &recordingNotifier{}, ScannerConfig{})
	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}
