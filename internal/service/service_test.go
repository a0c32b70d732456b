package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/classplanner/internal/auth"
	"github.com/sakif/classplanner/internal/model"
	"github.com/sakif/classplanner/internal/repository/sqlite"
)

const testSecret = "test_secret_at_least_16_chars"

var fixedNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ====================================================================
// Fake mail sender
// ====================================================================

type sentMail struct {
	Subject   string
	Recipient string
	Body      string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, subject, recipient, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{subject, recipient, body})
	return nil
}

func (m *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail was sent")
	return m.sent[len(m.sent)-1]
}

var linkToken = regexp.MustCompile(`/auth/(?:confirm|reset)/([A-Za-z0-9_.\-]+)`)

func tokenFrom(t *testing.T, body string) string {
	t.Helper()
	m := linkToken.FindStringSubmatch(body)
	require.Len(t, m, 2, "no link in %q", body)
	return m[1]
}

// ====================================================================
// Fixture
// ====================================================================

type fixture struct {
	entities *model.Entities
	mailer   *fakeMailer
	now      time.Time
	auth     *AuthService
	classes  *ClassService
	tasks    *TaskService
	calendar *CalendarService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{mailer: &fakeMailer{}, now: fixedNow}
	clock := func() time.Time { return f.now }

	f.entities = model.NewEntities(db, auth.NewPasswordService(bcrypt.MinCost)).WithClock(clock)
	sessions, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	links, err := auth.NewLinkTokens(testSecret)
	require.NoError(t, err)

	logger := discardLogger()
	f.auth = NewAuthService(f.entities, sessions, links.WithClock(clock), f.mailer, "http://planner.test/", logger)
	f.classes = NewClassService(f.entities, logger)
	f.tasks = NewTaskService(f.entities, logger)
	f.calendar = NewCalendarService(logger).WithClock(clock)
	return f
}

// verified registers and confirms an account.
func (f *fixture) verified(t *testing.T, email string) *model.Account {
	t.Helper()
	ctx := context.Background()
	_, err := f.auth.Register(ctx, RegisterInput{Email: email, Password: "password123", Confirm: "password123"})
	require.NoError(t, err)
	a, err := f.auth.ConfirmEmail(ctx, tokenFrom(t, f.mailer.last(t).Body))
	require.NoError(t, err)
	return a
}

func (f *fixture) class(t *testing.T, owner *model.Account, name string) *model.ClassView {
	t.Helper()
	v, err := f.classes.Create(context.Background(), owner, ClassInput{Name: name})
	require.NoError(t, err)
	return v
}

var errMailDown = errors.New("mail server unavailable")
