package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap/zaptest"

	"github.com/acara/acara-auth/internal/core/domain"
	"github.com/acara/acara-auth/internal/core/port"
	"github.com/acara/acara-auth/internal/infra/config"
	"github.com/acara/acara-auth/internal/infra/mail"
	"github.com/acara/acara-auth/internal/infra/security"
)

func newRegistration(t *testing.T, users *memoryUserRepository, notifier *recordingNotifier, events *recordingPublisher) *RegistrationService {
	t.Helper()
	var (
		n port.ActivationNotifier
		e port.EventPublisher
	)
	if notifier != nil {
		n = notifier
	}
	if events != nil {
		e = events
	}
	return NewRegistrationService(users, newTestHasher(t), security.NewPasswordPolicy(0), n, e, zaptest.NewLogger(t))
}

func TestRegister_CreatesPendingUser(t *testing.T) {
	users := newMemoryUserRepository()
	notifier := &recordingNotifier{}
	events := &recordingPublisher{}
	svc := newRegistration(t, users, notifier, events)

	user, err := svc.Register(context.Background(), janeInput())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if user.PasswordHash != "" || user.ActivationCode != nil {
		t.Fatalf("returned user must be sanitized: %+v", user)
	}
	if user.Role != domain.RoleUser || user.IsActive || user.ProfilePicture != domain.DefaultProfilePicture {
		t.Fatalf("unexpected registered user: %+v", user)
	}

	stored := users.only(t)
	if stored.PasswordHash == "" || stored.PasswordHash == "Secret123" {
		t.Fatalf("expected stored digest, got %q", stored.PasswordHash)
	}
	if stored.ActivationCode == nil || *stored.ActivationCode == "" {
		t.Fatalf("expected activation code on pending user")
	}
	if stored.State() != domain.ActivationPending {
		t.Fatalf("expected pending state, got %s", stored.State())
	}

	if len(notifier.notices) != 1 || notifier.notices[0].Code != *stored.ActivationCode || notifier.notices[0].Email != "jane@x.io" {
		t.Fatalf("expected one activation notice with the stored code, got %+v", notifier.notices)
	}
	if len(events.registered) != 1 || events.registered[0].UserID != stored.ID {
		t.Fatalf("expected user.registered event, got %+v", events.registered)
	}
}

func TestRegister_DuplicateIsConflict(t *testing.T) {
	users := newMemoryUserRepository()
	svc := newRegistration(t, users, nil, nil)

	if _, err := svc.Register(context.Background(), janeInput()); err != nil {
		t.Fatalf("first Register returned error: %v", err)
	}

	dupUserName := janeInput()
	dupUserName.Email = "other@x.io"
	_, err := svc.Register(context.Background(), dupUserName)
	if !errors.Is(err, ErrUserConflict) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	dupEmail := janeInput()
	dupEmail.UserName = "jane2"
	if _, err := svc.Register(context.Background(), dupEmail); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
}

func TestRegister_ValidationFailures(t *testing.T) {
	svc := newRegistration(t, newMemoryUserRepository(), nil, nil)

	cases := map[string]func(*RegisterInput){
		"missing full name":  func(in *RegisterInput) { in.FullName = " " },
		"missing user name":  func(in *RegisterInput) { in.UserName = "" },
		"bad email":          func(in *RegisterInput) { in.Email = "not-an-email" },
		"weak password":      func(in *RegisterInput) { in.Password, in.ConfirmPassword = "secret", "secret" },
		"no uppercase":       func(in *RegisterInput) { in.Password, in.ConfirmPassword = "secret123", "secret123" },
		"mismatched confirm": func(in *RegisterInput) { in.ConfirmPassword = "Secret124" },
		"missing confirm":    func(in *RegisterInput) { in.ConfirmPassword = "" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := janeInput()
			mutate(&in)
			if _, err := svc.Register(context.Background(), in); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRegister_NotifierFailureDoesNotRollBack(t *testing.T) {
	users := newMemoryUserRepository()
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	events := &recordingPublisher{err: errors.New("broker down")}
	svc := newRegistration(t, users, notifier, events)

	if _, err := svc.Register(context.Background(), janeInput()); err != nil {
		t.Fatalf("Register must succeed despite side-effect failures, got %v", err)
	}
	users.only(t)
}

type heldTransport struct {
	release chan struct{}
	sent    atomic.Int32
}

func (h *heldTransport) DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error {
	select {
	case <-h.release:
		h.sent.Add(int32(len(messages)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRegister_DoesNotWaitForMailDelivery(t *testing.T) {
	transport := &heldTransport{release: make(chan struct{})}
	mailer, err := mail.NewMailer(transport, config.MailSettings{ServiceName: "Acara", Username: "noreply@acara.id"}, "https://acara.id", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewMailer returned error: %v", err)
	}
	notifier := mail.NewNotifier(mailer)
	users := newMemoryUserRepository()
	svc := NewRegistrationService(users, newTestHasher(t), security.NewPasswordPolicy(0), notifier, nil, zaptest.NewLogger(t))

	// the transport is still held, so returning at all proves the send is off the request path
	reqCtx, cancelReq := context.WithCancel(context.Background())
	if _, err := svc.Register(reqCtx, janeInput()); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	cancelReq()
	users.only(t)

	close(transport.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := notifier.Close(ctx); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if transport.sent.Load() != 1 {
		t.Fatalf("activation email lost after the request ended, sent=%d", transport.sent.Load())
	}
}

func TestRegister_HasherFailurePropagates(t *testing.T) {
	users := newMemoryUserRepository()
	svc := NewRegistrationService(users, failingHasher{}, nil, nil, nil, zaptest.NewLogger(t))

	_, err := svc.Register(context.Background(), janeInput())
	if err == nil || errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(users.users) != 0 {
		t.Fatalf("no user may be stored when hashing fails")
	}
}

func TestActivate_ConsumesCodeOnce(t *testing.T) {
	users := newMemoryUserRepository()
	events := &recordingPublisher{}
	svc := newRegistration(t, users, nil, events)

	if _, err := svc.Register(context.Background(), janeInput()); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	code := *users.only(t).ActivationCode

	user, err := svc.Activate(context.Background(), code)
	if err != nil {
		t.Fatalf("Activate returned error: %v", err)
	}
	if !user.IsActive {
		t.Fatalf("expected active user")
	}
	if stored := users.only(t); stored.ActivationCode != nil || stored.State() != domain.ActivationActive {
		t.Fatalf("expected code cleared and state active, got %+v", stored)
	}
	if len(events.activated) != 1 {
		t.Fatalf("expected user.activated event")
	}

	if _, err := svc.Activate(context.Background(), code); !errors.Is(err, ErrActivationCodeInvalid) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected consumed code to be rejected, got %v", err)
	}
}

func TestActivate_UnknownCode(t *testing.T) {
	svc := newRegistration(t, newMemoryUserRepository(), nil, nil)

	if _, err := svc.Activate(context.Background(), "nope"); !errors.Is(err, ErrActivationCodeInvalid) {
		t.Fatalf("expected ErrActivationCodeInvalid, got %v", err)
	}
	if _, err := svc.Activate(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty code, got %v", err)
	}
}

func TestActivate_ConcurrentCallsHaveSingleWinner(t *testing.T) {
	users := newMemoryUserRepository()
	svc := newRegistration(t, users, nil, nil)

	if _, err := svc.Register(context.Background(), janeInput()); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	code := *users.only(t).ActivationCode

	const callers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		notFound  atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Activate(context.Background(), code)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrActivationCodeInvalid):
				notFound.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes.Load() != 1 || notFound.Load() != callers-1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d not-found", successes.Load(), notFound.Load())
	}
}

func TestResendActivation_RotatesCodeForPendingUser(t *testing.T) {
	users := newMemoryUserRepository()
	notifier := &recordingNotifier{}
	svc := newRegistration(t, users, notifier, nil)

	if _, err := svc.Register(context.Background(), janeInput()); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	oldCode := *users.only(t).ActivationCode

	if err := svc.ResendActivation(context.Background(), "jane@x.io"); err != nil {
		t.Fatalf("ResendActivation returned error: %v", err)
	}

	newCode := *users.only(t).ActivationCode
	if newCode == oldCode {
		t.Fatalf("expected a fresh activation code")
	}
	if len(notifier.notices) != 2 || notifier.notices[1].Code != newCode {
		t.Fatalf("expected second notice with the new code, got %+v", notifier.notices)
	}
	if _, err := svc.Activate(context.Background(), oldCode); !errors.Is(err, ErrActivationCodeInvalid) {
		t.Fatalf("expected the replaced code to stop working, got %v", err)
	}
}

func TestResendActivation_SilentForUnknownOrActive(t *testing.T) {
	users := newMemoryUserRepository()
	notifier := &recordingNotifier{}
	svc := newRegistration(t, users, notifier, nil)

	if err := svc.ResendActivation(context.Background(), "ghost@x.io"); err != nil {
		t.Fatalf("expected silent success for unknown email, got %v", err)
	}

	if _, err := svc.Register(context.Background(), janeInput()); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if _, err := svc.Activate(context.Background(), *users.only(t).ActivationCode); err != nil {
		t.Fatalf("Activate returned error: %v", err)
	}
	if err := svc.ResendActivation(context.Background(), "jane@x.io"); err != nil {
		t.Fatalf("expected silent success for active user, got %v", err)
	}
	if len(notifier.notices) != 1 {
		t.Fatalf("expected only the registration notice, got %d", len(notifier.notices))
	}

	if err := svc.ResendActivation(context.Background(), "nope"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
