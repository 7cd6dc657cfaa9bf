// Package usecase holds the verification conversation engine: the state
// machine that walks a visitor from greeting to coverage result.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"insurance-agent/internal/domain"
	"insurance-agent/internal/oracle"
	"insurance-agent/internal/session"
	"insurance-agent/internal/validation"
)

const (
	defaultTimeout = 30 * time.Second
	maxInputLen    = 500
	instrumentName = "insurance-agent/usecase"
)

type SessionStore interface {
	Load(ctx context.Context, key string) (*domain.Session, error)
	Save(ctx context.Context, key string, s *domain.Session) error
	Clear(ctx context.Context, key string) error
}

// VisitTracker remembers which session keys have completed a verification.
// Stores that implement it are picked up automatically.
type VisitTracker interface {
	HasVerified(ctx context.Context, key string) (bool, error)
	MarkVerified(ctx context.Context, key string) error
}

// CompletionHook is told about every successful verification. Failures are
// logged and never reach the visitor.
type CompletionHook interface {
	Complete(ctx context.Context, sub domain.Submission) error
}

type CompletionFunc func(ctx context.Context, sub domain.Submission) error

func (f CompletionFunc) Complete(ctx context.Context, sub domain.Submission) error {
	return f(ctx, sub)
}

// AuditSink receives the access trail. Write failures are logged only.
type AuditSink interface {
	Audit(ctx context.Context, ev domain.AuditEvent) error
}

type Engine struct {
	store    SessionStore
	verifier oracle.Verifier
	policy   Policy
	timeout  time.Duration
	visits   VisitTracker
	hooks    []CompletionHook
	auditor  AuditSink
	now      func() time.Time
	logger   *slog.Logger

	tracer   trace.Tracer
	outcomes metric.Int64Counter

	mu       sync.Mutex
	inflight map[string]*flight
}

// flight marks a key with an operation in progress. session is set while the
// oracle call runs so readers can see the submitting step.
type flight struct {
	session *domain.Session
	closed  bool
}

type Option func(*Engine)

func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithVisitTracker(v VisitTracker) Option {
	return func(e *Engine) { e.visits = v }
}

func WithCompletionHooks(hooks ...CompletionHook) Option {
	return func(e *Engine) {
		for _, h := range hooks {
			if h != nil {
				e.hooks = append(e.hooks, h)
			}
		}
	}
}

func WithAuditSink(a AuditSink) Option {
	return func(e *Engine) { e.auditor = a }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(store SessionStore, verifier oracle.Verifier, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if verifier == nil {
		return nil, errors.New("usecase: verifier must not be nil")
	}
	e := &Engine{
		store:    store,
		verifier: verifier,
		policy:   StandardPolicy(),
		timeout:  defaultTimeout,
		now:      time.Now,
		logger:   slog.Default(),
		tracer:   otel.Tracer(instrumentName),
		inflight: make(map[string]*flight),
	}
	if vt, ok := store.(VisitTracker); ok {
		e.visits = vt
	}
	for _, opt := range opts {
		opt(e)
	}

	outcomes, err := otel.Meter(instrumentName).Int64Counter("verification.outcomes",
		metric.WithDescription("Verification attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("usecase: create outcome counter: %w", err)
	}
	e.outcomes = outcomes
	return e, nil
}

func (e *Engine) Policy() Policy { return e.policy }

// Open resumes the session stored under key, or starts one. An empty key is
// replaced with a generated one, returned in the view.
func (e *Engine) Open(ctx context.Context, key string) (View, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = newUUID()
	}
	return e.current(ctx, key, true)
}

// Get returns the current view for key, starting a session if none exists.
func (e *Engine) Get(ctx context.Context, key string) (View, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return View{}, newError(ErrorInvalidInput, "missing_session_key", nil)
	}
	return e.current(ctx, key, false)
}

func (e *Engine) current(ctx context.Context, key string, opening bool) (View, error) {
	if v, ok := e.submittingView(key); ok {
		return v, nil
	}
	if err := e.acquire(key); err != nil {
		return View{}, err
	}
	defer e.release(ctx, key)

	s, created, err := e.loadOrStart(ctx, key)
	if err != nil {
		return View{}, err
	}
	if opening && !created {
		e.audit(ctx, s, domain.AuditSessionResume)
	}
	return newView(key, s, e.policy), nil
}

// Send feeds one line of visitor input into the state machine.
func (e *Engine) Send(ctx context.Context, key, text string) (View, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return View{}, newError(ErrorInvalidInput, "missing_session_key", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return View{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(text) > maxInputLen {
		return View{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	if err := e.acquire(key); err != nil {
		return View{}, err
	}
	defer e.release(ctx, key)

	s, _, err := e.loadOrStart(ctx, key)
	if err != nil {
		return View{}, err
	}

	if s.Step.Terminal() {
		if wantsRestart(text) {
			return e.commitRestart(ctx, key, s)
		}
		e.user(s, text)
		s.Step = domain.StepEnd
		e.bot(s, terminalNotice)
		return e.commit(ctx, key, s)
	}

	switch s.Step {
	case domain.StepConsent:
		e.user(s, text)
		switch {
		case agrees(text):
			return e.commitConsent(ctx, key, s, true)
		case declines(text):
			return e.commitConsent(ctx, key, s, false)
		default:
			e.bot(s, consentPrompt)
		}
	case domain.StepConfirm:
		e.user(s, text)
		if !e.policy.confirms(text) {
			return e.commitRestart(ctx, key, s)
		}
		return e.submit(ctx, key, s)
	default:
		e.collect(s, text)
	}
	return e.commit(ctx, key, s)
}

// Consent records the answer from a dedicated consent control.
func (e *Engine) Consent(ctx context.Context, key string, granted bool) (View, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return View{}, newError(ErrorInvalidInput, "missing_session_key", nil)
	}
	if err := e.acquire(key); err != nil {
		return View{}, err
	}
	defer e.release(ctx, key)

	s, _, err := e.loadOrStart(ctx, key)
	if err != nil {
		return View{}, err
	}
	if s.Step != domain.StepConsent {
		return View{}, newError(ErrorInvalidInput, "consent_not_expected", nil)
	}
	if granted {
		e.user(s, "I agree")
	} else {
		e.user(s, "I do not agree")
	}
	return e.commitConsent(ctx, key, s, granted)
}

func (e *Engine) commitConsent(ctx context.Context, key string, s *domain.Session, granted bool) (View, error) {
	e.answerConsent(s, granted)
	v, err := e.commit(ctx, key, s)
	if err != nil {
		return View{}, err
	}
	action := domain.AuditConsentGiven
	if !granted {
		action = domain.AuditConsentDeclined
	}
	e.audit(ctx, s, action)
	return v, nil
}

// Restart discards the conversation under key and begins a new one with a
// fresh session ID.
func (e *Engine) Restart(ctx context.Context, key string) (View, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return View{}, newError(ErrorInvalidInput, "missing_session_key", nil)
	}
	if err := e.acquire(key); err != nil {
		return View{}, err
	}
	defer e.release(ctx, key)

	prev, err := e.load(ctx, key)
	if err != nil {
		return View{}, err
	}
	return e.commitRestart(ctx, key, prev)
}

func (e *Engine) commitRestart(ctx context.Context, key string, prev *domain.Session) (View, error) {
	s := e.restart(prev)
	v, err := e.commit(ctx, key, s)
	if err != nil {
		return View{}, err
	}
	e.audit(ctx, s, domain.AuditSessionRestart)
	return v, nil
}

// Close is called when the widget is dismissed. Stored state is cleared only
// under a policy that asks for it. An operation still holding the key does
// not write back; its holder clears the key again on release.
func (e *Engine) Close(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return newError(ErrorInvalidInput, "missing_session_key", nil)
	}
	e.auditClose(ctx, key)
	if !e.policy.ClearOnClose {
		return nil
	}
	e.mu.Lock()
	if f, ok := e.inflight[key]; ok {
		f.closed = true
	}
	e.mu.Unlock()

	if err := e.store.Clear(ctx, key); err != nil {
		return newError(ErrorInternal, "session_clear_error", err)
	}
	return nil
}

func (e *Engine) auditClose(ctx context.Context, key string) {
	if e.auditor == nil {
		return
	}
	s, err := e.store.Load(ctx, key)
	if err != nil || s == nil {
		e.logger.Debug("close without a readable session", "error", err)
		return
	}
	e.audit(ctx, s, domain.AuditSessionEnd)
}

func (e *Engine) acquire(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[key]; busy {
		return newError(ErrorSessionBusy, "session_busy", nil)
	}
	e.inflight[key] = &flight{}
	return nil
}

func (e *Engine) release(ctx context.Context, key string) {
	e.mu.Lock()
	f := e.inflight[key]
	delete(e.inflight, key)
	e.mu.Unlock()
	if f == nil || !f.closed {
		return
	}
	if err := e.store.Clear(context.WithoutCancel(ctx), key); err != nil {
		e.logger.Error("clear after close failed", "error", err)
	}
}

// closing reports whether Close ran while this call held key.
func (e *Engine) closing(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.inflight[key]
	return ok && f.closed
}

func (e *Engine) submittingView(key string) (View, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.inflight[key]
	if !ok || f.session == nil {
		return View{}, false
	}
	return newView(key, f.session, e.policy), true
}

// load returns the stored session, or nil when there is none or it could not
// be decoded.
func (e *Engine) load(ctx context.Context, key string) (*domain.Session, error) {
	s, err := e.store.Load(ctx, key)
	switch {
	case errors.Is(err, session.ErrCorrupt):
		e.logger.Warn("discarding corrupt session", "error", err)
		if err := e.store.Clear(ctx, key); err != nil {
			e.logger.Error("clear corrupt session failed", "error", err)
		}
		return nil, nil
	case err != nil:
		return nil, newError(ErrorInternal, "session_load_error", err)
	}
	if s != nil && s.Step == domain.StepSubmitting {
		s.Step = domain.StepConfirm
	}
	return s, nil
}

// loadOrStart reports created when it had to begin a new session.
func (e *Engine) loadOrStart(ctx context.Context, key string) (*domain.Session, bool, error) {
	s, err := e.load(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if s != nil && s.Step != domain.StepIntro {
		return s, false, nil
	}
	var rev int64
	if s != nil {
		rev = s.Revision
	}
	s = e.start(ctx, key, rev)
	if err := e.save(ctx, key, s); err != nil {
		return nil, false, err
	}
	e.audit(ctx, s, domain.AuditSessionStart)
	return s, true, nil
}

func (e *Engine) start(ctx context.Context, key string, revision int64) *domain.Session {
	s := e.blank(revision)
	e.bot(s, greeting(e.welcomeBack(ctx, key), e.policy))
	e.beginCollection(s)
	return s
}

func (e *Engine) restart(prev *domain.Session) *domain.Session {
	var rev int64
	if prev != nil {
		rev = prev.Revision
	}
	s := e.blank(rev)
	e.bot(s, startOver)
	e.beginCollection(s)
	return s
}

func (e *Engine) blank(revision int64) *domain.Session {
	now := e.now().UTC()
	return &domain.Session{
		SessionID:      newUUID(),
		Step:           domain.StepIntro,
		Transcript:     []domain.Message{},
		CreatedAt:      now,
		LastActivityAt: now,
		Revision:       revision,
	}
}

func (e *Engine) beginCollection(s *domain.Session) {
	if e.policy.explicitConsent() {
		s.Step = domain.StepConsent
		e.bot(s, consentPrompt)
		return
	}
	s.ConsentGiven = true
	s.Step = domain.StepName
	e.bot(s, fieldPrompts[domain.StepName])
}

func (e *Engine) welcomeBack(ctx context.Context, key string) bool {
	if e.visits == nil {
		return false
	}
	ok, err := e.visits.HasVerified(ctx, key)
	if err != nil {
		e.logger.Warn("visit lookup failed", "error", err)
		return false
	}
	return ok
}

func (e *Engine) answerConsent(s *domain.Session, granted bool) {
	if !granted {
		s.ConsentGiven = false
		s.Step = domain.StepEnd
		e.bot(s, consentDeclined)
		return
	}
	s.ConsentGiven = true
	s.Step = domain.StepName
	e.bot(s, "Thank you. "+fieldPrompts[domain.StepName])
}

func (e *Engine) collect(s *domain.Session, text string) {
	e.user(s, text)
	if err := validation.Field(s.Step, text); err != nil {
		e.bot(s, fieldRetries[s.Step])
		return
	}
	s.CollectedFields = s.CollectedFields.With(s.Step, text)
	s.Step = nextStep(s.Step)
	if s.Step == domain.StepConfirm {
		e.bot(s, summary(s.CollectedFields, e.policy))
		return
	}
	e.bot(s, fieldPrompts[s.Step])
}

func nextStep(step domain.Step) domain.Step {
	for i, st := range domain.FieldSteps {
		if st == step && i+1 < len(domain.FieldSteps) {
			return domain.FieldSteps[i+1]
		}
	}
	return domain.StepConfirm
}

func (e *Engine) submit(ctx context.Context, key string, s *domain.Session) (View, error) {
	if !s.ConsentGiven {
		s.Step = domain.StepConsent
		e.bot(s, consentRequired)
		return e.commit(ctx, key, s)
	}
	record, ok := s.CollectedFields.Record()
	if !ok {
		for _, st := range domain.FieldSteps {
			if s.CollectedFields.Get(st) == "" {
				s.Step = st
				break
			}
		}
		e.bot(s, fieldPrompts[s.Step])
		return e.commit(ctx, key, s)
	}

	pending := s.Clone()
	pending.Step = domain.StepSubmitting
	e.setFlight(key, pending)
	e.audit(ctx, pending, domain.AuditDataAccess)
	res, err := e.verify(ctx, s.SessionID, record)
	closed := e.setFlight(key, nil)

	if err != nil {
		s.Step = domain.StepError
		s.Result = nil
		e.bot(s, verificationFailed)
	} else {
		r := res
		s.Step = domain.StepResult
		s.Result = &r
		e.bot(s, resultMessage(res))
		e.bot(s, followUp(res))
	}

	if closed {
		if err == nil {
			e.complete(ctx, key, s, record, res, false)
		}
		return newView(key, s, e.policy), nil
	}

	v, saveErr := e.commit(ctx, key, s)
	if saveErr != nil {
		return View{}, saveErr
	}
	if err == nil {
		e.complete(ctx, key, s, record, res, true)
	}
	return v, nil
}

// setFlight publishes the submitting snapshot for key and reports whether the
// session was closed meanwhile.
func (e *Engine) setFlight(key string, s *domain.Session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.inflight[key]
	if !ok {
		return false
	}
	f.session = s
	return f.closed
}

func (e *Engine) verify(ctx context.Context, sessionID string, record domain.PatientRecord) (domain.VerificationResult, error) {
	// The call outlives a dropped client connection but not the timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "verification.submit", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("variant", e.policy.Name),
	))
	defer span.End()

	res, err := e.verifier.Submit(ctx, oracle.Request{SessionID: sessionID, Record: record, Consent: true})
	if err == nil && !res.Status.Valid() {
		err = &oracle.Error{Kind: oracle.ServiceError, Op: "verify", Err: fmt.Errorf("status %q", res.Status)}
	}

	outcome := string(res.Status)
	if err != nil {
		kind := oracle.KindOf(err)
		outcome = string(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		e.logger.Error("verification failed", "session_id", sessionID, "kind", kind, "error", err)
	} else {
		span.SetAttributes(attribute.String("verification.status", outcome))
	}
	e.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return res, err
}

func (e *Engine) complete(ctx context.Context, key string, s *domain.Session, record domain.PatientRecord, res domain.VerificationResult, mark bool) {
	if mark && e.visits != nil {
		if err := e.visits.MarkVerified(ctx, key); err != nil {
			e.logger.Warn("mark verified failed", "session_id", s.SessionID, "error", err)
		}
	}
	sub := domain.Submission{
		SubmissionID: newUUID(),
		SubmittedAt:  e.now().UTC(),
		SessionID:    s.SessionID,
		Patient:      record,
		Result:       res,
	}
	for _, h := range e.hooks {
		if err := h.Complete(ctx, sub); err != nil {
			e.logger.Error("completion hook failed", "session_id", s.SessionID, "submission_id", sub.SubmissionID, "error", err)
		}
	}
	e.logger.Info("verification completed", "session_id", s.SessionID, "submission_id", sub.SubmissionID, "status", res.Status)
}

func (e *Engine) commit(ctx context.Context, key string, s *domain.Session) (View, error) {
	if e.closing(key) {
		return newView(key, s, e.policy), nil
	}
	if err := e.save(ctx, key, s); err != nil {
		return View{}, err
	}
	return newView(key, s, e.policy), nil
}

func (e *Engine) save(ctx context.Context, key string, s *domain.Session) error {
	s.Revision++
	s.LastActivityAt = e.now().UTC()
	err := e.store.Save(ctx, key, s)
	switch {
	case errors.Is(err, session.ErrConflict):
		return newError(ErrorConflict, "session_conflict", err)
	case err != nil:
		return newError(ErrorInternal, "session_write_error", err)
	}
	return nil
}

func (e *Engine) audit(ctx context.Context, s *domain.Session, action domain.AuditAction) {
	if e.auditor == nil {
		return
	}
	ev := domain.AuditEvent{
		EventID:   newUUID(),
		SessionID: s.SessionID,
		Action:    action,
		Step:      s.Step,
		At:        e.now().UTC(),
	}
	if err := e.auditor.Audit(ctx, ev); err != nil {
		e.logger.Warn("audit write failed", "session_id", s.SessionID, "action", action, "error", err)
	}
}

func (e *Engine) bot(s *domain.Session, text string) {
	e.appendMessage(s, domain.SenderBot, text)
}

func (e *Engine) user(s *domain.Session, text string) {
	e.appendMessage(s, domain.SenderUser, text)
}

func (e *Engine) appendMessage(s *domain.Session, sender domain.Sender, text string) {
	s.Transcript = append(s.Transcript, domain.Message{
		ID:        len(s.Transcript) + 1,
		Sender:    sender,
		Text:      text,
		Timestamp: e.now().UTC(),
	})
}

var newUUID = func() string {
	return uuid.NewString()
}
