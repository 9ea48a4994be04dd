package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/gateway"
	"github.com/liliang-cn/doclens/internal/notify"
	"github.com/liliang-cn/doclens/internal/pending"
)

// Gateway is the backend contract the orchestrator drives
type Gateway interface {
	CheckHealth(ctx context.Context) (*gateway.Health, error)
	UploadDocuments(ctx context.Context, files []domain.PendingFile, sessionID string) (*gateway.UploadResult, error)
	SubmitQuery(ctx context.Context, question, sessionID string, history []domain.Turn) (*gateway.QueryResult, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Recorder receives committed session changes, e.g. for archiving.
// Errors are logged and never affect the session
type Recorder interface {
	MessageAppended(ctx context.Context, sessionID string, message domain.Message) error
	UploadCompleted(ctx context.Context, batch domain.UploadBatch) error
}

// State is a read-only snapshot for the presentation layer
type State struct {
	Session      domain.Session       `json:"session"`
	Health       domain.HealthState   `json:"health"`
	Notification *domain.Notification `json:"notification,omitempty"`
	PendingFiles []domain.PendingFile `json:"pending_files"`
	PendingSize  int64                `json:"pending_size"`
	Uploading    bool                 `json:"uploading"`
	Querying     bool                 `json:"querying"`
}

// Orchestrator owns one session: its identity, conversation log, upload
// status, pending files and notifications. The upload and query flows are
// each single-flight but may overlap with one another
type Orchestrator struct {
	gateway  Gateway
	logger   *zap.Logger
	clock    notify.Clock
	recorder Recorder
	history  domain.HistoryPolicy
	newID    func() string

	notifier *notify.Channel

	mu      sync.Mutex
	session domain.Session
	gen     uint64
	flows   *sessionFlows
	health  domain.HealthState
	pending *pending.Set

	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// sessionFlows is the single-flight state of one session. Reset swaps in a
// fresh one, so calls still running for a discarded session hold only
// their own semaphores
type sessionFlows struct {
	uploadSem *semaphore.Weighted
	querySem  *semaphore.Weighted
	uploading bool
	querying  bool
}

func newSessionFlows() *sessionFlows {
	return &sessionFlows{
		uploadSem: semaphore.NewWeighted(1),
		querySem:  semaphore.NewWeighted(1),
	}
}

// Option configures an Orchestrator
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	logger    *zap.Logger
	clock     notify.Clock
	recorder  Recorder
	history   domain.HistoryPolicy
	notifyTTL time.Duration
	newID     func() string
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithClock injects the time source used for timestamps and notification expiry
func WithClock(c notify.Clock) Option {
	return func(o *orchestratorOptions) { o.clock = c }
}

// WithRecorder archives committed messages and uploads
func WithRecorder(r Recorder) Option {
	return func(o *orchestratorOptions) { o.recorder = r }
}

// WithHistoryPolicy chooses which turns accompany a query
func WithHistoryPolicy(p domain.HistoryPolicy) Option {
	return func(o *orchestratorOptions) { o.history = p }
}

// WithNotifyTTL overrides how long notifications stay active
func WithNotifyTTL(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.notifyTTL = d }
}

// WithIDGenerator overrides uuid-based session and message IDs
func WithIDGenerator(fn func() string) Option {
	return func(o *orchestratorOptions) { o.newID = fn }
}

// NewOrchestrator creates an orchestrator with a fresh session
func NewOrchestrator(gw Gateway, opts ...Option) *Orchestrator {
	options := orchestratorOptions{
		logger:    zap.NewNop(),
		clock:     notify.SystemClock(),
		history:   domain.HistoryPrior,
		notifyTTL: notify.DefaultTTL,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(&options)
	}

	o := &Orchestrator{
		gateway:   gw,
		logger:    options.logger,
		clock:     options.clock,
		recorder:  options.recorder,
		history:   options.history,
		newID:     options.newID,
		flows:     newSessionFlows(),
		health:    domain.HealthUnknown,
		pending:   pending.New(),
		subs:      make(map[int]func(State)),
	}
	o.notifier = notify.New(
		notify.WithClock(options.clock),
		notify.WithTTL(options.notifyTTL),
		notify.WithLogger(options.logger),
		notify.OnChange(o.publish),
	)
	o.session = o.newSession()

	o.logger.Info("session created", zap.String("session_id", o.session.ID))
	return o
}

func (o *Orchestrator) newSession() domain.Session {
	return domain.Session{
		ID:        o.newID(),
		Messages:  []domain.Message{},
		CreatedAt: o.clock.Now(),
	}
}

// Start issues the one-shot health probe in the background
func (o *Orchestrator) Start(ctx context.Context) {
	go o.CheckHealth(ctx)
}

// CheckHealth probes the backend and records the tri-state indicator.
// Failures only mark the backend unhealthy
func (o *Orchestrator) CheckHealth(ctx context.Context) domain.HealthState {
	state := domain.HealthHealthy
	health, err := o.gateway.CheckHealth(ctx)
	if err != nil {
		state = domain.HealthUnhealthy
		o.logger.Warn("backend health check failed", zap.Error(err))
	} else {
		o.logger.Info("backend reachable",
			zap.String("status", health.Status),
			zap.String("version", health.Version),
			zap.Bool("service_configured", health.ServiceConfigured),
		)
	}

	o.mu.Lock()
	o.health = state
	o.mu.Unlock()
	o.publish()
	return state
}

// SessionID returns the current session identity
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.ID
}

// Snapshot returns a copy of the current state
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	session := o.session
	session.Messages = make([]domain.Message, len(o.session.Messages))
	copy(session.Messages, o.session.Messages)
	if o.session.ChunksCount != nil {
		chunks := *o.session.ChunksCount
		session.ChunksCount = &chunks
	}

	state := State{
		Session:      session,
		Health:       o.health,
		PendingFiles: o.pending.Files(),
		PendingSize:  o.pending.TotalSize(),
		Uploading:    o.flows.uploading,
		Querying:     o.flows.querying,
	}
	if n, ok := o.notifier.Active(); ok {
		state.Notification = &n
	}
	return state
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned func removes the subscription
func (o *Orchestrator) Subscribe(fn func(State)) (unsubscribe func()) {
	o.subsMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.subsMu.Unlock()

	return func() {
		o.subsMu.Lock()
		delete(o.subs, id)
		o.subsMu.Unlock()
	}
}

func (o *Orchestrator) publish() {
	o.subsMu.Lock()
	if len(o.subs) == 0 {
		o.subsMu.Unlock()
		return
	}
	fns := make([]func(State), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.subsMu.Unlock()

	state := o.Snapshot()
	for _, fn := range fns {
		fn(state)
	}
}

// DismissNotification clears the active notification before it expires
func (o *Orchestrator) DismissNotification() {
	o.notifier.Dismiss()
}

// Reset discards the session: new identity, empty log, no upload status,
// no pending files and no flow in progress. The old backend session is
// deleted best-effort, and flows still in flight for it will not touch the
// new session
func (o *Orchestrator) Reset(ctx context.Context) string {
	o.mu.Lock()
	old := o.session.ID
	o.gen++
	o.session = o.newSession()
	o.flows = newSessionFlows()
	o.pending.Clear()
	newID := o.session.ID
	o.mu.Unlock()

	o.logger.Info("session reset",
		zap.String("old_session_id", old),
		zap.String("session_id", newID),
	)
	o.discardRemote(ctx, old)
	o.notifier.Notify(domain.NotifySuccess, resetMessage)
	return newID
}

// Close deletes the backend session best-effort and stops the notification timer
func (o *Orchestrator) Close(ctx context.Context) {
	o.mu.Lock()
	id := o.session.ID
	uploaded := o.session.IsDocumentUploaded
	o.mu.Unlock()

	if uploaded {
		o.discardRemote(ctx, id)
	}
	o.notifier.Close()
}

func (o *Orchestrator) discardRemote(ctx context.Context, sessionID string) {
	if err := o.gateway.DeleteSession(ctx, sessionID); err != nil {
		o.logger.Debug("backend session delete failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// newMessage stamps a message no earlier than the last one in the log.
// Callers hold mu
func (o *Orchestrator) newMessage(role domain.Role, content string) domain.Message {
	ts := o.clock.Now()
	if n := len(o.session.Messages); n > 0 {
		if last := o.session.Messages[n-1].Timestamp; last.After(ts) {
			ts = last
		}
	}
	return domain.Message{
		ID:        o.newID(),
		Role:      role,
		Content:   content,
		Timestamp: ts,
	}
}
