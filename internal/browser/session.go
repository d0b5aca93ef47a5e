package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nao1215/proxycrawl/internal/metrics"
)

// Mode selects how a Session detects that a page finished loading.
type Mode int

const (
	// ModeDirect fetches pages without the proxy; it is the reference.
	ModeDirect Mode = iota

	// ModeProxied fetches pages through the proxy under test.
	ModeProxied
)

// String returns the mode name used in logs and metrics.
func (m Mode) String() string {
	if m == ModeProxied {
		return "proxied"
	}
	return "direct"
}

// Defaults of the load synchronizer.
const (
	// DefaultPollInterval is how often an armed wait re-checks completion.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultSettleTime is the grace period after completion.
	DefaultSettleTime = 1500 * time.Millisecond

	// DefaultLoadGrace is waited after issuing a document load and before
	// polling starts, so the previous document is not mistaken for the new one.
	DefaultLoadGrace = 500 * time.Millisecond

	// DefaultActionGrace is waited after a click or back before polling.
	DefaultActionGrace = 5 * time.Millisecond

	// LoadingTitle is written into the title before every navigation.
	LoadingTitle = " - LOADING"

	// LoadedMarker appears in the title once a proxied page finished loading.
	LoadedMarker = "LOADED"

	// LoaderIDSubstring identifies the proxy's loading indicator element.
	LoaderIDSubstring = "loader"

	// LoadedAttribute is the attribute the proxy sets to LoadedAttributeValue
	// when a page finished loading. It backs up the title marker.
	LoadedAttribute      = "is_loaded"
	LoadedAttributeValue = "1"
)

// stopper is the part of *time.Timer used to cancel a deadline.
type stopper interface {
	Stop() bool
}

// deadline is the timeout of one armed operation. cancel stops the timer
// exactly once and reports whether it stopped before firing.
type deadline struct {
	timer   stopper
	once    sync.Once
	stopped bool
}

func (d *deadline) cancel() bool {
	d.once.Do(func() {
		d.stopped = d.timer.Stop()
	})
	return d.stopped
}

// Session wraps one browser Engine and turns its asynchronous page loads
// into blocking, timeout-bounded operations.
//
// A Session is driven by a single goroutine. Engine events may arrive on
// other goroutines; the state they touch is atomic or guarded by mu.
type Session struct {
	id     string
	engine Engine
	mode   Mode
	logger *slog.Logger

	pollInterval   time.Duration
	settleTime     time.Duration
	loadGrace      time.Duration
	actionGrace    time.Duration
	verboseConsole bool

	visitDone    Predicate
	navigateDone Predicate

	afterFunc func(time.Duration, func()) stopper

	ready  atomic.Bool
	closed atomic.Bool

	mu            sync.Mutex
	attributes    map[string]string
	lastLoadedURL string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithPollInterval sets how often an armed wait re-checks completion.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithSettleTime sets the unconditional grace period after completion.
func WithSettleTime(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.settleTime = d
		}
	}
}

// WithNavigationGrace sets the delays waited after issuing a document load
// and after a click or back, before completion polling starts.
func WithNavigationGrace(load, action time.Duration) Option {
	return func(s *Session) {
		s.loadGrace = load
		s.actionGrace = action
	}
}

// WithVerboseConsole logs every console message, not only failures.
func WithVerboseConsole(verbose bool) Option {
	return func(s *Session) {
		s.verboseConsole = verbose
	}
}

// NewSession creates a Session driving engine in the given mode and
// subscribes to the engine's events.
//
// Direct sessions complete a load on the document-ready event. Proxied
// sessions complete a visit once the proxy's loader element is gone, and a
// click or back once the proxy marks the title, or the loaded attribute, as
// loaded.
func NewSession(engine Engine, mode Mode, opts ...Option) *Session {
	s := &Session{
		id:           ulid.Make().String(),
		engine:       engine,
		mode:         mode,
		pollInterval: DefaultPollInterval,
		settleTime:   DefaultSettleTime,
		loadGrace:    DefaultLoadGrace,
		actionGrace:  DefaultActionGrace,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		attributes: make(map[string]string),
	}

	if mode == ModeProxied {
		s.visitDone = ElementAbsent{IDSubstring: LoaderIDSubstring}
		s.navigateDone = AnyOf{
			TitleContains{Marker: LoadedMarker},
			MarkerAttribute{Name: LoadedAttribute, Value: LoadedAttributeValue},
		}
	} else {
		s.visitDone = DocumentReady{}
		s.navigateDone = DocumentReady{}
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session", s.mode.String())

	engine.Subscribe(s.handleEvent)
	return s
}

// ID returns the opaque session identifier.
func (s *Session) ID() string {
	return s.id
}

// Mode returns the session mode.
func (s *Session) Mode() Mode {
	return s.mode
}

// LastLoadedURL returns the URL of the last successfully loaded document.
func (s *Session) LastLoadedURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLoadedURL
}

// Close releases the engine. Further operations return ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.engine.Close()
}

// Visit loads url and waits up to timeout for it to finish loading.
func (s *Session) Visit(ctx context.Context, url string, timeout time.Duration) error {
	s.logger.Info("visiting", "url", url)
	return s.navigate(ctx, "visit", timeout, s.visitDone, s.loadGrace, func(ctx context.Context) error {
		return s.engine.LoadDocument(ctx, url)
	})
}

// ClickElement clicks the element with the given id and waits up to timeout
// for the resulting navigation to finish.
func (s *Session) ClickElement(ctx context.Context, id string, timeout time.Duration) error {
	s.logger.Info("clicking", "id", id)
	return s.navigate(ctx, "click", timeout, s.navigateDone, s.actionGrace, func(ctx context.Context) error {
		found, err := s.engine.ExecuteScript(ctx, ClickScript(id))
		if err != nil {
			return fmt.Errorf("failed to click %q: %w", id, err)
		}
		if !found {
			return fmt.Errorf("click %q: %w", id, ErrElementNotFound)
		}
		return nil
	})
}

// GoBack navigates one step back in history and waits up to timeout for the
// previous page to finish loading.
func (s *Session) GoBack(ctx context.Context, timeout time.Duration) error {
	s.logger.Info("going back")
	return s.navigate(ctx, "back", timeout, s.navigateDone, s.actionGrace, func(ctx context.Context) error {
		if _, err := s.engine.ExecuteScript(ctx, BackScript()); err != nil {
			return fmt.Errorf("failed to go back: %w", err)
		}
		return nil
	})
}

// navigate runs one Idle -> Armed -> {Completed, TimedOut} cycle.
func (s *Session) navigate(
	ctx context.Context,
	action string,
	timeout time.Duration,
	done Predicate,
	grace time.Duration,
	start func(context.Context) error,
) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.prepare(ctx)

	err := s.await(ctx, timeout, done, grace, start)
	switch {
	case err == nil:
		metrics.RecordNavigation(s.mode.String(), action, metrics.OutcomeCompleted)
		s.recordLoaded(ctx)
		return nil
	case errors.Is(err, ErrTimeout):
		metrics.RecordNavigation(s.mode.String(), action, metrics.OutcomeTimeout)
		return fmt.Errorf("%s: %w", action, err)
	default:
		metrics.RecordNavigation(s.mode.String(), action, metrics.OutcomeError)
		return err
	}
}

// prepare clears per-operation state and writes the loading sentinel into
// the title of the current document.
func (s *Session) prepare(ctx context.Context) {
	s.ready.Store(false)

	s.mu.Lock()
	clear(s.attributes)
	s.mu.Unlock()

	if _, err := s.engine.ExecuteScript(ctx, TitleScript(LoadingTitle)); err != nil {
		s.logger.Debug("failed to set loading title", "error", err)
	}
}

// await arms the deadline, runs start, then polls done until it holds, the
// deadline fires or ctx ends. A completion observed after the deadline
// fired counts as a timeout. The deadline timer is stopped exactly once.
func (s *Session) await(
	ctx context.Context,
	timeout time.Duration,
	done Predicate,
	grace time.Duration,
	start func(context.Context) error,
) error {
	// fired belongs to this call only, so a timer that fires late cannot
	// leak into the next operation.
	var fired atomic.Bool
	expired := make(chan struct{})
	dl := &deadline{timer: s.afterFunc(timeout, func() {
		fired.Store(true)
		close(expired)
	})}
	defer dl.cancel()

	if err := start(ctx); err != nil {
		return err
	}

	if err := sleep(ctx, grace); err != nil {
		return err
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if fired.Load() {
			s.logger.Warn("timeout", "condition", done.String())
			return ErrTimeout
		}

		ok, err := done.Satisfied(ctx, s.probe())
		if err != nil {
			s.logger.Debug("completion check failed", "condition", done.String(), "error", err)
		}
		if ok {
			if !dl.cancel() {
				s.logger.Warn("timeout", "condition", done.String())
				return ErrTimeout
			}
			return sleep(ctx, s.settleTime)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
		case <-ticker.C:
		}
	}
}

// probe captures the session state for one poll tick.
func (s *Session) probe() *Probe {
	s.mu.Lock()
	attrs := make(map[string]string, len(s.attributes))
	for k, v := range s.attributes {
		attrs[k] = v
	}
	s.mu.Unlock()

	return &Probe{
		Ready:      s.ready.Load(),
		Attributes: attrs,
		load:       s.engine.Snapshot,
	}
}

// recordLoaded logs the loaded document and remembers its URL.
func (s *Session) recordLoaded(ctx context.Context) {
	doc, err := s.engine.Snapshot(ctx)
	if err != nil {
		s.logger.Debug("failed to read loaded document", "error", err)
		return
	}

	s.mu.Lock()
	s.lastLoadedURL = doc.URL
	s.mu.Unlock()

	s.logger.Info("page loaded", "url", doc.URL, "title", doc.Title, "cookie", doc.Cookie)
}

// Snapshot returns the current document.
func (s *Session) Snapshot(ctx context.Context) (*Document, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	return s.engine.Snapshot(ctx)
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
