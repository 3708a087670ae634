// Package access owns the access-grant lifecycle: acquisition, session
// caching, expiry-driven refresh scheduling, and invalidation on auth
// failure. The widget controller reacts to its events; nothing here touches
// the render surface directly.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"coachwidget/internal/api"
	"coachwidget/internal/store"
)

const (
	// MinValidWindow is the minimum remaining lifetime for a cached grant to
	// be adopted without a network check.
	MinValidWindow = 30 * time.Second
	// RefreshBuffer is how long before expiry the silent refresh fires.
	RefreshBuffer = 5 * time.Minute
	// ImmediateRefreshDelay is used when the grant is already inside the
	// refresh buffer.
	ImmediateRefreshDelay = 1 * time.Second
	// DefaultLagThreshold is how long a foreground check may run before the
	// "still checking" status surfaces.
	DefaultLagThreshold = 4 * time.Second

	cacheKeyPrefix    = "qc_access_cache:"
	anonymousIdentity = "anonymous"

	refreshTimeout = 30 * time.Second
)

// ErrRefreshFailed is returned when a silent refresh does not yield a grant.
var ErrRefreshFailed = errors.New("access refresh failed")

// Source records how a grant was obtained.
type Source string

const (
	SourceCache     Source = "cache"
	SourceNetwork   Source = "network"
	SourceRefresh   Source = "refresh"
	SourceLocalTest Source = "localtest"
)

// Checker performs the network access check. Implemented by *api.Client.
type Checker interface {
	CheckAccess(ctx context.Context, email string) (*api.AccessCheckResponse, error)
}

// Events receives lifecycle notifications. Silent flags mark background
// refreshes whose failures must not surface user-facing status.
type Events interface {
	AccessGranted(g Grant, source Source)
	AccessDenied(reason string, silent bool)
	AccessError(err error, silent bool)
	CheckStarted()
	CheckStillRunning()
}

// Tuning holds product-tuning constants. Zero fields take defaults.
type Tuning struct {
	LagThreshold   time.Duration
	RefreshBuffer  time.Duration
	MinValidWindow time.Duration
}

func (t Tuning) withDefaults() Tuning {
	if t.LagThreshold <= 0 {
		t.LagThreshold = DefaultLagThreshold
	}
	if t.RefreshBuffer <= 0 {
		t.RefreshBuffer = RefreshBuffer
	}
	if t.MinValidWindow <= 0 {
		t.MinValidWindow = MinValidWindow
	}
	return t
}

// Manager coordinates the grant state. At most one refresh timer and one lag
// timer are outstanding at any moment.
type Manager struct {
	identity  string
	skipCheck bool
	tuning    Tuning

	checker Checker
	stores  store.Pair
	events  Events
	logger  *zap.Logger

	group singleflight.Group

	mu           sync.Mutex
	grant        *Grant
	refreshTimer *time.Timer
	lagTimer     *time.Timer

	// Injectable for tests.
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
}

// NewManager creates a manager for one member identity (empty for anonymous).
func NewManager(identity string, checker Checker, stores store.Pair, events Events, tuning Tuning, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		identity:  identity,
		tuning:    tuning.withDefaults(),
		checker:   checker,
		stores:    stores,
		events:    events,
		logger:    logger,
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
}

// SetSkipCheck enables the local-test bypass: Initialize fabricates a
// one-hour grant without caching it or calling the network.
func (m *Manager) SetSkipCheck(skip bool) {
	m.skipCheck = skip
}

// Initialize adopts a cached grant when one is still usable, otherwise runs
// a foreground network check.
func (m *Manager) Initialize(ctx context.Context) bool {
	if m.restoreFromCache() {
		return true
	}

	if m.skipCheck {
		g := Grant{
			Token:        "qc-test-token",
			ExpiresAt:    m.now().Add(1 * time.Hour),
			GrantedVia:   string(SourceLocalTest),
			IsBetaTester: true,
			IsPaidMember: true,
		}
		m.adopt(g, false)
		m.events.AccessGranted(g, SourceLocalTest)
		return true
	}

	return m.Check(ctx, false)
}

// restoreFromCache adopts the session-cached grant if it has more than
// MinValidWindow of lifetime left. Stale or unreadable entries are purged.
func (m *Manager) restoreFromCache() bool {
	raw, ok := m.stores.Session.Get(m.cacheKey())
	if !ok {
		return false
	}
	g, ok := grantFromCache(raw)
	if !ok || g.ExpiresAt.Sub(m.now()) <= m.tuning.MinValidWindow {
		m.purgeCache()
		return false
	}

	m.adopt(g, false)
	m.logger.Debug("Adopted cached access grant",
		zap.Time("expires_at", g.ExpiresAt),
		zap.String("granted_via", g.GrantedVia))
	m.events.AccessGranted(g, SourceCache)
	return true
}

// Check performs a network access check. Silent checks are background
// refreshes: they still update state but suppress user-facing status events.
// Returns whether access was granted.
func (m *Manager) Check(ctx context.Context, silent bool) bool {
	if !silent {
		m.events.CheckStarted()
		m.startLagTimer()
		defer m.stopLagTimer()
	}

	// Overlapping checks (scheduled refresh racing a foreground retry)
	// collapse into one request.
	v, err, _ := m.group.Do("check", func() (any, error) {
		return m.checker.CheckAccess(ctx, m.identity)
	})
	if err != nil {
		m.logger.Debug("Access check failed", zap.Bool("silent", silent), zap.Error(err))
		m.dropGrant()
		m.events.AccessError(err, silent)
		return false
	}

	resp := v.(*api.AccessCheckResponse)
	if !resp.HasAccess || resp.AccessToken == "" {
		reason := resp.Reason
		if reason == "" {
			reason = "The Researcher is available to beta testers only right now."
		}
		m.dropGrant()
		m.events.AccessDenied(reason, silent)
		return false
	}

	g := grantFromResponse(resp)
	m.adopt(g, true)

	source := SourceNetwork
	if silent {
		source = SourceRefresh
	}
	m.events.AccessGranted(g, source)
	return true
}

// RefreshSilent is the one-shot retry hook for callers that hit a 401.
func (m *Manager) RefreshSilent(ctx context.Context) error {
	if m.Check(ctx, true) {
		return nil
	}
	return ErrRefreshFailed
}

// Token returns the current non-expired bearer token.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grant == nil || m.grant.Expired(m.now()) {
		return "", false
	}
	return m.grant.Token, true
}

// Grant returns a copy of the current grant.
func (m *Manager) Grant() (Grant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grant == nil {
		return Grant{}, false
	}
	return *m.grant, true
}

// Invalidate drops the grant and purges the cache. Called when any
// authenticated call comes back 401/403.
func (m *Manager) Invalidate() {
	m.dropGrant()
}

// Close cancels outstanding timers. The manager is unusable afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	if m.lagTimer != nil {
		m.lagTimer.Stop()
		m.lagTimer = nil
	}
}

func (m *Manager) adopt(g Grant, persist bool) {
	m.mu.Lock()
	m.grant = &g
	m.mu.Unlock()

	if persist {
		entry := g.toCacheEntry(m.identity, m.now())
		if data, err := json.Marshal(entry); err == nil {
			m.stores.Session.Set(m.cacheKey(), string(data))
		}
	}
	m.scheduleRefresh(g.ExpiresAt)
}

func (m *Manager) dropGrant() {
	m.mu.Lock()
	m.grant = nil
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	m.mu.Unlock()
	m.stores.Session.Delete(m.cacheKey())
}

func (m *Manager) purgeCache() {
	m.stores.Session.Delete(m.cacheKey())
	m.mu.Lock()
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	m.mu.Unlock()
}

// scheduleRefresh arms the single refresh timer to fire RefreshBuffer before
// expiry, or almost immediately when already inside the buffer. Rescheduling
// always cancels the prior timer.
func (m *Manager) scheduleRefresh(expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	if expiresAt.IsZero() {
		return
	}

	delay := expiresAt.Sub(m.now()) - m.tuning.RefreshBuffer
	if delay <= 0 {
		delay = ImmediateRefreshDelay
	}

	m.refreshTimer = m.afterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if !m.Check(ctx, true) {
			m.logger.Debug("Scheduled access refresh did not renew grant")
		}
	})
	m.logger.Debug("Scheduled access refresh", zap.Duration("delay", delay))
}

func (m *Manager) startLagTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lagTimer != nil {
		m.lagTimer.Stop()
	}
	m.lagTimer = m.afterFunc(m.tuning.LagThreshold, func() {
		m.events.CheckStillRunning()
	})
}

func (m *Manager) stopLagTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lagTimer != nil {
		m.lagTimer.Stop()
		m.lagTimer = nil
	}
}

func (m *Manager) cacheKey() string {
	identity := m.identity
	if identity == "" {
		identity = anonymousIdentity
	}
	return cacheKeyPrefix + identity
}
