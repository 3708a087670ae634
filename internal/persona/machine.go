package persona

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"coachwidget/internal/api"
	"coachwidget/internal/store"
	"coachwidget/internal/transport"
)

// Events is the render surface the machine drives. Implementations must not
// call back into the machine.
type Events interface {
	ShowBadge(id ID)
	ShowToast(message string)
}

// Corrector posts persona-correction records. Implemented by *api.Client.
type Corrector interface {
	CorrectPersona(ctx context.Context, token string, corr api.PersonaCorrection) (*api.CorrectionResponse, error)
}

// TokenSource supplies the bearer token and a one-shot silent refresh.
// Implemented by the access manager.
type TokenSource interface {
	Token() (string, bool)
	RefreshSilent(ctx context.Context) error
}

// CorrectionContext carries the conversation facts a correction record needs.
type CorrectionContext struct {
	ThreadID        string
	Identity        string
	LastUserMessage string
}

// Machine reconciles server-inferred personas with the user's explicit
// choice. The confirmed choice persists across sessions; the
// shown-this-load flag does not, so the confirmation card appears at most
// once per page load.
type Machine struct {
	mu            sync.Mutex
	current       ID
	confidence    float64
	confirmed     bool
	shownThisLoad bool
	sourceMessage string

	long      store.KV
	corrector Corrector
	tokens    TokenSource
	events    Events
	logger    *zap.Logger
}

// NewMachine creates a machine over the long-lived store scope.
func NewMachine(long store.KV, corrector Corrector, tokens TokenSource, events Events, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		long:      long,
		corrector: corrector,
		tokens:    tokens,
		events:    events,
		logger:    logger,
	}
}

// Restore rehydrates a previously confirmed persona from storage and shows
// the badge. Called once during widget init, before any network traffic.
func (m *Machine) Restore() {
	m.mu.Lock()
	choice, _ := m.long.Get(store.KeyPersonaChoice)
	confirmed, _ := m.long.Get(store.KeyPersonaConfirmed)
	id := ID(choice)
	if confirmed != "true" || !id.Valid() {
		m.mu.Unlock()
		return
	}
	m.current = id
	m.confirmed = true
	m.mu.Unlock()

	m.events.ShowBadge(id)
}

// Current returns the active persona, if any.
func (m *Machine) Current() (ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != ""
}

// Confirmed reports whether the user has ever confirmed a persona.
func (m *Machine) Confirmed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmed
}

// SourceMessage returns the user message that triggered the staged inference.
func (m *Machine) SourceMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sourceMessage
}

// OnInferred applies a server-inferred persona attached to a chat response.
// Returns true when the caller should present the confirmation card alongside
// the answer; the answer itself must render regardless. Once the user has
// confirmed a persona, later inferences are adopted silently.
func (m *Machine) OnInferred(id ID, confidence float64, sourceMessage string) bool {
	if id == "" {
		return false
	}

	m.mu.Lock()
	m.current = id
	m.confidence = confidence
	m.sourceMessage = sourceMessage

	prompt := !m.confirmed && !m.shownThisLoad
	if prompt {
		m.shownThisLoad = true
		// Stage the choice without the confirmed flag.
		m.long.Set(store.KeyPersonaChoice, string(id))
	} else if m.confirmed {
		m.long.SetMany(map[string]string{
			store.KeyPersonaChoice:    string(id),
			store.KeyPersonaConfirmed: "true",
		})
	} else {
		m.long.Set(store.KeyPersonaChoice, string(id))
	}
	m.mu.Unlock()

	m.events.ShowBadge(id)
	return prompt
}

// Confirm marks the persona as user-confirmed and persists it.
func (m *Machine) Confirm(id ID) {
	if !id.Valid() {
		return
	}

	m.mu.Lock()
	m.current = id
	m.confirmed = true
	m.long.SetMany(map[string]string{
		store.KeyPersonaChoice:    string(id),
		store.KeyPersonaConfirmed: "true",
	})
	m.mu.Unlock()

	m.events.ShowBadge(id)
}

// Correct switches to a different persona. The local state, persisted choice,
// and badge update before any network call, and are never rolled back: the
// server record is best-effort telemetry, not the source of truth. A 401 from
// the correction endpoint gets exactly one silent token refresh and retry.
func (m *Machine) Correct(ctx context.Context, newID ID, reason string, cc CorrectionContext) {
	if !newID.Valid() {
		return
	}

	m.mu.Lock()
	if newID == m.current {
		m.mu.Unlock()
		return
	}
	original := m.current
	originalConfidence := m.confidence
	m.current = newID
	m.confirmed = true
	m.long.SetMany(map[string]string{
		store.KeyPersonaChoice:    string(newID),
		store.KeyPersonaConfirmed: "true",
	})
	m.mu.Unlock()

	m.events.ShowBadge(newID)

	token, ok := m.tokens.Token()
	if !ok {
		m.logger.Debug("Persona correction skipped: no access token",
			zap.String("persona", string(newID)))
		return
	}

	corr := api.PersonaCorrection{
		ThreadID:           cc.ThreadID,
		UserID:             cc.Identity,
		CorrectedPersona:   string(newID),
		OriginalPersona:    string(original),
		OriginalConfidence: originalConfidence,
		MessageContext:     cc.LastUserMessage,
		CorrectionReason:   reason,
	}

	resp, err := m.corrector.CorrectPersona(ctx, token, corr)
	if err != nil && transport.IsAuth(err) {
		if refreshErr := m.tokens.RefreshSilent(ctx); refreshErr != nil {
			m.logger.Debug("Persona correction refresh failed", zap.Error(refreshErr))
		}
		if token, ok = m.tokens.Token(); ok {
			resp, err = m.corrector.CorrectPersona(ctx, token, corr)
		}
	}
	if err != nil {
		m.logger.Debug("Persona correction failed",
			zap.String("persona", string(newID)),
			zap.Error(err))
		return
	}
	if resp.Status != "success" {
		m.logger.Debug("Persona correction rejected", zap.String("status", resp.Status))
		return
	}

	m.events.ShowToast("Persona updated to " + newID.DisplayName() +
		". Your next responses will be tailored accordingly.")
}
