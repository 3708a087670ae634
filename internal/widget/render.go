package widget

import (
	"time"

	"coachwidget/internal/access"
	"coachwidget/internal/api"
	"coachwidget/internal/persona"
)

// BannerLevel selects the status banner variant.
type BannerLevel int

const (
	BannerInfo BannerLevel = iota
	BannerWarning
	BannerError
)

func (l BannerLevel) String() string {
	switch l {
	case BannerInfo:
		return "info"
	case BannerWarning:
		return "warning"
	case BannerError:
		return "error"
	default:
		return "unknown"
	}
}

// Turn is one rendered conversation entry.
type Turn struct {
	Role         string // "user" or "assistant"
	Content      string
	Sources      []api.Source
	LowRelevance bool
	IsError      bool
}

// Renderer is the surface the controller draws on. The CLI implements it
// with a terminal UI; tests implement it with a recorder. Implementations
// must not call back into the controller from inside a render method.
type Renderer interface {
	// SetButton controls the launcher button. Loading and enabled are
	// mutually exclusive in practice but both are passed explicitly.
	SetButton(enabled, loading bool, tooltip string)
	SetWindowVisible(visible bool)
	ShowStatus(level BannerLevel, message string)
	ShowToast(message string, duration time.Duration)
	ShowPersonaBadge(label string)
	AppendTurn(turn Turn)
	SetTyping(active bool)
	SetInputEnabled(enabled bool)
	ClearInput()
	// PromptPersonaConfirmation shows the confirmation card for an inferred
	// persona. The answer it accompanies has already been rendered.
	PromptPersonaConfirmation(inferred persona.ID, options []persona.ID)
}

// Snapshot is the read-only session view published after every state
// change. It replaces any ambient shared session object.
type Snapshot struct {
	State            UIState
	Identity         string
	ThreadID         string
	HasAccess        bool
	GrantedVia       string
	AccessExpiresAt  time.Time
	AccessSource     access.Source
	Persona          persona.ID
	PersonaConfirmed bool
}
