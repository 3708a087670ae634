package persona

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachwidget/internal/api"
	"coachwidget/internal/store"
	"coachwidget/internal/transport"
)

type recordedEvents struct {
	badges []ID
	toasts []string
}

func (r *recordedEvents) ShowBadge(id ID)      { r.badges = append(r.badges, id) }
func (r *recordedEvents) ShowToast(msg string) { r.toasts = append(r.toasts, msg) }

type fakeCorrector struct {
	calls []api.PersonaCorrection
	errs  []error // consumed per call; nil means success
}

func (f *fakeCorrector) CorrectPersona(ctx context.Context, token string, corr api.PersonaCorrection) (*api.CorrectionResponse, error) {
	f.calls = append(f.calls, corr)
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err != nil {
		return nil, err
	}
	return &api.CorrectionResponse{Status: "success"}, nil
}

type fakeTokens struct {
	token      string
	refreshErr error
	refreshed  int
}

func (f *fakeTokens) Token() (string, bool) { return f.token, f.token != "" }
func (f *fakeTokens) RefreshSilent(ctx context.Context) error {
	f.refreshed++
	return f.refreshErr
}

func newTestMachine() (*Machine, *recordedEvents, *fakeCorrector, *fakeTokens, store.KV) {
	events := &recordedEvents{}
	corrector := &fakeCorrector{}
	tokens := &fakeTokens{token: "tok"}
	long := store.NewMemory()
	m := NewMachine(long, corrector, tokens, events, nil)
	return m, events, corrector, tokens, long
}

func TestRestoreConfirmedPersona(t *testing.T) {
	m, events, _, _, long := newTestMachine()
	long.SetMany(map[string]string{
		store.KeyPersonaChoice:    string(EngineeringManager),
		store.KeyPersonaConfirmed: "true",
	})

	m.Restore()

	id, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, EngineeringManager, id)
	assert.True(t, m.Confirmed())
	assert.Equal(t, []ID{EngineeringManager}, events.badges)
}

func TestRestoreIgnoresUnconfirmedOrInvalid(t *testing.T) {
	tests := []struct {
		name      string
		choice    string
		confirmed string
	}{
		{"unconfirmed", string(EngineeringManager), ""},
		{"confirmed false", string(EngineeringManager), "false"},
		{"invalid persona", "WIZARD", "true"},
		{"nothing stored", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, events, _, _, long := newTestMachine()
			if tt.choice != "" {
				long.Set(store.KeyPersonaChoice, tt.choice)
			}
			if tt.confirmed != "" {
				long.Set(store.KeyPersonaConfirmed, tt.confirmed)
			}

			m.Restore()

			_, ok := m.Current()
			assert.False(t, ok)
			assert.Empty(t, events.badges)
		})
	}
}

func TestInferencePromptsOncePerLoad(t *testing.T) {
	m, events, _, _, long := newTestMachine()

	prompt := m.OnInferred(CEOExecutive, 0.85, "how do I scale QA?")
	assert.True(t, prompt, "first inference should prompt for confirmation")

	// Choice staged but not confirmed.
	choice, _ := long.Get(store.KeyPersonaChoice)
	assert.Equal(t, string(CEOExecutive), choice)
	_, hasConfirmed := long.Get(store.KeyPersonaConfirmed)
	assert.False(t, hasConfirmed)

	prompt = m.OnInferred(EngineeringManager, 0.9, "another question")
	assert.False(t, prompt, "card shows at most once per load")

	assert.Equal(t, []ID{CEOExecutive, EngineeringManager}, events.badges)
}

func TestInferenceAfterConfirmationIsSilent(t *testing.T) {
	m, _, _, _, long := newTestMachine()
	m.Confirm(SoftwareEngineer)

	prompt := m.OnInferred(CEOExecutive, 0.9, "msg")
	assert.False(t, prompt)

	// Confirmed inference updates both keys together.
	choice, _ := long.Get(store.KeyPersonaChoice)
	confirmed, _ := long.Get(store.KeyPersonaConfirmed)
	assert.Equal(t, string(CEOExecutive), choice)
	assert.Equal(t, "true", confirmed)
}

func TestConfirmPersists(t *testing.T) {
	m, events, _, _, long := newTestMachine()

	m.Confirm(TestLead)

	assert.True(t, m.Confirmed())
	choice, _ := long.Get(store.KeyPersonaChoice)
	confirmed, _ := long.Get(store.KeyPersonaConfirmed)
	assert.Equal(t, string(TestLead), choice)
	assert.Equal(t, "true", confirmed)
	assert.Equal(t, []ID{TestLead}, events.badges)

	m.Confirm(ID("NOT_A_PERSONA"))
	id, _ := m.Current()
	assert.Equal(t, TestLead, id)
}

func TestCorrectToSamePersonaIsNoOp(t *testing.T) {
	m, events, corrector, _, long := newTestMachine()
	m.Confirm(CEOExecutive)
	badges := len(events.badges)

	m.Correct(context.Background(), CEOExecutive, "choice", CorrectionContext{ThreadID: "th-1"})

	assert.Empty(t, corrector.calls, "same-persona correction must not hit the network")
	assert.Len(t, events.badges, badges)
	choice, _ := long.Get(store.KeyPersonaChoice)
	assert.Equal(t, string(CEOExecutive), choice)
}

func TestCorrectIsOptimistic(t *testing.T) {
	m, events, corrector, _, long := newTestMachine()
	m.OnInferred(CEOExecutive, 0.7, "original question")
	corrector.errs = []error{errors.New("server exploded")}

	m.Correct(context.Background(), EngineeringManager, "confirmation_card", CorrectionContext{
		ThreadID:        "th-1",
		Identity:        "member@example.com",
		LastUserMessage: "original question",
	})

	// Local state switched and persisted even though the server call failed.
	id, _ := m.Current()
	assert.Equal(t, EngineeringManager, id)
	assert.True(t, m.Confirmed())
	choice, _ := long.Get(store.KeyPersonaChoice)
	confirmed, _ := long.Get(store.KeyPersonaConfirmed)
	assert.Equal(t, string(EngineeringManager), choice)
	assert.Equal(t, "true", confirmed)
	assert.Contains(t, events.badges, EngineeringManager)
	assert.Empty(t, events.toasts, "no success toast on failure")
}

func TestCorrectSendsFullRecord(t *testing.T) {
	m, events, corrector, _, _ := newTestMachine()
	m.OnInferred(CEOExecutive, 0.72, "how do I hire testers?")

	m.Correct(context.Background(), SoftwareEngineer, "confirmation_card", CorrectionContext{
		ThreadID:        "th-9",
		Identity:        "member@example.com",
		LastUserMessage: "how do I hire testers?",
	})

	require.Len(t, corrector.calls, 1)
	corr := corrector.calls[0]
	assert.Equal(t, "th-9", corr.ThreadID)
	assert.Equal(t, string(SoftwareEngineer), corr.CorrectedPersona)
	assert.Equal(t, string(CEOExecutive), corr.OriginalPersona)
	assert.InDelta(t, 0.72, corr.OriginalConfidence, 1e-9)
	assert.Equal(t, "how do I hire testers?", corr.MessageContext)
	assert.Equal(t, "confirmation_card", corr.CorrectionReason)

	require.Len(t, events.toasts, 1)
	assert.Contains(t, events.toasts[0], "Software Engineer")
}

func TestCorrectRetriesOnceAfterAuthError(t *testing.T) {
	m, events, corrector, tokens, _ := newTestMachine()
	m.OnInferred(CEOExecutive, 0.8, "msg")
	corrector.errs = []error{&transport.Error{Kind: transport.KindAuth, Status: 401}}

	m.Correct(context.Background(), EngineeringManager, "choice", CorrectionContext{ThreadID: "th-1"})

	assert.Equal(t, 1, tokens.refreshed)
	assert.Len(t, corrector.calls, 2, "exactly one retry after a 401")
	assert.Len(t, events.toasts, 1)
}

func TestCorrectSkipsNetworkWithoutToken(t *testing.T) {
	m, _, corrector, tokens, long := newTestMachine()
	tokens.token = ""
	m.OnInferred(CEOExecutive, 0.8, "msg")

	m.Correct(context.Background(), EngineeringManager, "choice", CorrectionContext{ThreadID: "th-1"})

	assert.Empty(t, corrector.calls)
	// State still switches locally.
	choice, _ := long.Get(store.KeyPersonaChoice)
	assert.Equal(t, string(EngineeringManager), choice)
}

func TestDisplayNames(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{CEOExecutive, "CEO/Executive"},
		{QualityCoach, "Quality Coach"},
		{ID("UNKNOWN_THING"), "UNKNOWN_THING"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.id.DisplayName())
	}
}
