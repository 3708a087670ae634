// Package widget is the controller that ties transport, access, persona,
// and storage together behind a Renderer. It owns the UI state machine and
// the conversation history for the current page load.
package widget

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coachwidget/internal/access"
	"coachwidget/internal/api"
	"coachwidget/internal/persona"
	"coachwidget/internal/store"
	"coachwidget/internal/transport"
)

const (
	feedbackPrefix = "feedback:"

	tooltipChecking    = "Checking access..."
	tooltipReady       = "Ask the Quality Coach"
	msgTokenExpired    = "Your session token has expired. Please reload the page."
	msgAccessExpired   = "Your access has expired. Please reload the page."
	msgUnavailable     = "The chat is not available right now."
	msgCheckFailed     = "Could not verify access. Please try again later."
	msgStillChecking   = "Still checking your access, one moment..."
	msgFeedbackThanks  = "Thanks for the feedback!"
	msgConnectionError = "Sorry, I could not reach the server. Please try again in a moment."
	msgEmptyAnswer     = "Sorry, I could not come up with an answer for that. Try rephrasing your question."
)

// PostContext identifies the page hosting the widget.
type PostContext struct {
	Slug  string
	Title string
}

// Config is the recognized option set for a widget instance.
type Config struct {
	APIBase        string
	MemberIdentity string
	IsPaidMember   bool
	Post           PostContext

	// SkipAccessCheck fabricates a short-lived local grant instead of
	// calling the backend. Test and development use only.
	SkipAccessCheck bool

	// OnSnapshot, when set, receives a read-only session snapshot after
	// every state change.
	OnSnapshot func(Snapshot)
}

// Tuning holds the product constants a host may override.
type Tuning struct {
	ToastDuration time.Duration
	Access        access.Tuning
	// Transport overrides the default retry/timeout policy when non-nil.
	Transport *transport.Config
}

func (t Tuning) withDefaults() Tuning {
	if t.ToastDuration <= 0 {
		t.ToastDuration = 4 * time.Second
	}
	return t
}

// Controller drives the widget. All render traffic goes through one
// Renderer; all persistence goes through the store pair.
type Controller struct {
	cfg    Config
	tuning Tuning

	client   *api.Client
	acc      *access.Manager
	personas *persona.Machine
	stores   store.Pair
	render   Renderer
	logger   *zap.Logger

	// sendMu serializes sends so overlapping programmatic sends cannot
	// interleave history entries.
	sendMu sync.Mutex

	mu              sync.Mutex
	state           UIState
	threadID        string
	history         []api.Message
	historyLoaded   bool
	lastUserMessage string
	lockReason      string
	grantSource     access.Source
}

// New wires a controller over the given stores and renderer. The backend
// client, access manager, and persona machine are constructed internally so
// hosts only deal with Config.
func New(cfg Config, tuning Tuning, stores store.Pair, r Renderer, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		cfg:    cfg,
		tuning: tuning.withDefaults(),
		stores: stores,
		render: r,
		logger: logger,
	}
	trCfg := transport.DefaultConfig()
	if c.tuning.Transport != nil {
		trCfg = *c.tuning.Transport
	}
	c.client = api.New(cfg.APIBase, transport.NewWithConfig(trCfg, logger), logger)
	c.acc = access.NewManager(cfg.MemberIdentity, c.client, stores, c, c.tuning.Access, logger)
	c.acc.SetSkipCheck(cfg.SkipAccessCheck)
	c.personas = persona.NewMachine(stores.Long, c.client, c.acc, c, logger)
	return c
}

// Init brings the widget up: thread id, persona badge restore, then the
// initial access check. Returns whether access was granted.
func (c *Controller) Init(ctx context.Context) bool {
	c.mu.Lock()
	id, ok := c.stores.Long.Get(store.KeyThreadID)
	if !ok || id == "" {
		id = uuid.NewString()
		c.stores.Long.Set(store.KeyThreadID, id)
	}
	c.threadID = id
	c.mu.Unlock()

	// Badge before any network traffic.
	c.personas.Restore()

	c.render.SetButton(false, true, tooltipChecking)
	c.render.SetWindowVisible(false)
	c.publish()

	granted := c.acc.Initialize(ctx)

	// The paywall flow sets this before redirecting to checkout; consume it
	// so the widget reopens exactly once after the round-trip.
	if v, ok := c.stores.Long.Get(store.KeyReturnToChat); ok {
		c.stores.Long.Delete(store.KeyReturnToChat)
		if v == "true" && granted {
			c.Open()
		}
	}
	return granted
}

// Shutdown releases the controller's timers. The renderer is untouched.
func (c *Controller) Shutdown() {
	c.acc.Close()
}

// State returns the current UI state.
func (c *Controller) State() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ThreadID returns the active conversation thread.
func (c *Controller) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// Open shows the chat window. Only legal from READY (or a no-op from OPEN);
// anywhere else the attempt is rejected with a warning.
func (c *Controller) Open() bool {
	if !c.apply(eventOpen) {
		c.mu.Lock()
		reason := c.lockReason
		c.mu.Unlock()
		if reason == "" {
			reason = msgUnavailable
		}
		c.render.ShowStatus(BannerWarning, reason)
		return false
	}
	return true
}

// CloseWindow hides the chat window. Rejected unless the window is open.
func (c *Controller) CloseWindow() bool {
	return c.apply(eventClose)
}

// Retry re-runs the access check after a LOCKED outcome.
func (c *Controller) Retry(ctx context.Context) bool {
	return c.acc.Check(ctx, false)
}

// SendOptions distinguishes how a message entered the pipeline.
type SendOptions struct {
	// Override marks a programmatic send (retry, feedback, replay). The
	// visible input is only cleared and disabled for primary sends.
	Override bool
	// Feedback routes the message down the feedback path: it reaches the
	// server with the feedback flag set and never enters history.
	Feedback bool
	// SkipUserTurn suppresses the optimistic user render, used when
	// replaying a question after a persona switch.
	SkipUserTurn bool
}

// SendMessage runs one chat turn. All outcomes, including rejections,
// surface through the renderer.
func (c *Controller) SendMessage(ctx context.Context, text string, opts SendOptions) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	token, hasToken := c.acc.Token()
	st := c.State()
	if (st != StateReady && st != StateOpen) || !hasToken {
		c.render.ShowStatus(BannerWarning, msgTokenExpired)
		return
	}

	// Legacy escape hatch on the visible input.
	if !opts.Override && strings.HasPrefix(strings.ToLower(text), feedbackPrefix) {
		opts.Feedback = true
		text = strings.TrimSpace(text[len(feedbackPrefix):])
		if text == "" {
			return
		}
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	primary := !opts.Override
	if !opts.Feedback && !opts.SkipUserTurn {
		c.render.AppendTurn(Turn{Role: "user", Content: text})
	}
	if primary {
		c.render.ClearInput()
		c.render.SetInputEnabled(false)
	}
	if opts.Feedback {
		c.render.ShowStatus(BannerInfo, msgFeedbackThanks)
	}
	c.render.SetTyping(true)

	req := c.buildRequest(text, opts.Feedback)
	resp, err := c.client.SendChat(ctx, token, req)
	if err != nil && transport.IsAuth(err) {
		// One silent refresh, one retry, then give up.
		if refreshErr := c.acc.RefreshSilent(ctx); refreshErr == nil {
			if token, hasToken = c.acc.Token(); hasToken {
				resp, err = c.client.SendChat(ctx, token, req)
			}
		}
	}

	c.render.SetTyping(false)
	if primary {
		c.render.SetInputEnabled(true)
	}

	if err != nil {
		c.handleSendFailure(err, opts.Feedback)
		return
	}

	if !opts.Feedback {
		c.mu.Lock()
		c.lastUserMessage = text
		c.mu.Unlock()
	}
	c.adoptThreadID(resp.ThreadID)

	prompt := false
	if resp.Persona != "" {
		prompt = c.personas.OnInferred(persona.ID(resp.Persona), resp.PersonaConfidence, text)
	}

	answer := resp.Answer
	if answer == "" {
		answer = msgEmptyAnswer
	}
	if !opts.Feedback {
		c.render.AppendTurn(Turn{
			Role:         "assistant",
			Content:      answer,
			Sources:      resp.Sources,
			LowRelevance: resp.LowRelevance,
		})
		c.mu.Lock()
		c.history = append(c.history,
			api.Message{Role: "user", Content: text},
			api.Message{Role: "assistant", Content: answer},
		)
		c.mu.Unlock()
	}

	// The card is advisory and never blocks the answer, so it comes last.
	if prompt {
		c.render.PromptPersonaConfirmation(persona.ID(resp.Persona), persona.All())
	}
	c.publish()
}

// SubmitFeedback sends a rating or free-text comment through the feedback
// path. Either part may be empty, not both.
func (c *Controller) SubmitFeedback(ctx context.Context, rating int, comment string) {
	comment = strings.TrimSpace(comment)
	var text string
	switch {
	case rating > 0 && comment != "":
		text = fmt.Sprintf("Rating: %d/5. %s", rating, comment)
	case rating > 0:
		text = fmt.Sprintf("Rating: %d/5", rating)
	case comment != "":
		text = comment
	default:
		return
	}
	c.SendMessage(ctx, text, SendOptions{Override: true, Feedback: true})
}

// ConfirmPersona accepts the inferred persona from the confirmation card.
func (c *Controller) ConfirmPersona(id persona.ID) {
	c.personas.Confirm(id)
	c.publish()
}

// CorrectPersona switches to a different persona. When the switch came from
// the confirmation card, the question that triggered the inference is
// replayed with the user turn suppressed so the answer is re-framed for the
// new persona.
func (c *Controller) CorrectPersona(ctx context.Context, id persona.ID, reason string) {
	source := c.personas.SourceMessage()

	c.mu.Lock()
	cc := persona.CorrectionContext{
		ThreadID:        c.threadID,
		Identity:        c.cfg.MemberIdentity,
		LastUserMessage: c.lastUserMessage,
	}
	c.mu.Unlock()

	c.personas.Correct(ctx, id, reason, cc)
	c.publish()

	if reason == persona.ReasonConfirmationCard && source != "" {
		c.SendMessage(ctx, source, SendOptions{Override: true, SkipUserTurn: true})
	}
}

// History returns a copy of the in-memory conversation.
func (c *Controller) History() []api.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Message, len(c.history))
	copy(out, c.history)
	return out
}

// AccessGranted implements access.Events.
func (c *Controller) AccessGranted(g access.Grant, source access.Source) {
	c.mu.Lock()
	c.lockReason = ""
	c.grantSource = source
	c.mu.Unlock()
	c.apply(eventGranted)
	c.rehydrateHistory()
}

// AccessDenied implements access.Events.
func (c *Controller) AccessDenied(reason string, silent bool) {
	c.mu.Lock()
	c.lockReason = reason
	c.mu.Unlock()
	c.apply(eventDenied)
	if !silent {
		c.render.ShowStatus(BannerError, reason)
	}
}

// AccessError implements access.Events.
func (c *Controller) AccessError(err error, silent bool) {
	c.mu.Lock()
	c.lockReason = msgCheckFailed
	c.mu.Unlock()
	c.apply(eventError)
	if !silent {
		c.render.ShowStatus(BannerError, msgCheckFailed)
	}
}

// CheckStarted implements access.Events.
func (c *Controller) CheckStarted() {
	c.render.SetButton(false, true, tooltipChecking)
}

// CheckStillRunning implements access.Events. Fired by the lag timer when a
// foreground check is slow.
func (c *Controller) CheckStillRunning() {
	c.render.ShowStatus(BannerInfo, msgStillChecking)
}

// ShowBadge implements persona.Events.
func (c *Controller) ShowBadge(id persona.ID) {
	c.render.ShowPersonaBadge(id.DisplayName())
}

// ShowToast implements persona.Events.
func (c *Controller) ShowToast(message string) {
	c.render.ShowToast(message, c.tuning.ToastDuration)
}

func (c *Controller) buildRequest(text string, feedback bool) api.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := make([]api.Message, len(c.history))
	copy(history, c.history)

	ctxMeta := api.ChatContext{
		PostSlug:    c.cfg.Post.Slug,
		PostTitle:   c.cfg.Post.Title,
		MemberEmail: c.cfg.MemberIdentity,
		IsFeedback:  feedback,
	}
	if id, ok := c.personas.Current(); ok {
		ctxMeta.Persona = string(id)
	}
	return api.ChatRequest{
		Message:  text,
		ThreadID: c.threadID,
		History:  history,
		Context:  ctxMeta,
	}
}

func (c *Controller) handleSendFailure(err error, feedback bool) {
	if transport.IsAuth(err) {
		c.logger.Debug("Chat send rejected with auth failure", zap.Error(err))
		c.acc.Invalidate()
		c.mu.Lock()
		c.lockReason = msgAccessExpired
		c.mu.Unlock()
		c.apply(eventDenied)
		c.render.ShowStatus(BannerError, msgAccessExpired)
		return
	}
	c.logger.Debug("Chat send failed", zap.Error(err))
	if feedback {
		return
	}
	c.render.AppendTurn(Turn{Role: "assistant", Content: msgConnectionError, IsError: true})
}

// adoptThreadID persists a server-assigned thread when it differs from ours.
func (c *Controller) adoptThreadID(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	changed := id != c.threadID
	if changed {
		c.threadID = id
		c.stores.Long.Set(store.KeyThreadID, id)
	}
	c.mu.Unlock()
	if changed {
		c.logger.Debug("Adopted server thread id", zap.String("thread_id", id))
	}
}

// rehydrateHistory replays the persisted conversation once per load, on the
// first grant, and only when nothing has been rendered yet. Skipping on a
// populated history avoids duplicate turns when a refresh renews the grant.
func (c *Controller) rehydrateHistory() {
	c.mu.Lock()
	if c.historyLoaded || len(c.history) > 0 {
		c.mu.Unlock()
		return
	}
	c.historyLoaded = true
	threadID := c.threadID
	c.mu.Unlock()

	token, ok := c.acc.Token()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	messages, err := c.client.GetHistory(ctx, token, threadID)
	if err != nil {
		c.logger.Debug("History rehydration failed", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		return
	}

	for _, m := range messages {
		c.render.AppendTurn(Turn{Role: m.Role, Content: m.Content})
	}
	c.mu.Lock()
	c.history = append(c.history, messages...)
	c.mu.Unlock()
}

func (c *Controller) apply(ev uiEvent) bool {
	c.mu.Lock()
	next, ok := transition(c.state, ev)
	if !ok {
		prev := c.state
		c.mu.Unlock()
		c.logger.Debug("Rejected UI transition",
			zap.Stringer("state", prev),
			zap.Stringer("event", ev))
		return false
	}
	c.state = next
	lockReason := c.lockReason
	c.mu.Unlock()

	switch next {
	case StateInit:
		c.render.SetButton(false, true, tooltipChecking)
	case StateReady:
		c.render.SetButton(true, false, tooltipReady)
		c.render.SetWindowVisible(false)
	case StateOpen:
		c.render.SetButton(true, false, tooltipReady)
		c.render.SetWindowVisible(true)
	case StateLocked:
		if lockReason == "" {
			lockReason = msgUnavailable
		}
		c.render.SetButton(false, false, lockReason)
		c.render.SetWindowVisible(false)
	}
	c.publish()
	return true
}

// CurrentPersona returns the active persona, if any.
func (c *Controller) CurrentPersona() (persona.ID, bool) {
	return c.personas.Current()
}

// Snapshot returns the current read-only session view.
func (c *Controller) Snapshot() Snapshot {
	return c.snapshot()
}

// publish pushes a fresh snapshot to the host, if one is listening.
func (c *Controller) publish() {
	if c.cfg.OnSnapshot == nil {
		return
	}
	c.cfg.OnSnapshot(c.snapshot())
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{Identity: c.cfg.MemberIdentity}
	c.mu.Lock()
	snap.State = c.state
	snap.ThreadID = c.threadID
	snap.AccessSource = c.grantSource
	c.mu.Unlock()

	if g, ok := c.acc.Grant(); ok {
		snap.HasAccess = !g.Expired(time.Now())
		snap.GrantedVia = g.GrantedVia
		snap.AccessExpiresAt = g.ExpiresAt
	}
	if id, ok := c.personas.Current(); ok {
		snap.Persona = id
		snap.PersonaConfirmed = c.personas.Confirmed()
	}
	return snap
}
