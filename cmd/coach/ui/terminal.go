package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"coachwidget/internal/persona"
	"coachwidget/internal/widget"
)

// Terminal renders widget events as styled lines. It is safe for use from
// the controller's callbacks.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer

	inputEnabled bool
	typing       bool
	visible      bool
}

// NewTerminal creates a renderer writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out, inputEnabled: true}
}

// InputEnabled reports whether the controller currently accepts primary
// input. The REPL polls it between reads.
func (t *Terminal) InputEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputEnabled
}

// WindowVisible reports whether the chat window is open.
func (t *Terminal) WindowVisible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

func (t *Terminal) SetButton(enabled, loading bool, tooltip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if loading {
		fmt.Fprintln(t.out, sourceStyle.Render("["+tooltip+"]"))
	}
}

func (t *Terminal) SetWindowVisible(visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.visible = visible
}

func (t *Terminal) ShowStatus(level widget.BannerLevel, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch level {
	case widget.BannerError:
		fmt.Fprintln(t.out, errorStyle.Render("! "+message))
	case widget.BannerWarning:
		fmt.Fprintln(t.out, warnStyle.Render("! "+message))
	default:
		fmt.Fprintln(t.out, infoStyle.Render("i "+message))
	}
}

func (t *Terminal) ShowToast(message string, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, toastStyle.Render(message))
}

func (t *Terminal) ShowPersonaBadge(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, badgeStyle.Render(label))
}

func (t *Terminal) AppendTurn(turn widget.Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case turn.IsError:
		fmt.Fprintln(t.out, errorStyle.Render("coach: "+turn.Content))
	case turn.Role == "user":
		fmt.Fprintln(t.out, userStyle.Render("you: ")+turn.Content)
	default:
		fmt.Fprintln(t.out, userStyle.Render("coach: ")+assistantStyle.Render(turn.Content))
		for _, s := range turn.Sources {
			fmt.Fprintln(t.out, sourceStyle.Render(fmt.Sprintf("  source: %s (%.0f%%)", s.Name(), s.Similarity*100)))
		}
		if turn.LowRelevance {
			fmt.Fprintln(t.out, sourceStyle.Render("  (low-relevance match)"))
		}
	}
}

func (t *Terminal) SetTyping(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if active && !t.typing {
		fmt.Fprintln(t.out, sourceStyle.Render("coach is typing..."))
	}
	t.typing = active
}

func (t *Terminal) SetInputEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputEnabled = enabled
}

func (t *Terminal) ClearInput() {}

func (t *Terminal) PromptPersonaConfirmation(inferred persona.ID, options []persona.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	body := fmt.Sprintf("It sounds like you're a %s. Did I get that right?\n", inferred.DisplayName())
	body += "Use /persona confirm, or /persona set <id> to pick one of:\n"
	for _, id := range options {
		body += fmt.Sprintf("  %-22s %s\n", string(id), id.DisplayName())
	}
	fmt.Fprintln(t.out, promptStyle.Render(body))
}
