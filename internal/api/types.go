package api

// AccessCheckRequest asks the backend whether an identity may use the chat.
type AccessCheckRequest struct {
	Email string `json:"email"`
}

// AccessCheckResponse is the backend's access verdict. Token fields are only
// present when HasAccess is true.
type AccessCheckResponse struct {
	HasAccess       bool   `json:"has_access"`
	AccessToken     string `json:"access_token,omitempty"`
	AccessExpiresAt string `json:"access_expires_at,omitempty"` // ISO 8601
	GrantedVia      string `json:"access_granted_via,omitempty"`
	IsBetaTester    bool   `json:"is_beta_tester,omitempty"`
	IsPaidMember    bool   `json:"is_paid_member,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatContext carries per-request metadata alongside the message.
type ChatContext struct {
	PostSlug    string `json:"post_slug,omitempty"`
	PostTitle   string `json:"post_title,omitempty"`
	MemberEmail string `json:"member_email,omitempty"`
	IsFeedback  bool   `json:"is_feedback"`
	Persona     string `json:"persona,omitempty"`
}

// ChatRequest is the payload for a chat turn.
type ChatRequest struct {
	Message  string      `json:"message"`
	ThreadID string      `json:"thread_id"`
	History  []Message   `json:"history"`
	Context  ChatContext `json:"context"`
}

// Source is a retrieval citation attached to an answer.
type Source struct {
	Similarity float64 `json:"similarity"`
	Section    string  `json:"section,omitempty"`
	Label      string  `json:"label,omitempty"`
	Chapter    string  `json:"chapter,omitempty"`
}

// Name returns the best available display name for the source.
func (s Source) Name() string {
	switch {
	case s.Section != "":
		return s.Section
	case s.Label != "":
		return s.Label
	case s.Chapter != "":
		return s.Chapter
	}
	return "Handbook"
}

// ChatResponse is the backend's answer to a chat turn. Persona fields are
// present when the server inferred a role from the message.
type ChatResponse struct {
	Answer            string   `json:"answer,omitempty"`
	Sources           []Source `json:"sources,omitempty"`
	Persona           string   `json:"persona,omitempty"`
	PersonaConfidence float64  `json:"persona_confidence,omitempty"`
	LowRelevance      bool     `json:"low_relevance,omitempty"`
	ThreadID          string   `json:"thread_id,omitempty"`
}

// PersonaCorrection is the telemetry record for a user-driven persona change.
type PersonaCorrection struct {
	ThreadID           string  `json:"thread_id"`
	UserID             string  `json:"user_id"`
	CorrectedPersona   string  `json:"corrected_persona"`
	OriginalPersona    string  `json:"original_persona,omitempty"`
	OriginalConfidence float64 `json:"original_confidence,omitempty"`
	MessageContext     string  `json:"message_context,omitempty"`
	CorrectionReason   string  `json:"correction_reason"`
}

// CorrectionResponse acknowledges a persona correction.
type CorrectionResponse struct {
	Status string `json:"status"`
}
