// Package session provides the per-user conversation aggregate that drives
// the bot's workflow, with state machine transitions and an in-memory store.
package session

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State represents where a conversation currently is.
type State string

const (
	// StateAwaitingURL is the state of a conversation that has no usable URL yet.
	StateAwaitingURL State = "AWAITING_URL"
	// StateFormatChosen indicates a valid URL was received and the options menu is shown.
	StateFormatChosen State = "FORMAT_CHOSEN"
	// StateProcessing indicates a download or transform is running.
	StateProcessing State = "PROCESSING"
	// StateAwaitingCaption indicates the formatted video waits for caption text.
	StateAwaitingCaption State = "AWAITING_CAPTION"
	// StateDelivering indicates the final video is being uploaded.
	StateDelivering State = "DELIVERING"
	// StateDone is terminal. The session is discarded once it gets here.
	StateDone State = "DONE"
)

// Variant is the output format picked from the options menu.
type Variant string

const (
	// VariantDownloadOnly delivers the original framing with rewritten tags.
	VariantDownloadOnly Variant = "download_only"
	// VariantFormatted delivers the padded white-canvas layout with a caption.
	VariantFormatted Variant = "meta_format"
)

// IsValid returns true if the variant is known.
func (v Variant) IsValid() bool {
	return v == VariantDownloadOnly || v == VariantFormatted
}

// Outcome records how a conversation ended.
type Outcome string

const (
	// OutcomeDelivered means the video reached the user.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeFailed means an error ended the conversation.
	OutcomeFailed Outcome = "failed"
	// OutcomeAbandoned means the user started over or sent a stale action.
	OutcomeAbandoned Outcome = "abandoned"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[State][]State{
	StateAwaitingURL:     {StateFormatChosen, StateDone},
	StateFormatChosen:    {StateProcessing, StateDone},
	StateProcessing:      {StateAwaitingCaption, StateDelivering, StateDone},
	StateAwaitingCaption: {StateProcessing, StateDone},
	StateDelivering:      {StateDone},
	StateDone:            {},
}

func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// Session is the conversation of one user with the bot.
type Session struct {
	mu sync.RWMutex

	// ID is the unique identifier for this conversation.
	ID string
	// UserID is the Telegram user the conversation belongs to.
	UserID int64
	// ChatID is the chat replies are sent to.
	ChatID int64
	// URL is the TikTok link being processed.
	URL string
	// Variant is the chosen output format, empty until a button is pressed.
	Variant Variant
	// State is the current conversation state.
	State State
	// OptionsMessage is the id of the message carrying the format buttons.
	OptionsMessage int
	// StatusMessage is the id of the progress message, zero when none is shown.
	StatusMessage int
	// AssetPath is the live video file of the conversation.
	AssetPath string
	// Outcome is set once the conversation is done.
	Outcome Outcome
	// Error contains the failure reason when Outcome is OutcomeFailed.
	Error string
	// CreatedAt is when the conversation started.
	CreatedAt time.Time
	// UpdatedAt is when the conversation last changed.
	UpdatedAt time.Time
	// CompletedAt is when the conversation reached StateDone.
	CompletedAt time.Time
}

// New creates a session for userID in StateAwaitingURL.
func New(userID, chatID int64) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChatID:    chatID,
		State:     StateAwaitingURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the session state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (s *Session) TransitionTo(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !canTransition(s.State, state) {
		return ErrInvalidTransition
	}

	s.State = state
	s.UpdatedAt = time.Now()
	if state == StateDone {
		s.CompletedAt = s.UpdatedAt
	}
	return nil
}

// Finish moves the session to StateDone recording outcome and reason.
func (s *Session) Finish(outcome Outcome, reason string) error {
	s.mu.Lock()
	s.Outcome = outcome
	s.Error = reason
	s.mu.Unlock()
	return s.TransitionTo(StateDone)
}

// GetState returns the current state (thread-safe).
func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// SetAsset records the live video file.
func (s *Session) SetAsset(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AssetPath = path
	s.UpdatedAt = time.Now()
}

// SetStatusMessage records the id of the progress message.
func (s *Session) SetStatusMessage(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatusMessage = id
	s.UpdatedAt = time.Now()
}

// IsIdle returns true when the session waits for user input and may be
// replaced by a new URL.
func (s *Session) IsIdle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State == StateFormatChosen || s.State == StateAwaitingCaption
}

// IsTerminal returns true if the session is done.
func (s *Session) IsTerminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State == StateDone
}

// Clone creates a copy of the session for safe reads.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Session{
		ID:             s.ID,
		UserID:         s.UserID,
		ChatID:         s.ChatID,
		URL:            s.URL,
		Variant:        s.Variant,
		State:          s.State,
		OptionsMessage: s.OptionsMessage,
		StatusMessage:  s.StatusMessage,
		AssetPath:      s.AssetPath,
		Outcome:        s.Outcome,
		Error:          s.Error,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		CompletedAt:    s.CompletedAt,
	}
}
