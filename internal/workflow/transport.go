package workflow

import "context"

// MessageRef identifies a message the bot sent.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Transport is the chat surface the workflow talks to.
type Transport interface {
	// SendText sends a plain text message.
	SendText(ctx context.Context, chatID int64, text string) (MessageRef, error)

	// SendMenu sends text with a single row of inline buttons.
	SendMenu(ctx context.Context, chatID int64, text string, buttons []Button) (MessageRef, error)

	// EditText replaces the text of a sent message and drops its buttons.
	EditText(ctx context.Context, ref MessageRef, text string) error

	// DeleteMessage removes a sent message.
	DeleteMessage(ctx context.Context, ref MessageRef) error

	// SendVideo uploads the file at path as a streamable video.
	SendVideo(ctx context.Context, chatID int64, path, caption string) error

	// AnswerCallback acknowledges a button press.
	AnswerCallback(ctx context.Context, callbackID string) error
}

// EventKind distinguishes inbound events.
type EventKind int

const (
	// EventText is a plain text message.
	EventText EventKind = iota
	// EventButton is an inline keyboard button press.
	EventButton
	// EventCommand is a slash command such as /start.
	EventCommand
)

// Event is one inbound update from a user.
type Event struct {
	Kind   EventKind
	UserID int64
	ChatID int64
	// Text is the message text for EventText and EventCommand.
	Text string
	// Command is the command name without the slash for EventCommand.
	Command string
	// Data is the callback payload for EventButton.
	Data string
	// CallbackID identifies the button press to acknowledge.
	CallbackID string
	// MessageID is the message the pressed button belongs to.
	MessageID int
}
