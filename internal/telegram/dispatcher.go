package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/404FinnNotFound/TiktokBot123/internal/workflow"
)

// genericErrorText is sent when an update fails for an unexpected reason.
const genericErrorText = "Sorry, an error occurred while processing your request."

// Handler processes one inbound event.
type Handler interface {
	Handle(ctx context.Context, ev workflow.Event) error
}

// Compile-time check that the workflow service can be dispatched to.
var _ Handler = (*workflow.Service)(nil)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPollTimeout sets the long-poll timeout in seconds.
func WithPollTimeout(seconds int) DispatcherOption {
	return func(d *Dispatcher) {
		if seconds >= 0 {
			d.pollTimeout = seconds
		}
	}
}

// WithRetryDelay sets the pause after a failed poll.
func WithRetryDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.retryDelay = delay
	}
}

// WithDrainTimeout bounds how long Run waits for in-flight updates on shutdown
// before cancelling them.
func WithDrainTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.drainTimeout = timeout
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher polls the Bot API for updates and runs each one on its own goroutine.
type Dispatcher struct {
	client       *Client
	handler      Handler
	pollTimeout  int
	retryDelay   time.Duration
	drainTimeout time.Duration
	logger       *slog.Logger

	wg       sync.WaitGroup
	inFlight sync.Map
}

// NewDispatcher creates a Dispatcher that polls through client and hands
// updates to handler.
func NewDispatcher(client *Client, handler Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		client:       client,
		handler:      handler,
		pollTimeout:  30,
		retryDelay:   3 * time.Second,
		drainTimeout: 30 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type pollResult struct {
	updates []tgbotapi.Update
	err     error
}

// Run polls until ctx is cancelled, then waits for in-flight updates.
// Updates keep running past ctx cancellation until the drain timeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()

	d.logger.Info("polling for updates",
		slog.String("bot", d.client.Username()),
		slog.Int("poll_timeout_sec", d.pollTimeout),
	)

	offset := 0
	results := make(chan pollResult, 1)
	for {
		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = d.pollTimeout
		cfg.AllowedUpdates = []string{"message", "callback_query"}

		go func() {
			updates, err := d.client.api.GetUpdates(cfg)
			results <- pollResult{updates: updates, err: err}
		}()

		var res pollResult
		select {
		case <-ctx.Done():
			d.drain(cancelTasks)
			return nil
		case res = <-results:
		}

		if res.err != nil {
			d.reportError(taskCtx, nil, fmt.Errorf("get updates: %w", res.err))
			select {
			case <-ctx.Done():
				d.drain(cancelTasks)
				return nil
			case <-time.After(d.retryDelay):
			}
			continue
		}

		for _, u := range res.updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			ev, ok := EventFromUpdate(u)
			if !ok {
				continue
			}
			d.wg.Add(1)
			go d.dispatch(taskCtx, u.UpdateID, ev)
		}
	}
}

// drain waits for in-flight updates, cancelling them after the drain timeout.
func (d *Dispatcher) drain(cancelTasks context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	pending := 0
	d.inFlight.Range(func(_, _ any) bool {
		pending++
		return true
	})
	d.logger.Info("stopping dispatcher", slog.Int("in_flight", pending))

	select {
	case <-done:
	case <-time.After(d.drainTimeout):
		d.logger.Warn("drain timeout reached, cancelling in-flight updates")
		cancelTasks()
		<-done
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, updateID int, ev workflow.Event) {
	defer d.wg.Done()
	d.inFlight.Store(updateID, struct{}{})
	defer d.inFlight.Delete(updateID)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while handling update",
				slog.Int("update_id", updateID),
				slog.String("stack", string(debug.Stack())),
			)
			d.reportError(ctx, &ev, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := d.handler.Handle(ctx, ev); err != nil {
		d.reportError(ctx, &ev, err)
	}
}

// reportError is the last stop for every failure. Conflicts with another
// poller are only logged; anything else gets a generic reply when there is
// a chat to reply to.
func (d *Dispatcher) reportError(ctx context.Context, ev *workflow.Event, err error) {
	if IsConflict(err) {
		d.logger.Error("another bot instance is already running",
			slog.String("error", err.Error()),
		)
		return
	}

	attrs := []any{slog.String("error", err.Error())}
	if ev != nil {
		attrs = append(attrs, slog.Int64("user_id", ev.UserID), slog.Int64("chat_id", ev.ChatID))
	}
	d.logger.Error("update handling failed", attrs...)

	if ev == nil || ev.ChatID == 0 {
		return
	}
	if _, sendErr := d.client.SendText(ctx, ev.ChatID, genericErrorText); sendErr != nil {
		d.logger.Warn("failed to send error reply",
			slog.Int64("chat_id", ev.ChatID),
			slog.String("error", sendErr.Error()),
		)
	}
}

// IsConflict reports whether err is Telegram refusing a second poller for the same token.
func IsConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Conflict:")
}

// EventFromUpdate converts an update into a workflow event. Updates the bot
// does not react to report false.
func EventFromUpdate(u tgbotapi.Update) (workflow.Event, bool) {
	if q := u.CallbackQuery; q != nil {
		if q.From == nil {
			return workflow.Event{}, false
		}
		ev := workflow.Event{
			Kind:       workflow.EventButton,
			UserID:     q.From.ID,
			ChatID:     q.From.ID,
			Data:       q.Data,
			CallbackID: q.ID,
		}
		if q.Message != nil {
			ev.MessageID = q.Message.MessageID
			if q.Message.Chat != nil {
				ev.ChatID = q.Message.Chat.ID
			}
		}
		return ev, true
	}

	m := u.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return workflow.Event{}, false
	}
	ev := workflow.Event{
		UserID: m.From.ID,
		ChatID: m.Chat.ID,
		Text:   m.Text,
	}
	switch {
	case m.IsCommand():
		ev.Kind = workflow.EventCommand
		ev.Command = strings.ToLower(m.Command())
	case m.Text != "":
		ev.Kind = workflow.EventText
	default:
		return workflow.Event{}, false
	}
	return ev, true
}
