// Package workflow drives the per-user conversation: accept a TikTok URL,
// offer the output formats, download and transform the video, collect an
// optional caption and deliver the result.
//
// Events of one user are handled one at a time. Every path that ends a
// conversation releases the user's temporary files.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"

	"github.com/404FinnNotFound/TiktokBot123/internal/download"
	"github.com/404FinnNotFound/TiktokBot123/internal/pipeline"
	"github.com/404FinnNotFound/TiktokBot123/internal/session"
	"github.com/404FinnNotFound/TiktokBot123/internal/storage"
)

// DefaultMaxUploadBytes is the Telegram bot upload limit.
const DefaultMaxUploadBytes int64 = 50 * 1024 * 1024

// tiktokURL matches the hosts the bot accepts.
var tiktokURL = regexp.MustCompile(`^https?://(?:www\.)?(?:tiktok\.com|vm\.tiktok\.com)/`)

// Downloader fetches a video into a directory.
type Downloader interface {
	Download(ctx context.Context, rawURL, dir string) (download.Result, error)
}

// Transformer runs the pipeline variants.
type Transformer interface {
	DownloadOnly(ctx context.Context, a pipeline.Asset) (pipeline.Asset, error)
	Formatted(ctx context.Context, a pipeline.Asset) (pipeline.Asset, error)
	Caption(ctx context.Context, a pipeline.Asset, text string) (pipeline.Asset, error)
}

// TempResources hands out work directories and tracks live assets.
type TempResources interface {
	Acquire(userID int64) (string, error)
	Register(userID int64, path string)
	Path(userID int64) (string, bool)
	Release(userID int64)
}

// Compile-time checks of the production collaborators.
var (
	_ Downloader    = (*download.YtDLP)(nil)
	_ Transformer   = (*pipeline.Pipeline)(nil)
	_ TempResources = (*storage.TempManager)(nil)
)

// Option configures a Service.
type Option func(*Service)

// WithArchiver copies every delivered video to archive.
func WithArchiver(archive storage.Archiver) Option {
	return func(s *Service) {
		s.archive = archive
	}
}

// WithMaxUploadBytes overrides the upload size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service handles inbound events.
type Service struct {
	transport  Transport
	store      session.Store
	downloader Downloader
	transform  Transformer
	temp       TempResources
	archive    storage.Archiver
	validate   *validator.Validate
	maxUpload  int64
	logger     *slog.Logger
	locks      *userLocks
}

// NewService creates a workflow Service.
func NewService(transport Transport, store session.Store, downloader Downloader, transform Transformer, temp TempResources, opts ...Option) *Service {
	s := &Service{
		transport:  transport,
		store:      store,
		downloader: downloader,
		transform:  transform,
		temp:       temp,
		validate:   validator.New(),
		maxUpload:  DefaultMaxUploadBytes,
		logger:     slog.Default(),
		locks:      newUserLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActiveSessions returns the number of open conversations.
func (s *Service) ActiveSessions(ctx context.Context) int {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Handle processes one event. Problems the user can act on are answered in
// the chat and not returned; a returned error means the event could not be
// handled at all.
func (s *Service) Handle(ctx context.Context, ev Event) error {
	unlock := s.locks.lock(ev.UserID)
	defer unlock()

	switch ev.Kind {
	case EventCommand:
		return s.handleCommand(ctx, ev)
	case EventButton:
		return s.handleButton(ctx, ev)
	case EventText:
		return s.handleText(ctx, ev)
	default:
		return fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

func (s *Service) handleCommand(ctx context.Context, ev Event) error {
	switch ev.Command {
	case "start", "help":
		_, err := s.transport.SendText(ctx, ev.ChatID, greetingText)
		return err
	default:
		// Commands never count as a URL or a caption and leave the session as is.
		s.logger.Info("unknown command",
			slog.Int64("user_id", ev.UserID),
			slog.String("command", ev.Command),
		)
		_, err := s.transport.SendText(ctx, ev.ChatID, greetingText)
		return err
	}
}

func (s *Service) handleText(ctx context.Context, ev Event) error {
	sess, err := s.findSession(ctx, ev.UserID)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(ev.Text)
	url, urlErr := s.validateURL(text)

	if sess != nil && sess.GetState() == session.StateAwaitingCaption && urlErr != nil {
		return s.applyCaption(ctx, sess, text)
	}

	if urlErr != nil {
		s.logger.Info("rejected message",
			slog.Int64("user_id", ev.UserID),
			slog.String("error", urlErr.Error()),
		)
		_, err := s.transport.SendText(ctx, ev.ChatID, invalidURLText)
		return err
	}

	switch {
	case sess == nil:
	case sess.IsIdle():
		s.logger.Info("restarting conversation",
			slog.Int64("user_id", ev.UserID),
			slog.String("session_id", sess.ID),
			slog.String("state", string(sess.GetState())),
		)
		s.finish(ctx, sess, session.OutcomeAbandoned, "restarted with a new URL")
	default:
		// Left mid-processing by an earlier event that returned an error.
		s.logger.Warn("replacing stuck conversation",
			slog.Int64("user_id", ev.UserID),
			slog.String("session_id", sess.ID),
			slog.String("state", string(sess.GetState())),
		)
		s.finish(ctx, sess, session.OutcomeFailed, "stuck in "+string(sess.GetState()))
	}
	return s.startSession(ctx, ev, url)
}

func (s *Service) startSession(ctx context.Context, ev Event, url string) error {
	sess := session.New(ev.UserID, ev.ChatID)
	sess.URL = url
	if err := sess.TransitionTo(session.StateFormatChosen); err != nil {
		return err
	}

	ref, err := s.transport.SendMenu(ctx, ev.ChatID, optionsText, optionButtons)
	if err != nil {
		return fmt.Errorf("send options: %w", err)
	}
	sess.OptionsMessage = ref.MessageID

	s.logger.Info("conversation started",
		slog.Int64("user_id", ev.UserID),
		slog.String("session_id", sess.ID),
		slog.String("url", url),
	)
	return s.store.Save(ctx, sess)
}

func (s *Service) handleButton(ctx context.Context, ev Event) error {
	if err := s.transport.AnswerCallback(ctx, ev.CallbackID); err != nil {
		s.logger.Warn("failed to answer callback",
			slog.Int64("user_id", ev.UserID),
			slog.String("error", err.Error()),
		)
	}

	sess, err := s.findSession(ctx, ev.UserID)
	if err != nil {
		return err
	}

	variant := session.Variant(ev.Data)
	if sess == nil || sess.GetState() != session.StateFormatChosen || !variant.IsValid() ||
		(ev.MessageID != 0 && sess.OptionsMessage != 0 && ev.MessageID != sess.OptionsMessage) {
		return s.staleAction(ctx, ev, sess)
	}

	sess.Variant = variant
	if err := sess.TransitionTo(session.StateProcessing); err != nil {
		return err
	}
	s.showStatus(ctx, sess, MessageRef{ChatID: sess.ChatID, MessageID: sess.OptionsMessage}, startingText)
	if err := s.store.Save(ctx, sess); err != nil {
		return err
	}

	asset, err := s.fetch(ctx, sess)
	if err != nil {
		s.fail(ctx, sess, err)
		return nil
	}

	switch variant {
	case session.VariantDownloadOnly:
		out, err := s.transform.DownloadOnly(ctx, asset)
		if err != nil {
			s.fail(ctx, sess, err)
			return nil
		}
		s.deliver(ctx, sess, out)
	case session.VariantFormatted:
		out, err := s.transform.Formatted(ctx, asset)
		if err != nil {
			s.fail(ctx, sess, err)
			return nil
		}
		sess.SetAsset(out.Path)
		if err := sess.TransitionTo(session.StateAwaitingCaption); err != nil {
			return err
		}
		s.updateStatus(ctx, sess, captionPromptText)
		return s.store.Save(ctx, sess)
	}
	return nil
}

// staleAction answers a button that no longer belongs to a live menu.
func (s *Service) staleAction(ctx context.Context, ev Event, sess *session.Session) error {
	s.logger.Info("stale button press",
		slog.Int64("user_id", ev.UserID),
		slog.String("data", ev.Data),
	)
	if ev.MessageID != 0 {
		err := s.transport.EditText(ctx, MessageRef{ChatID: ev.ChatID, MessageID: ev.MessageID}, staleActionText)
		if err == nil {
			if sess != nil {
				s.finish(ctx, sess, session.OutcomeAbandoned, "stale action")
			}
			return nil
		}
	}
	if sess != nil {
		s.finish(ctx, sess, session.OutcomeAbandoned, "stale action")
	}
	_, err := s.transport.SendText(ctx, ev.ChatID, staleActionText)
	return err
}

// fetch downloads the session URL into a fresh work directory.
func (s *Service) fetch(ctx context.Context, sess *session.Session) (pipeline.Asset, error) {
	dir, err := s.temp.Acquire(sess.UserID)
	if err != nil {
		return pipeline.Asset{}, err
	}
	res, err := s.downloader.Download(ctx, sess.URL, dir)
	if err != nil {
		return pipeline.Asset{}, err
	}
	s.temp.Register(sess.UserID, res.Path)
	sess.SetAsset(res.Path)
	return pipeline.Asset{Path: res.Path, Owner: sess.UserID, Stage: pipeline.StageDownloaded}, nil
}

func (s *Service) applyCaption(ctx context.Context, sess *session.Session, text string) error {
	path, ok := s.temp.Path(sess.UserID)
	if !ok {
		path = sess.AssetPath
	}
	if _, err := os.Stat(path); path == "" || err != nil {
		s.logger.Warn("caption received but video is gone",
			slog.Int64("user_id", sess.UserID),
			slog.String("session_id", sess.ID),
			slog.String("path", path),
		)
		s.finish(ctx, sess, session.OutcomeFailed, "asset missing")
		_, err := s.transport.SendText(ctx, sess.ChatID, missingVideoText)
		return err
	}

	if err := sess.TransitionTo(session.StateProcessing); err != nil {
		return err
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return err
	}

	out, err := s.transform.Caption(ctx, pipeline.Asset{Path: path, Owner: sess.UserID, Stage: pipeline.StageRetagged}, text)
	if err != nil {
		s.fail(ctx, sess, err)
		return nil
	}
	s.deliver(ctx, sess, out)
	return nil
}

// deliver uploads the final asset and ends the conversation.
func (s *Service) deliver(ctx context.Context, sess *session.Session, a pipeline.Asset) {
	sess.SetAsset(a.Path)
	if err := sess.TransitionTo(session.StateDelivering); err != nil {
		s.fail(ctx, sess, err)
		return
	}

	size, err := a.Size()
	if err != nil {
		s.fail(ctx, sess, fmt.Errorf("%w: %w", ErrDeliveryFailed, err))
		return
	}
	if size > s.maxUpload {
		s.fail(ctx, sess, fmt.Errorf("%w: %s > %s", ErrSizeExceeded,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(s.maxUpload))))
		return
	}

	s.updateStatus(ctx, sess, uploadingText)
	start := time.Now()
	if err := s.transport.SendVideo(ctx, sess.ChatID, a.Path, videoCaption); err != nil {
		s.fail(ctx, sess, fmt.Errorf("%w: %w", ErrDeliveryFailed, err))
		return
	}
	s.logger.Info("video delivered",
		slog.Int64("user_id", sess.UserID),
		slog.String("session_id", sess.ID),
		slog.String("variant", string(sess.Variant)),
		slog.String("size", humanize.IBytes(uint64(size))),
		slog.Duration("upload", time.Since(start)),
	)

	s.archiveCopy(ctx, sess, a)

	if sess.StatusMessage != 0 {
		if err := s.transport.DeleteMessage(ctx, MessageRef{ChatID: sess.ChatID, MessageID: sess.StatusMessage}); err != nil {
			s.logger.Warn("failed to delete status message",
				slog.Int64("user_id", sess.UserID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.finish(ctx, sess, session.OutcomeDelivered, "")
}

func (s *Service) archiveCopy(ctx context.Context, sess *session.Session, a pipeline.Asset) {
	if s.archive == nil {
		return
	}
	key := fmt.Sprintf("deliveries/%d/%s.mp4", sess.UserID, sess.ID)
	url, err := s.archive.Archive(ctx, key, a.Path)
	if err != nil {
		s.logger.Warn("failed to archive video",
			slog.Int64("user_id", sess.UserID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("video archived",
		slog.Int64("user_id", sess.UserID),
		slog.String("url", url),
	)
}

// fail reports err to the user and ends the conversation.
func (s *Service) fail(ctx context.Context, sess *session.Session, err error) {
	s.logger.Error("conversation failed",
		slog.Int64("user_id", sess.UserID),
		slog.String("session_id", sess.ID),
		slog.String("state", string(sess.GetState())),
		slog.String("error", err.Error()),
	)
	s.updateStatus(ctx, sess, userMessage(err))
	s.finish(ctx, sess, session.OutcomeFailed, err.Error())
}

// finish moves the session to done, releases its files and forgets it.
func (s *Service) finish(ctx context.Context, sess *session.Session, outcome session.Outcome, reason string) {
	if sess.IsTerminal() {
		s.logger.Warn("session already finished",
			slog.Int64("user_id", sess.UserID),
			slog.String("session_id", sess.ID),
		)
	} else if err := sess.Finish(outcome, reason); err != nil {
		s.logger.Warn("failed to finish session",
			slog.Int64("user_id", sess.UserID),
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
	}
	s.temp.Release(sess.UserID)
	if err := s.store.Delete(ctx, sess.UserID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		s.logger.Warn("failed to delete session",
			slog.Int64("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Info("conversation finished",
		slog.Int64("user_id", sess.UserID),
		slog.String("session_id", sess.ID),
		slog.String("outcome", string(outcome)),
		slog.Duration("elapsed", time.Since(sess.CreatedAt)),
	)
}

// showStatus turns ref into the status message, falling back to a new message.
func (s *Service) showStatus(ctx context.Context, sess *session.Session, ref MessageRef, text string) {
	if ref.MessageID != 0 {
		if err := s.transport.EditText(ctx, ref, text); err == nil {
			sess.SetStatusMessage(ref.MessageID)
			return
		}
	}
	sent, err := s.transport.SendText(ctx, sess.ChatID, text)
	if err != nil {
		s.logger.Warn("failed to send status",
			slog.Int64("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		sess.SetStatusMessage(0)
		return
	}
	sess.SetStatusMessage(sent.MessageID)
}

// updateStatus rewrites the current status message.
func (s *Service) updateStatus(ctx context.Context, sess *session.Session, text string) {
	s.showStatus(ctx, sess, MessageRef{ChatID: sess.ChatID, MessageID: sess.StatusMessage}, text)
}

func (s *Service) findSession(ctx context.Context, userID int64) (*session.Session, error) {
	sess, err := s.store.FindByUser(ctx, userID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

// validateURL returns the trimmed URL when it is a well-formed TikTok link.
func (s *Service) validateURL(raw string) (string, error) {
	url := strings.TrimSpace(raw)
	if err := s.validate.Var(url, "required,url"); err != nil {
		return "", fmt.Errorf("%w: not a url", ErrInvalidInput)
	}
	if !tiktokURL.MatchString(url) {
		return "", fmt.Errorf("%w: unsupported host", ErrInvalidInput)
	}
	return url, nil
}
