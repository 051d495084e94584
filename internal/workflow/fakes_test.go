package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/404FinnNotFound/TiktokBot123/internal/caption"
	"github.com/404FinnNotFound/TiktokBot123/internal/download"
	"github.com/404FinnNotFound/TiktokBot123/internal/pipeline"
	"github.com/404FinnNotFound/TiktokBot123/internal/session"
	"github.com/404FinnNotFound/TiktokBot123/internal/storage"
)

const (
	testUser = int64(42)
	testChat = int64(4242)
	testURL  = "https://www.tiktok.com/@creator/video/7301234567890"
)

// call is one recorded transport operation.
type call struct {
	Op      string
	ChatID  int64
	Message int
	Text    string
	Buttons []Button
}

type fakeTransport struct {
	mu       sync.Mutex
	nextID   int
	calls    []call
	videos   []string
	editErr  error
	videoErr error
	// videoExisted records whether each uploaded file was on disk at upload time.
	videoExisted []bool
}

var _ Transport = (*fakeTransport)(nil)

func (f *fakeTransport) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeTransport) newID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return 100 + f.nextID
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, text string) (MessageRef, error) {
	id := f.newID()
	f.record(call{Op: "send", ChatID: chatID, Message: id, Text: text})
	return MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (f *fakeTransport) SendMenu(_ context.Context, chatID int64, text string, buttons []Button) (MessageRef, error) {
	id := f.newID()
	f.record(call{Op: "menu", ChatID: chatID, Message: id, Text: text, Buttons: buttons})
	return MessageRef{ChatID: chatID, MessageID: id}, nil
}

func (f *fakeTransport) EditText(_ context.Context, ref MessageRef, text string) error {
	f.record(call{Op: "edit", ChatID: ref.ChatID, Message: ref.MessageID, Text: text})
	return f.editErr
}

func (f *fakeTransport) DeleteMessage(_ context.Context, ref MessageRef) error {
	f.record(call{Op: "delete", ChatID: ref.ChatID, Message: ref.MessageID})
	return nil
}

func (f *fakeTransport) SendVideo(_ context.Context, chatID int64, path, caption string) error {
	_, statErr := os.Stat(path)
	f.mu.Lock()
	f.videos = append(f.videos, path)
	f.videoExisted = append(f.videoExisted, statErr == nil)
	f.mu.Unlock()
	f.record(call{Op: "video", ChatID: chatID, Text: caption})
	return f.videoErr
}

func (f *fakeTransport) AnswerCallback(_ context.Context, callbackID string) error {
	f.record(call{Op: "answer", Text: callbackID})
	return nil
}

func (f *fakeTransport) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

// texts returns the text of every send and edit in order.
func (f *fakeTransport) texts() []string {
	var out []string
	for _, c := range f.snapshot() {
		if c.Op == "send" || c.Op == "edit" || c.Op == "menu" {
			out = append(out, c.Text)
		}
	}
	return out
}

func (f *fakeTransport) ops(op string) []call {
	var out []call
	for _, c := range f.snapshot() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type fakeDownloader struct {
	mu    sync.Mutex
	urls  []string
	err   error
	block chan struct{}
	begun chan struct{}
}

func (f *fakeDownloader) Download(ctx context.Context, rawURL, dir string) (download.Result, error) {
	f.mu.Lock()
	f.urls = append(f.urls, rawURL)
	f.mu.Unlock()

	if f.begun != nil {
		close(f.begun)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return download.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return download.Result{}, f.err
	}
	path := filepath.Join(dir, "7301234567890.mp4")
	if err := os.WriteFile(path, []byte("downloaded"), 0600); err != nil {
		return download.Result{}, err
	}
	return download.Result{Path: path, ID: "7301234567890", Size: 10}, nil
}

// fakeTransformer writes stage outputs next to the input and registers them
// like the real pipeline does.
type fakeTransformer struct {
	temp       *storage.TempManager
	err        error
	outputSize int
	mu         sync.Mutex
	captions   []string
}

func (f *fakeTransformer) produce(a pipeline.Asset, stage pipeline.Stage) (pipeline.Asset, error) {
	if f.err != nil {
		return pipeline.Asset{}, f.err
	}
	size := f.outputSize
	if size == 0 {
		size = 16
	}
	dst := filepath.Join(a.Dir(), string(stage)+".mp4")
	if err := os.WriteFile(dst, make([]byte, size), 0600); err != nil {
		return pipeline.Asset{}, err
	}
	f.temp.Register(a.Owner, dst)
	return pipeline.Asset{Path: dst, Owner: a.Owner, Stage: stage}, nil
}

func (f *fakeTransformer) DownloadOnly(_ context.Context, a pipeline.Asset) (pipeline.Asset, error) {
	return f.produce(a, pipeline.StageRetagged)
}

func (f *fakeTransformer) Formatted(_ context.Context, a pipeline.Asset) (pipeline.Asset, error) {
	return f.produce(a, pipeline.StageRetagged)
}

func (f *fakeTransformer) Caption(_ context.Context, a pipeline.Asset, text string) (pipeline.Asset, error) {
	f.mu.Lock()
	f.captions = append(f.captions, text)
	f.mu.Unlock()
	if caption.IsSkip(text) {
		return a, nil
	}
	return f.produce(a, pipeline.StageCaptioned)
}

type fakeArchiver struct {
	keys []string
	err  error
}

func (f *fakeArchiver) Archive(_ context.Context, key, _ string) (string, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return "", f.err
	}
	return "https://bucket.s3.us-east-1.amazonaws.com/" + key, nil
}

type harness struct {
	svc         *Service
	transport   *fakeTransport
	store       *session.MemoryStore
	downloader  *fakeDownloader
	transformer *fakeTransformer
	temp        *storage.TempManager
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	temp, err := storage.NewTempManager(t.TempDir(), nil)
	require.NoError(t, err)

	h := &harness{
		transport:   &fakeTransport{},
		store:       session.NewMemoryStore(),
		downloader:  &fakeDownloader{},
		transformer: &fakeTransformer{temp: temp},
		temp:        temp,
	}
	h.svc = NewService(h.transport, h.store, h.downloader, h.transformer, temp, opts...)
	return h
}

func (h *harness) text(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, h.svc.Handle(context.Background(), Event{
		Kind: EventText, UserID: testUser, ChatID: testChat, Text: text,
	}))
}

func (h *harness) press(t *testing.T, data string, messageID int) {
	t.Helper()
	require.NoError(t, h.svc.Handle(context.Background(), Event{
		Kind: EventButton, UserID: testUser, ChatID: testChat,
		Data: data, CallbackID: "cb-1", MessageID: messageID,
	}))
}

// menuID returns the message id of the latest options menu.
func (h *harness) menuID(t *testing.T) int {
	t.Helper()
	menus := h.transport.ops("menu")
	require.NotEmpty(t, menus)
	return menus[len(menus)-1].Message
}

// rootEntries lists what is left in the temp root.
func (h *harness) rootEntries(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.temp.Root())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

var errBoom = errors.New("boom")
