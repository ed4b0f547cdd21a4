package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	tg "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"telegram-genai-bot/internal/logging"
	"telegram-genai-bot/internal/relay"
)

func TestMain(m *testing.M) {
	logging.Init("error")
	m.Run()
}

// testBot records outgoing calls and allows customizing file access.
type testBot struct {
	mu       sync.Mutex
	sent     []string
	edits    []string
	deleted  []int
	photos   []string
	videos   []string
	nextID   int
	sendErr  error
	getFile  func(ctx context.Context, params *tg.GetFileParams) (*models.File, error)
	fileLink func(file *models.File) string
}

func (b *testBot) SendMessage(ctx context.Context, params *tg.SendMessageParams) (*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return nil, b.sendErr
	}
	b.sent = append(b.sent, params.Text)
	b.nextID++
	return &models.Message{ID: b.nextID}, nil
}

func (b *testBot) EditMessageText(ctx context.Context, params *tg.EditMessageTextParams) (*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edits = append(b.edits, params.Text)
	return &models.Message{ID: params.MessageID}, nil
}

func (b *testBot) DeleteMessage(ctx context.Context, params *tg.DeleteMessageParams) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, params.MessageID)
	return true, nil
}

func (b *testBot) SendPhoto(ctx context.Context, params *tg.SendPhotoParams) (*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.photos = append(b.photos, params.Caption)
	return &models.Message{ID: 100}, nil
}

func (b *testBot) SendVideo(ctx context.Context, params *tg.SendVideoParams) (*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.videos = append(b.videos, params.Caption)
	return &models.Message{ID: 101}, nil
}

func (b *testBot) GetFile(ctx context.Context, params *tg.GetFileParams) (*models.File, error) {
	if b.getFile != nil {
		return b.getFile(ctx, params)
	}
	return &models.File{FilePath: "file"}, nil
}

func (b *testBot) FileDownloadLink(file *models.File) string {
	if b.fileLink != nil {
		return b.fileLink(file)
	}
	return "http://example.com/file"
}

type recordDispatcher struct {
	reqs []relay.Request
}

func (d *recordDispatcher) Dispatch(ctx context.Context, req relay.Request) {
	d.reqs = append(d.reqs, req)
}

type fakeJournal struct {
	jobs    []relay.Job
	err     error
	cleared []int64
}

func (j *fakeJournal) LoadChatJobs(chatID int64, n int) ([]relay.Job, error) {
	return j.jobs, j.err
}

func (j *fakeJournal) ClearChatJobs(chatID int64) (int, error) {
	if j.err != nil {
		return 0, j.err
	}
	j.cleared = append(j.cleared, chatID)
	n := len(j.jobs)
	j.jobs = nil
	return n, nil
}

func command(text string) *models.Update {
	n := strings.IndexByte(text, ' ')
	if n < 0 {
		n = len(text)
	}
	return &models.Update{Message: &models.Message{
		Text:     text,
		Chat:     models.Chat{ID: 1},
		From:     &models.User{ID: 7},
		Entities: []models.MessageEntity{{Type: models.MessageEntityTypeBotCommand, Offset: 0, Length: n}},
	}}
}

func text(s string) *models.Update {
	return &models.Update{Message: &models.Message{Text: s, Chat: models.Chat{ID: 1}, From: &models.User{ID: 7}}}
}

func newTestHandler() (*Handler, *recordDispatcher, *recordDispatcher) {
	images, videos := &recordDispatcher{}, &recordDispatcher{}
	return NewHandler(images, videos, nil), images, videos
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text, cmd, args string
		ok              bool
	}{
		{"/photo cat in space", "photo", "cat in space", true},
		{"/video@GenBot  waves ", "video", "waves", true},
		{"/Start", "start", "", true},
	}
	for _, tt := range tests {
		cmd, args, ok := parseCommand(command(tt.text).Message)
		if cmd != tt.cmd || args != tt.args || ok != tt.ok {
			t.Errorf("parseCommand(%q) = %q, %q, %v", tt.text, cmd, args, ok)
		}
	}
	if _, _, ok := parseCommand(text("/photo no entity").Message); ok {
		t.Error("text without command entity should not parse")
	}
}

func TestHandleUpdate_Commands(t *testing.T) {
	t.Run("photo", func(t *testing.T) {
		h, images, videos := newTestHandler()
		b := &testBot{}
		h.HandleUpdate(context.Background(), b, command("/photo a cat in space"))
		if len(images.reqs) != 1 || images.reqs[0].Prompt != "a cat in space" || images.reqs[0].ChatID != 1 {
			t.Fatalf("image requests = %+v", images.reqs)
		}
		if len(videos.reqs) != 0 || len(b.sent) != 0 {
			t.Fatalf("unexpected side effects: videos=%v sent=%v", videos.reqs, b.sent)
		}
	})
	t.Run("generate alias", func(t *testing.T) {
		h, images, _ := newTestHandler()
		h.HandleUpdate(context.Background(), &testBot{}, command("/generate sunset"))
		if len(images.reqs) != 1 {
			t.Fatalf("image requests = %+v", images.reqs)
		}
	})
	t.Run("video", func(t *testing.T) {
		h, images, videos := newTestHandler()
		h.HandleUpdate(context.Background(), &testBot{}, command("/video paper boat"))
		if len(videos.reqs) != 1 || videos.reqs[0].Prompt != "paper boat" || len(images.reqs) != 0 {
			t.Fatalf("videos=%+v images=%+v", videos.reqs, images.reqs)
		}
	})
	t.Run("help", func(t *testing.T) {
		h, _, _ := newTestHandler()
		b := &testBot{}
		h.HandleUpdate(context.Background(), b, command("/start"))
		if len(b.sent) != 1 || !strings.Contains(b.sent[0], "/photo") {
			t.Fatalf("sent = %v", b.sent)
		}
	})
	t.Run("plain text ignored", func(t *testing.T) {
		h, images, videos := newTestHandler()
		b := &testBot{}
		h.HandleUpdate(context.Background(), b, text("hello"))
		if len(images.reqs)+len(videos.reqs)+len(b.sent) != 0 {
			t.Fatal("plain text without pending request should be ignored")
		}
	})
	t.Run("nil message", func(t *testing.T) {
		h, _, _ := newTestHandler()
		h.HandleUpdate(context.Background(), &testBot{}, &models.Update{})
	})
}

func TestHandleUpdate_AwaitingPrompt(t *testing.T) {
	h, images, videos := newTestHandler()
	b := &testBot{}

	h.HandleUpdate(context.Background(), b, command("/video"))
	if len(b.sent) != 1 || !strings.Contains(b.sent[0], "video") {
		t.Fatalf("expected prompt request, got %v", b.sent)
	}
	if len(videos.reqs) != 0 {
		t.Fatal("nothing should be dispatched yet")
	}

	h.HandleUpdate(context.Background(), b, text("a paper boat in a storm"))
	if len(videos.reqs) != 1 || videos.reqs[0].Prompt != "a paper boat in a storm" {
		t.Fatalf("video requests = %+v", videos.reqs)
	}

	h.HandleUpdate(context.Background(), b, text("another message"))
	if len(videos.reqs) != 1 || len(images.reqs) != 0 {
		t.Fatal("pending prompt should be consumed once")
	}

	h.HandleUpdate(context.Background(), b, command("/photo"))
	h.HandleUpdate(context.Background(), b, command("/help"))
	h.HandleUpdate(context.Background(), b, text("forgotten"))
	if len(images.reqs) != 0 {
		t.Fatal("/help should cancel the pending prompt")
	}
}

func TestHandleUpdate_PhotoToVideo(t *testing.T) {
	photo := func(caption string) *models.Update {
		return &models.Update{Message: &models.Message{
			Caption: caption,
			Chat:    models.Chat{ID: 1},
			Photo: []models.PhotoSize{
				{FileID: "small", Width: 90, Height: 90},
				{FileID: "large", Width: 1280, Height: 720},
				{FileID: "medium", Width: 320, Height: 180},
			},
		}}
	}

	t.Run("success", func(t *testing.T) {
		h, _, videos := newTestHandler()
		var fileID string
		b := &testBot{getFile: func(ctx context.Context, params *tg.GetFileParams) (*models.File, error) {
			fileID = params.FileID
			return &models.File{FilePath: "photos/1.jpg"}, nil
		}}
		origHTTP := httpGetFunc
		httpGetFunc = func(url string) (*http.Response, error) {
			return &http.Response{Body: io.NopCloser(strings.NewReader("jpeg"))}, nil
		}
		defer func() { httpGetFunc = origHTTP }()

		h.HandleUpdate(context.Background(), b, photo("#veo make it dance"))
		if fileID != "large" {
			t.Fatalf("downloaded %q, want largest size", fileID)
		}
		if len(videos.reqs) != 1 {
			t.Fatalf("video requests = %+v", videos.reqs)
		}
		req := videos.reqs[0]
		if req.Prompt != "make it dance" || req.Reference == nil || string(req.Reference.Data) != "jpeg" {
			t.Fatalf("request = %+v", req)
		}
	})

	t.Run("download error", func(t *testing.T) {
		h, _, videos := newTestHandler()
		b := &testBot{}
		origHTTP := httpGetFunc
		httpGetFunc = func(url string) (*http.Response, error) {
			return nil, io.EOF
		}
		defer func() { httpGetFunc = origHTTP }()

		h.HandleUpdate(context.Background(), b, photo("#VEO zoom out"))
		if len(videos.reqs) != 0 {
			t.Fatal("nothing should be dispatched on download error")
		}
		if len(b.sent) != 1 || !strings.Contains(b.sent[0], "download") {
			t.Fatalf("sent = %v", b.sent)
		}
	})

	t.Run("untagged photo", func(t *testing.T) {
		h, _, videos := newTestHandler()
		b := &testBot{getFile: func(ctx context.Context, params *tg.GetFileParams) (*models.File, error) {
			t.Fatal("untagged photo should not be downloaded")
			return nil, nil
		}}
		h.HandleUpdate(context.Background(), b, photo("holiday"))
		if len(videos.reqs) != 0 || len(b.sent) != 0 {
			t.Fatal("untagged photo should be ignored")
		}
	})
}

func TestHandleUpdate_Jobs(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	t.Run("list", func(t *testing.T) {
		j := &fakeJournal{jobs: []relay.Job{
			{Kind: relay.KindVideo, State: relay.StateFailed, Reason: "timeout", Prompt: "boat", SubmittedAt: at},
			{Kind: relay.KindImage, State: relay.StateSucceeded, Prompt: "cat", SubmittedAt: at},
		}}
		h := NewHandler(&recordDispatcher{}, &recordDispatcher{}, j)
		b := &testBot{}
		h.HandleUpdate(context.Background(), b, command("/jobs"))
		if len(b.sent) != 1 {
			t.Fatalf("sent = %v", b.sent)
		}
		for _, want := range []string{"14 Mar 09:30", "video · failed (timeout)", "boat", "image · succeeded", "cat"} {
			if !strings.Contains(b.sent[0], want) {
				t.Errorf("jobs text missing %q:\n%s", want, b.sent[0])
			}
		}
	})
	t.Run("empty", func(t *testing.T) {
		h := NewHandler(&recordDispatcher{}, &recordDispatcher{}, &fakeJournal{})
		b := &testBot{}
		h.HandleUpdate(context.Background(), b, command("/jobs"))
		if len(b.sent) != 1 || b.sent[0] != "No jobs yet." {
			t.Fatalf("sent = %v", b.sent)
		}
	})
	t.Run("error", func(t *testing.T) {
		h := NewHandler(&recordDispatcher{}, &recordDispatcher{}, &fakeJournal{err: errors.New("disk")})
		b := &testBot{}
		h.HandleUpdate(context.Background(), b, command("/jobs"))
		if len(b.sent) != 1 || !strings.Contains(b.sent[0], "Could not") {
			t.Fatalf("sent = %v", b.sent)
		}
	})
}

func TestHandleUpdate_Clear(t *testing.T) {
	t.Run("removes history", func(t *testing.T) {
		j := &fakeJournal{jobs: []relay.Job{{Prompt: "a"}, {Prompt: "b"}}}
		h := NewHandler(&recordDispatcher{}, &recordDispatcher{}, j)
		b := &testBot{}
		h.HandleUpdate(context.Background(), b, command("/clear"))
		if len(j.cleared) != 1 || j.cleared[0] != 1 {
			t.Fatalf("cleared chats = %v", j.cleared)
		}
		if len(b.sent) != 1 || !strings.Contains(b.sent[0], "Removed 2") {
			t.Fatalf("sent = %v", b.sent)
		}
		h.HandleUpdate(context.Background(), b, command("/jobs"))
		if b.sent[1] != "No jobs yet." {
			t.Fatalf("jobs after clear = %q", b.sent[1])
		}
	})
	t.Run("error", func(t *testing.T) {
		h := NewHandler(&recordDispatcher{}, &recordDispatcher{}, &fakeJournal{err: errors.New("disk")})
		b := &testBot{}
		h.HandleUpdate(context.Background(), b, command("/clear"))
		if len(b.sent) != 1 || !strings.Contains(b.sent[0], "Could not clear") {
			t.Fatalf("sent = %v", b.sent)
		}
	})
}
