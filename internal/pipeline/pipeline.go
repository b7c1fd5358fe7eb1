package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dershov/screenassist/internal/capture"
	"github.com/dershov/screenassist/internal/chat"
	"github.com/dershov/screenassist/internal/config"
	"github.com/dershov/screenassist/internal/domain"
	"github.com/dershov/screenassist/internal/record"
	"github.com/dershov/screenassist/internal/store"
)

// Analyzer is the outbound analysis boundary.
type Analyzer interface {
	Analyze(ctx context.Context, apiKey string, image domain.StillImage, prompt string) (string, error)
}

// Deps contains all dependencies required to construct a Pipeline.
type Deps struct {
	Source   capture.Source
	Sampler  *capture.Sampler
	Recorder *record.Recorder
	Analyzer Analyzer
	Sessions store.SessionStore
	Settings store.SettingsStore
}

// Pipeline composes capture, sampling, analysis, recording and storage
// into the user-facing session operations. All operations are safe to
// call from the presentation layer at any time.
type Pipeline struct {
	source   capture.Source
	sampler  *capture.Sampler
	recorder *record.Recorder
	analyzer Analyzer
	sessions store.SessionStore
	settings store.SettingsStore

	mu          sync.Mutex
	stream      capture.Stream
	watcherStop chan struct{}
	apiKey      string
	library     []domain.RecordedSession
	playback    *domain.RecordedSession

	chat *chat.Log
	wg   sync.WaitGroup
	now  func() time.Time
}

func New(deps Deps) *Pipeline {
	return &Pipeline{
		source:   deps.Source,
		sampler:  deps.Sampler,
		recorder: deps.Recorder,
		analyzer: deps.Analyzer,
		sessions: deps.Sessions,
		settings: deps.Settings,
		chat:     chat.NewLog(),
		now:      time.Now,
	}
}

// LoadCredential reads the persisted analysis credential into the
// pipeline. Called once at startup; SetCredential updates it afterwards.
func (p *Pipeline) LoadCredential(ctx context.Context) error {
	value, err := p.settings.Load(ctx, config.CredentialKey)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	p.mu.Lock()
	p.apiKey = value
	p.mu.Unlock()
	return nil
}

// SetCredential persists and applies a new analysis credential.
func (p *Pipeline) SetCredential(ctx context.Context, value string) error {
	if err := p.settings.Save(ctx, config.CredentialKey, value); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	p.mu.Lock()
	p.apiKey = value
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) Credential() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apiKey
}

// StartSharing requests a live stream from the capture source. A declined
// capture is not an error; the pipeline simply stays in the not-sharing
// state.
func (p *Pipeline) StartSharing(ctx context.Context) error {
	p.mu.Lock()
	if p.stream != nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	stream, err := p.source.Start(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCaptureDeclined) {
			slog.Info("capture declined, staying idle")
			return nil
		}
		return fmt.Errorf("start capture: %w", err)
	}

	p.mu.Lock()
	if p.stream != nil {
		p.mu.Unlock()
		stream.Close()
		return nil
	}
	p.stream = stream
	p.watcherStop = make(chan struct{})
	go p.watchStream(stream, p.watcherStop)
	p.mu.Unlock()

	slog.Info("sharing started")
	return nil
}

// watchStream reacts to the environment terminating the stream (native
// stop control, display going away) exactly as if StopSharing had been
// called locally. The subscription is released on explicit stop so a
// local stop never cascades twice.
func (p *Pipeline) watchStream(stream capture.Stream, stop chan struct{}) {
	select {
	case <-stop:
	case <-stream.Done():
		slog.Info("stream terminated by environment")
		if err := p.StopSharing(context.Background()); err != nil {
			slog.Error("stop sharing after stream end", "error", err)
		}
	}
}

// StopSharing stops any active recording, releases the stream and clears
// the live chat. Chat is scoped to one sharing period. Idempotent.
func (p *Pipeline) StopSharing(ctx context.Context) error {
	p.mu.Lock()
	if p.stream == nil {
		p.mu.Unlock()
		return nil
	}
	stream := p.stream
	p.stream = nil
	if p.watcherStop != nil {
		close(p.watcherStop)
		p.watcherStop = nil
	}
	p.mu.Unlock()

	if p.recorder.Recording() {
		if err := p.stopRecording(ctx); err != nil {
			slog.Error("stop recording on share end", "error", err)
		}
	}

	stream.Close()
	p.chat.Clear()
	slog.Info("sharing stopped")
	return nil
}

// ToggleRecording starts a recording on the live stream, or stops and
// persists the one in progress.
func (p *Pipeline) ToggleRecording(ctx context.Context) error {
	if p.recorder.Recording() {
		return p.stopRecording(ctx)
	}

	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()
	if stream == nil {
		return domain.ErrNoActiveStream
	}
	return p.recorder.Start(stream)
}

// stopRecording finalizes the recorder and persists the assembled media
// paired with the current chat snapshot under one new identifier. The
// pairing is atomic: a failed store add keeps neither.
func (p *Pipeline) stopRecording(ctx context.Context) error {
	media, err := p.recorder.Stop(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotRecording) {
			return nil
		}
		return fmt.Errorf("stop recorder: %w", err)
	}

	now := p.now()
	session := &domain.RecordedSession{
		ID:       now.UnixMilli(),
		Date:     now.Format(config.DateLayout),
		MIMEType: media.MIMEType,
		Media:    media.Data,
		Chat:     p.chat.Snapshot(),
	}

	if err := p.sessions.Add(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	slog.Info("recording saved", "id", session.ID, "messages", len(session.Chat))
	return p.RefreshLibrary(ctx)
}

// Analyze captures a still frame, appends the user message immediately
// and resolves the assistant reply asynchronously. Precondition failures
// leave the chat untouched. Every issued request appends exactly one
// reply, in completion order; concurrent requests may interleave and
// that is accepted behavior.
func (p *Pipeline) Analyze(ctx context.Context, prompt string) error {
	p.mu.Lock()
	apiKey := p.apiKey
	stream := p.stream
	p.mu.Unlock()

	if apiKey == "" {
		return domain.ErrMissingCredential
	}
	if stream == nil {
		return domain.ErrNoActiveStream
	}

	image, err := p.sampler.Capture(ctx, stream)
	if err != nil {
		return err
	}

	if prompt == "" {
		prompt = config.DefaultPrompt
	}
	p.chat.Append(domain.RoleUser, prompt)

	requestID := uuid.NewString()
	slog.Info("analysis requested", "request_id", requestID)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("analysis panicked", "request_id", requestID, "panic", r)
				p.chat.Append(domain.RoleAssistant, fmt.Sprintf("Error: %v", r))
			}
		}()

		reqCtx, cancel := context.WithTimeout(context.Background(), config.RequestTimeout)
		defer cancel()

		reply, err := p.analyzer.Analyze(reqCtx, apiKey, image, prompt)
		if err != nil {
			slog.Error("analysis failed", "request_id", requestID, "error", err)
			reply = "Error: " + err.Error()
		}
		p.chat.Append(domain.RoleAssistant, reply)
	}()

	return nil
}

// RefreshLibrary reloads the stored session list. Callers may retry on
// failure; the previous view stays in place until a reload succeeds.
func (p *Pipeline) RefreshLibrary(ctx context.Context) error {
	sessions, err := p.sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("refresh library: %w", err)
	}
	p.mu.Lock()
	p.library = sessions
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) DeleteSession(ctx context.Context, id int64) error {
	if err := p.sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	p.mu.Lock()
	if p.playback != nil && p.playback.ID == id {
		p.playback = nil
	}
	p.mu.Unlock()

	return p.RefreshLibrary(ctx)
}

func (p *Pipeline) OpenPlayback(ctx context.Context, id int64) (*domain.RecordedSession, error) {
	session, err := p.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.playback = session
	p.mu.Unlock()
	return session, nil
}

func (p *Pipeline) ClosePlayback() {
	p.mu.Lock()
	p.playback = nil
	p.mu.Unlock()
}

func (p *Pipeline) Playback() *domain.RecordedSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playback
}

func (p *Pipeline) Library() []domain.RecordedSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.RecordedSession, len(p.library))
	copy(out, p.library)
	return out
}

func (p *Pipeline) Messages() []domain.ChatMessage {
	return p.chat.Snapshot()
}

func (p *Pipeline) Sharing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream != nil
}

func (p *Pipeline) Recording() bool {
	return p.recorder.Recording()
}

// Wait blocks until all in-flight analyze calls have resolved. Used for
// graceful shutdown.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
