package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dershov/screenassist/internal/capture"
	"github.com/dershov/screenassist/internal/domain"
	"github.com/dershov/screenassist/internal/record"
	"github.com/dershov/screenassist/internal/store"
)

type fakeStream struct {
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{done: make(chan struct{})}
}

func (s *fakeStream) Frame(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (s *fakeStream) Bounds() (int, int)    { return 4, 4 }
func (s *fakeStream) Done() <-chan struct{} { return s.done }
func (s *fakeStream) Close()                { s.closeOnce.Do(func() { close(s.done) }) }

type fakeSource struct {
	stream *fakeStream
	err    error
	starts int
}

func (f *fakeSource) Start(ctx context.Context) (capture.Stream, error) {
	f.starts++
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type fakeEncoding struct {
	ch   chan []byte
	once sync.Once
}

func (f *fakeEncoding) Chunks() <-chan []byte { return f.ch }
func (f *fakeEncoding) Finalize() error       { f.once.Do(func() { close(f.ch) }); return nil }

type fakeEncoder struct {
	last *fakeEncoding
}

func (f *fakeEncoder) Supports(mimeType string) bool { return mimeType == "video/webm;codecs=vp9" }

func (f *fakeEncoder) Encode(stream capture.Stream, mimeType string) (record.Encoding, error) {
	f.last = &fakeEncoding{ch: make(chan []byte)}
	return f.last, nil
}

type fakeAnalyzer struct {
	mu      sync.Mutex
	reply   string
	err     error
	gate    chan struct{} // when set, the next call blocks until it closes
	prompts []string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, apiKey string, img domain.StillImage, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	gate := f.gate
	f.gate = nil
	reply, err := f.reply, f.err
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return reply, err
}

type fixture struct {
	pipeline *Pipeline
	source   *fakeSource
	encoder  *fakeEncoder
	analyzer *fakeAnalyzer
	store    *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		source:   &fakeSource{stream: newFakeStream()},
		encoder:  &fakeEncoder{},
		analyzer: &fakeAnalyzer{reply: "a terminal window"},
		store:    store.NewMemoryStore(),
	}
	f.pipeline = New(Deps{
		Source:   f.source,
		Sampler:  capture.NewSampler(),
		Recorder: record.NewRecorder(f.encoder),
		Analyzer: f.analyzer,
		Sessions: f.store,
		Settings: f.store,
	})
	return f
}

func (f *fixture) withCredential(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, f.pipeline.SetCredential(context.Background(), "test-key"))
	return f
}

func (f *fixture) sharing(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, f.pipeline.StartSharing(context.Background()))
	require.True(t, f.pipeline.Sharing())
	return f
}

func TestCredentialLoadAndSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.pipeline.LoadCredential(ctx))
	assert.Equal(t, "", f.pipeline.Credential())

	require.NoError(t, f.pipeline.SetCredential(ctx, "abc"))
	assert.Equal(t, "abc", f.pipeline.Credential())

	// A second pipeline over the same settings store sees the value.
	other := New(Deps{Settings: f.store, Sessions: f.store})
	require.NoError(t, other.LoadCredential(ctx))
	assert.Equal(t, "abc", other.Credential())
}

func TestAnalyzeRequiresCredential(t *testing.T) {
	f := newFixture(t).sharing(t)

	err := f.pipeline.Analyze(context.Background(), "what is this")
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
	assert.Empty(t, f.pipeline.Messages())
}

func TestAnalyzeRequiresStream(t *testing.T) {
	f := newFixture(t).withCredential(t)

	err := f.pipeline.Analyze(context.Background(), "what is this")
	assert.ErrorIs(t, err, domain.ErrNoActiveStream)
	assert.Empty(t, f.pipeline.Messages())
}

func TestAnalyzeAppendsUserThenAssistant(t *testing.T) {
	f := newFixture(t).withCredential(t).sharing(t)

	gate := make(chan struct{})
	f.analyzer.gate = gate
	require.NoError(t, f.pipeline.Analyze(context.Background(), ""))

	// The user message is visible before the reply resolves.
	msgs := f.pipeline.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "Analyze this screen.", msgs[0].Text)

	close(gate)
	f.pipeline.Wait()
	msgs = f.pipeline.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "a terminal window", msgs[1].Text)
	assert.Equal(t, []string{"Analyze this screen."}, f.analyzer.prompts)
}

func TestAnalyzeFailureAppendsErrorReply(t *testing.T) {
	f := newFixture(t).withCredential(t).sharing(t)
	f.analyzer.err = errors.New("boom")

	require.NoError(t, f.pipeline.Analyze(context.Background(), "check this"))
	f.pipeline.Wait()

	msgs := f.pipeline.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "check this", msgs[0].Text)
	assert.Equal(t, "Error: boom", msgs[1].Text)
}

type panickyAnalyzer struct{}

func (panickyAnalyzer) Analyze(ctx context.Context, apiKey string, img domain.StillImage, prompt string) (string, error) {
	panic("analysis exploded")
}

func TestAnalyzePanicBecomesErrorReply(t *testing.T) {
	f := newFixture(t)
	f.pipeline.analyzer = panickyAnalyzer{}
	f.withCredential(t).sharing(t)

	require.NoError(t, f.pipeline.Analyze(context.Background(), "poke"))
	f.pipeline.Wait()

	msgs := f.pipeline.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Error: analysis exploded", msgs[1].Text)
}

func TestAnalyzeRepliesInCompletionOrder(t *testing.T) {
	f := newFixture(t).withCredential(t).sharing(t)

	gate := make(chan struct{})
	f.analyzer.gate = gate
	f.analyzer.reply = "slow reply"
	require.NoError(t, f.pipeline.Analyze(context.Background(), "first"))

	require.Eventually(t, func() bool {
		f.analyzer.mu.Lock()
		defer f.analyzer.mu.Unlock()
		return len(f.analyzer.prompts) == 1
	}, time.Second, 5*time.Millisecond)

	f.analyzer.mu.Lock()
	f.analyzer.reply = "fast reply"
	f.analyzer.mu.Unlock()
	require.NoError(t, f.pipeline.Analyze(context.Background(), "second"))

	// The second request resolves while the first is still in flight.
	require.Eventually(t, func() bool {
		return len(f.pipeline.Messages()) == 3
	}, time.Second, 5*time.Millisecond)

	close(gate)
	f.pipeline.Wait()

	msgs := f.pipeline.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, "fast reply", msgs[2].Text)
	assert.Equal(t, "slow reply", msgs[3].Text)
}

func TestStartSharingDeclinedStaysIdle(t *testing.T) {
	f := newFixture(t)
	f.source.err = domain.ErrCaptureDeclined

	require.NoError(t, f.pipeline.StartSharing(context.Background()))
	assert.False(t, f.pipeline.Sharing())
}

func TestStartSharingFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("no display")

	err := f.pipeline.StartSharing(context.Background())
	require.Error(t, err)
	assert.False(t, f.pipeline.Sharing())
}

func TestStartSharingIsIdempotent(t *testing.T) {
	f := newFixture(t).sharing(t)

	require.NoError(t, f.pipeline.StartSharing(context.Background()))
	assert.Equal(t, 1, f.source.starts)
}

func TestStopSharingClearsChatAndIsIdempotent(t *testing.T) {
	f := newFixture(t).withCredential(t).sharing(t)

	require.NoError(t, f.pipeline.Analyze(context.Background(), "hello"))
	f.pipeline.Wait()
	require.NotEmpty(t, f.pipeline.Messages())

	require.NoError(t, f.pipeline.StopSharing(context.Background()))
	assert.False(t, f.pipeline.Sharing())
	assert.Empty(t, f.pipeline.Messages())

	require.NoError(t, f.pipeline.StopSharing(context.Background()))
}

func TestStreamEndCascadesToStop(t *testing.T) {
	f := newFixture(t).sharing(t)

	// The environment kills the stream out from under the pipeline.
	f.source.stream.Close()

	require.Eventually(t, func() bool {
		return !f.pipeline.Sharing()
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.pipeline.Messages())
}

func TestToggleRecordingRequiresStream(t *testing.T) {
	f := newFixture(t)
	err := f.pipeline.ToggleRecording(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoActiveStream)
}

func TestRecordingPersistsMediaWithChatSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).withCredential(t).sharing(t)

	stamp := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	f.pipeline.now = func() time.Time { return stamp }

	require.NoError(t, f.pipeline.Analyze(ctx, "what changed"))
	f.pipeline.Wait()

	require.NoError(t, f.pipeline.ToggleRecording(ctx))
	assert.True(t, f.pipeline.Recording())

	f.encoder.last.ch <- []byte("AAA")
	f.encoder.last.ch <- []byte("BB")

	require.NoError(t, f.pipeline.ToggleRecording(ctx))
	assert.False(t, f.pipeline.Recording())

	library := f.pipeline.Library()
	require.Len(t, library, 1)
	saved := library[0]
	assert.Equal(t, stamp.UnixMilli(), saved.ID)
	assert.Equal(t, "2025-03-01 10:30:00", saved.Date)
	assert.Equal(t, "video/webm;codecs=vp9", saved.MIMEType)
	assert.Equal(t, "AAABB", string(saved.Media))
	require.Len(t, saved.Chat, 2)
	assert.Equal(t, "what changed", saved.Chat[0].Text)

	// Ending the share clears the live chat but not the saved transcript.
	require.NoError(t, f.pipeline.StopSharing(ctx))
	got, err := f.store.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Len(t, got.Chat, 2)
}

func TestStopSharingPersistsActiveRecording(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).sharing(t)

	require.NoError(t, f.pipeline.ToggleRecording(ctx))
	f.encoder.last.ch <- []byte("partial")

	require.NoError(t, f.pipeline.StopSharing(ctx))
	assert.False(t, f.pipeline.Recording())

	library := f.pipeline.Library()
	require.Len(t, library, 1)
	assert.Equal(t, "partial", string(library[0].Media))
}

func TestPlaybackLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).sharing(t)

	require.NoError(t, f.pipeline.ToggleRecording(ctx))
	f.encoder.last.ch <- []byte("clip")
	require.NoError(t, f.pipeline.ToggleRecording(ctx))

	library := f.pipeline.Library()
	require.Len(t, library, 1)
	id := library[0].ID

	session, err := f.pipeline.OpenPlayback(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, session.ID)
	assert.Equal(t, session, f.pipeline.Playback())

	f.pipeline.ClosePlayback()
	assert.Nil(t, f.pipeline.Playback())

	_, err = f.pipeline.OpenPlayback(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestDeleteSessionClearsOpenPlayback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t).sharing(t)

	require.NoError(t, f.pipeline.ToggleRecording(ctx))
	f.encoder.last.ch <- []byte("clip")
	require.NoError(t, f.pipeline.ToggleRecording(ctx))

	id := f.pipeline.Library()[0].ID
	_, err := f.pipeline.OpenPlayback(ctx, id)
	require.NoError(t, err)

	require.NoError(t, f.pipeline.DeleteSession(ctx, id))
	assert.Nil(t, f.pipeline.Playback())
	assert.Empty(t, f.pipeline.Library())
}
