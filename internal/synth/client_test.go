package synth

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/narrate/internal/cache"
	"github.com/dgnsrekt/narrate/internal/segment"
	"github.com/dgnsrekt/narrate/internal/ttypes"
)

// pcmFor returns deterministic audio for text: one sample per byte.
func pcmFor(text string) []byte {
	pcm := make([]byte, 0, len(text)*2)
	for i := 0; i < len(text); i++ {
		pcm = append(pcm, text[i], 0)
	}
	return pcm
}

type call struct {
	text string
	cred string
}

// scriptedEngine answers call n (1-based) with respond(n, text, cred).
type scriptedEngine struct {
	mu      sync.Mutex
	calls   []call
	respond func(n int, text string, cred ttypes.Credential) ([]byte, error)
}

func (e *scriptedEngine) Synthesize(ctx context.Context, text string, cred ttypes.Credential) ([]byte, error) {
	e.mu.Lock()
	e.calls = append(e.calls, call{text: text, cred: cred.Secret})
	n := len(e.calls)
	e.mu.Unlock()

	if e.respond == nil {
		return pcmFor(text), nil
	}
	return e.respond(n, text, cred)
}

func (e *scriptedEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func testOptions() Options {
	return Options{
		Voice:             DefaultVoiceConfig(),
		Policy:            ttypes.DefaultRetryPolicy(),
		MaxChunkBytes:     segment.DefaultMaxChunkBytes,
		MaxRecursionDepth: DefaultMaxRecursionDepth,
		RequestTimeout:    time.Second,
	}
}

// newTestClient returns a client whose sleeps are recorded instead of taken.
func newTestClient(engine Engine, opts Options) (*Client, *[]time.Duration) {
	c := NewClient(engine, segment.NewSegmenter(0), opts)
	var sleeps []time.Duration
	var mu sync.Mutex
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
	return c, &sleeps
}

var (
	chunk = ttypes.TextChunk{Index: 3, Text: "The quick brown fox."}
	cred  = ttypes.Credential{Ordinal: 1, Secret: "key-a", Status: ttypes.CredentialValid}
)

func TestClient_Success(t *testing.T) {
	engine := &scriptedEngine{}
	c, sleeps := newTestClient(engine, testOptions())

	seg, err := c.Synthesize(context.Background(), chunk, cred)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if seg.Index != 3 || !bytes.Equal(seg.PCM, pcmFor(chunk.Text)) {
		t.Errorf("unexpected segment %+v", seg)
	}
	if seg.Format != ttypes.NewAudioFormat(24000) {
		t.Errorf("format = %+v", seg.Format)
	}
	if engine.callCount() != 1 || len(*sleeps) != 0 {
		t.Errorf("calls = %d, sleeps = %v", engine.callCount(), *sleeps)
	}
}

func TestClient_RetryIsIdempotent(t *testing.T) {
	clean, _ := newTestClient(&scriptedEngine{}, testOptions())
	want, err := clean.Synthesize(context.Background(), chunk, cred)
	if err != nil {
		t.Fatal(err)
	}

	flaky := &scriptedEngine{respond: func(n int, text string, _ ttypes.Credential) ([]byte, error) {
		if n == 1 {
			return nil, &APIError{StatusCode: 503, Message: "The service is currently unavailable."}
		}
		return pcmFor(text), nil
	}}
	c, sleeps := newTestClient(flaky, testOptions())
	got, err := c.Synthesize(context.Background(), chunk, cred)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(got.PCM, want.PCM) {
		t.Error("retried audio differs from first-try audio")
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 2*time.Second {
		t.Errorf("sleeps = %v, want [2s]", *sleeps)
	}
}

func TestClient_TransientExhausted(t *testing.T) {
	engine := &scriptedEngine{respond: func(int, string, ttypes.Credential) ([]byte, error) {
		return nil, &APIError{StatusCode: 500, Message: "Internal error"}
	}}
	opts := testOptions()
	opts.Policy.MaxAttempts = 3
	c, sleeps := newTestClient(engine, opts)

	_, err := c.Synthesize(context.Background(), chunk, cred)
	if !errors.Is(err, ttypes.ErrTransientService) {
		t.Fatalf("err = %v, want transient service error", err)
	}
	if engine.callCount() != 3 {
		t.Errorf("calls = %d, want 3", engine.callCount())
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*sleeps) != 2 || (*sleeps)[0] != want[0] || (*sleeps)[1] != want[1] {
		t.Errorf("sleeps = %v, want %v", *sleeps, want)
	}
}

func TestClient_NetworkErrorIsTransient(t *testing.T) {
	engine := &scriptedEngine{respond: func(n int, text string, _ ttypes.Credential) ([]byte, error) {
		if n < 3 {
			return nil, errors.New("request failed: connection reset by peer")
		}
		return pcmFor(text), nil
	}}
	c, _ := newTestClient(engine, testOptions())
	if _, err := c.Synthesize(context.Background(), chunk, cred); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if engine.callCount() != 3 {
		t.Errorf("calls = %d, want 3", engine.callCount())
	}
}

func TestClient_PermanentStopsImmediately(t *testing.T) {
	engine := &scriptedEngine{respond: func(int, string, ttypes.Credential) ([]byte, error) {
		return nil, &APIError{StatusCode: 403, Message: "quota exceeded"}
	}}
	c, sleeps := newTestClient(engine, testOptions())

	_, err := c.Synthesize(context.Background(), chunk, cred)
	if !errors.Is(err, ttypes.ErrPermanentCredential) {
		t.Fatalf("err = %v, want permanent credential error", err)
	}
	if engine.callCount() != 1 || len(*sleeps) != 0 {
		t.Errorf("calls = %d, sleeps = %v", engine.callCount(), *sleeps)
	}

	var ne *ttypes.NarrateError
	if !errors.As(err, &ne) || ne.Context["chunk"] != 3 {
		t.Errorf("error does not carry the chunk index: %v", err)
	}
}

func TestClient_InfiniteModeWaitsForRecovery(t *testing.T) {
	engine := &scriptedEngine{respond: func(n int, text string, _ ttypes.Credential) ([]byte, error) {
		if n <= 6 {
			return nil, &APIError{StatusCode: 503, Message: "unavailable"}
		}
		return pcmFor(text), nil
	}}
	opts := testOptions()
	opts.Policy.MaxAttempts = 2
	opts.Policy.TreatUnavailableAsInfinite = true
	opts.Policy.InfiniteRetryInterval = 30 * time.Second
	c, sleeps := newTestClient(engine, opts)

	if _, err := c.Synthesize(context.Background(), chunk, cred); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(*sleeps) != 6 {
		t.Fatalf("sleeps = %v, want 6 waits", *sleeps)
	}
	for _, d := range *sleeps {
		if d != 30*time.Second {
			t.Errorf("wait = %v, want fixed 30s", d)
		}
	}
}

func TestClient_InfiniteModeStillFailsOnQuota(t *testing.T) {
	engine := &scriptedEngine{respond: func(int, string, ttypes.Credential) ([]byte, error) {
		return nil, &APIError{StatusCode: 429, Message: "Quota exceeded for quota metric"}
	}}
	opts := testOptions()
	opts.Policy.TreatUnavailableAsInfinite = true
	c, _ := newTestClient(engine, opts)

	_, err := c.Synthesize(context.Background(), chunk, cred)
	if !errors.Is(err, ttypes.ErrPermanentCredential) {
		t.Fatalf("err = %v, want permanent credential error", err)
	}
	if engine.callCount() != 1 {
		t.Errorf("calls = %d, want 1", engine.callCount())
	}
}

func TestClient_CancelDuringBackoff(t *testing.T) {
	engine := &scriptedEngine{respond: func(int, string, ttypes.Credential) ([]byte, error) {
		return nil, &APIError{StatusCode: 503, Message: "unavailable"}
	}}
	opts := testOptions()
	opts.Policy.TreatUnavailableAsInfinite = true
	opts.Policy.InfiniteRetryInterval = time.Hour
	c := NewClient(engine, segment.NewSegmenter(0), opts)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Synthesize(ctx, chunk, cred)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation did not interrupt the wait")
	}
}

func TestClient_OversizeResplits(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon zeta. Eta theta iota."
	engine := &scriptedEngine{respond: func(_ int, text string, _ ttypes.Credential) ([]byte, error) {
		if len(text) > 20 {
			return nil, &APIError{StatusCode: 400, Message: "Input text is too long."}
		}
		return pcmFor(text), nil
	}}
	c, _ := newTestClient(engine, testOptions())

	seg, err := c.Synthesize(context.Background(), ttypes.TextChunk{Index: 0, Text: text}, cred)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	want := append(append(pcmFor("Alpha beta gamma."), pcmFor("Delta epsilon zeta.")...), pcmFor("Eta theta iota.")...)
	if !bytes.Equal(seg.PCM, want) {
		t.Errorf("re-split audio out of order or incomplete: %d bytes, want %d", len(seg.PCM), len(want))
	}
	if engine.callCount() != 4 {
		t.Errorf("calls = %d, want 4", engine.callCount())
	}
	for _, cl := range engine.calls {
		if cl.cred != "key-a" {
			t.Errorf("re-split used credential %q", cl.cred)
		}
	}
}

func TestClient_RecursionExhausted(t *testing.T) {
	engine := &scriptedEngine{respond: func(int, string, ttypes.Credential) ([]byte, error) {
		return nil, &APIError{StatusCode: 400, Message: "Sentence exceeds the limit."}
	}}
	opts := testOptions()
	opts.MaxRecursionDepth = 2
	c, _ := newTestClient(engine, opts)

	long := ttypes.TextChunk{Index: 0, Text: "One two three four. Five six seven eight. Nine ten eleven twelve. Thirteen fourteen."}
	_, err := c.Synthesize(context.Background(), long, cred)
	if !errors.Is(err, ttypes.ErrRecursionExhausted) {
		t.Fatalf("err = %v, want recursion exhausted", err)
	}
	// the first piece fails at every depth: 1 + 1 + 1 calls
	if engine.callCount() != 3 {
		t.Errorf("calls = %d, want 3", engine.callCount())
	}
}

func TestClient_UsesCachePerCredential(t *testing.T) {
	engine := &scriptedEngine{}
	opts := testOptions()
	store := cache.NewMemoryCache(1 << 20)
	opts.Cache = store
	c, _ := newTestClient(engine, opts)

	first, err := c.Synthesize(context.Background(), chunk, cred)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Synthesize(context.Background(), chunk, cred)
	if err != nil {
		t.Fatal(err)
	}
	if engine.callCount() != 1 {
		t.Errorf("calls = %d, want a cache hit", engine.callCount())
	}
	if !bytes.Equal(first.PCM, second.PCM) || second.Index != chunk.Index {
		t.Error("cached segment differs")
	}

	other := ttypes.Credential{Ordinal: 2, Secret: "key-b"}
	if _, err := c.Synthesize(context.Background(), chunk, other); err != nil {
		t.Fatal(err)
	}
	if engine.callCount() != 2 {
		t.Errorf("calls = %d, cached audio crossed credentials", engine.callCount())
	}
}

func TestClient_UnexpectedFormatEndsCredential(t *testing.T) {
	// a WAV payload at the wrong sample rate
	wav := append([]byte("RIFF\x28\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x40\x1f\x00\x00\x80\x3e\x00\x00\x02\x00\x10\x00data\x04\x00\x00\x00"), 1, 0, 2, 0)
	engine := &scriptedEngine{respond: func(int, string, ttypes.Credential) ([]byte, error) {
		return wav, nil
	}}
	c, _ := newTestClient(engine, testOptions())

	_, err := c.Synthesize(context.Background(), chunk, cred)
	if !errors.Is(err, ttypes.ErrPermanentCredential) {
		t.Fatalf("err = %v, want permanent credential error", err)
	}
	if engine.callCount() != 1 {
		t.Errorf("calls = %d, want 1", engine.callCount())
	}
}
