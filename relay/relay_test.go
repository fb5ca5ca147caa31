package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vinayprograms/pagechat/admission"
	"github.com/vinayprograms/pagechat/cache"
	"github.com/vinayprograms/pagechat/errors"
	"github.com/vinayprograms/pagechat/fetch"
	"github.com/vinayprograms/pagechat/langdetect"
	"github.com/vinayprograms/pagechat/llm"
	"github.com/vinayprograms/pagechat/logging"
)

// ============================================================================
// Context parsing
// ============================================================================

func TestParseContext(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		require  bool
		wantErr  bool
		wantURL  string
		wantLang string
		hasLang  bool
	}{
		{
			name: "url and none", raw: "Website: https://example.com\nLanguage: none",
			require: true, wantURL: "https://example.com", wantLang: "none", hasLang: true,
		},
		{
			name: "surrounding whitespace", raw: "  Website: https://example.com/a \r\nLanguage:  French \n",
			require: true, wantURL: "https://example.com/a", wantLang: "French", hasLang: true,
		},
		{
			name: "empty language", raw: "Website: https://example.com\nLanguage: ",
			require: true, wantErr: true,
		},
		{
			name: "short language", raw: "Website: https://example.com\nLanguage: x",
			require: true, wantURL: "https://example.com", wantLang: "x", hasLang: true,
		},
		{name: "missing language", raw: "Website: https://example.com", require: true, wantErr: true},
		{
			name: "missing language allowed", raw: "Website: https://example.com",
			require: false, wantURL: "https://example.com",
		},
		{name: "missing website", raw: "Language: French", require: true, wantErr: true},
		{name: "website not first", raw: "Hello\nWebsite: https://example.com\nLanguage: none", require: true, wantErr: true},
		{name: "empty", raw: "", require: false, wantErr: true},
		{name: "lowercase marker", raw: "website: https://example.com\nLanguage: none", require: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := ParseContext(tt.raw, tt.require)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrCodeInvalidContext) {
					t.Fatalf("expected INVALID_CONTEXT, got %v (%+v)", err, pc)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if pc.URL != tt.wantURL || pc.Language != tt.wantLang || pc.HasLanguage != tt.hasLang {
				t.Errorf("got %+v, want url=%q lang=%q has=%v", pc, tt.wantURL, tt.wantLang, tt.hasLang)
			}
		})
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New(errors.ErrCodeInvalidContext, InvalidContextMessage), InvalidContextMessage},
		{errors.InvalidURL("nope", errors.WithCause(fmt.Errorf("parse error"))), "[ERROR] Invalid URL provided."},
		{errors.FetchFailed("u", fmt.Errorf("HTTP 404 Not Found")), "[ERROR] Could not fetch content: HTTP 404 Not Found"},
		{errors.GenerationFailed("quota exhausted"), "[ERROR] Generation failed: quota exhausted"},
		{errors.GenerationFailed(""), "[ERROR] Generation failed: unknown issue"},
		{fmt.Errorf("plain"), "[ERROR] plain"},
	}
	for _, tt := range tests {
		if got := Render(tt.err); got != tt.want {
			t.Errorf("Render(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// ============================================================================
// Pipeline
// ============================================================================

type countingFetcher struct {
	calls atomic.Int32
	text  string
	err   error
}

func (f *countingFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

var english = langdetect.Func(func(string) (string, error) { return "en", nil })

func newService(f Fetcher, d langdetect.Detector, gen llm.Generator, capacity int) *Service {
	return New(DefaultConfig(), f, d, admission.New(admission.Config{Capacity: capacity}), gen)
}

func TestChat_Success(t *testing.T) {
	f := &countingFetcher{text: "Page body"}
	gen := llm.NewMockGenerator()
	gen.SetResponse("1. Summary")
	s := newService(f, english, gen, 3)

	res := s.Chat(context.Background(), ChatRequest{
		Prompt:  "  Summarize  ",
		Context: "Website: https://example.com\nLanguage: French",
	})

	if !res.OK() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Text != "1. Summary" {
		t.Errorf("unexpected response %q", res.Text)
	}
	if res.Reached != StateGenerated {
		t.Errorf("expected state %s, got %s", StateGenerated, res.Reached)
	}
	if res.RequestID == "" {
		t.Error("expected a request ID")
	}

	p := gen.LastPrompt()
	for _, want := range []string{
		"Summarize\n\n",
		"translate the final response into French.",
		"Website Content (detected language: en):\nPage body",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
	if s.Gate().Capacity().InFlight != 0 {
		t.Error("ticket not released")
	}
}

func TestChat_NoTranslationForNone(t *testing.T) {
	gen := llm.NewMockGenerator()
	s := newService(&countingFetcher{text: "body"}, english, gen, 1)

	s.Chat(context.Background(), ChatRequest{Prompt: "q", Context: "Website: https://example.com\nLanguage: NONE"})
	if strings.Contains(gen.LastPrompt(), "translate") {
		t.Error("translation directive must be omitted for none")
	}
}

func TestChat_InvalidContext(t *testing.T) {
	f := &countingFetcher{text: "body"}
	gen := llm.NewMockGenerator()
	s := newService(f, english, gen, 1)

	res := s.Chat(context.Background(), ChatRequest{Prompt: "q", Context: "https://example.com"})

	if res.Text != InvalidContextMessage {
		t.Errorf("unexpected response %q", res.Text)
	}
	if res.Code() != errors.ErrCodeInvalidContext {
		t.Errorf("expected INVALID_CONTEXT, got %s", res.Code())
	}
	if f.calls.Load() != 0 || gen.CallCount() != 0 {
		t.Errorf("no collaborator may run: fetch=%d llm=%d", f.calls.Load(), gen.CallCount())
	}
	if res.Reached != StateReceived {
		t.Errorf("expected to stop at %s, got %s", StateReceived, res.Reached)
	}
}

func TestChat_InvalidURL(t *testing.T) {
	store := cache.NewMemoryStore(cache.Config{})
	defer store.Close()
	gen := llm.NewMockGenerator()
	s := newService(fetch.New(fetch.Config{}, store), english, gen, 1)

	res := s.Chat(context.Background(), ChatRequest{Context: "Website: notaurl\nLanguage: none"})

	if res.Text != "[ERROR] Invalid URL provided." {
		t.Errorf("unexpected response %q", res.Text)
	}
	if gen.CallCount() != 0 {
		t.Errorf("LLM must not be called, got %d calls", gen.CallCount())
	}
}

func TestChat_FetchFailureVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	store := cache.NewMemoryStore(cache.Config{})
	defer store.Close()
	gen := llm.NewMockGenerator()
	s := newService(fetch.New(fetch.Config{}, store), english, gen, 1)

	res := s.Chat(context.Background(), ChatRequest{
		Prompt:  "q",
		Context: "Website: " + srv.URL + "\nLanguage: none",
	})

	if !strings.HasPrefix(res.Text, "[ERROR] Could not fetch content: HTTP 404") {
		t.Errorf("unexpected response %q", res.Text)
	}
	if gen.CallCount() != 0 {
		t.Errorf("LLM must not be called after a fetch failure, got %d", gen.CallCount())
	}
	if res.Reached != StateContextValidated {
		t.Errorf("expected to stop at %s, got %s", StateContextValidated, res.Reached)
	}
}

func TestChat_EndToEndWithRealFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><script>X</script><p>Y</p></body></html>`)
	}))
	defer srv.Close()

	store := cache.NewMemoryStore(cache.Config{})
	defer store.Close()
	gen := llm.NewMockGenerator()
	gen.SetResponse("ok")
	s := newService(fetch.New(fetch.Config{}, store), english, gen, 1)

	res := s.Chat(context.Background(), ChatRequest{Prompt: "q", Context: "Website: " + srv.URL + "\nLanguage: none"})
	if !res.OK() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if !strings.HasSuffix(gen.LastPrompt(), "):\nY") {
		t.Errorf("page text not cleaned: %q", gen.LastPrompt())
	}
}

func TestChat_DetectionFailureIsUnknown(t *testing.T) {
	gen := llm.NewMockGenerator()
	failing := langdetect.Func(func(string) (string, error) {
		return "", errors.New(errors.ErrCodeLangDetectFailed, "no idea")
	})
	s := newService(&countingFetcher{text: "12345"}, failing, gen, 1)

	res := s.Chat(context.Background(), ChatRequest{Context: "Website: https://example.com\nLanguage: none"})
	if !res.OK() {
		t.Fatalf("detection failure must not fail the request: %v", res.Err)
	}
	if !strings.Contains(gen.LastPrompt(), "(detected language: unknown)") {
		t.Errorf("expected unknown tag in prompt: %q", gen.LastPrompt())
	}
}

func TestChat_GenerationFailure(t *testing.T) {
	gen := llm.NewMockGenerator()
	gen.SetError(errors.GenerationFailed("quota exhausted"))
	s := newService(&countingFetcher{text: "body"}, english, gen, 1)

	res := s.Chat(context.Background(), ChatRequest{Context: "Website: https://example.com\nLanguage: none"})

	if res.Text != "[ERROR] Generation failed: quota exhausted" {
		t.Errorf("unexpected response %q", res.Text)
	}
	if res.Reached != StateAdmitted {
		t.Errorf("expected to stop at %s, got %s", StateAdmitted, res.Reached)
	}
	if c := s.Gate().Capacity(); c.InFlight != 0 {
		t.Errorf("ticket leaked after failure: %+v", c)
	}
}

func TestChat_GeneratorPanicReleasesSlot(t *testing.T) {
	gen := llm.NewMockGenerator()
	gen.GenerateFunc = func(ctx context.Context, prompt string) (*llm.Generation, error) {
		panic("boom")
	}
	s := newService(&countingFetcher{text: "body"}, english, gen, 1)

	res := s.Chat(context.Background(), ChatRequest{Context: "Website: https://example.com\nLanguage: none"})

	if res.Code() != errors.ErrCodePanic {
		t.Errorf("expected PANIC, got %s", res.Code())
	}
	if !strings.HasPrefix(res.Text, "[ERROR] ") {
		t.Errorf("panic not rendered: %q", res.Text)
	}
	if c := s.Gate().Capacity(); c.InFlight != 0 {
		t.Errorf("ticket leaked after panic: %+v", c)
	}
}

func TestChat_FailureLogLevelFollowsCategory(t *testing.T) {
	tests := []struct {
		name      string
		context   string
		genErr    error
		panics    bool
		wantLevel string
	}{
		{name: "caller mistake", context: "no website here", wantLevel: "debug"},
		{name: "upstream failure", context: "Website: https://example.com\nLanguage: none", genErr: errors.GenerationFailed("quota exhausted"), wantLevel: "warn"},
		{name: "panic", context: "Website: https://example.com\nLanguage: none", panics: true, wantLevel: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.New()
			logger.SetOutput(&buf)
			logger.SetFormat(logging.FormatJSON)
			logger.SetLevel(logging.LevelDebug)

			gen := llm.NewMockGenerator()
			gen.SetError(tt.genErr)
			if tt.panics {
				gen.GenerateFunc = func(ctx context.Context, prompt string) (*llm.Generation, error) {
					panic("boom")
				}
			}
			s := New(DefaultConfig(), &countingFetcher{text: "body"}, english,
				admission.New(admission.Config{Capacity: 1}), gen, WithLogger(logger))

			s.Chat(context.Background(), ChatRequest{Context: tt.context})

			var failed map[string]interface{}
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				var entry map[string]interface{}
				if json.Unmarshal([]byte(line), &entry) == nil && entry["message"] == "chat_failed" {
					failed = entry
				}
			}
			if failed == nil {
				t.Fatalf("no chat_failed entry in:\n%s", buf.String())
			}
			if failed["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", failed["level"], tt.wantLevel)
			}
			if failed["code"] == "" || failed["reached"] == "" {
				t.Errorf("expected code and reached fields, got %v", failed)
			}
		})
	}
}

func TestChat_RespectsGateCapacity(t *testing.T) {
	const capacity = 3
	var current, peak atomic.Int32
	gen := llm.NewMockGenerator()
	gen.GenerateFunc = func(ctx context.Context, prompt string) (*llm.Generation, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return &llm.Generation{Text: "ok"}, nil
	}
	s := newService(&countingFetcher{text: "body"}, english, gen, capacity)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := s.Chat(context.Background(), ChatRequest{Context: "Website: https://example.com\nLanguage: none"})
			if !res.OK() {
				t.Errorf("unexpected error: %v", res.Err)
			}
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > capacity {
		t.Errorf("peak concurrent generations %d exceeded %d", p, capacity)
	}
	if gen.CallCount() != 12 {
		t.Errorf("expected 12 generations, got %d", gen.CallCount())
	}
}

func TestChat_ClosedGate(t *testing.T) {
	gen := llm.NewMockGenerator()
	s := newService(&countingFetcher{text: "body"}, english, gen, 1)
	s.Gate().Close()

	res := s.Chat(context.Background(), ChatRequest{Context: "Website: https://example.com\nLanguage: none"})
	if res.Code() != errors.ErrCodeClosed {
		t.Errorf("expected CLOSED, got %s", res.Code())
	}
	if gen.CallCount() != 0 {
		t.Error("LLM must not be called through a closed gate")
	}
}

func TestChat_RequestIDFromContext(t *testing.T) {
	s := newService(&countingFetcher{text: "body"}, english, llm.NewMockGenerator(), 1)

	ctx := WithRequestID(context.Background(), "req-42")
	res := s.Chat(ctx, ChatRequest{Context: "Website: https://example.com\nLanguage: none"})
	if res.RequestID != "req-42" {
		t.Errorf("expected request ID from context, got %q", res.RequestID)
	}
}
