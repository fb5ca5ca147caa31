// Package relay runs the chat pipeline: parse the context block, fetch the
// page, detect its language, compose the prompt, wait for an admission slot
// and call the model.
package relay

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/pagechat/admission"
	"github.com/vinayprograms/pagechat/errors"
	"github.com/vinayprograms/pagechat/langdetect"
	"github.com/vinayprograms/pagechat/llm"
	"github.com/vinayprograms/pagechat/logging"
	"github.com/vinayprograms/pagechat/prompt"
	"github.com/vinayprograms/pagechat/telemetry"
)

// ChatRequest is an inbound chat call.
type ChatRequest struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context"`
}

// Fetcher returns cleaned page text for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// State is a step of the per-request pipeline.
type State string

const (
	StateReceived         State = "received"
	StateContextValidated State = "context_validated"
	StateContentFetched   State = "content_fetched"
	StateLanguageDetected State = "language_detected"
	StatePromptComposed   State = "prompt_composed"
	StateAdmitted         State = "admitted"
	StateGenerated        State = "generated"
)

// Result is the outcome of a chat request. Text is always the response
// string sent to the caller; Err is set when the request failed.
type Result struct {
	RequestID string
	Text      string
	Err       error

	// Reached is the last pipeline state completed.
	Reached State
}

// OK reports whether the request succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Code returns the error code, or "" on success.
func (r Result) Code() errors.ErrorCode {
	return errors.Code(r.Err)
}

// Render turns a pipeline error into response text. A malformed context
// block yields its fixed message; everything else is prefixed with [ERROR].
func Render(err error) string {
	if err == nil {
		return ""
	}
	e, ok := errors.As(err)
	if !ok {
		return "[ERROR] " + err.Error()
	}
	switch e.Code() {
	case errors.ErrCodeInvalidContext:
		return e.Message()
	case errors.ErrCodeFetchFailed:
		// The fetch cause is part of the user-facing text.
		return "[ERROR] " + e.Error()
	default:
		return "[ERROR] " + e.Message()
	}
}

// Config configures a Service.
type Config struct {
	// RequireLanguage rejects context blocks without a Language line.
	RequireLanguage bool

	// Provider names the LLM backend in logs.
	Provider string
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{RequireLanguage: true}
}

// Service handles chat requests. It is safe for concurrent use.
type Service struct {
	config    Config
	fetcher   Fetcher
	detector  langdetect.Detector
	gate      *admission.Gate
	generator llm.Generator
	logger    *logging.Logger
	tracer    *telemetry.Tracer
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTracer sets the tracer. The global tracer is used otherwise.
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// New creates a Service from its collaborators. A nil detector tags every
// page "unknown".
func New(cfg Config, fetcher Fetcher, detector langdetect.Detector, gate *admission.Gate, generator llm.Generator, opts ...Option) *Service {
	s := &Service{
		config:    cfg,
		fetcher:   fetcher,
		detector:  detector,
		gate:      gate,
		generator: generator,
		logger:    logging.Nop(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = telemetry.GetTracer()
	}
	return s
}

// Gate returns the admission gate.
func (s *Service) Gate() *admission.Gate {
	return s.gate
}

// Chat runs one request through the pipeline. Any failure stops the
// pipeline and is rendered into Result.Text; the LLM is never called unless
// the page was fetched.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (res Result) {
	id := RequestIDFrom(ctx)
	if id == "" {
		id = s.newID()
		ctx = WithRequestID(ctx, id)
	}
	log := s.logger.WithTraceID(id)
	start := time.Now()

	ctx, span := s.tracer.StartChatSpan(ctx, id)
	spanOpts := telemetry.ChatSpanOptions{RequestID: id}

	res = Result{RequestID: id, Reached: StateReceived}
	defer func() {
		if r := recover(); r != nil {
			res.Err = errors.RecoverPanic(r)
		}
		if res.Err != nil {
			res.Text = Render(res.Err)
			logFailure(log, res.Err, res.Reached)
		}
		spanOpts.Response = res.Text
		s.tracer.EndChatSpan(span, spanOpts, res.Err)
		log.RequestComplete(time.Since(start), string(res.Code()))
	}()

	userPrompt := strings.TrimSpace(req.Prompt)
	spanOpts.Prompt = userPrompt

	pc, err := ParseContext(req.Context, s.config.RequireLanguage)
	if err != nil {
		res.Err = err
		return res
	}
	res.Reached = StateContextValidated
	spanOpts.URL = pc.URL
	spanOpts.Language = pc.Language

	pageText, err := s.fetcher.Fetch(ctx, pc.URL)
	if err != nil {
		res.Err = err
		return res
	}
	res.Reached = StateContentFetched

	detected := s.detect(log, pageText)
	res.Reached = StateLanguageDetected

	composed := prompt.Compose(userPrompt, pageText, detected, pc.Language)
	res.Reached = StatePromptComposed

	gen, err := s.generate(ctx, log, composed, &res)
	if err != nil {
		res.Err = err
		return res
	}
	res.Reached = StateGenerated
	res.Text = gen.Text
	return res
}

// detect runs language detection. Failure is not an error for the request;
// the page is tagged "unknown".
func (s *Service) detect(log *logging.Logger, text string) string {
	if s.detector == nil {
		return langdetect.Unknown
	}
	code, err := s.detector.Detect(text)
	if err != nil || code == "" {
		log.Debug("lang_detect_failed", map[string]interface{}{"error": errString(err)})
		return langdetect.Unknown
	}
	return code
}

// generate holds an admission slot for the duration of the model call.
func (s *Service) generate(ctx context.Context, log *logging.Logger, composed string, res *Result) (*llm.Generation, error) {
	_, admitSpan := s.tracer.StartAdmitSpan(ctx)
	start := time.Now()
	admitted := false

	var gen *llm.Generation
	err := s.gate.Do(ctx, func(context.Context) error {
		admitted = true
		res.Reached = StateAdmitted
		waited := time.Since(start)
		c := s.gate.Capacity()
		s.tracer.EndAdmitSpan(admitSpan, telemetry.AdmitSpanOptions{Waited: waited, InFlight: c.InFlight, Capacity: c.Total}, nil)
		log.GateWait(waited, c.InFlight, c.Total)

		genStart := time.Now()
		var err error
		gen, err = s.generator.Generate(ctx, composed)
		log.GenerationComplete(s.config.Provider, time.Since(genStart), err)
		return err
	})
	if !admitted {
		s.tracer.EndAdmitSpan(admitSpan, telemetry.AdmitSpanOptions{Waited: time.Since(start), Capacity: s.gate.Capacity().Total}, err)
	}
	if err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, errors.MalformedResponse("empty generation")
	}
	return gen, nil
}

// logFailure reports a failed request at a level matching its category:
// bugs and panics as errors, upstream failures as warnings, and caller
// mistakes or a full gate at debug.
func logFailure(log *logging.Logger, err error, reached State) {
	fields := map[string]interface{}{
		"code":    string(errors.Code(err)),
		"error":   err.Error(),
		"reached": string(reached),
	}
	switch {
	case errors.IsCategory(err, errors.CategoryInternal):
		log.Error("chat_failed", fields)
	case errors.IsCategory(err, errors.CategoryTransient):
		log.Warn("chat_failed", fields)
	default:
		log.Debug("chat_failed", fields)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
