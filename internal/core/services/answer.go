package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/core/ports/driven"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
	"github.com/custodia-labs/docpipe/internal/logger"
	"github.com/custodia-labs/docpipe/internal/observability/tracing"
)

// Ensure AnswerService implements the interface.
var _ driving.AnswerService = (*AnswerService)(nil)

// Answer defaults.
const (
	DefaultAnswerTemperature = 0.7
	DefaultAnswerMaxTokens   = 2000
)

// NoAnswer is returned when the model produces an empty completion.
const NoAnswer = "No answer generated."

// AnswerConfig tunes the completion request. A zero Temperature or
// MaxTokens selects the default.
type AnswerConfig struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// AnswerService synthesizes an answer from caller-selected chunks.
type AnswerService struct {
	llm     driven.LLMService
	prompts driven.PromptStore
	cfg     AnswerConfig
	tracer  tracing.Tracer
}

// NewAnswerService creates an answer synthesizer.
func NewAnswerService(llm driven.LLMService, prompts driven.PromptStore, cfg AnswerConfig) *AnswerService {
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultAnswerTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultAnswerMaxTokens
	}
	return &AnswerService{llm: llm, prompts: prompts, cfg: cfg, tracer: tracing.NoopTracer{}}
}

// SetTracer sets the tracer for answer spans.
func (s *AnswerService) SetTracer(t tracing.Tracer) {
	s.tracer = tracing.OrNoop(t)
}

// Answer makes exactly one chat call with the chunks rendered as context.
func (s *AnswerService) Answer(ctx context.Context, req domain.AnswerRequest) (answer *domain.Answer, err error) {
	ctx, span := s.tracer.Start(ctx, "answer.synthesize", tracing.Int("chunks", len(req.Chunks)))
	defer func() { span.End(err) }()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrValidation)
	}
	if len(req.Chunks) == 0 {
		return nil, fmt.Errorf("%w: at least one chunk is required", domain.ErrValidation)
	}
	if s.llm == nil {
		return nil, fmt.Errorf("%w: no LLM provider configured", domain.ErrInternal)
	}

	system, err := s.prompts.Load(driven.PromptAnswerSystem)
	if err != nil {
		return nil, fmt.Errorf("%w: load prompt: %v", domain.ErrInternal, err)
	}
	user, err := s.prompts.Load(driven.PromptAnswerUser)
	if err != nil {
		return nil, fmt.Errorf("%w: load prompt: %v", domain.ErrInternal, err)
	}

	messages := []driven.ChatMessage{
		{Role: driven.RoleSystem, Content: system},
		{Role: driven.RoleUser, Content: fmt.Sprintf(user, RenderContext(req.Chunks), question)},
	}
	logger.Debug("Answering %q from %d chunks", question, len(req.Chunks))

	cctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	res, err := s.llm.Chat(cctx, messages, driven.ChatOptions{
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, upstream("chat completion", err)
	}

	text := strings.TrimSpace(res.Content)
	if text == "" {
		text = NoAnswer
	}
	model := res.Model
	if model == "" {
		model = s.llm.ModelName()
	}
	return &domain.Answer{Answer: text, Model: model, TokenUsage: res.Usage}, nil
}

// RenderContext formats chunks as prompt context blocks.
func RenderContext(chunks []domain.AnswerChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		var b strings.Builder
		b.WriteString("Document: ")
		b.WriteString(c.DocumentName)
		b.WriteString("\nMetadata:\n")
		if len(c.Metadata) == 0 {
			b.WriteString("N/A")
		} else {
			lines := make([]string, len(c.Metadata))
			for j, m := range c.Metadata {
				lines[j] = m.Name + ": " + m.RenderValue()
			}
			b.WriteString(strings.Join(lines, "\n"))
		}
		b.WriteString("\nContent: ")
		b.WriteString(c.Text)
		blocks[i] = b.String()
	}
	return strings.Join(blocks, "\n\n")
}
