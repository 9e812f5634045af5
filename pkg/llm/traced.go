package llm

import (
	"context"

	"github.com/aretw0/parley/pkg/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type traced struct {
	ports.ModelProvider
	model string
}

// Traced wraps a provider so every call is recorded as an "llm.Generate" span.
func Traced(p ports.ModelProvider, model string) ports.ModelProvider {
	return &traced{ModelProvider: p, model: model}
}

func (t *traced) Generate(ctx context.Context, prompt ports.Prompt, cfg ports.GenerationConfig) (string, error) {
	ctx, span := otel.Tracer("github.com/aretw0/parley/pkg/llm").Start(ctx, "llm.Generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", t.Name()),
			attribute.String("llm.model", t.model),
			attribute.Int("llm.messages", len(prompt.Messages)),
			attribute.Int("llm.max_tokens", cfg.MaxTokens),
		))
	defer span.End()

	text, err := t.ModelProvider.Generate(ctx, prompt, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("llm.reply_chars", len(text)))
	return text, nil
}
