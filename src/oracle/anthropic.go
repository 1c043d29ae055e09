package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// AnthropicConfig configures the Anthropic oracle.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64

	// Options are passed to the client, after the API key.
	Options []option.RequestOption
}

// Anthropic is an Oracle backed by the Anthropic Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *logrus.Entry
}

// NewAnthropic creates an Anthropic oracle. Without an API key, the client
// falls back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(conf AnthropicConfig, logger *logrus.Entry) *Anthropic {
	var clientOpts []option.RequestOption
	if conf.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(conf.APIKey))
	}
	clientOpts = append(clientOpts, conf.Options...)

	client := anthropic.NewClient(clientOpts...)

	return &Anthropic{
		client:    &client,
		model:     anthropic.Model(conf.Model),
		maxTokens: conf.MaxTokens,
		logger:    logger,
	}
}

// Decide implements the Oracle interface.
func (o *Anthropic) Decide(ctx context.Context, s Situation) (Decision, error) {
	params := anthropic.MessageNewParams{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(s)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(s))),
		},
	}

	resp, err := o.client.Messages.New(ctx, params)
	if err != nil {
		return Decision{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	d, err := parseDecision(text.String())
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"answer": text.String(),
			"error":  err,
		}).Warn("Unreadable decision")
		return Decision{}, err
	}

	return normalize(d, s.Capacity), nil
}

// parseDecision reads the first JSON object found in text. Models sometimes
// wrap it in prose or code fences.
func parseDecision(text string) (Decision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Decision{}, fmt.Errorf("no JSON object in answer")
	}

	var d Decision
	dec := codec.NewDecoderBytes([]byte(text[start:end+1]), new(codec.JsonHandle))
	if err := dec.Decode(&d); err != nil {
		return Decision{}, fmt.Errorf("decoding decision: %w", err)
	}

	return d, nil
}
