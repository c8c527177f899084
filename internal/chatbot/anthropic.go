package chatbot

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/Skufu/cardiorisk/internal/model"
)

const systemPrompt = `You are a heart-health assistant inside a cardiovascular risk screening tool.
Answer briefly and in plain language. You do not diagnose. Tell the user to contact
emergency services for chest pain, severe breathlessness or fainting.`

// AnthropicAnswerer answers through the Anthropic Messages API.
type AnthropicAnswerer struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates an answerer. Extra request options are passed to the SDK client.
func NewAnthropic(apiKey, modelName string, opts ...option.RequestOption) *AnthropicAnswerer {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicAnswerer{
		client:    sdk.NewClient(opts...),
		model:     modelName,
		maxTokens: 512,
	}
}

func (a *AnthropicAnswerer) Answer(ctx context.Context, question string, last *model.ClinicalInput) (string, error) {
	prompt := question
	if last != nil {
		prompt = fmt.Sprintf("My last assessment input: age %d, sex %d, resting BP %d mmHg, cholesterol %d mg/dL, max heart rate %d bpm.\n\n%s",
			last.Age, last.Sex, last.RestingBP, last.Cholesterol, last.MaxHeartRate, question)
	}

	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: a.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", eris.Wrap(err, "chatbot: create message")
	}

	var parts []string
	for _, b := range msg.Content {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}
