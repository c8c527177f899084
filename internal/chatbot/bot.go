// Package chatbot answers heart-health questions from a built-in FAQ, optionally backed by an LLM.
package chatbot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Skufu/cardiorisk/internal/model"
)

// Answerer produces a free-form answer to a question.
type Answerer interface {
	Answer(ctx context.Context, question string, last *model.ClinicalInput) (string, error)
}

// Sources of a reply.
const (
	SourceGlossary = "glossary"
	SourceFAQ      = "faq"
	SourceLLM      = "llm"
)

// Reply is one chatbot answer.
type Reply struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Option configures a Bot.
type Option func(*Bot)

// WithAnswerer routes questions the glossary cannot answer to a.
func WithAnswerer(a Answerer) Option {
	return func(b *Bot) {
		b.llm = a
	}
}

// Bot answers questions.
type Bot struct {
	llm Answerer
}

// New creates a bot.
func New(opts ...Option) *Bot {
	b := &Bot{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Reply answers question. last is the most recent assessed input, if any.
// LLM failures fall back to the FAQ.
func (b *Bot) Reply(ctx context.Context, question string, last *model.ClinicalInput) Reply {
	q := strings.ToLower(strings.TrimSpace(question))
	ws := words(q)

	if text, ok := lookupGlossary(ws); ok {
		return Reply{Text: text, Source: SourceGlossary}
	}
	if ws["my"] && (containsKeyword(q, ws, "recommend") || ws["advice"] || ws["tips"] || ws["results"] || ws["result"]) {
		return Reply{Text: Personalized(last), Source: SourceFAQ}
	}

	if b.llm != nil && q != "" {
		text, err := b.llm.Answer(ctx, question, last)
		if err == nil && strings.TrimSpace(text) != "" {
			return Reply{Text: text, Source: SourceLLM}
		}
		if err != nil {
			zap.L().Warn("chatbot answerer failed, using faq", zap.Error(err))
		}
	}

	if text, ok := lookupTopic(q, ws); ok {
		return Reply{Text: text, Source: SourceFAQ}
	}
	return Reply{Text: helpText, Source: SourceFAQ}
}
