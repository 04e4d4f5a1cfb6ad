package relay

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// PollGenerator produces raw poll text for one article. The relay returns
// the text verbatim; clients own the parsing and any fallback.
type PollGenerator interface {
	Generate(ctx context.Context, title, description string) (string, error)
}

const pollSystemPrompt = `You write one-question opinion polls about news articles.

Rules:
1. One poll per article, answerable by someone who only read the headline.
2. Exactly three short answer options covering distinct stances.
3. Neutral wording; no loaded language, no hype.
4. Keep the question under 90 characters and each option under 40.

Output exactly four lines with no labels, numbering or quotes:
<question>
<option>
<option>
<option>`

type openAIPolls struct {
	client openai.Client
	model  openai.ChatModel
}

func newOpenAIPolls(apiKey, model string) *openAIPolls {
	return &openAIPolls{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModel(model),
	}
}

func (p *openAIPolls) Generate(ctx context.Context, title, description string) (string, error) {
	userPrompt := fmt.Sprintf("Title: %s\nDescription: %s", title, description)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(pollSystemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}
