package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// genreHints parameterizes the generative provider's prompt by content
// type: movie dialogue and documentary narration translate differently.
var genreHints = map[string]string{
	"movie dialogue": "This is dialogue from a film or TV show. Preserve tone, idiom, and register rather than translating literally.",
	"documentary":     "This is narration from a documentary. Prefer a neutral, informative register.",
}

// OpenAI is S4's fallback ("generative") provider: a single structured
// chat completion per batch, prompted with the numbered-enumeration format
// and parsed back with translate.ParseBatchResponse.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI builds the fallback provider bound to apiKey and model (e.g.
// "gpt-4.1-mini", internal/config.Config.OpenAITranslateModel), issuing
// requests over httpClient (internal/httpx.NewPooledHTTPClient).
func NewOpenAI(apiKey, model string, httpClient *http.Client) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient)),
		model:  model,
	}
}

// Name implements Provider.
func (o *OpenAI) Name() string { return "openai-generative" }

// TranslateBatch implements Provider: one chat completion carrying the
// whole numbered batch, parsed with the numbered-then-line-split fallback
// chain.
func (o *OpenAI) TranslateBatch(ctx context.Context, lines []string, sourceLanguage, targetLanguage, genre string) ([]string, error) {
	prompt := BuildNumberedPrompt(lines)
	hint := genreHints[genre]

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(sourceLanguage, targetLanguage, hint)),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, WrapServerError(errors.New("empty completion"))
	}

	return ParseBatchResponse(resp.Choices[0].Message.Content, len(lines))
}

func systemPrompt(sourceLanguage, targetLanguage, genreHint string) string {
	base := fmt.Sprintf(
		"You translate subtitle/dialogue lines from %s to %s. "+
			"Input is a numbered list, one line per item: \"[1] text\". "+
			"Reply with exactly the same number of lines, same numbering, "+
			"translated text only, no commentary.",
		sourceOrAuto(sourceLanguage), targetLanguage,
	)
	if genreHint != "" {
		return base + " " + genreHint
	}
	return base
}

func sourceOrAuto(sourceLanguage string) string {
	if sourceLanguage == "" {
		return "the detected source language"
	}
	return sourceLanguage
}

// classifyOpenAIError maps an OpenAI API error's HTTP status to the error
// taxonomy: 429 is a rate limit, other 5xx are server errors, other 4xx
// are permanent.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return WrapServerError(err)
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return WrapRateLimited(err)
	case apiErr.StatusCode >= 500:
		return WrapServerError(err)
	case apiErr.StatusCode >= 400:
		return WrapPermanent(err)
	default:
		return WrapServerError(err)
	}
}
