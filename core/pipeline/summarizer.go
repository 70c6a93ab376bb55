package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/siherrmann/persona/core/store"
	"github.com/siherrmann/persona/model"
	"google.golang.org/genai"
)

const (
	// SummaryMaxTokens caps the length of generated global summaries.
	SummaryMaxTokens = 150

	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.0-flash"

	summaryTextLimit       = 500
	summaryAttributeLimit  = 10
	summaryContentLimit    = 5
	summaryContentMaxChars = 200

	summarySystemPrompt = "You are a helpful assistant that creates concise entity summaries for semantic search."
)

// ErrSummarizerUnavailable is returned when a summarizer has no credentials.
var ErrSummarizerUnavailable = errors.New("summarizer unavailable")

// BuildSummaryPrompt renders the salient fields of a document into a prompt
// asking for a 2-3 sentence summary.
func BuildSummaryPrompt(doc *model.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entity: %s (%s)\n", entityName(doc), entityType(doc))

	if text := strings.TrimSpace(doc.Text); text != "" {
		fmt.Fprintf(&b, "Description: %s\n", clip(text, summaryTextLimit))
	}

	if attrs, err := model.ParseAttributes(doc.Structured); err == nil && len(attrs) > 0 {
		b.WriteString("Attributes:\n")
		written := 0
		for _, key := range attrs.Keys() {
			if written == summaryAttributeLimit {
				break
			}
			if attrs[key].IsEmpty() {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", key, attrs[key].String())
			written++
		}
	}

	var content []string
	for _, key := range sortedKeys(doc.Content) {
		if len(content) == summaryContentLimit {
			break
		}
		if s, ok := doc.Content[key].(string); ok && strings.TrimSpace(s) != "" {
			content = append(content, fmt.Sprintf("- %s: %s", key, clip(s, summaryContentMaxChars)))
		}
	}
	if len(content) > 0 {
		b.WriteString("Additional info:\n")
		b.WriteString(strings.Join(content, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\nCreate a concise 2-3 sentence summary of this entity that captures its key characteristics.")
	return b.String()
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// OpenAISummarizer summarizes with the chat completions API.
func OpenAISummarizer(apiKey, modelName string, opts ...option.RequestOption) store.SummarizeFunc {
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	if apiKey == "" {
		return func(ctx context.Context, prompt string, maxTokens int) (string, error) {
			return "", ErrSummarizerUnavailable
		}
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(modelName),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(summarySystemPrompt),
				openai.UserMessage(prompt),
			},
			MaxCompletionTokens: openai.Int(int64(maxTokens)),
			Temperature:         openai.Float(0.3),
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("empty completion")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
}

// GeminiSummarizer summarizes with the Gemini API.
func GeminiSummarizer(apiKey, modelName string) store.SummarizeFunc {
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	return func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		if apiKey == "" {
			return "", ErrSummarizerUnavailable
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return "", err
		}
		resp, err := client.Models.GenerateContent(
			ctx,
			modelName,
			[]*genai.Content{{Parts: []*genai.Part{{Text: summarySystemPrompt + "\n\n" + prompt}}}},
			&genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)},
		)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(resp.Text()), nil
	}
}
