package chat

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// FallbackReply is spoken whenever generation fails.
const FallbackReply = "I'm having a dumb moment. Try again."

const personaPrompt = `
You are a smart, silly, sarcastic best friend who lives inside a mirror.
Your user is feeling %s.
Reply like a friend, not a therapist. Be witty or savage if needed.
Keep it to one to three short sentences: your reply is read aloud.
No markdown, no emoji, no lists.
`

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// Client generates spoken replies through the chat-completions API.
type Client struct {
	api     openai.Client
	model   openai.ChatModel
	timeout time.Duration
	ready   bool
}

func New(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	model := openai.ChatModel(cfg.Model)
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}

	return &Client{
		api:     openai.NewClient(opts...),
		model:   model,
		timeout: cfg.Timeout,
		ready:   strings.TrimSpace(cfg.APIKey) != "",
	}
}

// Generate returns a reply to prompt in the persona, tuned to emotion.
// The reply is always speakable: on any error it is FallbackReply and ok
// is false.
func (c *Client) Generate(ctx context.Context, prompt, emotion string) (reply string, ok bool) {
	reply, err := c.complete(ctx, prompt, emotion)
	if err != nil {
		log.Warn("Generation failed", "err", err)
		return FallbackReply, false
	}
	return reply, true
}

func (c *Client) complete(ctx context.Context, prompt, emotion string) (string, error) {
	if !c.ready {
		return "", fmt.Errorf("OPENAI_API_KEY not set")
	}
	if emotion == "" {
		emotion = "neutral"
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(personaPrompt, emotion)),
			openai.UserMessage(prompt),
		},
		Model:               c.model,
		MaxCompletionTokens: openai.Int(150),
		Temperature:         openai.Float(0.8),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}

	log.Debug("Generated", "emotion", emotion, "reply", content)

	return content, nil
}
