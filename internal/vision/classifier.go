package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	log "log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	xdraw "golang.org/x/image/draw"

	"mirror/internal/mood"
)

const defaultMaxDim = 512

var classifyPrompt = "Look at the face of the person in this picture and name their dominant emotion. " +
	"Answer with exactly one word from this list: " + strings.Join(mood.Labels, ", ") + "."

type ClassifierConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	MaxDim     int
	HTTPClient *http.Client
}

// Classifier infers an emotion label from a frame with a vision model.
type Classifier struct {
	api     openai.Client
	model   openai.ChatModel
	timeout time.Duration
	maxDim  int
	ready   bool
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
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

	model := openai.ChatModel(cfg.Model)
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	maxDim := cfg.MaxDim
	if maxDim <= 0 {
		maxDim = defaultMaxDim
	}

	return &Classifier{
		api:     openai.NewClient(opts...),
		model:   model,
		timeout: cfg.Timeout,
		maxDim:  maxDim,
		ready:   strings.TrimSpace(cfg.APIKey) != "",
	}
}

// Classify returns one of mood.Labels for frame.
func (c *Classifier) Classify(ctx context.Context, frame []byte) (string, error) {
	if !c.ready {
		return "", fmt.Errorf("classify: OPENAI_API_KEY not set")
	}

	img, err := downscaleJPEG(frame, c.maxDim)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img)
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(classifyPrompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}),
	}

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		Model:               c.model,
		MaxCompletionTokens: openai.Int(5),
		Temperature:         openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("classify: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("classify: no choices in response")
	}

	raw := resp.Choices[0].Message.Content
	label, ok := mood.Normalize(raw)
	if !ok {
		return "", fmt.Errorf("classify: unknown label %q", raw)
	}

	log.Debug("Classified frame", "label", label)
	return label, nil
}

// downscaleJPEG re-encodes data as JPEG with its longest side at most maxDim.
func downscaleJPEG(data []byte, maxDim int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid image bounds: %dx%d", w, h)
	}

	maxSide := max(w, h)
	if maxDim > 0 && maxSide > maxDim {
		scale := float64(maxDim) / float64(maxSide)
		nw := max(1, int(math.Round(float64(w)*scale)))
		nh := max(1, int(math.Round(float64(h)*scale)))

		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
