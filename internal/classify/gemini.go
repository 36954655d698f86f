package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/logger"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for fallback classification.
const DefaultModelName = "gemini-2.5-flash"

const systemPrompt = "You categorize household bills exported from Chinese payment apps.\n" +
	"Pick exactly one category for the bill from this list: %s.\n" +
	"If none fits or you are unsure, answer \"unknown\".\n" +
	"Return ONLY a JSON object of the form {\"category\": \"<label>\"}.\n"

// GeminiOracle classifies bills with a Gemini model constrained to the
// category labels.
type GeminiOracle struct {
	client     *genai.Client
	model      string
	labels     []string
	maxRetries uint64
	usage      int64
}

// NewGeminiOracle creates an oracle using the Gemini API key.
func NewGeminiOracle(ctx context.Context, apiKey, model string, maxRetries uint64) (*GeminiOracle, error) {
	if model == "" {
		model = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiOracle: create genai client: %w", err)
	}

	return &GeminiOracle{
		client:     client,
		model:      model,
		labels:     vocabulary(),
		maxRetries: maxRetries,
	}, nil
}

// vocabulary is every assignable category label plus "unknown".
func vocabulary() []string {
	labels := []string{domain.CategoryUnknown.String()}
	for _, c := range domain.ExpenseCategories() {
		labels = append(labels, c.String())
	}
	return labels
}

// Usage returns the total tokens consumed so far.
func (o *GeminiOracle) Usage() int64 {
	return o.usage
}

// Classify asks the model for a category label.
func (o *GeminiOracle) Classify(ctx context.Context, req Request) (string, error) {
	log := logger.FromContext(ctx)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(buildSystemPrompt(o.labels), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"category": {Type: genai.TypeString, Enum: o.labels},
			},
			Required: []string{"category"},
		},
		Temperature: genai.Ptr[float32](0),
	}

	var resp *genai.GenerateContentResponse
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), o.maxRetries), ctx)
	err := backoff.RetryNotify(func() error {
		var err error
		resp, err = o.client.Models.GenerateContent(ctx, o.model, genai.Text(buildUserPrompt(req)), cfg)
		if err != nil && !retryableGenAIError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Gemini call failed, retrying")
	})
	if err != nil {
		return "", fmt.Errorf("Classify: generate content: %w", err)
	}

	if resp.UsageMetadata != nil {
		o.usage += int64(resp.UsageMetadata.TotalTokenCount)
	}

	raw := resp.Text()
	if raw == "" {
		return "", nil
	}
	label, err := parseAnswer(raw)
	if err != nil {
		return "", fmt.Errorf("Classify: %w", err)
	}
	return label, nil
}

func buildSystemPrompt(labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = "'" + l + "'"
	}
	return fmt.Sprintf(systemPrompt, strings.Join(quoted, ","))
}

func buildUserPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Item: '%s'\n", req.Description)
	fmt.Fprintf(&sb, "Paid to: '%s'\n", req.Counterparty)
	if !req.Amount.IsZero() {
		fmt.Fprintf(&sb, "Amount: %s CNY\n", req.Amount.StringFixed(2))
	}
	if !req.OccurredAt.IsZero() {
		fmt.Fprintf(&sb, "Time: %s\n", req.OccurredAt.Format("2006-01-02 15:04 Mon"))
	}
	sb.WriteString("Which category does this bill belong to?")
	return sb.String()
}

// parseAnswer extracts the category field from the model output, tolerating
// Markdown fences around the JSON.
func parseAnswer(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}

	var answer struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(s), &answer); err != nil {
		return "", fmt.Errorf("parseAnswer: unmarshal JSON: %w\nraw response: %s", err, raw)
	}
	return strings.TrimSpace(answer.Category), nil
}

func retryableGenAIError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return true
	}
	return code == http.StatusTooManyRequests || code >= 500
}
