package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/garyjia/lunch-claims/internal/application/port"
	"github.com/garyjia/lunch-claims/internal/domain/entity"
	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the OpenAI-compatible endpoint settings
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Currency string
}

// BillExtractor implements port.BillExtractor with a vision chat completion
type BillExtractor struct {
	client   *openai.Client
	model    string
	currency string
	prompts  *PromptConfig
	logger   *zap.Logger
}

// NewBillExtractor creates an extractor. BaseURL points it at any OpenAI-compatible provider.
func NewBillExtractor(cfg Config, prompts *PromptConfig, logger *zap.Logger) *BillExtractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &BillExtractor{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		currency: cfg.Currency,
		prompts:  prompts,
		logger:   logger,
	}
}

// Extract reads restaurant name, bill number, date and total from one bill
func (e *BillExtractor) Extract(ctx context.Context, bill entity.BillUpload) (*port.ExtractionResult, error) {
	image, mimeType, err := e.prepareImage(bill)
	if err != nil {
		return nil, err
	}

	prompt, err := renderTemplate(e.prompts.BillExtraction.UserTemplate, PromptData{
		Filename: bill.Filename,
		Currency: e.currency,
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Extracting bill with vision model",
		zap.String("filename", bill.Filename),
		zap.String("mime_type", mimeType),
		zap.Int("size", len(image)))

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   e.prompts.BillExtraction.MaxTokens,
		Temperature: e.prompts.BillExtraction.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: e.prompts.BillExtraction.System,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image)),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Vision API call failed", zap.String("filename", bill.Filename), zap.Error(err))
		return nil, fmt.Errorf("vision API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from vision model")
	}

	content := resp.Choices[0].Message.Content
	result, err := parseExtraction(content)
	if err != nil {
		e.logger.Warn("Invalid JSON from bill extraction",
			zap.String("filename", bill.Filename),
			zap.String("content", content),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("Bill extracted",
		zap.String("filename", bill.Filename),
		zap.Bool("has_total", result.Total != nil),
		zap.Bool("has_date", result.Date != nil))
	return result, nil
}

// prepareImage returns JPEG/PNG bytes for the model; PDFs are rasterised first
func (e *BillExtractor) prepareImage(bill entity.BillUpload) ([]byte, string, error) {
	if len(bill.Data) == 0 {
		return nil, "", fmt.Errorf("bill %s is empty", bill.Filename)
	}

	mimeType := detectMimeType(bill)
	switch mimeType {
	case "application/pdf":
		img, err := rasterizeFirstPage(bill.Data)
		if err != nil {
			return nil, "", err
		}
		return img, "image/jpeg", nil
	case "image/jpeg", "image/png", "image/webp", "image/gif":
		return bill.Data, mimeType, nil
	}
	return nil, "", fmt.Errorf("unsupported bill type %s for %s", mimeType, bill.Filename)
}

func detectMimeType(bill entity.BillUpload) string {
	sniffed := http.DetectContentType(bill.Data)
	if sniffed != "application/octet-stream" {
		return strings.TrimSpace(strings.SplitN(sniffed, ";", 2)[0])
	}
	if strings.EqualFold(filepath.Ext(bill.Filename), ".pdf") {
		return "application/pdf"
	}
	if bill.ContentType != "" {
		return bill.ContentType
	}
	return sniffed
}

// extractionPayload accepts totals written as numbers or numeric strings
type extractionPayload struct {
	RestaurantName *string         `json:"restaurant_name"`
	BillNumber     json.RawMessage `json:"bill_number"`
	Date           *string         `json:"date"`
	Total          json.RawMessage `json:"total"`
}

// parseExtraction decodes the model output, tolerating markdown fences around the object
func parseExtraction(content string) (*port.ExtractionResult, error) {
	var payload extractionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, fmt.Errorf("response is not JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	total, err := parseNullableNumber(payload.Total)
	if err != nil {
		return nil, fmt.Errorf("invalid total: %w", err)
	}
	billNumber, err := parseNullableString(payload.BillNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid bill_number: %w", err)
	}

	return &port.ExtractionResult{
		RestaurantName: payload.RestaurantName,
		BillNumber:     billNumber,
		Date:           payload.Date,
		Total:          total,
		RawResponse:    content,
	}, nil
}

// parseNullableNumber reads a total given as a JSON number or a numeric string with
// currency marks and thousands separators. NaN and infinities are rejected.
func parseNullableNumber(raw json.RawMessage) (*decimal.Decimal, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("unexpected value %s", raw)
		}
		s = n.String()
	}
	s = strings.NewReplacer(",", "", "₹", "", "$", "", "Rs.", "", "Rs", "", " ", "").Replace(s)
	if s == "" {
		return nil, nil
	}
	d, err := entity.ParseAmount(s)
	if err != nil {
		return nil, fmt.Errorf("unexpected value %s", raw)
	}
	return &d, nil
}

// parseNullableString accepts bill numbers printed as bare numbers
func parseNullableString(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("unexpected value %s", raw)
	}
	s = n.String()
	return &s, nil
}

// extractJSON returns the first balanced {...} object in content
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// Verify interface compliance
var _ port.BillExtractor = (*BillExtractor)(nil)
