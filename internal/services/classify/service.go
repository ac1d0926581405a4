// -----------------------------------------------------------------------
// Classify Service - sends a downloaded document to Gemini and parses the
// structured classification it returns. Classification is advisory: the
// caller records the result but never fails a download over it.
// -----------------------------------------------------------------------

package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/models"
	"google.golang.org/genai"
)

const classifyPrompt = `You are classifying a document downloaded from a vendor billing portal.
Respond with a single JSON object and nothing else, using this shape:
{
  "document_type": "invoice" | "receipt" | "statement" | "other",
  "billing_month": "YYYY-MM or empty if unknown",
  "service_name": "vendor/service the document is from",
  "suggested_filename": "descriptive filename with extension",
  "confidence": 0.0-1.0,
  "notes": "anything ambiguous"
}`

// Service classifies downloaded artifacts with Gemini.
type Service struct {
	config common.ClassifierConfig
	logger arbor.ILogger
	client *genai.Client
}

// NewService initializes the Gemini client. Returns nil when no API key is
// configured so callers can treat classification as absent.
func NewService(config common.ClassifierConfig, logger arbor.ILogger) (*Service, error) {
	if config.GoogleAPIKey == "" {
		logger.Info().Msg("Classifier disabled: no Google API key configured")
		return nil, nil
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	logger.Info().Str("model", config.Model).Msg("Classifier service initialized")

	return &Service{
		config: config,
		logger: logger,
		client: client,
	}, nil
}

// Classify sends the document bytes to the model and decodes its verdict.
func (s *Service) Classify(ctx context.Context, artifact *models.DownloadedArtifact) (*models.Classification, error) {
	if len(artifact.Content) == 0 {
		return nil, fmt.Errorf("artifact '%s' has no data", artifact.Filename)
	}

	mimeType := artifact.MimeType
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				genai.NewPartFromText(fmt.Sprintf("Original filename: %s", artifact.Filename)),
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: artifact.Content}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(classifyPrompt, genai.RoleUser),
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.config.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}

	result, err := parseResponse(resp.Text())
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("filename", artifact.Filename).
		Str("document_type", result.DocumentType).
		Str("billing_month", result.BillingMonth).
		Msg("Document classified")

	return result, nil
}

// parseResponse decodes the model output, tolerating a markdown code fence
// around the JSON. An unrecognized document type falls back to "receipt".
func parseResponse(text string) (*models.Classification, error) {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "{"); idx >= 0 {
		if end := strings.LastIndex(text, "}"); end > idx {
			text = text[idx : end+1]
		}
	}

	var result models.Classification
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("classifier returned unparseable response: %w", err)
	}

	switch result.DocumentType {
	case "invoice", "receipt", "statement", "other":
	default:
		result.DocumentType = "receipt"
	}

	return &result, nil
}
