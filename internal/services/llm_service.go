package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// emailClassificationPrompt turns one recruiting email into a structured
// application tuple. Classification quality is the model's problem; the
// engine only consumes the resulting draft at email_sync confidence.
const emailClassificationPrompt = `
You are an assistant that reads job-application emails and extracts tracking data.

### INSTRUCTIONS:
1. Decide whether this email is about a specific job application of the recipient.
2. If it is not (newsletter, job alert digest, promotion), output {"relevant": false}.
3. Otherwise extract the fields below. Do not wrap the output in markdown code blocks.

### OUTPUT SCHEMA:
{
    "relevant": true,
    "company": "Company name as written (e.g. Stripe)",
    "role": "Role title if identifiable, else your best short guess from context",
    "status": "One of: Applied, Interview, Offer, Rejected, Viewed",
    "date_applied": "Date the email refers to, YYYY-MM-DD, or null"
}

### CONSTRAINT:
If company or role cannot be determined, set "relevant" to false. Never guess a company.

### EMAIL:
Subject: %s
From: %s

%s
`

// maxEmailBodyChars caps what we send to the model per email.
const maxEmailBodyChars = 12000

// LLMService wraps the Gemini client used to classify inbound emails.
type LLMService struct {
	client llms.Model
}

func NewLLMService(ctx context.Context, apiKey, model string) (*LLMService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: missing API key")
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: create client: %w", err)
	}
	return &LLMService{client: client}, nil
}

// emailClassification is the model's verdict for one email.
type emailClassification struct {
	Relevant    bool   `json:"relevant"`
	Company     string `json:"company"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	DateApplied string `json:"date_applied"`
}

// ClassifyEmail extracts an application tuple from one email, or nil when
// the email is not about a tracked application.
func (s *LLMService) ClassifyEmail(ctx context.Context, subject, sender, body string) (*dtos.SyncItem, error) {
	if len(body) > maxEmailBodyChars {
		body = body[:maxEmailBodyChars]
	}

	prompt := fmt.Sprintf(emailClassificationPrompt, subject, sender, body)
	resp, err := llms.GenerateFromSinglePrompt(ctx, s.client, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm: classify email: %w", err)
	}

	var result emailClassification
	if err := json.Unmarshal([]byte(stripCodeFence(resp)), &result); err != nil {
		return nil, fmt.Errorf("llm: parse classification %q: %w", resp, err)
	}
	if !result.Relevant || result.Company == "" || result.Role == "" {
		return nil, nil
	}

	return &dtos.SyncItem{
		Company:     result.Company,
		Role:        result.Role,
		Status:      result.Status,
		DateApplied: result.DateApplied,
	}, nil
}

// stripCodeFence tolerates models that ignore the no-markdown instruction.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
