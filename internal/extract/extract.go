// Package extract turns raw document text into structured product
// records via a prompt-and-parse completion call.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kcwrites/agenthub/internal/domain"
	"github.com/kcwrites/agenthub/internal/llm"
)

// maxDocumentChars caps how much document text is sent upstream.
const maxDocumentChars = 8000

const extractionSystemPrompt = "You are a precise data extraction specialist. Always return valid JSON."

const labelSystemPrompt = "You are a safety label specialist. Create professional, compliant product labels in HTML format."

// jsonObjectPattern recovers a JSON object from a reply that wraps it in
// prose or code fences.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Service performs document extraction and label generation.
type Service struct {
	client llm.Client
	model  string
}

// NewService creates an extraction service using the given model.
func NewService(client llm.Client, model string) *Service {
	return &Service{client: client, model: model}
}

// Extract asks the provider for a structured record from document text.
// The reply is parsed as JSON; replies that wrap the object in prose are
// salvaged by locating the outermost object.
func (s *Service) Extract(ctx context.Context, text, fileName, fileType string) (*domain.Extraction, error) {
	reply, err := s.client.Complete(ctx, llm.Request{
		System:      extractionSystemPrompt,
		User:        buildExtractionPrompt(text),
		Model:       s.model,
		Temperature: 0.1,
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}

	var e domain.Extraction
	if err := json.Unmarshal([]byte(reply), &e); err != nil {
		match := jsonObjectPattern.FindString(reply)
		if match == "" {
			return nil, fmt.Errorf("extraction reply is not JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(match), &e); err != nil {
			return nil, fmt.Errorf("extraction reply is not JSON: %w", err)
		}
	}

	e.ID = uuid.NewString()
	e.FileName = fileName
	e.FileType = fileType
	e.CreatedAt = time.Now()
	return &e, nil
}

// GenerateLabel produces an HTML product safety label from a record.
func (s *Service) GenerateLabel(ctx context.Context, e *domain.Extraction) (string, error) {
	label, err := s.client.Complete(ctx, llm.Request{
		System:      labelSystemPrompt,
		User:        buildLabelPrompt(e),
		Model:       s.model,
		Temperature: 0.3,
		MaxTokens:   1500,
	})
	if err != nil {
		return "", fmt.Errorf("label completion: %w", err)
	}
	return label, nil
}

func buildExtractionPrompt(text string) string {
	if len(text) > maxDocumentChars {
		text = text[:maxDocumentChars]
	}

	var b strings.Builder
	b.WriteString(`You are an expert at extracting structured data from Safety Data Sheets (SDS) and technical documents.
Extract the following information from the provided text and return it in JSON format:

{
  "product_name": "string",
  "manufacturer": "string",
  "hazards": ["array of hazard descriptions"],
  "ingredients": ["array of chemical ingredients with percentages if available"],
  "safety_precautions": ["array of safety measures"],
  "first_aid_measures": ["array of first aid instructions"],
  "physical_properties": {
    "physical_state": "string",
    "color": "string",
    "odor": "string",
    "ph": "string",
    "boiling_point": "string",
    "melting_point": "string",
    "flash_point": "string",
    "density": "string"
  },
  "extraction_confidence": "number between 0 and 1"
}

If information is not available, use null or an empty array. Be precise and only extract information that is clearly stated.

Document text:
`)
	b.WriteString(text)
	return b.String()
}

func buildLabelPrompt(e *domain.Extraction) string {
	name := e.ProductName
	if name == "" {
		name = "Unknown Product"
	}
	manufacturer := e.Manufacturer
	if manufacturer == "" {
		manufacturer = "Unknown Manufacturer"
	}

	hazards, _ := json.Marshal(e.Hazards)
	ingredients, _ := json.Marshal(e.Ingredients)
	precautions, _ := json.Marshal(e.SafetyPrecautions)
	firstAid, _ := json.Marshal(e.FirstAidMeasures)

	return fmt.Sprintf(`Generate a professional product safety label based on the following extracted data:

Product: %s
Manufacturer: %s
Hazards: %s
Key Ingredients: %s
Safety Precautions: %s
First Aid: %s

Create a clear, professional product label that includes:
1. Product name and manufacturer
2. Hazard warnings with appropriate symbols (describe which symbols should be used)
3. Key safety precautions
4. Essential first aid information
5. Storage and handling instructions

Format the label as HTML with appropriate styling classes for a professional appearance.
Use warning colors (red, orange, yellow) where appropriate.
Make it concise but comprehensive.`,
		name, manufacturer, hazards, ingredients, precautions, firstAid)
}
