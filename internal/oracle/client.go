package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/loanworks/granite/internal/core/common"
	"github.com/loanworks/granite/internal/core/model"
)

// Oracle is the external classification/extraction service. Its judgments
// are opaque inputs: the engine reconciles and verifies them, it never
// produces them. Calls may time out or fail; callers wrap this interface
// with a retry policy.
type Oracle interface {
	Classify(ctx context.Context, doc model.Document) (*Judgment, error)
}

// GenerateClient is the minimal surface a provider backend must offer.
type GenerateClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Judgment is the boundary-coerced form of an oracle response. Every field
// has been validated; nothing loosely-typed crosses past this point.
type Judgment struct {
	TypeLabel         string
	GroupingHint      string
	FinalityIndicator string
	HasSignature      *bool
	DocumentDate      model.FieldValue
	Fields            map[string]model.FieldValue
	FieldPages        map[string]int
}

// rawJudgment mirrors the oracle's loose wire shape. Absent fields and
// inconsistent value types are expected here, not errors.
type rawJudgment struct {
	TypeLabel         string                 `json:"type_label"`
	GroupingHint      string                 `json:"grouping_hint"`
	FinalityIndicator string                 `json:"finality_indicator"`
	HasSignature      *bool                  `json:"has_signature"`
	DocumentDate      interface{}            `json:"document_date"`
	StructuredFields  map[string]interface{} `json:"structured_fields"`
	FieldPages        map[string]int         `json:"field_pages"`
}

// Classifier turns any GenerateClient into an Oracle: it renders the
// classification prompt, calls the backend, and coerces the response.
type Classifier struct {
	Client GenerateClient
}

func NewClassifier(client GenerateClient) *Classifier {
	return &Classifier{Client: client}
}

func (c *Classifier) Classify(ctx context.Context, doc model.Document) (*Judgment, error) {
	prompt := buildClassifyPrompt(doc)

	response, err := c.Client.Generate(ctx, prompt)
	if err != nil {
		return nil, classifyCall("classification call failed", err)
	}

	raw, err := common.ParseJSON[rawJudgment](response)
	if err != nil {
		return nil, NewOracleError(ErrorBadData, "unparseable classification response", err)
	}

	return coerceJudgment(raw), nil
}

// coerceJudgment validates and coerces a raw oracle response. Unknown
// finality indicators collapse to "", dates that fail to parse become
// Missing. Never guesses.
func coerceJudgment(raw rawJudgment) *Judgment {
	j := &Judgment{
		TypeLabel:    strings.ToLower(strings.TrimSpace(raw.TypeLabel)),
		GroupingHint: strings.TrimSpace(raw.GroupingHint),
		HasSignature: raw.HasSignature,
		DocumentDate: model.Missing(),
		Fields:       make(map[string]model.FieldValue, len(raw.StructuredFields)),
		FieldPages:   raw.FieldPages,
	}

	switch strings.ToLower(strings.TrimSpace(raw.FinalityIndicator)) {
	case "final":
		j.FinalityIndicator = "final"
	case "preliminary":
		j.FinalityIndicator = "preliminary"
	case "initial":
		j.FinalityIndicator = "initial"
	default:
		j.FinalityIndicator = ""
	}

	if v := model.Coerce(raw.DocumentDate); v.Kind == model.KindDate {
		j.DocumentDate = v
	}

	for name, value := range raw.StructuredFields {
		j.Fields[strings.ToLower(strings.TrimSpace(name))] = model.Coerce(value)
	}

	return j
}

func buildClassifyPrompt(doc model.Document) string {
	var sb strings.Builder
	sb.WriteString(`You are a loan document classification service.
Classify the document below and extract its structured fields.

Return ONLY a JSON object with these keys:
  "type_label": coarse document type (e.g. "transmittal_summary", "application_form", "paystub")
  "grouping_hint": stable key shared by drafts of the same underlying form, or ""
  "finality_indicator": one of "final", "preliminary", "initial", or ""
  "has_signature": true/false, or null if unknown
  "document_date": the document's own date as YYYY-MM-DD, or null
  "structured_fields": object mapping field names to scalar values
  "field_pages": object mapping field names to the 1-based page they appear on

`)
	fmt.Fprintf(&sb, "Document id: %s (%d pages)\n\n", doc.ID, doc.PageCount)
	for _, p := range doc.Pages {
		text := p.Text
		if len(text) > 2000 {
			text = text[:2000] + "..."
		}
		fmt.Fprintf(&sb, "--- page %d ---\n%s\n", p.Number, text)
	}
	return sb.String()
}
