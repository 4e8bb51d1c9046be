package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/complia/complia/pkg/model"
)

// NeedsEvidencePlaceholder is the fixed text returned when a draft is
// requested without any grounding evidence. The provider is never invoked in
// that case.
const NeedsEvidencePlaceholder = "[NEEDS EVIDENCE: attach evidence to this section before requesting a draft]"

// WarningUnavailable is returned alongside an empty draft when the provider
// cannot be reached. Provider outages degrade, they never fail the request.
const WarningUnavailable = "llm_unavailable"

// maxPromptTokens bounds the evidence context packed into one draft prompt.
const maxPromptTokens = 6000

var citationPattern = regexp.MustCompile(`\[Evidence:\s*([0-9a-fA-F-]{36})\]`)

// EvidenceContext is one evidence item passed to the drafter as grounding.
type EvidenceContext struct {
	ID          string
	Title       string
	Description string
	Type        model.EvidenceType
}

// DraftResult is the outcome of a draft request. Warnings are advisory;
// a result with a warning still has status 200 semantics.
type DraftResult struct {
	Text        string   `json:"text"`
	LLMAssisted bool     `json:"llm_assisted"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Drafter produces Annex IV section drafts grounded strictly in supplied
// evidence.
type Drafter struct {
	client Client
}

func NewDrafter(client Client) *Drafter {
	return &Drafter{client: client}
}

// Draft generates draft text for one section. The strict gate: with zero
// evidence the fixed placeholder comes back and the provider is never
// called. Citations referencing evidence outside the supplied set are
// stripped from the output.
func (d *Drafter) Draft(ctx context.Context, sectionKey string, evidence []EvidenceContext) DraftResult {
	if len(evidence) == 0 {
		return DraftResult{Text: NeedsEvidencePlaceholder, LLMAssisted: false}
	}
	if d.client == nil || !d.client.Available(ctx) {
		return DraftResult{Warnings: []string{WarningUnavailable}}
	}

	text, err := d.client.Complete(ctx, buildPrompt(sectionKey, evidence), &SamplingOptions{
		Temperature: 0.2,
		MaxTokens:   2000,
	})
	if err != nil {
		return DraftResult{Warnings: []string{WarningUnavailable}}
	}

	known := make(map[string]bool, len(evidence))
	for _, e := range evidence {
		known[strings.ToLower(e.ID)] = true
	}
	return DraftResult{
		Text:        StripUnknownCitations(text, known),
		LLMAssisted: true,
	}
}

// StripUnknownCitations removes [Evidence: <uuid>] markers whose uuid is not
// in the known set. Known citations are kept verbatim.
func StripUnknownCitations(text string, known map[string]bool) string {
	out := citationPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := citationPattern.FindStringSubmatch(m)
		if known[strings.ToLower(sub[1])] {
			return m
		}
		return ""
	})
	// Collapse doubled spaces left by removals, preserving line breaks.
	return strings.TrimSpace(spacePattern.ReplaceAllString(out, " "))
}

var spacePattern = regexp.MustCompile(`[ \t]{2,}`)

func buildPrompt(sectionKey string, evidence []EvidenceContext) []Message {
	var sb strings.Builder
	sb.WriteString("Evidence items:\n")
	for _, e := range evidence {
		entry := fmt.Sprintf("- [Evidence: %s] (%s) %s: %s\n", e.ID, e.Type, e.Title, e.Description)
		if EstimateTokens(sb.String()+entry) > maxPromptTokens {
			break
		}
		sb.WriteString(entry)
	}

	return []Message{
		{
			Role: "system",
			Content: "You draft EU AI Act Annex IV technical documentation sections. " +
				"Use only the evidence items supplied. Cite supporting evidence inline " +
				"as [Evidence: <id>]. Do not invent facts that the evidence does not support.",
		},
		{
			Role: "user",
			Content: fmt.Sprintf("Draft the %s section based on this evidence.\n\n%s",
				sectionKey, sb.String()),
		},
	}
}
