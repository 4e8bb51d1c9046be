package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/complia/complia/pkg/model"
)

type fakeClient struct {
	available bool
	response  string
	err       error
	called    bool
}

func (f *fakeClient) Complete(_ context.Context, _ []Message, _ *SamplingOptions) (string, error) {
	f.called = true
	return f.response, f.err
}

func (f *fakeClient) Available(_ context.Context) bool {
	return f.available
}

const evID = "7b6f4c0a-1111-4222-8333-444455556666"

func someEvidence() []EvidenceContext {
	return []EvidenceContext{{
		ID: evID, Title: "Bias audit", Description: "Annual fairness review",
		Type: model.EvidenceUpload,
	}}
}

func TestDraftStrictGateZeroEvidence(t *testing.T) {
	client := &fakeClient{available: true, response: "should not be used"}
	d := NewDrafter(client)

	res := d.Draft(context.Background(), model.SectionGeneral, nil)

	assert.Equal(t, NeedsEvidencePlaceholder, res.Text)
	assert.False(t, res.LLMAssisted)
	assert.Empty(t, res.Warnings)
	assert.False(t, client.called, "provider must not be invoked without evidence")
}

func TestDraftUnavailableDegrades(t *testing.T) {
	d := NewDrafter(&fakeClient{available: false})

	res := d.Draft(context.Background(), model.SectionGeneral, someEvidence())

	assert.Empty(t, res.Text)
	assert.Equal(t, []string{WarningUnavailable}, res.Warnings)
}

func TestDraftProviderErrorDegrades(t *testing.T) {
	d := NewDrafter(&fakeClient{available: true, err: errors.New("boom")})

	res := d.Draft(context.Background(), model.SectionGeneral, someEvidence())

	assert.Equal(t, []string{WarningUnavailable}, res.Warnings)
	assert.False(t, res.LLMAssisted)
}

func TestDraftKeepsKnownCitations(t *testing.T) {
	client := &fakeClient{
		available: true,
		response:  "The system is audited annually [Evidence: " + evID + "].",
	}
	d := NewDrafter(client)

	res := d.Draft(context.Background(), model.SectionGeneral, someEvidence())

	assert.True(t, res.LLMAssisted)
	assert.Contains(t, res.Text, "[Evidence: "+evID+"]")
}

func TestDraftStripsUnknownCitations(t *testing.T) {
	client := &fakeClient{
		available: true,
		response: "Audited [Evidence: " + evID + "] and fabricated " +
			"[Evidence: 99999999-9999-4999-8999-999999999999] claims.",
	}
	d := NewDrafter(client)

	res := d.Draft(context.Background(), model.SectionGeneral, someEvidence())

	assert.Contains(t, res.Text, "[Evidence: "+evID+"]")
	assert.NotContains(t, res.Text, "99999999")
	assert.Contains(t, res.Text, "fabricated claims")
}

func TestStripUnknownCitationsCaseInsensitive(t *testing.T) {
	upper := "[Evidence: " + "7B6F4C0A-1111-4222-8333-444455556666" + "]"
	known := map[string]bool{evID: true}

	out := StripUnknownCitations("x "+upper+" y", known)
	assert.Contains(t, out, upper)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcdefg"))
}
