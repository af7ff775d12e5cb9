package extract

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcwrites/agenthub/internal/domain"
	"github.com/kcwrites/agenthub/internal/llm"
)

type fakeClient struct {
	reply   string
	err     error
	lastReq llm.Request
}

func (f *fakeClient) Configured() bool { return true }

func (f *fakeClient) Stream(context.Context, llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {}
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (string, error) {
	f.lastReq = req
	return f.reply, f.err
}

const sampleReply = `{
	"product_name": "Acetone",
	"manufacturer": "Chem Corp",
	"hazards": ["Highly flammable liquid"],
	"ingredients": ["Acetone 100%"],
	"safety_precautions": ["Keep away from heat"],
	"first_aid_measures": ["Rinse eyes with water"],
	"physical_properties": {"physical_state": "Liquid", "flash_point": "-20 C"},
	"extraction_confidence": 0.92
}`

func TestExtractParsesCleanJSON(t *testing.T) {
	client := &fakeClient{reply: sampleReply}
	svc := NewService(client, "gpt-4")

	got, err := svc.Extract(context.Background(), "document text", "acetone.pdf", "application/pdf")
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Acetone", got.ProductName)
	assert.Equal(t, "Chem Corp", got.Manufacturer)
	assert.Equal(t, []string{"Highly flammable liquid"}, got.Hazards)
	require.NotNil(t, got.PhysicalProperties)
	assert.Equal(t, "Liquid", got.PhysicalProperties.PhysicalState)
	assert.InDelta(t, 0.92, got.ExtractionConfidence, 0.001)
	assert.Equal(t, "acetone.pdf", got.FileName)
	assert.Equal(t, "application/pdf", got.FileType)
	assert.False(t, got.CreatedAt.IsZero())

	assert.Equal(t, "gpt-4", client.lastReq.Model)
	assert.InDelta(t, 0.1, float64(client.lastReq.Temperature), 0.001)
	assert.Equal(t, 2000, client.lastReq.MaxTokens)
}

func TestExtractSalvagesWrappedJSON(t *testing.T) {
	client := &fakeClient{reply: "Here is the extracted data:\n```json\n" + sampleReply + "\n```\nLet me know if you need more."}
	svc := NewService(client, "gpt-4")

	got, err := svc.Extract(context.Background(), "document text", "a.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "Acetone", got.ProductName)
}

func TestExtractRejectsNonJSONReply(t *testing.T) {
	client := &fakeClient{reply: "I could not process this document."}
	svc := NewService(client, "gpt-4")

	_, err := svc.Extract(context.Background(), "document text", "a.pdf", "application/pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not JSON")
}

func TestExtractPropagatesProviderError(t *testing.T) {
	providerErr := errors.New("rate limited")
	client := &fakeClient{err: providerErr}
	svc := NewService(client, "gpt-4")

	_, err := svc.Extract(context.Background(), "document text", "a.pdf", "application/pdf")
	assert.ErrorIs(t, err, providerErr)
}

func TestExtractTruncatesLongDocuments(t *testing.T) {
	client := &fakeClient{reply: sampleReply}
	svc := NewService(client, "gpt-4")

	long := strings.Repeat("x", 3*maxDocumentChars)
	_, err := svc.Extract(context.Background(), long, "a.pdf", "application/pdf")
	require.NoError(t, err)

	assert.Less(t, len(client.lastReq.User), maxDocumentChars+2000)
}

func TestGenerateLabel(t *testing.T) {
	client := &fakeClient{reply: "<div class=\"label\">Acetone</div>"}
	svc := NewService(client, "gpt-4")

	label, err := svc.GenerateLabel(context.Background(), &domain.Extraction{
		ProductName:  "Acetone",
		Manufacturer: "Chem Corp",
		Hazards:      []string{"Flammable"},
	})
	require.NoError(t, err)
	assert.Contains(t, label, "Acetone")

	assert.Contains(t, client.lastReq.User, "Product: Acetone")
	assert.Contains(t, client.lastReq.User, "Chem Corp")
	assert.InDelta(t, 0.3, float64(client.lastReq.Temperature), 0.001)
	assert.Equal(t, 1500, client.lastReq.MaxTokens)
}

func TestGenerateLabelDefaultsUnknownFields(t *testing.T) {
	client := &fakeClient{reply: "<div/>"}
	svc := NewService(client, "gpt-4")

	_, err := svc.GenerateLabel(context.Background(), &domain.Extraction{})
	require.NoError(t, err)
	assert.Contains(t, client.lastReq.User, "Unknown Product")
	assert.Contains(t, client.lastReq.User, "Unknown Manufacturer")
}
