package answer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructuredStrictJSON(t *testing.T) {
	raw := `{
		"summary": "Casos de teste para a US-1234",
		"artifacts": {
			"test_cases": [
				{"id": "TC-001", "title": "Login válido", "type": "functional",
				 "steps": ["abrir tela", "informar credenciais"],
				 "expected_result": "usuário autenticado",
				 "tags": ["UI"], "traceability": ["US-1234"]}
			],
			"acceptance_criteria": ["AC-1: login com credenciais válidas"]
		},
		"sources": [{"title": "Guia", "url": "https://kb/guia"}]
	}`

	got := ParseStructured(raw)

	assert.Equal(t, "Casos de teste para a US-1234", got.Summary)
	assert.Len(t, got.Artifacts.TestCases, 1)
	assert.Equal(t, "TC-001", got.Artifacts.TestCases[0].ID)
	assert.Equal(t, []Source{{Title: "Guia", URL: "https://kb/guia"}}, got.Sources)
}

func TestParseStructuredExtractsEmbeddedObject(t *testing.T) {
	raw := "Claro! Segue o JSON pedido:\n```json\n" +
		`{"summary": "ok", "artifacts": {}, "sources": []}` +
		"\n```\nEspero que ajude."

	got := ParseStructured(raw)
	assert.Equal(t, "ok", got.Summary)
	assert.Empty(t, got.Artifacts.TestCases)
}

func TestParseStructuredStubOnGarbage(t *testing.T) {
	for _, raw := range []string{
		"resposta em texto livre, sem json nenhum",
		"{quebrado: sem aspas}",
		"",
	} {
		got := ParseStructured(raw)
		if raw != "" && got.Summary == "" {
			t.Errorf("stub for %q must carry the raw text as summary", raw)
		}
		assert.Empty(t, got.Artifacts.TestCases, "stub artifacts must be empty")
		assert.NotNil(t, got.Sources, "stub sources must be an empty list, not null")
		assert.Empty(t, got.Sources)
	}
}

func TestParseStructuredStubSerializesEmptyArrays(t *testing.T) {
	got := ParseStructured("resposta em texto livre, sem json nenhum")

	raw, err := json.Marshal(got)
	require.NoError(t, err)

	body := string(raw)
	assert.NotContains(t, body, "null", "degraded object must not carry null fields")
	assert.Contains(t, body, `"test_cases":[]`)
	assert.Contains(t, body, `"acceptance_criteria":[]`)
	assert.Contains(t, body, `"sources":[]`)
}

func TestParseStructuredStubSummaryCapped(t *testing.T) {
	raw := strings.Repeat("ç", 1000)
	got := ParseStructured(raw)

	if len(got.Summary) > summaryLimit {
		t.Fatalf("summary length %d exceeds cap %d", len(got.Summary), summaryLimit)
	}
	for i, r := range got.Summary {
		if r == '�' {
			t.Fatalf("summary cut mid-rune at byte %d", i)
		}
	}
}

func TestMergeSources(t *testing.T) {
	primary := []Source{
		{Title: "Guia", URL: "https://kb/guia"},
		{Title: "Guia", URL: "https://kb/guia"},
		{Title: "US-1234", URL: "https://kb/us-1234"},
	}
	extra := []Source{
		{Title: "Guia", URL: "https://kb/guia"},
		{Title: "Runbook", URL: "https://kb/runbook"},
	}

	got := MergeSources(primary, extra)

	want := []Source{
		{Title: "Guia", URL: "https://kb/guia"},
		{Title: "US-1234", URL: "https://kb/us-1234"},
		{Title: "Runbook", URL: "https://kb/runbook"},
	}
	assert.Equal(t, want, got)
}

func TestMergeSourcesEmptyInputs(t *testing.T) {
	assert.Empty(t, MergeSources(nil, nil))
	assert.Equal(t,
		[]Source{{Title: "A", URL: "u"}},
		MergeSources(nil, []Source{{Title: "A", URL: "u"}}))
}
