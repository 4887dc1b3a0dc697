package prompt

import (
	"fmt"
	"strings"

	"github.com/your-org/kb-assistant/internal/answer"
)

// markdownInstruction is the system instruction for free-form answers.
const markdownInstruction = `Você é um assistente em PORTUGUÊS (estilo ChatGPT) com acesso opcional a uma BASE DE CONHECIMENTO (KB).

POLÍTICA DE USO DA KB
- Use a KB para fatos específicos (regras, IDs, decisões, métricas). Não invente fatos/IDs que não estejam no contexto.
- Se algo não estiver na KB, complemente com conhecimento geral e boas práticas (sem criar números/IDs reais).
- Se usar a KB, inclua ao final uma seção **Fontes** com as URIs/links disponíveis. Se não usar a KB, escreva **Fontes: (sem fontes da KB)**.

FORMATO
- Responda em **Markdown**, claro e objetivo (listas, passos, trechos de código quando útil).
- NÃO use JSON a menos que o usuário peça explicitamente ou a tarefa exija saída estruturada.

OBJETIVO
- Responder perguntas gerais (explicar, resumir, escrever, criticar, planejar, dar passos, gerar código), combinando KB + conhecimento técnico.`

// structuredInstruction is the system instruction for JSON artifact output.
const structuredInstruction = `Você é um assistente em PORTUGUÊS que deve produzir **SAÍDA ESTRUTURADA em JSON válido** quando a tarefa exigir artefatos de QA (ex.: casos de teste, critérios, checklist) ou quando o usuário pedir explicitamente JSON.

REGRAS
- Use a KB para fatos (IDs, regras, decisões). Não invente fatos da KB; se faltar, proponha como [AI] sem IDs falsos.
- Retorne APENAS um **JSON** que siga o schema abaixo (sem texto fora do JSON):

{
  "summary": "string",
  "artifacts": {
    "test_cases": [
      {
        "id": "TC-001",
        "title": "string",
        "type": "functional|negative|nonfunctional",
        "steps": ["..."],
        "expected_result": "string",
        "tags": ["UI","API","Regression"],
        "traceability": ["US-1234","AC-1"]
      }
    ],
    "acceptance_criteria": ["AC-1: ...", "AC-2: ..."],
    "validation_checklist": ["..."],
    "risks": ["..."],
    "open_questions": ["..."]
  },
  "sources": [{"title":"string","url":"string|null"}]
}

- Gere 5–12 casos se o pedido for sobre casos de teste. Se não for, ajuste os campos de 'artifacts' conforme a tarefa.
- Se a KB não retornar nada, produza conteúdo coerente e use "sources": [].`

// emptyContextPlaceholder stands in for the KB block when retrieval found nothing.
const emptyContextPlaceholder = "(sem resultados)"

// BuildMarkdownPrompt composes the free-form prompt from the user message
// and the assembled knowledge-base context.
func BuildMarkdownPrompt(userMsg, context string) string {
	return composePrompt(markdownInstruction, userMsg, context)
}

// BuildStructuredPrompt composes the JSON-output prompt from the user
// message and the assembled knowledge-base context.
func BuildStructuredPrompt(userMsg, context string) string {
	return composePrompt(structuredInstruction, userMsg, context)
}

func composePrompt(instruction, userMsg, context string) string {
	if strings.TrimSpace(context) == "" {
		context = emptyContextPlaceholder
	}
	return fmt.Sprintf("%s\n\n[PERGUNTA DO USUÁRIO]\n%s\n\n[CONTEXTO DA KB]\n%s", instruction, userMsg, context)
}

// AppendSourcesIfMissing appends a "Fontes" section to a markdown answer
// when the model did not emit one itself. With no knowledge-base sources a
// neutral line is added so every answer carries the section.
func AppendSourcesIfMissing(answerMD string, sources []answer.Source) string {
	if strings.Contains(answerMD, "Fontes") {
		return answerMD
	}

	if len(sources) == 0 {
		return strings.TrimRight(answerMD, "\n") + "\n\n**Fontes**\n(sem fontes da KB)\n"
	}

	lines := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.URL != "" {
			lines = append(lines, fmt.Sprintf("- %s — %s", s.Title, s.URL))
		} else {
			lines = append(lines, "- "+s.Title)
		}
	}
	return strings.TrimRight(answerMD, "\n") + "\n\n**Fontes**\n" + strings.Join(lines, "\n") + "\n"
}
