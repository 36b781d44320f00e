package ollama

import (
	"fmt"
	"strings"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
)

func buildClassificationPrompt(query string, history []string) string {
	var historyBlock string
	if len(history) > 0 {
		tail := history
		if len(tail) > 4 {
			tail = tail[len(tail)-4:]
		}
		historyBlock = "Recent conversation:\n" + strings.Join(tail, "\n") + "\n\n"
	}

	return historyBlock + `You are a query classifier for a medical assistant.
Return strict JSON object with keys:
language (ISO 639-1 code of the question), query_type ("medical" or "conversational"), complexity ("simple" or "complex").
A question is complex when it asks about relations, comparisons, multi-step reasoning or several conditions/drugs at once.
Greetings, thanks and small talk are conversational.
No markdown, no extra keys.

Question:
` + query
}

func buildAnswerPrompt(query domain.Query, chunks []domain.FusedResult, graphContext string) string {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] document=%s page=%d\n%s\n\n",
			idx+1,
			chunk.DocumentName,
			chunk.PageNumber,
			chunk.Text,
		))
	}

	var prompt strings.Builder
	prompt.WriteString("You are a careful medical assistant. Answer the question only from the context below.\n")
	prompt.WriteString("If the context is insufficient, say it directly. Cite sources as [n].\n")
	fmt.Fprintf(&prompt, "Answer in %s.\n", languageName(query.Language))
	if query.Complexity == domain.ComplexityComplex {
		prompt.WriteString("Reason step by step before the final answer: identify the entities involved, their relations, then conclude.\n")
	}
	prompt.WriteString("\nQuestion:\n")
	prompt.WriteString(query.Text)
	prompt.WriteString("\n\nContext:\n")
	prompt.WriteString(contextBuilder.String())
	if strings.TrimSpace(graphContext) != "" {
		prompt.WriteString("\nKnowledge graph context:\n")
		prompt.WriteString(graphContext)
		prompt.WriteString("\n")
	}
	return prompt.String()
}

func buildEntityPrompt(query string, chunks []domain.FusedResult) string {
	var snippet strings.Builder
	const maxSnippet = 2000
	for _, chunk := range chunks {
		if snippet.Len() >= maxSnippet {
			break
		}
		snippet.WriteString(chunk.Text)
		snippet.WriteString("\n")
	}

	return fmt.Sprintf(`Extract medical entities (drugs, conditions, symptoms, anatomy, procedures) mentioned in the question and text below.
Return strict JSON object: {"entities": ["term", ...]} with lowercase terms. No markdown, no extra keys.

Question:
%s

Text:
%s`, query, snippet.String())
}

func languageName(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "tr":
		return "Turkish"
	case "de":
		return "German"
	case "es":
		return "Spanish"
	case "fr":
		return "French"
	default:
		return "English"
	}
}
