package retrieval

import (
	"strings"
	"text/template"

	"docqa/internal/provider"
	"docqa/internal/rag"
)

// NoAnswerText is returned instead of calling the generator when no chunk
// qualifies as context.
const NoAnswerText = "No grounded answer is available: none of the project's documents are relevant to this question."

const systemPrompt = `You are a document question answering assistant.
You generate a response for the user based only on the documents provided.
Ignore documents that are not related to the question.`

var (
	documentTmpl = template.Must(template.New("document").Parse(
		"## Document No: {{.Number}}\n### Content: {{.Content}}"))
	footerTmpl = template.Must(template.New("footer").Parse(
		"Based only on the above documents, please generate an answer for the user.\n## Question:\n{{.}}\n\n## Answer:"))
)

// BuildPrompt renders the generator prompt for question over chunks, in order.
// The documents and question make up the user turn.
func BuildPrompt(question string, chunks []rag.RetrievedChunk) (provider.Prompt, error) {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n")
		}
		err := documentTmpl.Execute(&b, struct {
			Number  int
			Content string
		}{i + 1, c.Content})
		if err != nil {
			return provider.Prompt{}, err
		}
	}

	b.WriteString("\n\n")
	if err := footerTmpl.Execute(&b, question); err != nil {
		return provider.Prompt{}, err
	}
	return provider.Prompt{System: systemPrompt, User: b.String()}, nil
}
