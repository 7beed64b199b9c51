package ai

import (
	"fmt"
	"strings"
)

const systemPrompt = "Você é um advogado brasileiro experiente que redige peças processuais " +
	"claras, fundamentadas e em conformidade com o CPC. Responda sempre em português do Brasil."

func thesesPrompt(facts string, opts ThesisOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Com base nos fatos abaixo, sugira até %d teses jurídicas", opts.max())
	if opts.DocumentType != "" {
		fmt.Fprintf(&b, " para uma %s", opts.DocumentType.Label())
	}
	if opts.LegalArea != "" {
		fmt.Fprintf(&b, " na área de %s", opts.LegalArea)
	}
	b.WriteString(".\n\nFATOS:\n")
	b.WriteString(facts)
	b.WriteString("\n\nResponda somente com JSON no formato " +
		`{"theses":[{"category":"preliminares|merito","title":"...","content":"..."}]}` +
		". Use \"preliminares\" para questões processuais e \"merito\" para o direito material.")
	return b.String()
}

func documentPrompt(in GenerateContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Redija uma %s completa.\n", in.DocumentType.Label())
	if in.ClientName != "" {
		fmt.Fprintf(&b, "Cliente: %s\n", in.ClientName)
	}
	if in.CaseType != "" {
		fmt.Fprintf(&b, "Tipo de caso: %s\n", in.CaseType)
	}
	b.WriteString("\nFATOS:\n")
	b.WriteString(in.Facts)

	if len(in.Theses) > 0 {
		b.WriteString("\n\nTESES SELECIONADAS:\n")
		for i, t := range in.Theses {
			fmt.Fprintf(&b, "%d. [%s] %s: %s\n", i+1, t.Category, t.Title, t.Content)
		}
	}
	if len(in.Citations) > 0 {
		b.WriteString("\nJURISPRUDÊNCIA A CITAR:\n")
		for _, c := range in.Citations {
			fmt.Fprintf(&b, "- %s, %s: %s\n", c.Tribunal, c.ProcessNumber, c.Excerpt)
		}
	}
	b.WriteString("\nResponda somente com JSON no formato " +
		`{"title":"...","sections":[{"type":"header|facts|preliminary|merits|claims|closing","title":"...","content":"<p>...</p>","order":1}]}`)
	return b.String()
}

var instructionText = map[Instruction]string{
	InstructionImprove:   "Melhore a redação mantendo o sentido",
	InstructionSimplify:  "Simplifique e encurte o texto mantendo o sentido jurídico",
	InstructionExpand:    "Desenvolva o texto com mais fundamentação",
	InstructionFormalize: "Reescreva em linguagem jurídica formal",
}

func rewritePrompt(req RewriteRequest) string {
	directive := req.Directive()
	if text, ok := instructionText[Instruction(directive)]; ok {
		directive = text
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s.\n\nTEXTO:\n%s\n", directive, req.Text)
	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		fmt.Fprintf(&b, "\nCONTEXTO DO DOCUMENTO:\n%s\n", ctx)
	}
	b.WriteString("\nResponda apenas com o texto reescrito, sem comentários.")
	return b.String()
}
