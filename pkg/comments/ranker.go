package comments

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/teslashibe/go-borp/pkg/inference"
	"github.com/teslashibe/go-borp/pkg/protocol"
	"github.com/teslashibe/go-borp/pkg/responder"
)

// NoneID is the ranker's answer when no comment deserves a reply.
const NoneID = "NONE"

// Ranker picks at most one comment from a batch.
type Ranker interface {
	Rank(ctx context.Context, batch []protocol.Comment) (protocol.Comment, bool, error)
}

// RankerFunc adapts a function to Ranker.
type RankerFunc func(ctx context.Context, batch []protocol.Comment) (protocol.Comment, bool, error)

// Rank implements Ranker.
func (f RankerFunc) Rank(ctx context.Context, batch []protocol.Comment) (protocol.Comment, bool, error) {
	return f(ctx, batch)
}

var selectTemplate = template.Must(template.New("select-comment").Parse(`# Task: Select the most appropriate comment for {{.Name}} to respond to.
About {{.Name}}:
{{.Bio}}

# INSTRUCTIONS: Analyze the following comments and select the most relevant one for {{.Name}} to respond to.
Consider these priorities:
1. Direct mentions or questions to {{.Name}}
2. Topics that align with {{.Name}}'s interests and expertise
3. Recent messages that haven't been responded to
4. Messages that would benefit from {{.Name}}'s unique perspective

Ignore spam or irrelevant messages.

{{range .Comments}}ID: {{.ID}}
From: {{.User}}
Message: {{.Message}}
---

{{end}}
# INSTRUCTIONS: Return only the ID of the single most appropriate comment to respond to. If no comments are suitable, return "NONE".
`))

// LLMRanker asks a model to choose the comment to answer.
type LLMRanker struct {
	llm     inference.Provider
	persona func() responder.Persona
	class   inference.ModelClass
}

// NewLLMRanker creates a ranker prompting llm as persona.
func NewLLMRanker(llm inference.Provider, persona func() responder.Persona) *LLMRanker {
	return &LLMRanker{llm: llm, persona: persona, class: inference.ModelMedium}
}

// Rank implements Ranker. An answer that is NONE or not an id from the
// batch selects nothing.
func (r *LLMRanker) Rank(ctx context.Context, batch []protocol.Comment) (protocol.Comment, bool, error) {
	p := r.persona()
	var b strings.Builder
	err := selectTemplate.Execute(&b, struct {
		Name     string
		Bio      string
		Comments []protocol.Comment
	}{p.Name, p.BioText(), batch})
	if err != nil {
		return protocol.Comment{}, false, fmt.Errorf("comments: render select prompt: %w", err)
	}

	raw, err := inference.Complete(ctx, r.llm, r.class, "", b.String())
	if err != nil {
		return protocol.Comment{}, false, fmt.Errorf("comments: rank: %w", err)
	}

	id := cleanID(raw)
	if id == "" || strings.EqualFold(id, NoneID) {
		return protocol.Comment{}, false, nil
	}
	for _, c := range batch {
		if c.ID == id {
			return c, true, nil
		}
	}
	return protocol.Comment{}, false, nil
}

// cleanID strips the decoration models like to add around an id.
func cleanID(raw string) string {
	s := strings.TrimSpace(raw)
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[len(fields)-1]
	}
	s = strings.TrimPrefix(s, "ID:")
	return strings.Trim(s, "\"'`.,;:*")
}
