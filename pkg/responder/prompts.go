package responder

import (
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"join": strings.Join,
}

var replyTemplate = template.Must(template.New("reply").Funcs(funcs).Parse(`# Task: Generate dialog and actions for the character {{.Name}}.
About {{.Name}}:
{{.Bio}}
{{.Lore}}
{{- if .Adjectives}}
{{.Name}} is {{join .Adjectives ", "}}.
{{- end}}
{{- if .Recent}}

# Recent activity
{{range .Recent}}{{.}}
{{end}}
{{- end}}

# Instructions: Write the next message for {{.Name}} to the selected message below. Include an action, if appropriate.
From: {{.Author}}
Message: {{.Message}}

Also, provide an animation for {{.Name}} to use.
The animation must be one of the following:
{{join .Animations ", "}}

# Style
 - Keep messages short and sweet.
 - Stay in character as {{.Name}}

Response format should be formatted in a JSON block like this:
` + "```json" + `
{ "user": "{{.Name}}", "text": string, "action": "string", "animation": "one_of_available_animations" }
` + "```" + `
`))

var messageAnimationTemplate = template.Must(template.New("message-animation").Funcs(funcs).Parse(`# Task: Generate an animation for {{.Name}} based on the last message: {{.Message}}

{{.Name}}'s animation options.
Must be one of:
{{join .Animations ", "}}

# Instructions: Write the animation for {{.Name}}. It must be one of the options above.
If you choose to not animate, respond with idle. Never respond with null.
Return only the animation name.
`))

var thoughtTemplate = template.Must(template.New("thought").Funcs(funcs).Parse(`# Task: Generate a UNIQUE and SPONTANEOUS thought for {{.Name}}'s livestream

## Character Profile:
- **Name**: {{.Name}}
- **Traits**: {{join .Adjectives ", "}}
- **Background**: {{join .Lore ", "}}
- **About**: {{join .Bio ", "}}

## Context:
{{.Name}} is live streaming and wants to share a spontaneous thought with chat.

## Instructions:
1. Generate a COMPLETELY UNIQUE thought and avoid repetitive formats
2. Choose ONE approach: a sudden realization about {{.Name}}'s background, an observation about the stream or chat, a quirky idea, a surfaced memory, an unexpected topic change
3. Make it feel natural and unscripted
4. Keep it between 3-60 words
5. NO hashtags or emojis
6. Sometimes tell a story, sometimes ask a question

## Response Format:
Return only the thought, no explanations or formatting.
`))

var periodicAnimationTemplate = template.Must(template.New("periodic-animation").Funcs(funcs).Parse(`# Task: Generate a RANDOM animation for {{.Name}} during their stream

## Available Animations
{{range .Animations}}- {{.}}
{{end}}
# Instructions
1. Pick ONE animation from the list above at random
2. Return ONLY the exact name of the chosen animation
3. The animation must be exactly as written in the list above
4. DO NOT explain your choice

# Response Format
Return only the animation name, nothing else. No explanation, no JSON, no quotes.
`))

type promptData struct {
	Name       string
	Bio        string
	Lore       string
	Adjectives []string
	Recent     []string
	Author     string
	Message    string
	Animations []string
}

type thoughtData struct {
	Name       string
	Adjectives []string
	Lore       []string
	Bio        []string
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
