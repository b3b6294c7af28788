package followup

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// PromptContext is substituted into the follow-up prompt as-is.
type PromptContext struct {
	RecipientName      string
	RecipientEmail     string
	LastSubject        string
	LastSnippet        string
	DaysSinceLastReply int
}

var promptTemplate = template.Must(template.New("followup").Parse(
	`You are writing a short, professional follow-up email on behalf of a salesperson.

Recipient name: {{.RecipientName}}
Recipient email: {{.RecipientEmail}}
Previous subject: {{.LastSubject}}
Last message excerpt: {{.LastSnippet}}
Days since last reply: {{.DaysSinceLastReply}}

Write a polite follow-up that references the previous conversation and asks
a clear, low-pressure question. Keep it under 120 words.

Respond in exactly this format:
Subject: <subject line>

<email body>
`))

// RenderPrompt fills the fixed follow-up template. Values are not escaped.
func RenderPrompt(pc PromptContext) (string, error) {
	var b strings.Builder
	if err := promptTemplate.Execute(&b, pc); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return b.String(), nil
}

var (
	subjectLineRE    = regexp.MustCompile(`(?im)^[ \t]*subject:[ \t]*(.*?)[ \t]*$`)
	paragraphBreakRE = regexp.MustCompile(`\n[ \t]*\n`)
)

// ParseResponse reads a "Subject: ...\n\n<body>" completion. The body is
// everything after the first blank-line-delimited paragraph; either value
// is empty when the text does not follow the convention.
func ParseResponse(text string) (subject, body string) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if m := subjectLineRE.FindStringSubmatch(text); m != nil {
		subject = strings.TrimSpace(m[1])
	}
	if parts := paragraphBreakRE.Split(text, 2); len(parts) == 2 {
		body = strings.TrimSpace(parts[1])
	}
	return subject, body
}

const fallbackParagraph = "I wanted to follow up on %s and see if you had any questions or needed anything else from me. " +
	"I'd be happy to set up a quick call if that would be helpful."

// Fallback is the deterministic draft used when generation is unavailable.
func Fallback(pc PromptContext) (subject, body string) {
	greeting := "Hi there,"
	if name := strings.TrimSpace(pc.RecipientName); name != "" {
		greeting = "Hi " + name + ","
	}
	subject = "Re: " + pc.LastSubject
	body = greeting + "\n\n" +
		fmt.Sprintf(fallbackParagraph, pc.LastSubject) + "\n\n" +
		"Looking forward to hearing from you.\n\nBest regards"
	return subject, body
}
