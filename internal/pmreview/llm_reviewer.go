package pmreview

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/feedforward/internal/llm"
	"github.com/feedforward/pkg/models"
)

// Completer is the slice of a language model the reviewer needs. Both
// llms.Model and aiconnectors.Connector satisfy it.
type Completer interface {
	Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error)
}

// LLMReviewer asks a language model whether a group is coherent.
type LLMReviewer struct {
	model    Completer
	limiter  *rate.Limiter
	prompt   *template.Template
	callOpts []llms.CallOption
}

// NewLLMReviewer limits calls to requestsPerMinute; zero or less means
// unlimited.
func NewLLMReviewer(model Completer, requestsPerMinute int, opts ...llms.CallOption) *LLMReviewer {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	return &LLMReviewer{
		model:    model,
		limiter:  limiter,
		prompt:   promptTemplate,
		callOpts: opts,
	}
}

const reviewPrompt = `You are a product manager triaging customer feedback before it becomes a ticket.

The following {{len .Contexts}} conversations were grouped under the issue signature "{{.Signature}}".
Decide whether they describe ONE issue that a single engineering story should fix.

{{range $i, $c := .Contexts -}}
## Conversation {{$c.ConversationID}}
{{if $c.UserIntent -}}
- User intent: {{$c.UserIntent}}
{{end -}}
{{if $c.Symptoms -}}
- Symptoms: {{join $c.Symptoms "; "}}
{{end -}}
{{if $c.AffectedFlow -}}
- Affected flow: {{$c.AffectedFlow}}
{{end -}}
{{if or $c.ProductArea $c.Component -}}
- Area: {{$c.ProductArea}}{{if $c.Component}} / {{$c.Component}}{{end}}
{{end -}}
{{if $c.Excerpt -}}
- Excerpt: "{{$c.Excerpt}}"
{{end}}
{{end -}}
Answer with a single JSON object and nothing else:
{
  "decision": "keep_together" | "split" | "reject",
  "reasoning": "one or two sentences",
  "sub_groups": [{"label": "short name", "conversation_ids": ["..."], "rationale": "why these belong together"}],
  "orphan_conversation_ids": ["..."]
}

Rules:
- keep_together: all conversations share the same root problem.
- split: conversations form distinct problems. Every conversation id must appear exactly once, either in one sub-group or in orphan_conversation_ids.
- reject: no meaningful common problem.
`

var promptTemplate = template.Must(template.New("pm_review").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(reviewPrompt))

func (r *LLMReviewer) render(signature string, contexts []models.ConversationContext) (string, error) {
	var buf bytes.Buffer
	err := r.prompt.Execute(&buf, struct {
		Signature string
		Contexts  []models.ConversationContext
	}{signature, contexts})
	return buf.String(), err
}

func (r *LLMReviewer) Review(ctx context.Context, signature string, contexts []models.ConversationContext) (*Decision, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("review rate limit: %w", err)
	}
	prompt, err := r.render(signature, contexts)
	if err != nil {
		return nil, fmt.Errorf("render review prompt: %w", err)
	}
	raw, err := r.model.Call(ctx, prompt, r.callOpts...)
	if err != nil {
		return nil, fmt.Errorf("review call: %w", err)
	}

	var d Decision
	if _, err := llm.DecodeResponse(raw, &d); err != nil {
		return nil, fmt.Errorf("parse review response: %w", err)
	}
	d.Kind = normalizeKind(string(d.Kind))
	switch d.Kind {
	case KeepTogether, Split, Reject:
	default:
		return nil, fmt.Errorf("parse review response: unknown decision %q", d.Kind)
	}
	d.Defaulted = false
	return &d, nil
}

func normalizeKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return Kind(s)
}
