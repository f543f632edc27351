// Package mailer renders and sends alert emails. Templates are Liquid,
// rendered once per job by the worker pool; transport is AWS SES with a
// log-only fallback for deployments without credentials.
package mailer

import (
	"fmt"
	"sync"

	"github.com/osteele/liquid"
)

// emailTemplate pairs a subject line and an HTML body, both Liquid.
type emailTemplate struct {
	subject string
	html    string
}

var templates = map[string]emailTemplate{
	"budget_warning": {
		subject: "{{ title | default: \"Budget warning\" }}",
		html: `<html><body>
<h2>{{ title }}</h2>
<p>{{ message }}</p>
<p>Current utilization: <strong>{{ utilization | round }}%</strong> (threshold: {{ tier }}%).</p>
<p>Budget period ends {{ period_end }}.</p>
<p><a href="{{ dashboard_url | default: "https://app.example.com/budgets" }}/{{ budget_id }}">Review this budget</a></p>
</body></html>`,
	},
	"budget_exceeded": {
		subject: "Budget exceeded{% if over_amount and over_amount > 0 %} by ${{ over_amount }}{% endif %}",
		html: `<html><body>
<h2>{{ title }}</h2>
<p>{{ message }}</p>
<p>Utilization: <strong>{{ utilization | round }}%</strong>.</p>
<p><a href="{{ dashboard_url | default: "https://app.example.com/budgets" }}/{{ budget_id }}">Review this budget</a></p>
</body></html>`,
	},
	"category_overspend": {
		subject: "Category overspent by ${{ over_amount }}",
		html: `<html><body>
<h2>{{ title }}</h2>
<p>{{ message }}</p>
<p><a href="{{ dashboard_url | default: "https://app.example.com/budgets" }}/{{ budget_id }}">Adjust your allocations</a></p>
</body></html>`,
	},
}

// Renderer renders named alert templates with Liquid. Parsed templates are
// cached; the engine is safe for concurrent use.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map
}

// NewRenderer creates a renderer with the built-in alert templates.
func NewRenderer() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

type parsed struct {
	subject *liquid.Template
	html    *liquid.Template
}

// Render produces the subject and HTML body for a template name. Unknown
// names are a hard error: job payloads only ever carry names produced by
// the dispatcher's kind switch.
func (r *Renderer) Render(name string, data map[string]any) (subject, html string, err error) {
	p, err := r.parse(name)
	if err != nil {
		return "", "", err
	}

	bindings := map[string]any(data)
	subjBytes, err := p.subject.Render(bindings)
	if err != nil {
		return "", "", fmt.Errorf("render subject %q: %w", name, err)
	}
	bodyBytes, err := p.html.Render(bindings)
	if err != nil {
		return "", "", fmt.Errorf("render body %q: %w", name, err)
	}
	return string(subjBytes), string(bodyBytes), nil
}

func (r *Renderer) parse(name string) (*parsed, error) {
	if cached, ok := r.cache.Load(name); ok {
		return cached.(*parsed), nil
	}

	tpl, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", name)
	}
	subject, err := r.engine.ParseString(tpl.subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject %q: %w", name, err)
	}
	html, err := r.engine.ParseString(tpl.html)
	if err != nil {
		return nil, fmt.Errorf("parse body %q: %w", name, err)
	}

	p := &parsed{subject: subject, html: html}
	r.cache.Store(name, p)
	return p, nil
}
