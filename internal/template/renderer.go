package template

import (
	"regexp"
	"strings"

	"github.com/acadnotify/notify-engine/internal/domain"
)

// genericTemplate backs every kind without a specific template. Rendering
// never fails the pipeline: anything unmapped or unloadable lands here.
const genericTemplate = `Dear recipient,

{{subject}}

{{body}}

This is an automated message from the graduate school administration.`

var kindTemplates = map[domain.Kind]string{
	domain.KindRegistrationApproved: `Dear {{studentName}},

Your doctoral registration for {{program}} has been approved.

Registration number: {{registrationNumber}}

This is an automated message from the graduate school administration.`,

	domain.KindRegistrationRejected: `Dear {{studentName}},

Your doctoral registration for {{program}} was not approved.

Reason: {{reason}}

This is an automated message from the graduate school administration.`,

	domain.KindDefenseScheduled: `Dear {{studentName}},

Your thesis defense "{{thesisTitle}}" has been scheduled.

Date: {{defenseDate}}
Room: {{room}}

This is an automated message from the graduate school administration.`,

	domain.KindDefenseResult: `Dear {{studentName}},

The result of your thesis defense is available: {{result}}

This is an automated message from the graduate school administration.`,

	domain.KindDeadlineReminder: `Dear {{studentName}},

This is a reminder that {{deadlineName}} is due on {{deadlineDate}}.

This is an automated message from the graduate school administration.`,

	domain.KindAccountCreated: `Dear {{studentName}},

An account has been created for you ({{recipient}}).

This is an automated message from the graduate school administration.`,
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Renderer maps a notification kind to a template and interpolates its
// variables.
type Renderer struct {
	templates map[domain.Kind]string
	fallback  string
}

func NewRenderer() *Renderer {
	return &Renderer{
		templates: kindTemplates,
		fallback:  genericTemplate,
	}
}

// NewRendererWithTemplates builds a renderer over a caller-supplied table,
// used in tests and when templates come from an external resource.
func NewRendererWithTemplates(templates map[domain.Kind]string, fallback string) *Renderer {
	if templates == nil {
		templates = map[domain.Kind]string{}
	}
	if strings.TrimSpace(fallback) == "" {
		fallback = genericTemplate
	}

	return &Renderer{
		templates: templates,
		fallback:  fallback,
	}
}

// Render produces the notification body. Unmapped kinds and empty templates
// resolve to the generic fallback; missing variables substitute as empty
// strings. It never returns an error.
func (r *Renderer) Render(n *domain.Notification) string {
	if r == nil || n == nil {
		return ""
	}

	tpl, ok := r.templates[n.Kind]
	if !ok || strings.TrimSpace(tpl) == "" {
		tpl = r.fallback
	}

	vars := make(map[string]string, len(n.Attributes)+3)
	for key, value := range n.Attributes {
		vars[key] = value
	}

	// Implicit variables, never overwriting caller-supplied ones.
	if _, exists := vars["recipient"]; !exists {
		vars["recipient"] = n.Recipient
	}
	if _, exists := vars["subject"]; !exists {
		vars["subject"] = n.Subject
	}
	if _, exists := vars["body"]; !exists {
		vars["body"] = n.PlainBody
	}

	return Interpolate(tpl, vars)
}

// Interpolate replaces {{name}} placeholders with vars[name], or the empty
// string when the key (or the whole map) is absent.
func Interpolate(tpl string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tpl, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[name]
	})
}
