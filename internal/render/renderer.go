// Package render personalizes campaign templates at staging time. Subject
// and body are Liquid templates; the queue stores the fully rendered
// result so dispatch never touches template state.
package render

import (
	"fmt"

	"github.com/osteele/liquid"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Renderer renders Liquid templates against per-contact bindings.
type Renderer struct {
	engine *liquid.Engine
}

// New builds a renderer with the default Liquid tag set.
func New() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Render evaluates tmpl with the given bindings.
func (r *Renderer) Render(tmpl string, bindings map[string]any) (string, error) {
	out, err := r.engine.ParseAndRenderString(tmpl, bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// ContactBindings exposes the contact fields templates may reference.
func ContactBindings(c *domain.Contact) map[string]any {
	return map[string]any{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"email":      c.Email,
	}
}
