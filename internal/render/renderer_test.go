package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
)

func TestRenderPersonalizes(t *testing.T) {
	r := New()
	out, err := r.Render("Hi {{ first_name }}, welcome!", map[string]any{"first_name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, welcome!", out)
}

func TestRenderMissingVarIsEmpty(t *testing.T) {
	r := New()
	out, err := r.Render("Hi {{ first_name }}!", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Hi !", out)
}

func TestRenderConditional(t *testing.T) {
	r := New()
	tmpl := `{% if first_name != "" %}Hi {{ first_name }}{% else %}Hi there{% endif %}`

	out, err := r.Render(tmpl, ContactBindings(&domain.Contact{FirstName: "Ada"}))
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada", out)

	out, err = r.Render(tmpl, ContactBindings(&domain.Contact{}))
	require.NoError(t, err)
	assert.Equal(t, "Hi there", out)
}

func TestRenderBadTemplate(t *testing.T) {
	r := New()
	_, err := r.Render("{% if %}", nil)
	assert.Error(t, err)
}
