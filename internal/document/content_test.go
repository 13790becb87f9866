package document

import (
	"encoding/json"
	"testing"

	"mocksync/internal/document/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalShape(t *testing.T) {
	raw, err := Marshal([]model.Tab{{ID: "tab-1", Name: "Home", Markup: "<p>x</p>", Style: "p{}"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tabs":[{"id":"tab-1","name":"Home","markup":"<p>x</p>","style":"p{}"}]}`, string(raw))

	raw, err = Marshal(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tabs":[]}`, string(raw))
}

func TestParseEmbeddedString(t *testing.T) {
	inner := `{"tabs":[{"id":"tab-1","name":"Home","markup":"<p>x</p>","style":""}]}`
	wrapped, err := json.Marshal(inner)
	require.NoError(t, err)

	tabs, err := Parse(wrapped)
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	assert.Equal(t, "<p>x</p>", tabs[0].Markup)
}

func TestParseRejectsBadContent(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":   "",
		"garbage": "{not json",
		"no tabs": `{"tabs":[]}`,
		"null":    "null",
		"no id":   `{"tabs":[{"name":"x"}]}`,
	} {
		_, err := Parse([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestParseDropsDuplicateIDs(t *testing.T) {
	raw := `{"tabs":[{"id":"tab-1","name":"Home","markup":"<p>a</p>"},{"id":"tab-2","name":"About"},{"id":"tab-1","name":"Copy","markup":"<p>b</p>"}]}`

	tabs, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Len(t, tabs, 2)
	assert.Equal(t, "Home", tabs[0].Name)
	assert.Equal(t, "<p>a</p>", tabs[0].Markup)
	assert.Equal(t, "tab-2", tabs[1].ID)
}

func TestLoadContentFallsBack(t *testing.T) {
	tabs := LoadContent("p1", []byte("{broken"))
	assert.Equal(t, DefaultTabs(), tabs)
}
