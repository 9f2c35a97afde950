package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownHTML(t *testing.T) {
	m := NewMarkdown()

	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "emphasis",
			input:    "this is **important**",
			contains: []string{"<strong>important</strong>"},
		},
		{
			name:     "list",
			input:    "- breathe\n- rest",
			contains: []string{"<ul>", "<li>breathe</li>", "<li>rest</li>"},
		},
		{
			name:     "hard wraps",
			input:    "line one\nline two",
			contains: []string{"line one<br>"},
		},
		{
			name:     "strikethrough",
			input:    "~~gone~~",
			contains: []string{"<del>gone</del>"},
		},
		{
			name:     "raw html is dropped",
			input:    "hi <script>alert(1)</script>",
			excludes: []string{"<script>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := m.HTML(tt.input)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, bad := range tt.excludes {
				assert.False(t, strings.Contains(out, bad), "output %q contains %q", out, bad)
			}
		})
	}
}
