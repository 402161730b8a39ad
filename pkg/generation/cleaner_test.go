package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "python fence",
			raw:  "```python\nimport slicer\nprint('hi')\n```",
			want: "import slicer\nprint('hi')",
		},
		{
			name: "generic fence",
			raw:  "```\nx = 1\n```\n",
			want: "x = 1",
		},
		{
			name: "short py tag",
			raw:  "```py\nprint('hi')\n```",
			want: "print('hi')",
		},
		{
			name: "capitalised tag",
			raw:  "```Python\nprint('hi')\n```",
			want: "print('hi')",
		},
		{
			name: "versioned tag",
			raw:  "```python3\nprint('hi')\n```",
			want: "print('hi')",
		},
		{
			name: "tag with attributes",
			raw:  "``` python title=\"volume.py\"\nx = 1\n```",
			want: "x = 1",
		},
		{
			name: "fence without closer",
			raw:  "```python\nx = 1",
			want: "x = 1",
		},
		{
			name: "explanatory comments dropped",
			raw:  "# Here is the implementation\n# This solution works\n# compute volume\nx = 1",
			want: "# compute volume\nx = 1",
		},
		{
			name: "plain code untouched",
			raw:  "  import slicer\nx = 1  ",
			want: "import slicer\nx = 1",
		},
		{
			name: "empty",
			raw:  "   ",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanOutput(tt.raw))
		})
	}
}

func TestTooShort(t *testing.T) {
	assert.True(t, TooShort("", 50))
	assert.True(t, TooShort("   \n ", 50))
	assert.True(t, TooShort("print(1)", 50))
	assert.False(t, TooShort(strings.Repeat("x", 50), 50))
	assert.True(t, TooShort(strings.Repeat("x", 49), 0))
}
