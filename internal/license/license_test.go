package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func icons(r Resolution) []string {
	out := make([]string, len(r.Badges))
	for i, b := range r.Badges {
		out[i] = b.Icon
	}
	return out
}

func TestResolveCreativeCommons(t *testing.T) {
	tests := []struct {
		url   string
		icons []string
	}{
		{"https://creativecommons.org/licenses/by/4.0/", []string{"cc", "by"}},
		{"http://creativecommons.org/licenses/by-sa/4.0/", []string{"cc", "by", "sa"}},
		{"https://creativecommons.org/licenses/by-nc-nd/3.0/", []string{"cc", "by", "nc", "nd"}},
		{"https://creativecommons.org/publicdomain/zero/1.0/", []string{"cc", "zero"}},
		{"https://creativecommons.org/publicdomain/mark/1.0/", []string{"pd"}},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			res := Resolve(tt.url, "")
			require.True(t, res.Known())
			want := make([]string, len(tt.icons))
			for i, name := range tt.icons {
				want[i] = ccIconBase + name + ".svg"
			}
			assert.Equal(t, want, icons(res))
			assert.NotEmpty(t, res.Label)
		})
	}
}

func TestResolveCreativeCommonsLabel(t *testing.T) {
	res := Resolve("https://creativecommons.org/licenses/by-sa/4.0/", "")
	assert.Equal(t, "Creative Commons BY-SA v4.0", res.Label)
	assert.Equal(t, "ShareAlike", res.Badges[2].Tooltip)

	named := Resolve("https://creativecommons.org/licenses/by/4.0/", "CC BY 4.0")
	assert.Equal(t, "CC BY 4.0", named.Label)
}

func TestResolveOGL(t *testing.T) {
	res := Resolve("http://www.nationalarchives.gov.uk/doc/open-government-licence/version/3/", "")
	require.Len(t, res.Badges, 1)
	assert.Equal(t, OGLIcon, res.Badges[0].Icon)
	assert.Equal(t, "Open Government Licence v3", res.Badges[0].Tooltip)
}

func TestResolvePDDL(t *testing.T) {
	res := Resolve("https://opendatacommons.org/licenses/pddl/1-0/", "")
	require.True(t, res.Known())
	assert.Equal(t, PDDLIcon, res.Badges[0].Icon)
	assert.Contains(t, res.Label, "Public Domain Dedication")

	// A feed-supplied name keeps the badge and becomes the label.
	res = Resolve("http://opendatacommons.org/licences/pddl/", "ODC PDDL")
	require.True(t, res.Known())
	assert.Equal(t, "ODC PDDL", res.Label)
	assert.Contains(t, res.Badges[0].Tooltip, "Public Domain Dedication")
}

func TestResolveFallback(t *testing.T) {
	res := Resolve("https://example.org/my-licence", "Our Licence")
	assert.False(t, res.Known())
	assert.Equal(t, "Our Licence", res.Label)

	res = Resolve("https://example.org/my-licence", "")
	assert.Equal(t, "https://example.org/my-licence", res.Label)

	// Unknown CC element: no partial badge list.
	res = Resolve("https://creativecommons.org/licenses/sampling/1.0/", "Sampling")
	assert.False(t, res.Known())
	assert.Equal(t, "Sampling", res.Label)

	res = Resolve("", "")
	assert.False(t, res.Known())
	assert.Empty(t, res.Label)
}
