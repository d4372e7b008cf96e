// Package license turns licence URLs into display badges.
package license

import (
	"regexp"
	"strings"
)

const ccIconBase = "https://mirrors.creativecommons.org/presskit/icons/"

// PDDLIcon is served from the dashboard's static assets.
const PDDLIcon = "/static/odc-pddl.svg"

// OGLIcon is the Open Government Licence symbol.
const OGLIcon = "https://www.nationalarchives.gov.uk/images/infoman/ogl-symbol-41px-retina-black.png"

type Badge struct {
	Icon    string `json:"icon"`
	Tooltip string `json:"tooltip"`
}

// Resolution is either a list of badges or, for unknown licences, a plain
// label. Label is also set for known families as alt text.
type Resolution struct {
	URL    string  `json:"url"`
	Badges []Badge `json:"badges,omitempty"`
	Label  string  `json:"label"`
}

// Known reports whether the licence was recognised.
func (r Resolution) Known() bool { return len(r.Badges) > 0 }

var (
	ccLicence = regexp.MustCompile(`creativecommons\.org/licenses/([a-z-]+)(?:/([0-9.]+))?`)
	ccZero    = regexp.MustCompile(`creativecommons\.org/publicdomain/zero(?:/([0-9.]+))?`)
	ccMark    = regexp.MustCompile(`creativecommons\.org/publicdomain/mark`)
	ogl       = regexp.MustCompile(`(?:nationalarchives\.gov\.uk/doc/open-government-licence|open-government-licence)(?:/version/([0-9]+))?`)
	pddl      = regexp.MustCompile(`opendatacommons\.org/licen[cs]es/pddl`)
)

var ccTerms = map[string]string{
	"by": "Attribution",
	"sa": "ShareAlike",
	"nc": "NonCommercial",
	"nd": "NoDerivatives",
}

func ccBadge(icon, tooltip string) Badge {
	return Badge{Icon: ccIconBase + icon + ".svg", Tooltip: tooltip}
}

// Resolve maps a licence URL onto badges. Unrecognised URLs fall back to
// name, or to the URL itself when name is empty.
func Resolve(url, name string) Resolution {
	u := strings.ToLower(strings.TrimSpace(url))
	res := Resolution{URL: url, Label: strings.TrimSpace(name)}
	if res.Label == "" {
		res.Label = url
	}
	if u == "" {
		return res
	}

	if m := ccLicence.FindStringSubmatch(u); m != nil {
		badges := []Badge{ccBadge("cc", "Creative Commons")}
		for _, part := range strings.Split(m[1], "-") {
			term, ok := ccTerms[part]
			if !ok {
				return res
			}
			badges = append(badges, ccBadge(part, term))
		}
		res.Badges = badges
		if name == "" {
			res.Label = "Creative Commons " + strings.ToUpper(m[1]) + versionSuffix(m[2])
		}
		return res
	}

	if m := ccZero.FindStringSubmatch(u); m != nil {
		res.Badges = []Badge{
			ccBadge("cc", "Creative Commons"),
			ccBadge("zero", "CC0 Public Domain Dedication"),
		}
		if name == "" {
			res.Label = "CC0" + versionSuffix(m[1])
		}
		return res
	}

	if ccMark.MatchString(u) {
		res.Badges = []Badge{ccBadge("pd", "Public Domain Mark")}
		if name == "" {
			res.Label = "Public Domain Mark"
		}
		return res
	}

	if m := ogl.FindStringSubmatch(u); m != nil {
		tooltip := "Open Government Licence" + versionSuffix(m[1])
		res.Badges = []Badge{{Icon: OGLIcon, Tooltip: tooltip}}
		if name == "" {
			res.Label = tooltip
		}
		return res
	}

	if pddl.MatchString(u) {
		const title = "Open Data Commons Public Domain Dedication and License"
		res.Badges = []Badge{{Icon: PDDLIcon, Tooltip: title}}
		if name == "" {
			res.Label = title
		}
		return res
	}
	return res
}

func versionSuffix(v string) string {
	if v == "" {
		return ""
	}
	return " v" + v
}
