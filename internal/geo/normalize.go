package geo

import "strings"

// Common local abbreviations expanded before geocoding. Google resolves most
// of these on its own, but the expansions keep results deterministic and
// avoid same-acronym collisions outside Singapore.
var abbreviations = map[string]string{
	"nus":  "National University of Singapore",
	"ntu":  "Nanyang Technological University",
	"smu":  "Singapore Management University",
	"sutd": "Singapore University of Technology and Design",
	"sit":  "Singapore Institute of Technology",
	"suss": "Singapore University of Social Sciences",
	"cbd":  "Central Business District, Singapore",
	"mbs":  "Marina Bay Sands",
	"amk":  "Ang Mo Kio",
	"cck":  "Choa Chu Kang",
	"tpy":  "Toa Payoh",
	"jb":   "Johor Bahru",
}

// NormalizePlace expands known abbreviations and anchors the query to
// Singapore so geocoding never wanders to a same-named place elsewhere.
func NormalizePlace(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if full, ok := abbreviations[strings.ToLower(s)]; ok {
		s = full
	}
	if !strings.Contains(strings.ToLower(s), "singapore") {
		s += ", Singapore"
	}
	return s
}
