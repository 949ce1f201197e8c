package provider

import (
	"html"
	"regexp"
	"strings"
)

// FieldPatterns extracts quote fields from an HTML page. Each pattern must
// capture the value in its first group; nil patterns are skipped.
type FieldPatterns struct {
	Name      *regexp.Regexp
	Price     *regexp.Regexp
	PrevClose *regexp.Regexp
	Open      *regexp.Regexp
	High      *regexp.Regexp
	Low       *regexp.Regexp
	Volume    *regexp.Regexp

	// VolumeMultiplier converts the page's volume unit to shares
	VolumeMultiplier int64
}

// Extract scrapes a RawQuote out of body
func (p *FieldPatterns) Extract(body []byte) *RawQuote {
	q := &RawQuote{
		Name:      html.UnescapeString(firstMatch(p.Name, body)),
		Price:     ParsePrice(firstMatch(p.Price, body)),
		PrevClose: ParsePrice(firstMatch(p.PrevClose, body)),
		Open:      ParsePrice(firstMatch(p.Open, body)),
		High:      ParsePrice(firstMatch(p.High, body)),
		Low:       ParsePrice(firstMatch(p.Low, body)),
		Volume:    ParseVolume(firstMatch(p.Volume, body)),
	}
	if p.VolumeMultiplier > 1 {
		q.Volume *= p.VolumeMultiplier
	}
	return q
}

func firstMatch(re *regexp.Regexp, body []byte) string {
	if re == nil {
		return ""
	}
	m := re.FindSubmatch(body)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(string(m[1]))
}
