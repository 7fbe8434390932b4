package utils

import (
	"strings"

	"github.com/Aashish23092/invoice-flow/dto"
)

// TemplateScore sums the word counts of every detection keyword found in lowerText.
func TemplateScore(lowerText string, tmpl dto.TemplateHint) int {
	score := 0
	for _, kw := range tmpl.DetectionKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(lowerText, kw) {
			score += len(strings.Fields(kw))
		}
	}
	return score
}

// DetectTemplate returns the best scoring template. Ties keep the earliest
// template in slice order and a score of zero never matches.
func DetectTemplate(text string, templates []dto.TemplateHint) (dto.TemplateHint, bool) {
	lower := strings.ToLower(text)
	best, bestScore := -1, 0
	for i, tmpl := range templates {
		if score := TemplateScore(lower, tmpl); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return dto.TemplateHint{}, false
	}
	return templates[best], true
}

// CandidateTemplates narrows the catalog to the vendor's own templates when it
// has any. Vendor spellings are compared with SameVendor.
func CandidateTemplates(templates []dto.TemplateHint, vendor string) []dto.TemplateHint {
	vendor = strings.TrimSpace(vendor)
	if vendor == "" {
		return templates
	}
	var own []dto.TemplateHint
	for _, tmpl := range templates {
		if tmpl.Vendor != "" && SameVendor(tmpl.Vendor, vendor) {
			own = append(own, tmpl)
		}
	}
	if len(own) == 0 {
		return templates
	}
	return own
}
