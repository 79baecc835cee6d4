package market

import (
	"regexp"
	"sort"
	"strings"
)

// featurePatterns maps a normalised feature tag to the phrases that signal it
// in a product title or listing extension
var featurePatterns = map[string]*regexp.Regexp{
	"5g":          regexp.MustCompile(`\b5g\b`),
	"foldable":    regexp.MustCompile(`\b(fold|flip|foldable)\d*\b`),
	"ultra":       regexp.MustCompile(`\bultra\b`),
	"pro":         regexp.MustCompile(`\bpro\b`),
	"camera":      regexp.MustCompile(`\b(\d{2,3}\s?mp|camera|zoom|telephoto)\b`),
	"stylus":      regexp.MustCompile(`\b(s\s?pen|stylus)\b`),
	"storage":     regexp.MustCompile(`\b(256|512)\s?gb\b|\b1\s?tb\b`),
	"battery":     regexp.MustCompile(`\b(\d{4}\s?mah|battery|fast charging)\b`),
	"gaming":      regexp.MustCompile(`\b(gaming|120\s?hz|144\s?hz|snapdragon)\b`),
	"refurbished": regexp.MustCompile(`\b(refurbished|renewed|pre-owned|used)\b`),
	"unlocked":    regexp.MustCompile(`\bunlocked\b`),
	"budget":      regexp.MustCompile(`\b(galaxy a\d{2}|a\d{2}e?|budget|fe)\b`),
	"business":    regexp.MustCompile(`\b(enterprise|business|knox|dex)\b`),
	"flagship":    regexp.MustCompile(`\b(galaxy s\d{2}|s\d{2}\+?|flagship|z fold)\b`),
}

// ExtractFeatures returns the sorted feature tags found in the given texts
func ExtractFeatures(texts ...string) []string {
	text := strings.ToLower(strings.Join(texts, " "))

	var features []string
	for tag, re := range featurePatterns {
		if re.MatchString(text) {
			features = append(features, tag)
		}
	}
	sort.Strings(features)
	return features
}
