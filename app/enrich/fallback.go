package enrich

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxFallbackTags  = 5
	maxTags          = 8
	maxTagRunes      = 40
	maxTagWords      = 4
	minSentenceRunes = 20
	maxBulletRunes   = 240
)

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]*`)

// Fallback summarizes and tags without any external service. The output
// depends only on the request.
func Fallback(req Request) Result {
	return Result{
		Summary: FallbackSummary(req),
		Tags:    FallbackTags(req.Title),
		Method:  MethodFallback,
	}
}

// FallbackSummary uses the leading sentences of the snippet, or templated
// points derived from title keywords when there is no snippet.
func FallbackSummary(req Request) string {
	limit := clampBullets(req.Bullets)

	points := snippetPoints(req.Snippet, limit)
	if len(points) == 0 {
		points = templatedPoints(req.Title, limit)
	}
	return formatBullets(points)
}

func FallbackTags(title string) []string {
	matched := matchVocabulary(title, specialtyVocabulary, conditionVocabulary, procedureVocabulary)

	tags := make([]string, 0, maxFallbackTags)
	seen := make(map[string]struct{})
	for _, entry := range matched {
		if _, dup := seen[entry.Tag]; dup {
			continue
		}
		seen[entry.Tag] = struct{}{}
		tags = append(tags, entry.Tag)
		if len(tags) == maxFallbackTags {
			break
		}
	}

	if len(tags) == 0 {
		tags = append(tags, DefaultTag)
	}
	return tags
}

// NormalizeTags maps labels onto the vocabulary, keeps short free-form
// tokens otherwise, and drops duplicates.
func NormalizeTags(labels []string) []string {
	tags := make([]string, 0, len(labels))
	seen := make(map[string]struct{})
	for _, label := range labels {
		tag, _ := CanonicalTag(label)
		if tag == "" || utf8.RuneCountInString(tag) > maxTagRunes || len(strings.Fields(tag)) > maxTagWords {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

func snippetPoints(snippet string, limit int) []string {
	snippet = strings.Join(strings.Fields(snippet), " ")
	if snippet == "" {
		return nil
	}

	points := make([]string, 0, limit)
	for _, sentence := range sentenceRe.FindAllString(snippet, -1) {
		sentence = strings.TrimSpace(sentence)
		if utf8.RuneCountInString(sentence) < minSentenceRunes {
			continue
		}
		points = append(points, truncatePoint(sentence))
		if len(points) == limit {
			break
		}
	}

	if len(points) == 0 {
		points = append(points, truncatePoint(snippet))
	}
	return points
}

func templatedPoints(title string, limit int) []string {
	points := make([]string, 0, limit)
	seen := make(map[string]struct{})

	add := func(point string) {
		if point == "" || len(points) == limit {
			return
		}
		if _, dup := seen[point]; dup {
			return
		}
		seen[point] = struct{}{}
		points = append(points, point)
	}

	for _, entry := range matchVocabulary(title, specialtyVocabulary, conditionVocabulary, procedureVocabulary) {
		add(entry.Summary)
	}
	for _, point := range genericSummaryPoints {
		add(point)
	}
	return points
}

func truncatePoint(s string) string {
	if utf8.RuneCountInString(s) <= maxBulletRunes {
		return s
	}
	cut := string([]rune(s)[:maxBulletRunes])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

func formatBullets(points []string) string {
	lines := make([]string, len(points))
	for i, p := range points {
		lines[i] = bulletPrefix + p
	}
	return strings.Join(lines, "\n")
}
