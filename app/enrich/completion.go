package enrich

import (
	"encoding/json"
	"regexp"
	"strings"
)

var bulletMarkerRe = regexp.MustCompile(`^\s*(?:[-*•·]|\d+[.)])\s*`)

type completionPayload struct {
	Summary json.RawMessage `json:"summary"`
	Tags    json.RawMessage `json:"tags"`
}

// parseCompletion turns a model reply into a Result. Replies with fewer
// than MinBullets points are malformed; extra points are dropped.
func parseCompletion(content string, bullets int) (Result, error) {
	content = stripCodeFence(content)
	if content == "" {
		return Result{}, newProviderError(KindMalformed, "empty completion")
	}

	var payload completionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return Result{}, newProviderError(KindMalformed, "completion is not JSON: %v", err)
	}

	points := cleanPoints(decodeStrings(payload.Summary, "\n"))
	if len(points) < MinBullets {
		return Result{}, newProviderError(KindMalformed, "expected at least %d summary points, got %d", MinBullets, len(points))
	}
	if limit := clampBullets(bullets); len(points) > limit {
		points = points[:limit]
	}

	return Result{
		Summary: formatBullets(points),
		Tags:    NormalizeTags(decodeStrings(payload.Tags, ",")),
		Method:  MethodAI,
	}, nil
}

// decodeStrings accepts either a JSON array of strings or a single string
// split on sep.
func decodeStrings(raw json.RawMessage, sep string) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.Split(single, sep)
	}
	return nil
}

func cleanPoints(lines []string) []string {
	points := make([]string, 0, len(lines))
	for _, line := range lines {
		line = bulletMarkerRe.ReplaceAllString(line, "")
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		points = append(points, truncatePoint(line))
	}
	return points
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
