package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang-market-insight/internal/analytics"
	"golang-market-insight/internal/entity"
	"golang-market-insight/internal/executor/dto"
)

const absentMarker = "absent"

// BuildInsightPrompt renders a deterministic prompt for result: metric names are
// sorted and numbers use a fixed format, so equal results give equal bytes.
// It returns the prompt and its sha256 hex digest.
func BuildInsightPrompt(result *entity.AnalyticsResult) (string, string) {
	metrics := result.MetricSet()

	var b strings.Builder
	fmt.Fprintf(&b, "You are a market analyst. Review the technical metrics of %s for the period %s to %s.\n\n",
		result.Symbol,
		result.PeriodStart.UTC().Format(time.RFC3339),
		result.PeriodEnd.UTC().Format(time.RFC3339),
	)
	b.WriteString("Metrics (\"absent\" means there was not enough history to compute it):\n")
	for _, name := range metrics.Names() {
		fmt.Fprintf(&b, "- %s: %s\n", name, formatMetric(metrics, name))
	}
	fmt.Fprintf(&b, "\nComposite signal score: %d (positive is bullish, negative is bearish)\n", result.Score)
	fmt.Fprintf(&b, "Daily bars in window: %d\n\n", result.DataPoints)
	b.WriteString(`Do not treat absent metrics as zero. Respond with JSON only:

{
  "action": "buy | hold | sell",
  "confidence": {0.0 - 1.0},
  "explanation": "{at most one paragraph}"
}`)

	prompt := b.String()
	sum := sha256.Sum256([]byte(prompt))
	return prompt, hex.EncodeToString(sum[:])
}

func formatMetric(m entity.MetricSet, name string) string {
	v, ok := m.Get(name)
	if !ok {
		return absentMarker
	}
	return fmt.Sprintf("%.4f", v)
}

// BuildFallbackInsight derives a recommendation from the score alone. It is
// used whenever no provider answer is available.
func BuildFallbackInsight(result *entity.AnalyticsResult) dto.InsightRecommendation {
	metrics := result.MetricSet()

	action := "hold"
	switch {
	case result.Score >= 2:
		action = "buy"
	case result.Score <= -2:
		action = "sell"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s to %s: composite score %d suggests %s.",
		result.Symbol,
		result.PeriodStart.UTC().Format(time.DateOnly),
		result.PeriodEnd.UTC().Format(time.DateOnly),
		result.Score,
		action,
	)
	if price, ok := metrics.Get(analytics.MetricPriceCurrent); ok {
		fmt.Fprintf(&b, " Last close %.4f.", price)
	}
	for _, name := range metrics.Names() {
		if rsi, ok := metrics.Get(name); ok && strings.HasPrefix(name, analytics.MetricRSIPrefix) {
			fmt.Fprintf(&b, " %s %.2f.", strings.ToUpper(name), rsi)
		}
	}
	if target, ok := metrics.Get(analytics.MetricTargetConservative); ok {
		fmt.Fprintf(&b, " Conservative target %.4f.", target)
	}
	if absent := metrics.Absent(); len(absent) > 0 {
		fmt.Fprintf(&b, " Not enough history for: %s.", strings.Join(absent, ", "))
	}

	confidence := float64(min(abs(result.Score), 5)) / 10
	return dto.InsightRecommendation{
		Action:      action,
		Confidence:  confidence,
		Explanation: b.String(),
	}
}

// ParseRecommendation decodes a provider answer. ok is false when the text is
// not the requested JSON object.
func ParseRecommendation(text string) (dto.InsightRecommendation, bool) {
	raw := strings.Trim(strings.TrimSpace(text), "`json\n`")

	var rec dto.InsightRecommendation
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return dto.InsightRecommendation{}, false
	}
	rec.Action = strings.ToLower(strings.TrimSpace(rec.Action))
	if rec.Explanation == "" {
		return dto.InsightRecommendation{}, false
	}
	return rec, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
