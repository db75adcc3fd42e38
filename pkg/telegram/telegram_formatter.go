package telegram

import (
	"fmt"
	"strings"
	"time"

	"golang-market-insight/internal/entity"
)

// MaxMessageLength leaves headroom below Telegram's 4096 character cap.
const MaxMessageLength = 4090

// FormatRunFailureMessage renders a failed job run for operators.
func FormatRunFailureMessage(run *entity.JobRun) string {
	var sb strings.Builder
	sb.WriteString("🚨 *Pipeline run failed* 🚨\n\n")
	sb.WriteString(fmt.Sprintf("📈 *Symbol:* %s\n", escape(run.JobID)))
	sb.WriteString(fmt.Sprintf("🗓 *Period:* %s → %s\n", run.PeriodStart.UTC().Format(time.RFC3339), run.PeriodEnd.UTC().Format(time.RFC3339)))
	if run.FailureReason != "" {
		sb.WriteString(fmt.Sprintf("⚠️ *Reason:* %s\n", run.FailureReason))
	}
	sb.WriteString(fmt.Sprintf("🔁 *Attempts:* %d\n", run.AttemptCount))
	if run.LastError.Valid {
		sb.WriteString(fmt.Sprintf("💬 *Error:* `%s`\n", strings.ReplaceAll(run.LastError.String, "`", "'")))
	}
	return sb.String()
}

// FormatInsightMessage renders a generated insight.
func FormatInsightMessage(insight *entity.Insight, score int) string {
	var actionIcon string
	switch strings.ToLower(insight.Action) {
	case "buy":
		actionIcon = "🟢"
	case "sell":
		actionIcon = "🔴"
	default:
		actionIcon = "🟡"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 *%s insight* (%s)\n\n", escape(insight.Symbol), insight.PeriodStart.UTC().Format(time.DateOnly)))
	if insight.Action != "" {
		sb.WriteString(fmt.Sprintf("%s *Action:* %s\n", actionIcon, strings.ToUpper(insight.Action)))
		sb.WriteString(fmt.Sprintf("🎯 *Confidence:* %.0f%%\n", insight.Confidence*100))
	}
	sb.WriteString(fmt.Sprintf("🧮 *Score:* %d\n", score))
	sb.WriteString(fmt.Sprintf("💬 %s\n", escape(insight.Text)))
	if insight.Source == entity.InsightSourceFallback {
		sb.WriteString("\n_Generated from template, language model unavailable._")
	}
	return sb.String()
}

// SplitMessage breaks text on line boundaries into parts of at most maxLen bytes.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > maxLen {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			parts = append(parts, line[:maxLen])
			line = line[maxLen:]
		}
		if current.Len()+len(line) > maxLen {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func escape(s string) string {
	r := strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[")
	return r.Replace(s)
}
