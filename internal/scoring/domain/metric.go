package domain

import (
	"strconv"
	"strings"
)

// Metric names one of the ICE inputs encoded in task labels.
type Metric string

const (
	MetricImpact     Metric = "Impact"
	MetricConfidence Metric = "Confidence"
	MetricEase       Metric = "Ease"
)

// AllMetrics lists the metrics a task needs to be scored.
var AllMetrics = []Metric{MetricImpact, MetricConfidence, MetricEase}

// String returns the metric name.
func (m Metric) String() string {
	return string(m)
}

// ShortName returns the single-letter alias accepted in labels (I, C, E).
func (m Metric) ShortName() string {
	if m == "" {
		return ""
	}
	return string(m)[:1]
}

// Metrics is a complete ICE triple.
type Metrics struct {
	Impact     int
	Confidence int
	Ease       int
}

// Score derives the ICE score for the triple.
func (m Metrics) Score() Score {
	return DeriveScore(m.Impact, m.Confidence, m.Ease)
}

// ExtractMetric reads a metric value from a label set. Both "Impact-7" and
// "I-7" are accepted; when both forms are present the long form wins. The
// prefix before the first hyphen is compared case-insensitively. A missing
// label or a malformed value reports false.
func ExtractMetric(labels []string, metric Metric) (int, bool) {
	var long, short string
	var hasLong, hasShort bool

	for _, label := range labels {
		prefix, value, ok := strings.Cut(label, "-")
		if !ok {
			continue
		}
		switch {
		case !hasLong && strings.EqualFold(prefix, metric.String()):
			long, hasLong = value, true
		case !hasShort && strings.EqualFold(prefix, metric.ShortName()):
			short, hasShort = value, true
		}
	}

	raw := short
	if hasLong {
		raw = long
	} else if !hasShort {
		return 0, false
	}

	return parseMetricValue(raw)
}

// ExtractMetrics reads all three ICE metrics. It reports false when any of
// them is missing or malformed.
func ExtractMetrics(labels []string) (Metrics, bool) {
	impact, ok := ExtractMetric(labels, MetricImpact)
	if !ok {
		return Metrics{}, false
	}
	confidence, ok := ExtractMetric(labels, MetricConfidence)
	if !ok {
		return Metrics{}, false
	}
	ease, ok := ExtractMetric(labels, MetricEase)
	if !ok {
		return Metrics{}, false
	}
	return Metrics{Impact: impact, Confidence: confidence, Ease: ease}, true
}

// parseMetricValue accepts positive base-10 integers only.
func parseMetricValue(raw string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
