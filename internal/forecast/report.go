package forecast

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Histogram buckets forecast scores into equal-width bins, one series per group.
type Histogram struct {
	Edges  []float64         `json:"edges"`
	Series []HistogramSeries `json:"series"`
}

// HistogramSeries holds the bin counts of one group.
type HistogramSeries struct {
	Group  Group  `json:"group"`
	Label  string `json:"label"`
	Color  string `json:"color"`
	Counts []int  `json:"counts"`
}

// BuildHistogram spreads scores over bins equal-width buckets spanning the
// observed range. Series come in ascending group order.
func BuildHistogram(scores []float64, groups []Group, bins int) Histogram {
	if bins <= 0 {
		bins = 20
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range scores {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if len(scores) == 0 {
		lo, hi = 0, 0
	}
	if hi == lo {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)
	h := Histogram{Edges: make([]float64, bins+1)}
	for i := range h.Edges {
		h.Edges[i] = lo + float64(i)*width
	}
	h.Edges[bins] = hi

	index := map[Group]int{}
	for _, g := range []Group{RiskZone, ElevatedRiskZone, WellBeingZone} {
		index[g] = len(h.Series)
		h.Series = append(h.Series, HistogramSeries{Group: g, Label: g.Label(), Color: g.Color(), Counts: make([]int, bins)})
	}
	for i, s := range scores {
		b := int((s - lo) / width)
		if b >= bins {
			b = bins - 1
		}
		if b < 0 {
			b = 0
		}
		h.Series[index[groups[i]]].Counts[b]++
	}
	return h
}

// GroupCounts returns how many rows landed in each group.
func (r *Result) GroupCounts() map[Group]int {
	out := map[Group]int{}
	for _, g := range r.Groups {
		out[g]++
	}
	return out
}

// RecommendationsText renders one block per group in ReportOrder: the label
// and a colon, one "- " line per recommendation, then a blank line.
func RecommendationsText() string {
	var b strings.Builder
	for _, g := range ReportOrder {
		info := g.Info()
		b.WriteString(info.Label + ":\n")
		for _, rec := range info.Recommendations {
			b.WriteString("- " + rec + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RecommendationsText returns the grouped recommendations artifact.
func (r *Result) RecommendationsText() string { return RecommendationsText() }

// CSV serializes the annotated table in its original row order.
func (r *Result) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Table.WriteCSV(&buf); err != nil {
		return nil, fmt.Errorf("write results csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RankedRow is one line of the forecast detail view.
type RankedRow struct {
	Row            int     `json:"row"`
	Target         string  `json:"target"`
	Forecast       float64 `json:"forecast"`
	Group          Group   `json:"group"`
	Recommendation string  `json:"recommendation"`
}

// Ranked lists rows by descending forecast; equal scores keep table order.
// Imputed target cells show the value the models were trained on.
func (r *Result) Ranked() []RankedRow {
	col, _ := r.Table.Column(r.Target)
	out := make([]RankedRow, len(r.Scores))
	for i, s := range r.Scores {
		out[i] = RankedRow{
			Row:            i,
			Forecast:       s,
			Group:          r.Groups[i],
			Recommendation: r.Groups[i].Recommendation(),
		}
		switch {
		case col != nil && !col.IsNull(i):
			out[i].Target = col.Text(i)
		case i < len(r.Targets):
			out[i].Target = strconv.FormatFloat(r.Targets[i], 'f', 2, 64)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Forecast > out[b].Forecast })
	return out
}

// RecommendationBlock is one group section of a recommendations file.
type RecommendationBlock struct {
	Group Group
	Label string
	Items []string
}

// ParseRecommendations reads a file produced by RecommendationsText.
func ParseRecommendations(r io.Reader) ([]RecommendationBlock, error) {
	var out []RecommendationBlock
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), " \t\r")
		switch {
		case text == "":
			continue
		case strings.HasPrefix(text, "- "):
			if len(out) == 0 {
				return nil, fmt.Errorf("line %d: item before any group header", line)
			}
			last := &out[len(out)-1]
			last.Items = append(last.Items, strings.TrimPrefix(text, "- "))
		case strings.HasSuffix(text, ":"):
			label := strings.TrimSuffix(text, ":")
			g, ok := GroupByLabel(label)
			if !ok {
				return nil, fmt.Errorf("line %d: unknown group %q", line, label)
			}
			out = append(out, RecommendationBlock{Group: g, Label: label})
		default:
			return nil, fmt.Errorf("line %d: unexpected text %q", line, text)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read recommendations: %w", err)
	}
	return out, nil
}
