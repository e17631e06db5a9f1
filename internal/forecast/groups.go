package forecast

import (
	"fmt"
	"strings"
)

// Group is the risk band a forecast score falls into.
type Group int

const (
	RiskZone Group = iota
	ElevatedRiskZone
	WellBeingZone
)

// Score cutoffs between groups on the 0-100 scale.
const (
	RiskCutoff     = 65.0
	ElevatedCutoff = 80.0
)

// GroupInfo is the static presentation data attached to a Group.
type GroupInfo struct {
	Key             string   `json:"key"`
	Label           string   `json:"label"`
	Color           string   `json:"color"`
	Recommendations []string `json:"recommendations"`
}

// groupTable is the single source of labels, colours and advice per group.
var groupTable = map[Group]GroupInfo{
	RiskZone: {
		Key:   "risk",
		Label: "Risk zone",
		Color: "red",
		Recommendations: []string{
			"Individual consultations with an instructor",
			"Review of core topics",
			"Regular additional classes",
		},
	},
	ElevatedRiskZone: {
		Key:   "elevated-risk",
		Label: "Elevated-risk zone",
		Color: "yellow",
		Recommendations: []string{
			"Additional practical sessions",
			"Focus on weak subjects",
			"Team project work",
		},
	},
	WellBeingZone: {
		Key:   "well-being",
		Label: "Well-being zone",
		Color: "green",
		Recommendations: []string{
			"Participation in academic conferences",
			"In-depth study of major subjects",
			"Mentoring other students",
		},
	},
}

// ReportOrder is the block order of the recommendations file.
var ReportOrder = []Group{WellBeingZone, ElevatedRiskZone, RiskZone}

// AssignGroup maps a forecast score to its group.
func AssignGroup(score float64) Group {
	switch {
	case score < RiskCutoff:
		return RiskZone
	case score < ElevatedCutoff:
		return ElevatedRiskZone
	default:
		return WellBeingZone
	}
}

// Info returns the group's static data.
func (g Group) Info() GroupInfo { return groupTable[g] }

// Label returns the display name.
func (g Group) Label() string { return groupTable[g].Label }

// Color returns the chart colour.
func (g Group) Color() string { return groupTable[g].Color }

// Recommendation returns the per-row advice string.
func (g Group) Recommendation() string {
	return strings.Join(groupTable[g].Recommendations, "; ")
}

func (g Group) String() string {
	if info, ok := groupTable[g]; ok {
		return info.Key
	}
	return fmt.Sprintf("group(%d)", int(g))
}

// MarshalText lets Group appear as its key in JSON.
func (g Group) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

// GroupByLabel looks a group up by display label, ignoring case.
func GroupByLabel(label string) (Group, bool) {
	for g, info := range groupTable {
		if strings.EqualFold(info.Label, strings.TrimSpace(label)) {
			return g, true
		}
	}
	return 0, false
}
