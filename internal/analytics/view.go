// Riskgrid - Geospatial Risk Analytics on H3 Hex Grids
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/riskgrid

package analytics

import (
	"sort"
	"strings"
)

// IsHotspot reports whether a view row is high, critical or flagged.
func IsHotspot(r RiskViewRow) bool {
	return r.RiskLevel == RiskHigh || r.RiskLevel == RiskCritical || r.AnomalyFlagged
}

// SortByRiskDesc orders rows by risk score, highest first; ties by cell id.
func SortByRiskDesc(rows []RiskViewRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].RiskScore != rows[j].RiskScore {
			return rows[i].RiskScore > rows[j].RiskScore
		}
		return rows[i].CellID < rows[j].CellID
	})
}

// SortHotspots orders rows newest day first, then by risk score descending.
func SortHotspots(rows []RiskViewRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Day.Equal(rows[j].Day) {
			return rows[i].Day.After(rows[j].Day)
		}
		if rows[i].RiskScore != rows[j].RiskScore {
			return rows[i].RiskScore > rows[j].RiskScore
		}
		return rows[i].CellID < rows[j].CellID
	})
}

// ParseLevels parses a comma separated level list such as "high,critical".
// Unknown names are dropped; an empty result means no filter.
func ParseLevels(s string) []RiskLevel {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []RiskLevel
	seen := make(map[RiskLevel]bool)
	for _, part := range strings.Split(s, ",") {
		l := RiskLevel(strings.ToLower(strings.TrimSpace(part)))
		if l.Valid() && !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}
