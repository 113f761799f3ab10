package topo

// Group-fit severities.
const (
	SeverityNone   = "none"
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// AssessGroupFit scores each cell by its mean similarity to the other members
// of its group. Cells in singleton groups fit trivially (1.0).
func AssessGroupFit(m *SimilarityMatrix, clusters *ClusterResult, threshold float64) []CellAssignment {
	members := make(map[int][]int)
	for row, label := range clusters.Labels {
		members[label] = append(members[label], row)
	}

	out := make([]CellAssignment, len(clusters.Labels))
	for row, label := range clusters.Labels {
		fit := 1.0
		if peers := members[label]; len(peers) > 1 {
			similarities := make([]float64, 0, len(peers)-1)
			for _, p := range peers {
				if p != row {
					similarities = append(similarities, m.At(row, p))
				}
			}
			fit = CalculateMean(similarities)
		}
		group := clusters.Groups[label]
		out[row] = CellAssignment{
			CellID:    m.CellIDs[row],
			GroupID:   group.GroupID,
			Color:     group.Color,
			Fit:       fit,
			IsOutlier: fit < threshold,
			Severity:  fitSeverity(fit, threshold),
		}
	}
	return out
}

func fitSeverity(fit, threshold float64) string {
	switch {
	case fit >= threshold:
		return SeverityNone
	case fit >= threshold*0.7:
		return SeverityLow
	case fit >= threshold*0.5:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}
