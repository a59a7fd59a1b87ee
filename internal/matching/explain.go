package matching

import (
	"sort"

	"carejoa-matching/internal/models"
)

var reasonTemplates = map[models.SubScoreName]string{
	models.SubScoreDistance:       "가까운 거리에 있는 시설입니다",
	models.SubScoreRating:         "이용자 평점이 높은 시설입니다",
	models.SubScorePrice:          "예산 범위에 맞는 비용입니다",
	models.SubScoreSpecialtyMatch: "요청하신 전문 케어와 입소 유형을 제공합니다",
	models.SubScoreCollaborative:  "비슷한 조건의 보호자들이 많이 선택한 시설입니다",
}

// Explainer turns a score breakdown into user-facing reasons.
type Explainer struct {
	// Threshold is the raw sub-score a reason must exceed.
	Threshold float64
	// MaxReasons caps the returned list; zero or less means no reasons.
	MaxReasons int
}

func DefaultExplainer() Explainer {
	return Explainer{Threshold: 0.6, MaxReasons: 4}
}

// Explain orders sub-scores by weighted contribution, keeps the ones whose
// raw value exceeds the threshold and maps them to reason strings. Ties keep
// the fixed sub-score order.
func (e Explainer) Explain(breakdown []models.SubScore) []string {
	ordered := append([]models.SubScore(nil), breakdown...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Name.Position() < ordered[j].Name.Position()
	})
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Contribution() > ordered[j].Contribution()
	})

	reasons := make([]string, 0, max(e.MaxReasons, 0))
	for _, s := range ordered {
		if len(reasons) >= e.MaxReasons {
			break
		}
		if s.Raw <= e.Threshold {
			continue
		}
		if tmpl, ok := reasonTemplates[s.Name]; ok {
			reasons = append(reasons, tmpl)
		}
	}
	return reasons
}
