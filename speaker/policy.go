package speaker

// Tier уровень решения идентификации
type Tier string

const (
	TierAutomatic Tier = "automatic" // Автоматическое назначение, запись в аудит
	TierSuggested Tier = "suggested" // Предложение пользователю, без записи
	TierUncertain Tier = "uncertain" // Слабое совпадение, отдельная метка для UX
	TierUnknown   Tier = "unknown"   // Совпадений нет — нормальный исход, не ошибка
)

// Thresholds настраиваемые пороги классификации
type Thresholds struct {
	AutoAssign float64 `json:"autoAssign"` // confidence >= AutoAssign -> automatic
	Suggest    float64 `json:"suggest"`    // confidence >= Suggest -> suggested
	MinMatch   float64 `json:"minMatch"`   // минимальный порог similarity для matching
}

// DefaultThresholds пороги по умолчанию
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoAssign: 0.85,
		Suggest:    0.70,
		MinMatch:   0.60,
	}
}

// ConfidenceFromSimilarity отображает similarity в confidence.
// Монотонная ступенчатая функция с точками перегиба 0.60, 0.65, 0.75, 0.85.
func ConfidenceFromSimilarity(similarity float64) float64 {
	switch {
	case similarity >= 0.85:
		return 0.95
	case similarity >= 0.75:
		return 0.85
	case similarity >= 0.65:
		return 0.70
	case similarity >= 0.60:
		return 0.60
	default:
		return 0.50
	}
}

// Classify возвращает уровень решения для данной confidence
func (t Thresholds) Classify(confidence float64) Tier {
	switch {
	case confidence >= t.AutoAssign:
		return TierAutomatic
	case confidence >= t.Suggest:
		return TierSuggested
	case confidence >= t.MinMatch:
		return TierUncertain
	default:
		return TierUnknown
	}
}
