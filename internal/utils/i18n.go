package utils

// Server-side strings only; the questionnaire UI carries its own copy.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":          "ok",
		"likelihood.high":    "High likelihood of chickenpox",
		"likelihood.medium":  "Moderate likelihood of chickenpox",
		"likelihood.low":     "Low likelihood of chickenpox",
		"likelihood.unknown": "Unable to determine",
		"disclaimer":         "This assessment is not a diagnosis. Consult a healthcare professional.",
	},
	"zh": {
		"health.ok":          "好的",
		"likelihood.high":    "水痘可能性高",
		"likelihood.medium":  "水痘可能性中等",
		"likelihood.low":     "水痘可能性低",
		"likelihood.unknown": "无法判断",
		"disclaimer":         "本评估不构成诊断，请咨询医疗专业人员。",
	},
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations["en"]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}
