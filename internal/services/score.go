package services

import (
	"fmt"
	"math"
	"strings"
)

type Likelihood string

const (
	LikelihoodHigh    Likelihood = "high"
	LikelihoodMedium  Likelihood = "medium"
	LikelihoodLow     Likelihood = "low"
	LikelihoodUnknown Likelihood = "unknown"
)

// Prediction is one detection returned by the image classifier. The box
// geometry is carried for display only.
type Prediction struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Confidence  float64 `json:"confidence"`
	Class       string  `json:"class"`
	ClassID     int     `json:"class_id"`
	DetectionID string  `json:"detection_id"`
}

// AssessmentResult is derived once per questionnaire and never mutated.
type AssessmentResult struct {
	Likelihood           Likelihood `json:"likelihood"`
	Score                int        `json:"score"`
	Reasons              []string   `json:"reasons"`
	Advice               string     `json:"advice"`
	AIConfidence         *float64   `json:"aiConfidence,omitempty"`
	AlternativeDiagnoses []string   `json:"alternativeDiagnoses,omitempty"`
}

const targetCondition = "chickenpox"

var (
	targetLabels     = []string{"chickenpox", "varicella"}
	widespreadSites  = []BodySite{SiteFace, SiteChest, SiteBack, SiteStomach, SiteArms, SiteLegs}
	relevantSymptoms = []Symptom{SymptomHeadache, SymptomFatigue, SymptomLossAppetite, SymptomSwollenLymph}
)

var adviceTemplates = map[Likelihood]string{
	LikelihoodHigh: "Your answers strongly match " + targetCondition + ". Contact a healthcare provider to confirm, stay home, " +
		"and avoid contact with pregnant women, newborns and people with weakened immune systems.",
	LikelihoodMedium: "Your answers partly match " + targetCondition + ". Watch your symptoms closely and consider seeing " +
		"a healthcare provider, especially if new blisters appear.",
	LikelihoodLow: "Your answers show few signs of " + targetCondition + ". Keep monitoring your symptoms and see a " +
		"healthcare provider if they get worse.",
	LikelihoodUnknown: "Your answers do not match " + targetCondition + " well. Another condition may be causing your " +
		"symptoms, so see a healthcare provider for a diagnosis.",
}

// Score maps answers and optional classifier output to a likelihood. It is
// total: unknown or missing values add nothing and never fail.
func Score(answers QuestionnaireAnswers, predictions []Prediction) AssessmentResult {
	res := AssessmentResult{Reasons: []string{}}
	add := func(points int, reason string) {
		res.Score += points
		res.Reasons = append(res.Reasons, reason)
	}

	scorePredictions(&res, predictions)

	switch answers.Fever {
	case FeverHigh:
		add(3, "High fever reported")
	case FeverMild:
		add(2, "Mild fever reported")
	}

	switch answers.RashAppearance {
	case RashFluidBlisters:
		add(4, "Fluid-filled blisters are characteristic of "+targetCondition)
	case RashMixed:
		add(3, "Spots, blisters and scabs at the same time are typical of "+targetCondition)
	case RashRedSpots:
		add(2, "Red spots can be an early stage of "+targetCondition)
	case RashCrusted:
		add(2, "Crusted lesions can be a later stage of "+targetCondition)
	}

	spread := 0
	for _, site := range widespreadSites {
		if answers.HasLocation(site) {
			spread++
		}
	}
	switch {
	case spread >= 4:
		add(3, "Rash is widespread across the body")
	case spread >= 2:
		add(2, "Rash appears in multiple locations")
	}

	if answers.HasLocation(SiteInsideMouth) {
		add(2, "Spots inside the mouth are common with "+targetCondition)
	}
	if answers.HasLocation(SitePalmsSoles) {
		add(-2, "Rash on the palms or soles is less typical of "+targetCondition)
	}

	switch answers.Itchiness {
	case ItchVery:
		add(3, "Rash is very itchy")
	case ItchSomewhat:
		add(1, "Rash is somewhat itchy")
	case ItchPainful:
		add(-1, "A painful rather than itchy rash is less typical")
	}

	var related []string
	for _, s := range relevantSymptoms {
		if oneOf(s, answers.OtherSymptoms) {
			related = append(related, string(s))
		}
	}
	switch {
	case len(related) >= 2:
		add(2, "Related symptoms reported: "+strings.Join(related, ", "))
	case len(related) == 1:
		add(1, "Related symptom reported: "+related[0])
	}

	switch answers.ExposureHistory {
	case ExposureKnown:
		add(4, "Known exposure to "+targetCondition)
	case ExposurePossible:
		add(2, "Possible exposure to "+targetCondition)
	case ExposurePriorImmunity:
		add(-3, "Prior immunity from vaccination or earlier infection")
	}

	switch answers.DaysWithSymptoms {
	case DaysTwoToThree, DaysFourToSeven:
		add(2, "Symptom timeline consistent with "+targetCondition)
	}

	res.Likelihood = LikelihoodForScore(res.Score)
	res.Advice = advice(res)
	return res
}

// LikelihoodForScore buckets a final score; the first matching threshold wins.
func LikelihoodForScore(score int) Likelihood {
	switch {
	case score >= 10:
		return LikelihoodHigh
	case score >= 6:
		return LikelihoodMedium
	case score >= 0:
		return LikelihoodLow
	default:
		return LikelihoodUnknown
	}
}

// IsTargetLabel reports whether a classifier label names the target condition.
func IsTargetLabel(label string) bool {
	l := strings.ToLower(label)
	for _, t := range targetLabels {
		if strings.Contains(l, t) {
			return true
		}
	}
	return false
}

func scorePredictions(res *AssessmentResult, predictions []Prediction) {
	found := false
	best := 0.0
	var others []string
	seen := map[string]struct{}{}
	for _, p := range predictions {
		label := strings.TrimSpace(p.Class)
		if label == "" || math.IsNaN(p.Confidence) {
			continue
		}
		if IsTargetLabel(label) {
			if !found || p.Confidence > best {
				best = p.Confidence
			}
			found = true
			continue
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		others = append(others, label)
	}

	if found {
		switch {
		case best > 0.7:
			res.Score += 5
			res.Reasons = append(res.Reasons, "High-confidence AI detection of "+targetCondition)
		case best > 0.4:
			res.Score += 3
			res.Reasons = append(res.Reasons, "Possible AI detection of "+targetCondition)
		case best > 0.2:
			res.Score += 1
			res.Reasons = append(res.Reasons, "Low-possibility AI detection of "+targetCondition)
		}
		pct := math.Round(best*10000) / 100
		res.AIConfidence = &pct
	} else if len(others) > 0 {
		res.Score -= 2
		res.Reasons = append(res.Reasons, "AI detected other conditions: "+strings.Join(others, ", "))
	}
	if len(others) > 0 {
		res.AlternativeDiagnoses = others
	}
}

func advice(res AssessmentResult) string {
	var b strings.Builder
	b.WriteString(adviceTemplates[res.Likelihood])
	if res.AIConfidence != nil {
		fmt.Fprintf(&b, " Image analysis estimated a %.1f%% chance of %s.", *res.AIConfidence, targetCondition)
	}
	if (res.Likelihood == LikelihoodLow || res.Likelihood == LikelihoodUnknown) && len(res.AlternativeDiagnoses) > 0 {
		fmt.Fprintf(&b, " Image analysis suggested other possible conditions: %s.", strings.Join(res.AlternativeDiagnoses, ", "))
	}
	return b.String()
}
