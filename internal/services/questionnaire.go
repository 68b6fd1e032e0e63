package services

import (
	"fmt"
	"strings"
)

type Fever string

const (
	FeverNone   Fever = "none"
	FeverMild   Fever = "mild"
	FeverHigh   Fever = "high"
	FeverUnsure Fever = "unsure"
)

type RashAppearance string

const (
	RashFluidBlisters RashAppearance = "fluid-blisters"
	RashRedSpots      RashAppearance = "red-spots"
	RashCrusted       RashAppearance = "crusted"
	RashMixed         RashAppearance = "mixed"
	RashOther         RashAppearance = "other"
	RashUnanswered    RashAppearance = ""
)

type BodySite string

const (
	SiteFace        BodySite = "face"
	SiteScalp       BodySite = "scalp"
	SiteChest       BodySite = "chest"
	SiteBack        BodySite = "back"
	SiteStomach     BodySite = "stomach"
	SiteArms        BodySite = "arms"
	SiteLegs        BodySite = "legs"
	SiteInsideMouth BodySite = "inside-mouth"
	SitePalmsSoles  BodySite = "palms-soles"
	SiteGroin       BodySite = "groin"
)

type Itchiness string

const (
	ItchVery     Itchiness = "very"
	ItchSomewhat Itchiness = "somewhat"
	ItchNone     Itchiness = "none"
	ItchPainful  Itchiness = "painful"
)

type Symptom string

const (
	SymptomHeadache     Symptom = "headache"
	SymptomFatigue      Symptom = "fatigue"
	SymptomSoreThroat   Symptom = "sore-throat"
	SymptomLossAppetite Symptom = "loss-appetite"
	SymptomMusclePain   Symptom = "muscle-pain"
	SymptomSwollenLymph Symptom = "swollen-lymph"
	SymptomCough        Symptom = "cough"
	SymptomNone         Symptom = "none"
)

type Exposure string

const (
	ExposureKnown         Exposure = "known"
	ExposurePossible      Exposure = "possible"
	ExposureNone          Exposure = "none"
	ExposurePriorImmunity Exposure = "priorImmunity"
)

type SymptomDuration string

const (
	DaysUpToOne     SymptomDuration = "<=1"
	DaysTwoToThree  SymptomDuration = "2-3"
	DaysFourToSeven SymptomDuration = "4-7"
	DaysOverSeven   SymptomDuration = ">7"
)

// QuestionnaireAnswers is one completed questionnaire. The zero value is a
// valid input to Score and contributes nothing.
type QuestionnaireAnswers struct {
	Fever            Fever           `json:"fever"`
	RashAppearance   RashAppearance  `json:"rashAppearance"`
	RashLocations    []BodySite      `json:"rashLocations"`
	Itchiness        Itchiness       `json:"itchiness"`
	OtherSymptoms    []Symptom       `json:"otherSymptoms"`
	ExposureHistory  Exposure        `json:"exposureHistory"`
	DaysWithSymptoms SymptomDuration `json:"daysWithSymptoms"`
}

var (
	feverValues    = []Fever{FeverNone, FeverMild, FeverHigh, FeverUnsure}
	rashValues     = []RashAppearance{RashFluidBlisters, RashRedSpots, RashCrusted, RashMixed, RashOther}
	bodySites      = []BodySite{SiteFace, SiteScalp, SiteChest, SiteBack, SiteStomach, SiteArms, SiteLegs, SiteInsideMouth, SitePalmsSoles, SiteGroin}
	itchValues     = []Itchiness{ItchVery, ItchSomewhat, ItchNone, ItchPainful}
	symptomValues  = []Symptom{SymptomHeadache, SymptomFatigue, SymptomSoreThroat, SymptomLossAppetite, SymptomMusclePain, SymptomSwollenLymph, SymptomCough, SymptomNone}
	exposureValues = []Exposure{ExposureKnown, ExposurePossible, ExposureNone, ExposurePriorImmunity}
	durationValues = []SymptomDuration{DaysUpToOne, DaysTwoToThree, DaysFourToSeven, DaysOverSeven}
)

// Vocabulary lists every accepted value, in display order.
type Vocabulary struct {
	Fever            []Fever           `json:"fever"`
	RashAppearance   []RashAppearance  `json:"rashAppearance"`
	RashLocations    []BodySite        `json:"rashLocations"`
	Itchiness        []Itchiness       `json:"itchiness"`
	OtherSymptoms    []Symptom         `json:"otherSymptoms"`
	ExposureHistory  []Exposure        `json:"exposureHistory"`
	DaysWithSymptoms []SymptomDuration `json:"daysWithSymptoms"`
}

func QuestionnaireVocabulary() Vocabulary {
	return Vocabulary{
		Fever:            append([]Fever(nil), feverValues...),
		RashAppearance:   append([]RashAppearance(nil), rashValues...),
		RashLocations:    append([]BodySite(nil), bodySites...),
		Itchiness:        append([]Itchiness(nil), itchValues...),
		OtherSymptoms:    append([]Symptom(nil), symptomValues...),
		ExposureHistory:  append([]Exposure(nil), exposureValues...),
		DaysWithSymptoms: append([]SymptomDuration(nil), durationValues...),
	}
}

// Validate checks that every field holds a vocabulary value. Only the rash
// appearance may be left unanswered; set fields must not repeat a tag.
func (a QuestionnaireAnswers) Validate() error {
	var problems []string
	if !oneOf(a.Fever, feverValues) {
		problems = append(problems, fmt.Sprintf("fever: unsupported value %q", a.Fever))
	}
	if a.RashAppearance != RashUnanswered && !oneOf(a.RashAppearance, rashValues) {
		problems = append(problems, fmt.Sprintf("rashAppearance: unsupported value %q", a.RashAppearance))
	}
	problems = append(problems, checkSet("rashLocations", a.RashLocations, bodySites)...)
	if !oneOf(a.Itchiness, itchValues) {
		problems = append(problems, fmt.Sprintf("itchiness: unsupported value %q", a.Itchiness))
	}
	problems = append(problems, checkSet("otherSymptoms", a.OtherSymptoms, symptomValues)...)
	if !oneOf(a.ExposureHistory, exposureValues) {
		problems = append(problems, fmt.Sprintf("exposureHistory: unsupported value %q", a.ExposureHistory))
	}
	if !oneOf(a.DaysWithSymptoms, durationValues) {
		problems = append(problems, fmt.Sprintf("daysWithSymptoms: unsupported value %q", a.DaysWithSymptoms))
	}
	if len(problems) > 0 {
		return NewInvalidError(strings.Join(problems, "; "))
	}
	return nil
}

// HasLocation reports whether site was selected.
func (a QuestionnaireAnswers) HasLocation(site BodySite) bool {
	return oneOf(site, a.RashLocations)
}

func oneOf[T comparable](v T, allowed []T) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

func checkSet[T ~string](field string, values, allowed []T) []string {
	var problems []string
	seen := make(map[T]struct{}, len(values))
	for _, v := range values {
		if !oneOf(v, allowed) {
			problems = append(problems, fmt.Sprintf("%s: unsupported tag %q", field, v))
			continue
		}
		if _, dup := seen[v]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate tag %q", field, v))
			continue
		}
		seen[v] = struct{}{}
	}
	return problems
}
