package models

import "slices"

// Timeline values accepted by step 3.
const (
	TimelineExploring   = "exploring"
	TimelineNext3Months = "next-3-months"
	TimelineUrgent      = "urgent"
)

// ChallengeOptions is the enumerated set a visitor picks challenges from.
var ChallengeOptions = []string{
	"Too much manual data entry",
	"Repetitive admin tasks",
	"Slow customer response times",
	"Missing sales opportunities",
	"Team spending time on boring work",
	"Inconsistent processes",
	"Information scattered everywhere",
	"Other",
}

// IndustryOptions are offered in the step 1 industry select.
var IndustryOptions = []string{
	"Technology/Software",
	"Professional Services",
	"E-commerce/Retail",
	"Healthcare",
	"Finance/Banking",
	"Manufacturing",
	"Real Estate",
	"Marketing/Advertising",
	"Education",
	"Other",
}

// TeamSizeOptions are offered in the step 1 team size select.
var TeamSizeOptions = []string{"just-me", "2-10", "11-50", "50+"}

// TimelineOptions are the only accepted step 3 timelines.
var TimelineOptions = []string{TimelineExploring, TimelineNext3Months, TimelineUrgent}

// IsChallengeOption reports whether c belongs to ChallengeOptions.
func IsChallengeOption(c string) bool {
	return slices.Contains(ChallengeOptions, c)
}

// Options is the catalog served to the page for rendering the selects.
type Options struct {
	Industries []string `json:"industries"`
	TeamSizes  []string `json:"teamSizes"`
	Challenges []string `json:"challenges"`
	Timelines  []string `json:"timelines"`
}

// Catalog returns copies of all option lists.
func Catalog() Options {
	return Options{
		Industries: slices.Clone(IndustryOptions),
		TeamSizes:  slices.Clone(TeamSizeOptions),
		Challenges: slices.Clone(ChallengeOptions),
		Timelines:  slices.Clone(TimelineOptions),
	}
}
