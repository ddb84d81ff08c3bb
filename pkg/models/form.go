package models

import "slices"

// FormDraft is the in-progress set of Gap Scan answers accumulated across
// the three steps. It is what gets mirrored to the draft store.
type FormDraft struct {
	Name                string   `json:"name,omitempty"`
	Email               string   `json:"email,omitempty"`
	Company             string   `json:"company,omitempty"`
	Industry            string   `json:"industry,omitempty"`
	TeamSize            string   `json:"teamSize,omitempty"`
	Challenges          []string `json:"challenges,omitempty"`
	BiggestTimeConsumer string   `json:"biggestTimeConsumer,omitempty"`
	AutomationWish      string   `json:"automationWish,omitempty"`
	Timeline            string   `json:"timeline,omitempty"`
	AdditionalNotes     string   `json:"additionalNotes,omitempty"`
}

// Clone returns a deep copy so callers can't mutate the owner's challenges.
func (d FormDraft) Clone() FormDraft {
	d.Challenges = slices.Clone(d.Challenges)
	return d
}

// IsEmpty reports whether nothing has been entered yet.
func (d FormDraft) IsEmpty() bool {
	return d.Name == "" && d.Email == "" && d.Company == "" &&
		d.Industry == "" && d.TeamSize == "" && len(d.Challenges) == 0 &&
		d.BiggestTimeConsumer == "" && d.AutomationWish == "" &&
		d.Timeline == "" && d.AdditionalNotes == ""
}

// Step1Input holds the "About You" answers
type Step1Input struct {
	Name     string `json:"name" validate:"min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Company  string `json:"company" validate:"min=2,max=100"`
	Industry string `json:"industry" validate:"required"`
	TeamSize string `json:"teamSize" validate:"required"`
}

// Step2Input holds the "Your Challenges" answers
type Step2Input struct {
	Challenges          []string `json:"challenges" validate:"min=1,unique,dive,challenge"`
	BiggestTimeConsumer string   `json:"biggestTimeConsumer" validate:"min=10,max=200"`
}

// Step3Input holds the "What You Want" answers
type Step3Input struct {
	AutomationWish  string `json:"automationWish" validate:"min=10,max=150"`
	Timeline        string `json:"timeline" validate:"required,oneof=exploring next-3-months urgent"`
	AdditionalNotes string `json:"additionalNotes" validate:"max=200"`
}

// Step1 extracts the fields owned by step 1.
func (d FormDraft) Step1() Step1Input {
	return Step1Input{
		Name:     d.Name,
		Email:    d.Email,
		Company:  d.Company,
		Industry: d.Industry,
		TeamSize: d.TeamSize,
	}
}

// Step2 extracts the fields owned by step 2.
func (d FormDraft) Step2() Step2Input {
	return Step2Input{
		Challenges:          slices.Clone(d.Challenges),
		BiggestTimeConsumer: d.BiggestTimeConsumer,
	}
}

// Step3 extracts the fields owned by step 3.
func (d FormDraft) Step3() Step3Input {
	return Step3Input{
		AutomationWish:  d.AutomationWish,
		Timeline:        d.Timeline,
		AdditionalNotes: d.AdditionalNotes,
	}
}

// MergeStep1 copies step 1 answers into the draft
func (d *FormDraft) MergeStep1(in Step1Input) {
	d.Name = in.Name
	d.Email = in.Email
	d.Company = in.Company
	d.Industry = in.Industry
	d.TeamSize = in.TeamSize
}

// MergeStep2 copies step 2 answers into the draft
func (d *FormDraft) MergeStep2(in Step2Input) {
	d.Challenges = slices.Clone(in.Challenges)
	d.BiggestTimeConsumer = in.BiggestTimeConsumer
}

// MergeStep3 copies step 3 answers into the draft
func (d *FormDraft) MergeStep3(in Step3Input) {
	d.AutomationWish = in.AutomationWish
	d.Timeline = in.Timeline
	d.AdditionalNotes = in.AdditionalNotes
}
