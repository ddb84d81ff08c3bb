package webhook

import (
	"net/url"
	"slices"
	"time"

	"github.com/navarrastar/gapscan/pkg/models"
)

// ISO-8601 with milliseconds, as browsers emit it.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// BuildPayload merges the draft with the visitor's context
func BuildPayload(req Request, now time.Time) models.SubmissionPayload {
	d := req.Draft
	referrer := req.Page.Referrer
	if referrer == "" {
		referrer = models.DirectReferrer
	}
	challenges := slices.Clone(d.Challenges)
	if challenges == nil {
		challenges = []string{}
	}

	return models.SubmissionPayload{
		Name:                d.Name,
		Email:               d.Email,
		Company:             d.Company,
		Industry:            d.Industry,
		TeamSize:            d.TeamSize,
		Challenges:          challenges,
		BiggestTimeConsumer: d.BiggestTimeConsumer,
		AutomationWish:      d.AutomationWish,
		Timeline:            d.Timeline,
		AdditionalNotes:     d.AdditionalNotes,
		Timestamp:           now.UTC().Format(timestampLayout),
		Language:            req.Locale,
		UserAgent:           req.Page.UserAgent,
		PageURL:             req.Page.URL,
		Referrer:            referrer,
		UTMParams:           UTMFromURL(req.Page.URL),
	}
}

// UTMFromURL extracts utm_* parameters from a page URL. It returns nil
// when none is present or the URL does not parse.
func UTMFromURL(raw string) *models.UTMParams {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	q := u.Query()
	utm := models.UTMParams{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Term:     q.Get("utm_term"),
		Content:  q.Get("utm_content"),
	}
	if utm.IsZero() {
		return nil
	}
	return &utm
}
