package models

// DirectReferrer is sent when the visitor arrived without a referrer.
const DirectReferrer = "direct"

// PageContext describes the visitor's page at the time the session was opened
type PageContext struct {
	URL       string `json:"pageUrl"`
	Referrer  string `json:"referrer"`
	UserAgent string `json:"userAgent"`
}

// UTMParams is the campaign attribution read from the page URL query
type UTMParams struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

// IsZero reports whether no UTM value is set.
func (u UTMParams) IsZero() bool {
	return u == UTMParams{}
}

// SubmissionPayload is the JSON body posted to the webhook
type SubmissionPayload struct {
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Company             string     `json:"company"`
	Industry            string     `json:"industry"`
	TeamSize            string     `json:"teamSize"`
	Challenges          []string   `json:"challenges"`
	BiggestTimeConsumer string     `json:"biggestTimeConsumer"`
	AutomationWish      string     `json:"automationWish"`
	Timeline            string     `json:"timeline"`
	AdditionalNotes     string     `json:"additionalNotes,omitempty"`
	Timestamp           string     `json:"timestamp"`
	Language            string     `json:"language"`
	UserAgent           string     `json:"userAgent"`
	PageURL             string     `json:"pageUrl"`
	Referrer            string     `json:"referrer"`
	UTMParams           *UTMParams `json:"utmParams,omitempty"`
}
