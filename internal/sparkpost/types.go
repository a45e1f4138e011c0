package sparkpost

import "fmt"

// transmission is the request body for POST /transmissions.
type transmission struct {
	CampaignID string            `json:"campaign_id,omitempty"`
	Recipients []recipient       `json:"recipients"`
	Content    content           `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Options    *options          `json:"options,omitempty"`
}

type recipient struct {
	Address address `json:"address"`
}

type address struct {
	Email string `json:"email"`
}

type content struct {
	From    fromAddress `json:"from"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html,omitempty"`
	Text    string      `json:"text,omitempty"`
	ReplyTo string      `json:"reply_to,omitempty"`
}

type fromAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type options struct {
	ClickTracking bool `json:"click_tracking"`
	OpenTracking  bool `json:"open_tracking"`
	Transactional bool `json:"transactional"`
}

// transmissionResponse is the success envelope of POST /transmissions.
type transmissionResponse struct {
	Results struct {
		ID                      string `json:"id"`
		TotalAcceptedRecipients int    `json:"total_accepted_recipients"`
		TotalRejectedRecipients int    `json:"total_rejected_recipients"`
	} `json:"results"`
}

// errorResponse is the error envelope SparkPost returns on non-2xx.
type errorResponse struct {
	Errors []struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

// APIError is a non-2xx answer from the SparkPost API. StatusCode lets the
// dispatch worker classify the failure as transient or terminal.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sparkpost: status %d: %s", e.StatusCode, e.Message)
}
