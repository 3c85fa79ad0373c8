package session

// EmailMessage is one message of a prior conversation thread.
type EmailMessage struct {
	FromAddress string   `json:"from_address"`
	ToAddress   []string `json:"to_address"`
	CcAddress   []string `json:"cc_address"`
	Subject     string   `json:"subject"`
	Content     string   `json:"content"`
	Datetime    string   `json:"datetime"`
}

// EmailPayload is the inbound webhook body for one email.
type EmailPayload struct {
	FromAddress    string         `json:"from_address"`
	ToAddress      string         `json:"to_address"`
	Subject        string         `json:"subject"`
	Body           string         `json:"body"`
	MessageID      string         `json:"message_id"`
	PreviousThread []EmailMessage `json:"previous_thread,omitempty"`
	RawEmail       string         `json:"raw_email,omitempty"`
}
