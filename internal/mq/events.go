package mq

// DefaultChannel carries mail requests for the external mail sender.
const DefaultChannel = "account-events"

// EventType names an account event.
type EventType string

const (
	EventVerificationRequested  EventType = "account.verification_requested"
	EventPasswordResetRequested EventType = "account.password_reset_requested"
)

// AccountEvent asks the mail sender to deliver Link to Email.
type AccountEvent struct {
	Type      EventType `json:"type"`
	AccountID int       `json:"account_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Link      string    `json:"link"`
}
