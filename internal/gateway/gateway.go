package gateway

// Status is the gateway's view of a transaction. Only COMPLETED, FAILED and
// DECLINED are authoritative; PENDING means the gateway is still processing.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusDeclined  Status = "DECLINED"
)

// IsTerminal reports whether the gateway considers this status final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusDeclined:
		return true
	default:
		return false
	}
}

// Ack is the synchronous acknowledgement of an initiate call. It is
// fire-and-forget: the authoritative outcome arrives through the callback
// endpoint or an explicit CheckStatus poll.
type Ack struct {
	ExternalRef string
	Status      Status
}

// StatusResult is the response of a CheckStatus poll.
type StatusResult struct {
	Status      Status
	ExternalRef string
	Reason      string
}

// ChargeRequest asks the gateway to collect money from a payer.
type ChargeRequest struct {
	TransactionID string
	Amount        int64 // santim
	Memo          string
	PayerPhone    string
	Method        string
}

// PayoutRequest asks the gateway to send money to a payee.
type PayoutRequest struct {
	TransactionID string
	Amount        int64 // santim
	Kind          string
	PayeePhone    string
	Method        string
}
