package order

type Status string

const (
	StatusRegistered Status = "REGISTERED"
	StatusPending    Status = "PENDING"
	StatusPaid       Status = "PAID"
	StatusFailed     Status = "FAILED"
)

const (
	GatewayStatusSuccess = "1"
	GatewayStatusPending = "2"
	GatewayStatusFailed  = "3"
)

// MapStatus maps a gateway status_id to a canonical status. Unknown codes degrade to PENDING.
func MapStatus(code string) Status {
	switch code {
	case GatewayStatusSuccess:
		return StatusPaid
	case GatewayStatusFailed:
		return StatusFailed
	case GatewayStatusPending:
		return StatusPending
	default:
		return StatusPending
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// Class is the presentation class used by the receipt page.
func (s Status) Class() string {
	switch s {
	case StatusPaid:
		return "ok"
	case StatusFailed:
		return "fail"
	default:
		return "pending"
	}
}

// Label is the customer-facing wording shown on the receipt page.
func (s Status) Label() string {
	switch s {
	case StatusPaid:
		return "BERJAYA"
	case StatusFailed:
		return "GAGAL"
	default:
		return "PENDING / TIDAK PASTI"
	}
}
