package alert

// Result classifies a single delivery attempt.
type Result int

// Attempt results.
const (
	ResultSuccess Result = iota
	ResultRecoverable
	ResultUnexpected
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultRecoverable:
		return "recoverable"
	case ResultUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Attempt records one recipient tried for an alert.
type Attempt struct {
	Recipient string
	Result    Result
	Err       error
}

// Outcome is the result of delivering one alert to an ordered recipient list.
type Outcome struct {
	AlertID   string
	Delivered bool
	Recipient string // who accepted it, empty when not delivered
	Attempts  []Attempt
}
