package diag

// Severity orders diagnostics; anything at SevError or above fails the unit.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

var severityNames = [...]string{
	SevInfo:    "INFO",
	SevWarning: "WARNING",
	SevError:   "ERROR",
}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "UNKNOWN"
}

// IsError reports whether s fails compilation.
func (s Severity) IsError() bool { return s >= SevError }
