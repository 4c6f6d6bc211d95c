package entity

// RelayResult is the JSON answer of both webhook endpoints.
type RelayResult struct {
	Ok      bool        `json:"ok"`
	Skipped string      `json:"skipped,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Relayed int         `json:"relayed,omitempty"`
	Failed  []string    `json:"failed,omitempty"`
	Missing []string    `json:"missing,omitempty"`
	Status  int         `json:"status,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func Skipped(reason string) *RelayResult {
	return &RelayResult{Ok: true, Skipped: reason}
}
