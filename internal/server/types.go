package server

// HealthResponse is the response for the health endpoint
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ErrorResponse is the standard error response. Error carries the failure kind.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Reason  string   `json:"reason,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

// SendResponse is the response for the send endpoint
type SendResponse struct {
	Status string `json:"status"`
}
