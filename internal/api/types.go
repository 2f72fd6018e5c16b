package api

// ErrorResponse is the body written by the fault boundary
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
