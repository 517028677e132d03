package health

// Input represents the input for health check endpoint
type Input struct{}

// Output represents the output for health check endpoint
type Output struct {
	Body Response
}

// Response represents the health check response
type Response struct {
	Status  string            `json:"status" example:"OK" doc:"OK when every repository answers, DEGRADED otherwise"`
	Storage map[string]string `json:"storage,omitempty" doc:"Status of each repository by collection name"`
}
