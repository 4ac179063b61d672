package api

import "github.com/samcharles93/qgemm/internal/conformance"

// VerifyRequest selects the cases the agreement suite should run. An
// empty case list selects the default sweep.
type VerifyRequest struct {
	Cases     []conformance.Case `json:"cases"`
	Seed      *int64             `json:"seed"`
	Tolerance *float64           `json:"tolerance"`
}

// GemmRequest runs one kernel invocation on caller-supplied operands.
// A is row-major M x K, B is row-major K x N float weights (quantized
// server-side), Bias is optional.
type GemmRequest struct {
	conformance.Case
	A    []float32 `json:"a"`
	B    []float32 `json:"b"`
	Bias []float32 `json:"bias,omitempty"`
}

// GemmResponse carries the row-major M x N kernel output.
type GemmResponse struct {
	C []float32 `json:"c"`
}

// ResponseError is the error body shape shared by all endpoints.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
