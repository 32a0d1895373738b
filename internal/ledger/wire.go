package ledger

import "github.com/birthmark-protocol/birthmark/pkg/model"

// HTTP routes shared by GatewayLedger and the ledger server.
const (
	RouteRecords = "/v1/records"
	RouteBatch   = "/v1/records/batch"
	RouteStats   = "/v1/stats"
)

// SubmitResponse is the body of a successful single submission.
type SubmitResponse struct {
	TransactionID string `json:"transaction_id"`
}

// BatchRequest carries submissions in order.
type BatchRequest struct {
	Submissions []model.Submission `json:"submissions"`
}

// BatchResponse carries the ids accepted, in input order. On failure it
// holds the ids committed before the failing entry plus the error.
type BatchResponse struct {
	TransactionIDs []string       `json:"transaction_ids"`
	Error          *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
