package api

import (
	"encoding/json"
	"net/http"
)

// Response codes carried in the StdResponse envelope. Clients switch on the
// code rather than on the HTTP status alone, because several service
// conditions (end of service, stop closure) are successful HTTP exchanges
// that still carry no arrivals.
const (
	CodeSuccess         = "success"
	CodeServerError     = "server-error"
	CodeEndOfService    = "eta-end-of-service"
	CodeErrorResponse   = "eta-error-response"
	CodeAPIError        = "eta-api-error"
	CodeNoEntry         = "eta-no-entry"
	CodeStopClosure     = "eta-stop-closure"
	CodeAbnormalService = "eta-abnormal-service"
	CodeRouteNotExist   = "route-not-exist"
)

// StdResponse is the envelope every JSON endpoint answers with.
type StdResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp StdResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeData(w http.ResponseWriter, code string, data any) {
	writeJSON(w, http.StatusOK, StdResponse{Success: true, Code: code, Data: data})
}

// writeCondition reports a provider service condition. The HTTP exchange
// succeeded, so the status stays 200 and the code tells the story.
func writeCondition(w http.ResponseWriter, code, message string) {
	writeJSON(w, http.StatusOK, StdResponse{Success: false, Code: code, Message: message})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, StdResponse{Success: false, Code: code, Message: message})
}
