package utils

import (
	"encoding/json"
	"net/http"
	"time"
)

// APIResponse is the envelope of every JSON endpoint.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Code      string      `json:"code,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ErrorResponse carries a stable machine-readable code next to the
// human-readable message.
func ErrorResponse(code, message, err string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Code:      code,
		Error:     err,
		Timestamp: time.Now().UTC(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
