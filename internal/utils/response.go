package utils

import (
	"encoding/json"
	"log"
	"net/http"

	"CapIot.ixonsync/internal/models"
)

// RespondWithError sends a JSON error response using the APIError model.
func RespondWithError(writer http.ResponseWriter, apiErr models.APIError) {
	RespondWithJSON(writer, apiErr.StatusCode, apiErr)
}

// RespondWithJSON sends a JSON response with the given status code.
func RespondWithJSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}
