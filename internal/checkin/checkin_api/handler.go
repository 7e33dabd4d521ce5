package checkin_api

import (
	"encoding/json"
	"io"
	"net/http"

	"fest-ticketing/internal/auth"
	"fest-ticketing/internal/checkin"
	"fest-ticketing/internal/logger"
)

// 10 MB is plenty for a phone photo of a ticket.
const maxPhotoBytes = 10 << 20

// Handler exposes the check-in validator to scanning operators. The
// operator identity comes from the JWT subject claim.
type Handler struct {
	Service *checkin.Service
	Logger  *logger.Logger
}

func NewHandler(service *checkin.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// Scan handles POST /checkin/scan. Two request shapes are accepted:
// JSON {"code": "<decoded payload>"} when the operator's client already
// decoded the QR, or multipart form data with a "photo" file that is
// decoded server-side.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	tokenString, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		http.Error(w, "Authorization required: "+err.Error(), http.StatusUnauthorized)
		return
	}
	operatorID, err := auth.ExtractOperatorIDFromJWT(tokenString)
	if err != nil {
		http.Error(w, "Invalid token: "+err.Error(), http.StatusUnauthorized)
		return
	}

	var result checkin.ScanResult
	if photo, _, err := r.FormFile("photo"); err == nil {
		defer photo.Close()
		imageBytes, err := io.ReadAll(io.LimitReader(photo, maxPhotoBytes))
		if err != nil {
			http.Error(w, "Failed to read photo: "+err.Error(), http.StatusBadRequest)
			return
		}
		result, err = h.Service.ValidateImage(r.Context(), operatorID, imageBytes)
		if err != nil {
			http.Error(w, "Scan failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
	} else {
		var requestBody struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		result, err = h.Service.ValidateScan(r.Context(), operatorID, requestBody.Code)
		if err != nil {
			http.Error(w, "Scan failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	status := http.StatusOK
	if result.Status == checkin.StatusNotFound {
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}
