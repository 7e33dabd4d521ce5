package ticket_api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fest-ticketing/internal/export"
	"fest-ticketing/internal/logger"
	"fest-ticketing/internal/store"
	"fest-ticketing/internal/tickets"
)

// Handler exposes the allocator and export surface to the chat layer.
// All user-facing text and localization live in the caller; this
// surface only moves validated data.
type Handler struct {
	TicketService *tickets.TicketService
	Exporter      *export.Exporter
	Logger        *logger.Logger
	Season        string
}

func NewHandler(service *tickets.TicketService, exporter *export.Exporter, log *logger.Logger, season string) *Handler {
	return &Handler{
		TicketService: service,
		Exporter:      exporter,
		Logger:        log,
		Season:        season,
	}
}

// IssueTicket handles POST /ticket/issue.
// Body: {"user_id": 123, "season": "2025"} — season optional, defaults
// to the active one. Repeating the call returns the same ticket.
func (h *Handler) IssueTicket(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		UserID int64  `json:"user_id"`
		Season string `json:"season"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if requestBody.UserID == 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	season := requestBody.Season
	if season == "" {
		season = h.Season
	}

	ticket, err := h.TicketService.IssueTicket(r.Context(), requestBody.UserID, season)
	if err != nil {
		if errors.Is(err, tickets.ErrAllocationExhausted) {
			h.Logger.Error("TICKET", "ticket key space exhausted for season "+season)
			http.Error(w, "no ticket keys available", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to issue ticket: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ticket)
}

// GetTicket handles GET /ticket/{userID}?season=2025.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	ticket, err := h.TicketService.Ticket(r.Context(), userID, h.seasonParam(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "ticket not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch ticket: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ticket)
}

// GetTicketImage handles GET /ticket/{userID}/image. A missing cached
// file is regenerated from the stored ticket data.
func (h *Handler) GetTicketImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	imageBytes, err := h.TicketService.TicketImage(r.Context(), userID, h.seasonParam(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "ticket not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to render ticket image: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(imageBytes)
}

// SelectDays handles PUT /ticket/{userID}/days.
// Body: {"days": {"date_4_10": true, "date_5_10": false}}
func (h *Handler) SelectDays(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	var requestBody struct {
		Days map[string]bool `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.TicketService.SelectDays(r.Context(), userID, h.seasonParam(r), requestBody.Days); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "ticket not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to store day selection: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetQuestionnaire handles PUT /ticket/{userID}/questionnaire.
// Body: {"country": "...", "source": "..."}
func (h *Handler) SetQuestionnaire(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	var requestBody struct {
		Country string `json:"country"`
		Source  string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.TicketService.SetQuestionnaire(r.Context(), userID, h.seasonParam(r), requestBody.Country, requestBody.Source); err != nil {
		http.Error(w, "Failed to store questionnaire: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordStart handles POST /user/start.
// Body: {"user_id": 123, "language": "en", "utm": "utm_source=..."}
func (h *Handler) RecordStart(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		UserID   int64  `json:"user_id"`
		Language string `json:"language"`
		UTM      string `json:"utm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if requestBody.UserID == 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if err := h.TicketService.RecordStart(r.Context(), requestBody.UserID, requestBody.Language, requestBody.UTM); err != nil {
		http.Error(w, "Failed to record start: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeLanguage handles PUT /user/{userID}/language.
func (h *Handler) ChangeLanguage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	var requestBody struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.TicketService.ChangeLanguage(r.Context(), userID, requestBody.Language); err != nil {
		http.Error(w, "Failed to change language: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser handles DELETE /user/{userID}: full removal of the user
// record and its tickets on the user's request.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.TicketService.RemoveUser(r.Context(), userID); err != nil {
		http.Error(w, "Failed to delete user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.Logger.Info("USER", "deleted user "+strconv.FormatInt(userID, 10))
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers handles GET /users?language=en, for the chat layer's
// broadcast feature.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ids, err := h.TicketService.UserIDs(r.Context(), r.URL.Query().Get("language"))
	if err != nil {
		http.Error(w, "Failed to list users: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]int64{"user_ids": ids})
}

// ExportTickets handles GET /export/tickets.csv.
func (h *Handler) ExportTickets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="tickets.csv"`)
	if err := h.Exporter.WriteTickets(r.Context(), w, r.URL.Query().Get("season")); err != nil {
		http.Error(w, "Failed to export tickets: "+err.Error(), http.StatusInternalServerError)
	}
}

// ExportUTM handles GET /export/utm.csv.
func (h *Handler) ExportUTM(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="utm.csv"`)
	if err := h.Exporter.WriteUTM(r.Context(), w); err != nil {
		http.Error(w, "Failed to export utm data: "+err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return 0, false
	}
	return userID, true
}

func (h *Handler) seasonParam(r *http.Request) string {
	if season := r.URL.Query().Get("season"); season != "" {
		return season
	}
	return h.Season
}
