package httpx

import "net/http"

// Meta describes an offset page returned by admin list endpoints.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Envelope is the success half of the response envelope.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// WriteData renders {success:true, data}.
func WriteData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteMessage renders {success:true, message, data?}.
func WriteMessage(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// WritePage renders a list with pagination metadata.
func WritePage(w http.ResponseWriter, data any, meta Meta) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Meta: &meta})
}

// NewMeta derives totalPages; an empty result still reports one page.
func NewMeta(page, limit, total int) Meta {
	pages := 1
	if limit > 0 && total > 0 {
		pages = (total + limit - 1) / limit
	}
	return Meta{Page: page, Limit: limit, Total: total, TotalPages: pages}
}
