package handlers

import (
	"net/http"
	"strings"
)

func (h *Handler) HandleConversions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		h.writeJSON(w, h.history.All())
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleConversionDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/conversions/")

	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rec, exists := h.history.Get(id)
	if !exists {
		h.writeError(w, "Conversion not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, rec)
}
