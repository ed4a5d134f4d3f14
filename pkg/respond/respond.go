package respond

import (
	"encoding/json"
	"net/http"
)

func JSON(w http.ResponseWriter, r *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func Error(w http.ResponseWriter, r *http.Request, code int, message string) {
	JSON(w, r, code, map[string]string{"error": message})
}

// ErrorWithDetails adds a details list next to the error name, e.g. per-field validation failures.
func ErrorWithDetails(w http.ResponseWriter, r *http.Request, code int, message string, details interface{}) {
	JSON(w, r, code, map[string]interface{}{"error": message, "details": details})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
