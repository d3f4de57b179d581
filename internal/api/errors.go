package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/bulles-portal/internal/auth"
	"github.com/nerrad567/bulles-portal/internal/results"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeMissingCredentials = "missing_credentials"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeMissingToken       = "missing_token"
	ErrCodeInvalidToken       = "invalid_token"
	ErrCodeForbidden          = "forbidden"
	ErrCodeNotFound           = "not_found"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInternal           = "internal_error"
)

// User-facing messages. The front end displays them as-is.
const (
	msgMissingCredentials  = "Identifiants manquants"
	msgInvalidCredentials  = "Identifiants incorrects"
	msgMissingBearer       = "Token d'authentification manquant"
	msgInvalidToken        = "Token invalide ou expiré"
	msgMissingRefresh      = "Refresh token manquant"
	msgInvalidRefresh      = "Refresh token invalide"
	msgForbidden           = "Accès non autorisé"
	msgUserNotFound        = "Utilisateur non trouvé"
	msgResultsNotFound     = "Aucun résultat trouvé"
	msgMalformedJSON       = "JSON mal formé"
	msgRateLimited         = "Trop de requêtes depuis cette IP, veuillez réessayer plus tard."
	msgInternal            = "Erreur interne du serveur"
	msgTicketRequired      = "Ticket manquant"
	msgTicketInvalid       = "Ticket invalide ou expiré"
	msgAuditUnavailable    = "Journal d'audit indisponible"
	msgLogoutSucceeded     = "Déconnexion réussie"
	msgRequestBodyTooLarge = "Requête trop volumineuse"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, msgForbidden)
}

// writeInternalError writes a 500 response. The cause is only exposed in dev mode.
func (s *Server) writeInternalError(w http.ResponseWriter, err error) {
	body := Error{
		Status:  http.StatusInternalServerError,
		Code:    ErrCodeInternal,
		Message: msgInternal,
	}
	if s.cfg.DevMode && err != nil {
		body.Detail = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

// writeDomainError maps package sentinels to HTTP responses. Anything
// unrecognised becomes a 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		writeError(w, http.StatusBadRequest, ErrCodeMissingCredentials, msgMissingCredentials)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, msgInvalidCredentials)
	case errors.Is(err, auth.ErrTokenInvalid):
		writeError(w, http.StatusForbidden, ErrCodeInvalidToken, msgInvalidToken)
	case errors.Is(err, auth.ErrForbidden):
		writeForbidden(w)
	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, msgUserNotFound)
	case errors.Is(err, results.ErrNotFound):
		writeNotFound(w, msgResultsNotFound)
	default:
		s.writeInternalError(w, err)
	}
}

// decodeJSON reads a JSON request body into v. An empty body leaves v
// untouched. It answers the request itself and returns false on malformed or
// oversized input.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, msgRequestBodyTooLarge)
			return false
		}
		writeBadRequest(w, msgMalformedJSON)
		return false
	}
	return true
}
