package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"authdesk.org/internal/auth"
	"authdesk.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email     string        `json:"email"`
	Password  string        `json:"password"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Role      auth.RoleKind `json:"role"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type invalidateResponse struct {
	Success bool `json:"success"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.svc.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		obs.LoginsTotal.WithLabelValues("denied").Inc()
		handleAuthError(w, r, err)
		return
	}
	obs.LoginsTotal.WithLabelValues("ok").Inc()
	a.audit(r, "auth.login.success", map[string]any{"user_id": result.User.ID})
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.svc.Register(r.Context(), auth.Registration{
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Role:      req.Role,
	})
	if err != nil {
		obs.RegistrationsTotal.WithLabelValues("denied").Inc()
		handleAuthError(w, r, err)
		return
	}
	obs.RegistrationsTotal.WithLabelValues("ok").Inc()
	a.audit(r, "auth.register.success", map[string]any{"user_id": result.User.ID})
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	profile, err := a.svc.Profile(r.Context(), principal.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleValidateToken always answers 200; validity is carried in the body.
func (a *API) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	verdict := a.svc.ValidateToken(r.Context(), req.Token)
	if verdict.Valid {
		obs.TokenValidationsTotal.WithLabelValues("valid").Inc()
	} else {
		obs.TokenValidationsTotal.WithLabelValues("invalid").Inc()
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (a *API) handleInvalidateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	// an empty body means "invalidate my own session token"
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errBodyRequired) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token := req.Token
	if token == "" {
		// default to the caller's own session token
		token, _ = auth.TokenFromContext(r.Context())
	}
	ok := a.svc.InvalidateToken(token)
	if ok {
		obs.TokenInvalidationsTotal.Inc()
		a.audit(r, "auth.logout", nil)
	}
	writeJSON(w, http.StatusOK, invalidateResponse{Success: ok})
}

func (a *API) audit(r *http.Request, event string, fields map[string]any) {
	if a.auditLog != nil {
		a.auditLog.Event(r.Context(), event, fields)
	}
}
