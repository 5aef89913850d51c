package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/auth"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/services/portal"
)

// portalError maps gateway errors to status codes; the message itself is
// always the user-presentable string.
func portalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, portal.ErrEmailTaken):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, portal.ErrNoAccounts):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, portal.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, auth.ErrInvalidToken):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, portal.ErrClientNotFound), errors.Is(err, portal.ErrAccountNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func PortalLogin(svc *portal.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Email) == "" {
			http.Error(w, "email required", http.StatusBadRequest)
			return
		}
		res, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			portalError(w, err)
			return
		}
		respondJSON(w, res)
	}
}

func PortalRegister(svc *portal.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
			Whatsapp string `json:"whatsapp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Email) == "" {
			http.Error(w, "email required", http.StatusBadRequest)
			return
		}
		c, err := svc.Register(r.Context(), req.Name, req.Email, req.Password, req.Whatsapp)
		if err != nil {
			portalError(w, err)
			return
		}
		respondStatus(w, http.StatusCreated, c)
	}
}

// Me returns the client behind the verified portal token.
func Me(svc *portal.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromContext(r.Context())
		respondJSON(w, portal.ClientInfo{ID: id.ClientID, Name: id.Name, Email: id.Email})
	}
}

// MyAccount responds with the enriched current account, or a JSON null when
// the client has none.
func MyAccount(svc *portal.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromContext(r.Context())
		view, err := svc.MyAccount(r.Context(), id.ClientID)
		if err != nil {
			portalError(w, err)
			return
		}
		respondJSON(w, view)
	}
}

func MyPurchases(svc *portal.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromContext(r.Context())
		list, err := svc.Purchases(r.Context(), id.ClientID)
		if err != nil {
			portalError(w, err)
			return
		}
		respondJSON(w, list)
	}
}
