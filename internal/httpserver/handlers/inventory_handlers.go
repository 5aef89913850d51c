package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/models"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/services/portal"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/services/relay"
)

// CreateAccount loads one unassigned credential into the inventory that the
// automatic assignment flow draws from.
func CreateAccount(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email      string  `json:"email"`
			Password   string  `json:"password"`
			ExpiryDate string  `json:"expiry_date"`
			Cost       float64 `json:"cost"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			http.Error(w, "email and password required", http.StatusBadRequest)
			return
		}
		expiry, err := time.Parse(time.RFC3339, req.ExpiryDate)
		if err != nil {
			http.Error(w, "expiry_date must be RFC3339", http.StatusBadRequest)
			return
		}
		a := models.Account{
			ID:         uuid.NewString(),
			Email:      req.Email,
			Password:   req.Password,
			ExpiryDate: expiry,
			Status:     "available",
			Cost:       req.Cost,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		if err := db.Create(&a).Error; err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		lg.Infow("inventory account added", "account_email", a.Email)
		respondStatus(w, http.StatusCreated, a)
	}
}

// ListAccounts shows the inventory; ?available=1 narrows to unassigned rows.
func ListAccounts(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := db.Order("created_at desc")
		if r.URL.Query().Get("available") == "1" {
			q = q.Where("sold_to_email IS NULL OR sold_to_email = ''")
		}
		var accounts []models.Account
		if err := q.Find(&accounts).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, accounts)
	}
}

// RenewAccount extends an account's expiry, records the renewal sale and
// fires the renewal relay. Relay failure never rolls back the renewal; the
// outcome is reported alongside the updated account.
func RenewAccount(svc *portal.Service, rly *relay.Client, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req struct {
			NewExpiryDate string  `json:"new_expiry_date"`
			PaymentID     string  `json:"payment_id"`
			Amount        float64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		expiry, err := time.Parse(time.RFC3339, req.NewExpiryDate)
		if err != nil {
			http.Error(w, "new_expiry_date must be RFC3339", http.StatusBadRequest)
			return
		}
		a, err := svc.Renew(r.Context(), id, expiry, req.PaymentID, req.Amount)
		if err != nil {
			portalError(w, err)
			return
		}
		res := rly.SendRenewal(r.Context(), relay.RenewalPayload{
			ClientEmail:   a.SoldToEmail,
			NewExpiryDate: a.ExpiryDate.Format(time.RFC3339),
			PaymentID:     req.PaymentID,
		})
		if !res.OK {
			lg.Warnw("renewal relay failed", "account_id", a.ID, "error", res.Error)
		}
		respondJSON(w, map[string]any{"account": a, "relay": res})
	}
}

// RecordSale writes a sale event and fires the new-sale relay best-effort.
func RecordSale(svc *portal.Service, rly *relay.Client, portalLink string, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ClientEmail string  `json:"client_email"`
			PaymentID   string  `json:"payment_id"`
			Amount      float64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.ClientEmail == "" || req.PaymentID == "" {
			http.Error(w, "client_email and payment_id required", http.StatusBadRequest)
			return
		}
		sale, c, err := svc.RecordSale(r.Context(), req.ClientEmail, req.PaymentID, req.Amount)
		if err != nil {
			portalError(w, err)
			return
		}
		payload := relay.NewSalePayload{
			ClientName:     c.Name,
			ClientEmail:    c.Email,
			ClientWhatsapp: c.Whatsapp,
			PortalLink:     portalLink,
			PaymentID:      req.PaymentID,
		}
		if view, err := svc.MyAccount(r.Context(), c.Email); err == nil && view != nil {
			payload.ExpiryDate = view.ExpiryDate.Format(time.RFC3339)
			payload.AccountEmail = view.Email
			payload.AccountPassword = view.Password
		}
		res := rly.SendNewSale(r.Context(), payload)
		if !res.OK {
			lg.Warnw("new-sale relay failed", "sale_id", sale.ID, "error", res.Error)
		}
		respondStatus(w, http.StatusCreated, map[string]any{"sale": sale, "relay": res})
	}
}

func ListClients(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cs []models.Client
		if err := db.Order("created_at desc").Find(&cs).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, cs)
	}
}

func ListSales(db *gorm.DB, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sales []models.Sale
		if err := db.Order("created_at desc").Limit(200).Find(&sales).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, sales)
	}
}
