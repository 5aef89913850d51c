package portal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/auth"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/models"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrClientNotFound     = errors.New("client not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrNoAccounts         = errors.New("no accounts available")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Fallback price shown for legacy rows imported without a cost.
const fallbackPrice = 69

const autoAssignName = "GamePass Client"

// Service is the portal data gateway: every operation is a request-scoped
// set of queries against the injected DB handle. No hidden globals.
type Service struct {
	db          *gorm.DB
	lg          *zap.SugaredLogger
	tokenSecret string
	now         func() time.Time
}

func New(db *gorm.DB, lg *zap.SugaredLogger, tokenSecret string) *Service {
	return &Service{db: db, lg: lg, tokenSecret: tokenSecret, now: time.Now}
}

// WithClock overrides the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type ClientInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type AssignedAccount struct {
	Email      string    `json:"email"`
	Password   string    `json:"password"`
	ExpiryDate time.Time `json:"expiry_date"`
}

type LoginResult struct {
	Token           string           `json:"token"`
	Client          ClientInfo       `json:"client"`
	AccountAssigned *AssignedAccount `json:"account_assigned,omitempty"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) token(c models.Client) (string, error) {
	if s.tokenSecret != "" {
		return auth.SignPortalToken(s.tokenSecret, c.ID)
	}
	return auth.EncodeEmailToken(c.Email), nil
}

// Login authenticates an existing client by email match, verifying the
// password only when both a candidate and a stored hash are present. An
// unknown email triggers automatic account assignment: the client record is
// created and the oldest unassigned inventory account is claimed for it.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	var c models.Client
	err := s.db.WithContext(ctx).First(&c, "email = ?", email).Error
	switch {
	case err == nil:
		if password != "" && c.PasswordHash != "" {
			if auth.CheckPassword(c.PasswordHash, password) != nil {
				return LoginResult{}, ErrInvalidCredentials
			}
		}
		tok, err := s.token(c)
		if err != nil {
			return LoginResult{}, err
		}
		s.audit(ctx, &c.ID, "portal_login", models.Meta(map[string]any{"email": c.Email}))
		return LoginResult{Token: tok, Client: ClientInfo{ID: c.ID, Name: c.Name, Email: c.Email}}, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.assignAccount(ctx, email)
	default:
		return LoginResult{}, err
	}
}

// assignAccount provisions a new client and claims one unassigned account
// for it inside a single transaction. The claim is a conditional UPDATE so
// two concurrent logins can never walk away with the same account: the
// loser sees zero rows affected and moves to the next candidate.
func (s *Service) assignAccount(ctx context.Context, email string) (LoginResult, error) {
	now := s.now()
	c := models.Client{
		ID:        uuid.NewString(),
		Name:      autoAssignName,
		Email:     email,
		Tag:       "auto",
		CreatedAt: now,
		UpdatedAt: now,
	}
	var claimed models.Account

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&c).Error; err != nil {
			if isDuplicate(err) {
				return ErrEmailTaken
			}
			return err
		}
		var candidates []models.Account
		if err := tx.
			Where("sold_to_email IS NULL OR sold_to_email = ''").
			Order("created_at asc, id asc").
			Limit(10).
			Find(&candidates).Error; err != nil {
			return err
		}
		for _, cand := range candidates {
			res := tx.Model(&models.Account{}).
				Where("id = ? AND (sold_to_email IS NULL OR sold_to_email = '')", cand.ID).
				Updates(map[string]any{
					"sold_to_email": email,
					"status":        StatusActive,
					"sold_at":       now,
					"updated_at":    now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				claimed = cand
				return tx.Create(&models.Sale{
					ID:        uuid.NewString(),
					ClientID:  c.ID,
					AccountID: cand.ID,
					Amount:    cand.Cost,
					Kind:      "new",
					CreatedAt: now,
				}).Error
			}
		}
		return ErrNoAccounts
	})
	if err != nil {
		return LoginResult{}, err
	}

	tok, err := s.token(c)
	if err != nil {
		return LoginResult{}, err
	}
	s.audit(ctx, &c.ID, "account_assigned", models.Meta(map[string]any{
		"email":         email,
		"account_email": claimed.Email,
	}))
	s.lg.Infow("account assigned", "client_email", email, "account_email", claimed.Email)
	return LoginResult{
		Token:  tok,
		Client: ClientInfo{ID: c.ID, Name: c.Name, Email: c.Email},
		AccountAssigned: &AssignedAccount{
			Email:      claimed.Email,
			Password:   claimed.Password,
			ExpiryDate: claimed.ExpiryDate,
		},
	}, nil
}

// Register creates a client record for the companion registration flow.
// The password is stored as a bcrypt hash, never as the raw value.
func (s *Service) Register(ctx context.Context, name, email, password, whatsapp string) (models.Client, error) {
	email = normalizeEmail(email)
	var existing models.Client
	err := s.db.WithContext(ctx).Select("id").First(&existing, "email = ?", email).Error
	if err == nil {
		return models.Client{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Client{}, err
	}

	var hash string
	if password != "" {
		hash, err = auth.HashPassword(password)
		if err != nil {
			return models.Client{}, err
		}
	}
	now := s.now()
	c := models.Client{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		Whatsapp:     strings.TrimSpace(whatsapp),
		PasswordHash: hash,
		Tag:          "novo",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		if isDuplicate(err) {
			return models.Client{}, ErrEmailTaken
		}
		return models.Client{}, err
	}
	s.audit(ctx, &c.ID, "portal_register", models.Meta(map[string]any{"email": c.Email}))
	return c, nil
}

// Verify decodes a portal token and re-resolves the client it references.
func (s *Service) Verify(ctx context.Context, token string) (models.Client, error) {
	pt, err := auth.DecodePortalToken(s.tokenSecret, token)
	if err != nil {
		return models.Client{}, auth.ErrInvalidToken
	}
	var c models.Client
	q := s.db.WithContext(ctx)
	if pt.Email != "" {
		err = q.First(&c, "email = ?", normalizeEmail(pt.Email)).Error
	} else {
		err = q.First(&c, "id = ?", pt.ClientID).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Client{}, ErrClientNotFound
		}
		return models.Client{}, err
	}
	return c, nil
}

// resolveEmail maps a client id or raw email to the lookup email. A missing
// client resolves to "", which callers treat as no-data rather than an error.
func (s *Service) resolveEmail(ctx context.Context, idOrEmail string) (string, error) {
	if strings.Contains(idOrEmail, "@") {
		return normalizeEmail(idOrEmail), nil
	}
	var c models.Client
	err := s.db.WithContext(ctx).Select("email").First(&c, "id = ?", idOrEmail).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.Email, nil
}

// AccountView is an account enriched with presentation fields. Status is the
// effective status, not necessarily the stored column.
type AccountView struct {
	models.Account
	DaysLeft int `json:"days_left"`
}

// MyAccount returns the client's current account: the most recently created
// row sold to their email. A nil view with nil error means the client has no
// account, which is a valid end state.
func (s *Service) MyAccount(ctx context.Context, idOrEmail string) (*AccountView, error) {
	email, err := s.resolveEmail(ctx, idOrEmail)
	if err != nil {
		return nil, err
	}
	if email == "" {
		return nil, nil
	}
	var a models.Account
	err = s.db.WithContext(ctx).
		Where("sold_to_email = ?", email).
		Order("created_at desc, id desc").
		Limit(1).
		Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.view(a), nil
}

func (s *Service) view(a models.Account) *AccountView {
	days := DaysLeft(a.ExpiryDate, s.now())
	a.Status = EffectiveStatus(a.Status, days)
	return &AccountView{Account: a, DaysLeft: days}
}

// Purchase is one entry of the purchase history, normalized for display.
type Purchase struct {
	ID           string    `json:"id"`
	AccountEmail string    `json:"account_email"`
	Password     string    `json:"password"`
	ExpiryDate   time.Time `json:"expiry_date"`
	Status       string    `json:"status"`
	DaysLeft     int       `json:"days_left"`
	PurchaseDate time.Time `json:"purchase_date"`
	Price        float64   `json:"price"`
}

// Purchases lists every account ever sold to the identity, newest first.
// An empty slice, not an error, when there is no history.
func (s *Service) Purchases(ctx context.Context, idOrEmail string) ([]Purchase, error) {
	email, err := s.resolveEmail(ctx, idOrEmail)
	if err != nil {
		return nil, err
	}
	out := []Purchase{}
	if email == "" {
		return out, nil
	}
	var accounts []models.Account
	if err := s.db.WithContext(ctx).
		Where("sold_to_email = ?", email).
		Order("created_at desc, id desc").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	now := s.now()
	for _, a := range accounts {
		days := DaysLeft(a.ExpiryDate, now)
		price := a.Cost
		if price == 0 {
			price = fallbackPrice
		}
		out = append(out, Purchase{
			ID:           a.ID,
			AccountEmail: a.Email,
			Password:     a.Password,
			ExpiryDate:   a.ExpiryDate,
			Status:       EffectiveStatus(a.Status, days),
			DaysLeft:     days,
			PurchaseDate: a.CreatedAt,
			Price:        price,
		})
	}
	return out, nil
}

// RecordSale writes a sale event for an already-registered client, used by
// the operator plane before firing the new-sale relay.
func (s *Service) RecordSale(ctx context.Context, clientEmail, paymentID string, amount float64) (models.Sale, models.Client, error) {
	clientEmail = normalizeEmail(clientEmail)
	var c models.Client
	if err := s.db.WithContext(ctx).First(&c, "email = ?", clientEmail).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Sale{}, models.Client{}, ErrClientNotFound
		}
		return models.Sale{}, models.Client{}, err
	}
	var accountID string
	if view, err := s.MyAccount(ctx, clientEmail); err == nil && view != nil {
		accountID = view.ID
	}
	sale := models.Sale{
		ID:        uuid.NewString(),
		ClientID:  c.ID,
		AccountID: accountID,
		Amount:    amount,
		Kind:      "new",
		PaymentID: paymentID,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&sale).Error; err != nil {
		return models.Sale{}, models.Client{}, err
	}
	s.audit(ctx, &c.ID, "sale_recorded", models.Meta(map[string]any{"payment_id": paymentID}))
	return sale, c, nil
}

// Renew pushes an account's expiry forward and records the renewal sale.
func (s *Service) Renew(ctx context.Context, accountID string, newExpiry time.Time, paymentID string, amount float64) (models.Account, error) {
	var a models.Account
	if err := s.db.WithContext(ctx).First(&a, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, err
	}
	now := s.now()
	a.ExpiryDate = newExpiry
	a.Status = StatusActive
	a.UpdatedAt = now
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&a).Error; err != nil {
			return err
		}
		var clientID string
		if a.SoldToEmail != "" {
			var c models.Client
			if tx.Select("id").First(&c, "email = ?", a.SoldToEmail).Error == nil {
				clientID = c.ID
			}
		}
		return tx.Create(&models.Sale{
			ID:        uuid.NewString(),
			ClientID:  clientID,
			AccountID: a.ID,
			Amount:    amount,
			Kind:      "renewal",
			PaymentID: paymentID,
			CreatedAt: now,
		}).Error
	})
	if err != nil {
		return models.Account{}, err
	}
	s.audit(ctx, nil, "account_renewed", models.Meta(map[string]any{
		"account_id": a.ID,
		"payment_id": paymentID,
	}))
	return a, nil
}

func (s *Service) audit(ctx context.Context, clientID *string, action string, meta models.JSONB) {
	entry := models.AuditLog{ClientID: clientID, Action: action, Metadata: meta, CreatedAt: s.now()}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.lg.Warnw("audit write failed", "action", action, "error", err)
	}
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
