package models

import "time"

// Client is a portal user, identified primarily by purchase email.
type Client struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Whatsapp     string    `json:"whatsapp"`
	PasswordHash string    `json:"-"`
	Tag          string    `gorm:"default:novo" json:"tag"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Account is a leased subscription credential. An account is unassigned
// inventory while SoldToEmail is empty; once claimed it belongs to the
// client whose email matches SoldToEmail.
type Account struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	Email       string     `gorm:"not null" json:"email"`
	Password    string     `gorm:"not null" json:"password"`
	ExpiryDate  time.Time  `json:"expiry_date"`
	Status      string     `gorm:"default:available" json:"status"`
	Cost        float64    `json:"cost"`
	SoldToEmail string     `gorm:"index" json:"sold_to_email"`
	SoldAt      *time.Time `json:"sold_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Sale records a purchase or renewal event for bookkeeping and for the
// outbound relay payloads. Purchase history shown to clients is read off
// accounts directly, not off sales.
type Sale struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID  string    `gorm:"type:uuid;index" json:"client_id"`
	AccountID string    `gorm:"type:uuid;index" json:"account_id"`
	Amount    float64   `json:"amount"`
	Kind      string    `gorm:"not null;default:new" json:"kind"`
	PaymentID string    `json:"payment_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Role struct {
	ID   int    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// User is an operator of the admin plane, not a portal client.
type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	Roles        []Role    `gorm:"many2many:user_roles" json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Session struct {
	JTI       string     `gorm:"primaryKey;size:64" json:"jti"`
	UserID    string     `gorm:"type:uuid;index;not null" json:"user_id"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type AuditLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    *string   `gorm:"type:uuid" json:"user_id,omitempty"`
	ClientID  *string   `gorm:"type:uuid" json:"client_id,omitempty"`
	Action    string    `gorm:"not null" json:"action"`
	Metadata  JSONB     `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}
