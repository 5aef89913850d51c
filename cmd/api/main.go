package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/auth"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/httpserver"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/logger"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/models"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/services/portal"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/services/relay"
)

func main() {
	_ = godotenv.Load()
	lg := logger.New()
	defer lg.Sync()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		lg.Fatalw("DATABASE_URL is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		lg.Fatalw("db connect failed", "error", err)
	}
	if err := db.AutoMigrate(
		&models.Role{}, &models.User{}, &models.Session{},
		&models.Client{}, &models.Account{}, &models.Sale{},
		&models.AuditLog{},
	); err != nil {
		lg.Fatalw("automigrate failed", "error", err)
	}
	seedDefaultAdmin(db, lg)
	if os.Getenv("SEED_DEMO") == "1" {
		seedDemoInventory(db, lg)
	}

	svc := portal.New(db, lg, os.Getenv("PORTAL_TOKEN_SECRET"))
	rly := relay.New(relay.Config{
		NewSaleURL: os.Getenv("WEBHOOK_NEW_SALE_URL"),
		RenewalURL: os.Getenv("WEBHOOK_RENEWAL_URL"),
		Secret:     os.Getenv("WEBHOOK_SECRET"),
	}, lg)

	router := httpserver.NewRouter(db, svc, rly, lg, httpserver.Options{
		PortalLink: os.Getenv("PORTAL_LINK"),
	})

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}
	lg.Infow("listening", "port", port)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal(err)
	}
}

func seedDefaultAdmin(db *gorm.DB, lg *zap.SugaredLogger) {
	db.Exec("INSERT INTO roles(name) VALUES ('Administrator') ON CONFLICT DO NOTHING")
	db.Exec("INSERT INTO roles(name) VALUES ('User') ON CONFLICT DO NOTHING")
	var count int64
	db.Model(&models.User{}).Where("LOWER(email)=?", "admin@gamepass.local").Count(&count)
	if count > 0 {
		return
	}
	pw := os.Getenv("ADMIN_PASSWORD")
	if pw == "" {
		pw = "1234"
	}
	hash, _ := auth.HashPassword(pw)
	u := models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower("admin@gamepass.local"),
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(&u).Error; err == nil {
		var adminRole models.Role
		if err := db.First(&adminRole, "name = 'Administrator'").Error; err == nil {
			_ = db.Model(&u).Association("Roles").Append(&adminRole)
		}
	}
	lg.Infow("seeded default admin", "email", "admin@gamepass.local")
}

// seedDemoInventory loads a couple of unassigned accounts so the assignment
// flow has something to hand out in a fresh environment.
func seedDemoInventory(db *gorm.DB, lg *zap.SugaredLogger) {
	var count int64
	db.Model(&models.Account{}).Count(&count)
	if count > 0 {
		return
	}
	now := time.Now()
	for i, email := range []string{"gp-slot1@outlook.com", "gp-slot2@outlook.com"} {
		a := models.Account{
			ID:         uuid.NewString(),
			Email:      email,
			Password:   "changeme",
			ExpiryDate: now.AddDate(0, 1, 0),
			Status:     "available",
			Cost:       69,
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
			UpdatedAt:  now,
		}
		if err := db.Create(&a).Error; err != nil {
			lg.Warnw("demo seed failed", "error", err)
			return
		}
	}
	lg.Infow("seeded demo inventory", "accounts", 2)
}
