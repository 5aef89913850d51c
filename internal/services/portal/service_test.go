package portal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/auth"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Role{}, &models.User{}, &models.Session{},
		&models.Client{}, &models.Account{}, &models.Sale{},
		&models.AuditLog{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	svc := New(db, zap.NewNop().Sugar(), "").WithClock(func() time.Time { return testNow })
	return svc, db
}

func seedInventory(t *testing.T, db *gorm.DB, email string, createdAt time.Time) models.Account {
	t.Helper()
	a := models.Account{
		ID:         uuid.NewString(),
		Email:      email,
		Password:   "pw-" + email,
		ExpiryDate: testNow.AddDate(0, 1, 0),
		Status:     "available",
		Cost:       69,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

func soldAccount(t *testing.T, db *gorm.DB, owner string, createdAt, expiry time.Time, cost float64) models.Account {
	t.Helper()
	a := models.Account{
		ID:          uuid.NewString(),
		Email:       "acct-" + uuid.NewString()[:8] + "@outlook.com",
		Password:    "pw",
		ExpiryDate:  expiry,
		Status:      StatusActive,
		Cost:        cost,
		SoldToEmail: owner,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("seed sold account: %v", err)
	}
	return a
}

func TestRegisterLoginVerifyRoundTrip(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	c, err := svc.Register(ctx, "Joao", "Joao@Example.com ", "hunter2", "+5511999999999")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if c.Email != "joao@example.com" {
		t.Errorf("email = %q, want normalized", c.Email)
	}
	if c.PasswordHash == "" || c.PasswordHash == "hunter2" {
		t.Errorf("password must be stored hashed, got %q", c.PasswordHash)
	}

	res, err := svc.Login(ctx, "joao@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Client.ID != c.ID {
		t.Errorf("login client id = %q, want %q", res.Client.ID, c.ID)
	}
	if res.AccountAssigned != nil {
		t.Error("existing client login must not assign an account")
	}

	got, err := svc.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("verify client id = %q, want %q", got.ID, c.ID)
	}

	// The legacy id-based format resolves to the same client.
	got, err = svc.Verify(ctx, "mock-token-"+c.ID)
	if err != nil {
		t.Fatalf("Verify legacy: %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("legacy verify client id = %q, want %q", got.ID, c.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "A", "dup@example.com", "pw", ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(ctx, "B", "DUP@example.com", "pw", ""); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("err = %v, want ErrEmailTaken", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "A", "a@example.com", "right", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Login(ctx, "a@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
	// Email-only login stays valid: the password check only applies when a
	// candidate is supplied.
	if _, err := svc.Login(ctx, "a@example.com", ""); err != nil {
		t.Errorf("email-only login: %v", err)
	}
}

func TestLoginAssignsOldestAccount(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()
	old := seedInventory(t, db, "slot1@outlook.com", testNow.Add(-2*time.Hour))
	seedInventory(t, db, "slot2@outlook.com", testNow.Add(-1*time.Hour))

	res, err := svc.Login(ctx, "newbuyer@example.com", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.AccountAssigned == nil {
		t.Fatal("expected an assigned account")
	}
	if res.AccountAssigned.Email != "slot1@outlook.com" {
		t.Errorf("assigned = %q, want oldest slot1", res.AccountAssigned.Email)
	}

	var a models.Account
	if err := db.First(&a, "id = ?", old.ID).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if a.SoldToEmail != "newbuyer@example.com" {
		t.Errorf("sold_to_email = %q", a.SoldToEmail)
	}
	if a.Status != StatusActive {
		t.Errorf("status = %q, want active", a.Status)
	}

	var sales []models.Sale
	if err := db.Where("account_id = ?", old.ID).Find(&sales).Error; err != nil {
		t.Fatalf("load sales: %v", err)
	}
	if len(sales) != 1 || sales[0].Kind != "new" {
		t.Errorf("sales = %+v, want one 'new' record", sales)
	}

	// The token round-trips back to the provisioned client.
	got, err := svc.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.Email != "newbuyer@example.com" {
		t.Errorf("client email = %q", got.Email)
	}
}

func TestAssignmentExhaustsInventory(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()
	seedInventory(t, db, "only@outlook.com", testNow.Add(-time.Hour))

	first, err := svc.Login(ctx, "buyer-a@example.com", "")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if first.AccountAssigned == nil {
		t.Fatal("first buyer should get the account")
	}

	_, err = svc.Login(ctx, "buyer-b@example.com", "")
	if !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("second login err = %v, want ErrNoAccounts", err)
	}

	// The losing login must leave no half-provisioned client behind.
	var count int64
	db.Model(&models.Client{}).Where("email = ?", "buyer-b@example.com").Count(&count)
	if count != 0 {
		t.Errorf("client rows for loser = %d, want 0", count)
	}
	// And the single account still belongs to the winner.
	var a models.Account
	if err := db.Take(&a, "email = ?", "only@outlook.com").Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if a.SoldToEmail != "buyer-a@example.com" {
		t.Errorf("sold_to_email = %q, want buyer-a", a.SoldToEmail)
	}
}

func TestClaimIsConditional(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()
	a := seedInventory(t, db, "contested@outlook.com", testNow.Add(-time.Hour))

	// Simulate a concurrent winner by claiming the row out from under the
	// assignment before it runs.
	res := db.Model(&models.Account{}).
		Where("id = ? AND (sold_to_email IS NULL OR sold_to_email = '')", a.ID).
		Updates(map[string]any{"sold_to_email": "racer@example.com", "status": StatusActive})
	if res.Error != nil || res.RowsAffected != 1 {
		t.Fatalf("pre-claim failed: %v rows=%d", res.Error, res.RowsAffected)
	}

	if _, err := svc.Login(ctx, "late@example.com", ""); !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("err = %v, want ErrNoAccounts", err)
	}
}

func TestMyAccountPicksNewest(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()
	owner := "owner@example.com"
	soldAccount(t, db, owner, testNow.AddDate(0, -2, 0), testNow.AddDate(0, -1, 0), 69)
	newest := soldAccount(t, db, owner, testNow.AddDate(0, 0, -3), testNow.AddDate(0, 0, 20), 89)

	view, err := svc.MyAccount(ctx, owner)
	if err != nil {
		t.Fatalf("MyAccount: %v", err)
	}
	if view == nil {
		t.Fatal("view should not be nil")
	}
	if view.ID != newest.ID {
		t.Errorf("account id = %q, want newest %q", view.ID, newest.ID)
	}
	if view.DaysLeft != 20 {
		t.Errorf("days_left = %d, want 20", view.DaysLeft)
	}
	if view.Status != StatusActive {
		t.Errorf("status = %q, want active", view.Status)
	}
}

func TestMyAccountNoneIsNotAnError(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()
	c, err := svc.Register(ctx, "Empty", "empty@example.com", "pw", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	view, err := svc.MyAccount(ctx, c.ID)
	if err != nil {
		t.Fatalf("MyAccount: %v", err)
	}
	if view != nil {
		t.Errorf("view = %+v, want nil", view)
	}

	// Unknown identifiers also resolve to no data, not an error.
	view, err = svc.MyAccount(ctx, uuid.NewString())
	if err != nil || view != nil {
		t.Errorf("unknown id: view=%v err=%v, want nil/nil", view, err)
	}
}

func TestPurchasesOrderingAndFallbackPrice(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()
	owner := "history@example.com"
	soldAccount(t, db, owner, testNow.AddDate(0, -3, 0), testNow.AddDate(0, -2, 0), 0)
	soldAccount(t, db, owner, testNow.AddDate(0, -1, 0), testNow.AddDate(0, 0, 5), 79)
	soldAccount(t, db, owner, testNow.AddDate(0, -2, 0), testNow.AddDate(0, -1, 0), 69)

	list, err := svc.Purchases(ctx, owner)
	if err != nil {
		t.Fatalf("Purchases: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].PurchaseDate.After(list[i-1].PurchaseDate) {
			t.Errorf("purchases out of order at %d: %v after %v", i, list[i].PurchaseDate, list[i-1].PurchaseDate)
		}
	}
	if list[0].Price != 79 {
		t.Errorf("price = %v, want 79", list[0].Price)
	}
	if list[0].Status != StatusExpiring {
		t.Errorf("status = %q, want expiring", list[0].Status)
	}
	if list[2].Price != 69 {
		t.Errorf("fallback price = %v, want 69", list[2].Price)
	}
	if list[1].Status != StatusExpired {
		t.Errorf("status = %q, want expired", list[1].Status)
	}
}

func TestPurchasesEmpty(t *testing.T) {
	svc, _ := testService(t)
	list, err := svc.Purchases(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("Purchases: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len = %d, want 0", len(list))
	}
}

func TestVerifyErrors(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.Verify(ctx, "garbage"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
	tok := auth.EncodeEmailToken("ghost@example.com")
	if _, err := svc.Verify(ctx, tok); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("err = %v, want ErrClientNotFound", err)
	}
	if _, err := svc.Verify(ctx, "mock-token-"+uuid.NewString()); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("err = %v, want ErrClientNotFound", err)
	}
}

func TestRenewRecordsSaleAndExtendsExpiry(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()
	c, err := svc.Register(ctx, "R", "renew@example.com", "pw", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	a := soldAccount(t, db, c.Email, testNow.AddDate(0, -1, 0), testNow.AddDate(0, 0, 2), 69)

	newExpiry := testNow.AddDate(0, 1, 0)
	got, err := svc.Renew(ctx, a.ID, newExpiry, "pay-renew-1", 69)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if !got.ExpiryDate.Equal(newExpiry) {
		t.Errorf("expiry = %v, want %v", got.ExpiryDate, newExpiry)
	}
	var sale models.Sale
	if err := db.Take(&sale, "account_id = ? AND kind = 'renewal'", a.ID).Error; err != nil {
		t.Fatalf("renewal sale not recorded: %v", err)
	}
	if sale.ClientID != c.ID {
		t.Errorf("sale client = %q, want %q", sale.ClientID, c.ID)
	}
	if sale.PaymentID != "pay-renew-1" {
		t.Errorf("payment id = %q", sale.PaymentID)
	}

	if _, err := svc.Renew(ctx, uuid.NewString(), newExpiry, "p", 0); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestRecordSale(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()
	c, err := svc.Register(ctx, "S", "sale@example.com", "pw", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	a := soldAccount(t, db, c.Email, testNow.AddDate(0, 0, -1), testNow.AddDate(0, 1, 0), 99)

	sale, gotClient, err := svc.RecordSale(ctx, "sale@example.com", "pay-9", 99)
	if err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	if gotClient.ID != c.ID {
		t.Errorf("client id = %q, want %q", gotClient.ID, c.ID)
	}
	if sale.AccountID != a.ID {
		t.Errorf("sale account = %q, want %q", sale.AccountID, a.ID)
	}

	if _, _, err := svc.RecordSale(ctx, "missing@example.com", "pay-10", 0); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("err = %v, want ErrClientNotFound", err)
	}
}

func TestSignedTokenMode(t *testing.T) {
	db := testDB(t)
	svc := New(db, zap.NewNop().Sugar(), "portal-secret").WithClock(func() time.Time { return testNow })
	ctx := context.Background()

	c, err := svc.Register(ctx, "J", "jwt@example.com", "pw", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	res, err := svc.Login(ctx, "jwt@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	got, err := svc.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("client id = %q, want %q", got.ID, c.ID)
	}
	// Legacy formats still verify in signed mode.
	if _, err := svc.Verify(ctx, auth.EncodeEmailToken("jwt@example.com")); err != nil {
		t.Errorf("legacy email token: %v", err)
	}
}
