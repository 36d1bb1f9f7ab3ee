package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/noah-isme/greenmart/internal/auth"
	"github.com/noah-isme/greenmart/internal/db"
)

type seedVoucher struct {
	Code     string
	Kind     string
	Value    int64
	MinOrder int64
	Days     int
	MaxUsage sql.NullInt32
}

var demoVouchers = []seedVoucher{
	{Code: "GREEN10", Kind: "percent", Value: 10, MinOrder: 100000, Days: 30},
	{Code: "FRESH50K", Kind: "amount", Value: 50000, MinOrder: 300000, Days: 30, MaxUsage: sql.NullInt32{Int32: 500, Valid: true}},
	{Code: "VEGGIE20", Kind: "percent", Value: 20, MinOrder: 250000, Days: 14, MaxUsage: sql.NullInt32{Int32: 200, Valid: true}},
	{Code: "FREESHIP", Kind: "amount", Value: 25000, MinOrder: 0, Days: 7},
	{Code: "WELCOME15K", Kind: "amount", Value: 15000, MinOrder: 150000, Days: 90},
}

func main() {
	migrate := flag.Bool("migrate", true, "apply embedded migrations before seeding")
	demoUser := flag.String("user", "demo-shopper", "user id that receives a starter voucher; empty skips")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	if *migrate {
		if err := db.Migrate(dbURL); err != nil {
			log.Fatalf("Failed to migrate: %v", err)
		}
	}

	conn, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer conn.Close()

	if err := conn.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedVouchers(conn)
	if user := strings.TrimSpace(*demoUser); user != "" {
		seedWallet(conn, user)
		printTokens(user)
	}

	log.Println("Seeding completed successfully!")
}

func seedVouchers(conn *sql.DB) {
	fmt.Println("Seeding Vouchers...")
	for _, v := range demoVouchers {
		_, err := conn.Exec(`
			INSERT INTO vouchers (code, discount_type, discount_value, min_order, expires_at, is_active, max_usage)
			VALUES ($1, $2, $3, $4, NOW() + make_interval(days => $5), true, $6)
			ON CONFLICT (code) DO UPDATE SET expires_at = EXCLUDED.expires_at, is_active = true, updated_at = NOW();
		`, v.Code, v.Kind, v.Value, v.MinOrder, v.Days, v.MaxUsage)
		if err != nil {
			log.Printf("Failed to seed voucher %s: %v", v.Code, err)
		}
	}
}

func seedWallet(conn *sql.DB, userID string) {
	fmt.Println("Seeding Wallet...")
	_, err := conn.Exec(`
		INSERT INTO user_vouchers (user_id, voucher_id, quantity)
		SELECT $1, id, 1 FROM vouchers WHERE code = 'WELCOME15K'
		ON CONFLICT (user_id, voucher_id) DO NOTHING;
	`, userID)
	if err != nil {
		log.Printf("Failed to seed wallet for %s: %v", userID, err)
	}
}

// printTokens mints local access tokens so the API can be exercised right after seeding.
func printTokens(userID string) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Println("JWT_SECRET not set, skipping dev tokens")
		return
	}
	svc, err := auth.NewService(auth.Config{
		Secret:   secret,
		Issuer:   os.Getenv("JWT_ISSUER"),
		Audience: os.Getenv("JWT_AUDIENCE"),
	})
	if err != nil {
		log.Printf("Failed to build token service: %v", err)
		return
	}
	shopper, _, err := svc.IssueAccessToken(userID)
	if err != nil {
		log.Printf("Failed to issue shopper token: %v", err)
		return
	}
	admin, _, err := svc.IssueAccessToken("demo-admin", auth.RoleAdmin)
	if err != nil {
		log.Printf("Failed to issue admin token: %v", err)
		return
	}
	fmt.Printf("shopper token (%s): %s\n", userID, shopper)
	fmt.Printf("admin token: %s\n", admin)
}
