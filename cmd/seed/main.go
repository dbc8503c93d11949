package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/reachkit/reach/config"
	"github.com/reachkit/reach/internal/domain/entity"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	dsn := cfg.PostgresDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	seeds := []struct {
		email  string
		name   string
		source string
	}{
		{"demo@example.com", "Demo Reader", "landing_page"},
		{"quiet@example.com", "Quiet One", "footer_form"},
		{"verified@example.com", "Verified Vera", "landing_page"},
	}

	for _, s := range seeds {
		uid := entity.NewUID()
		var out string
		err = db.QueryRow(`
			INSERT INTO subscribers (uid, email, name, source)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
			RETURNING uid
		`, uid, s.email, s.name, s.source).Scan(&out)
		if err != nil {
			log.Fatalf("failed to seed subscriber %s: %v", s.email, err)
		}
		fmt.Printf("seeded subscriber: uid=%s email=%s\n", out, s.email)
	}

	// One pre-verified record, and one fully unsubscribed one.
	if _, err := db.Exec(`UPDATE subscribers SET email_verified = true WHERE email = $1`, "verified@example.com"); err != nil {
		log.Fatalf("failed to mark verified: %v", err)
	}
	if _, err := db.Exec(`
		UPDATE subscribers
		SET pref_marketing = false, pref_product = false, pref_content = false
		WHERE email = $1
	`, "quiet@example.com"); err != nil {
		log.Fatalf("failed to unsubscribe seed: %v", err)
	}
	fmt.Println("seed complete")
}
