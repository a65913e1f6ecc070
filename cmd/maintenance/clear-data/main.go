package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/servicehub/marketplace-backend/internal/config"
	"github.com/servicehub/marketplace-backend/internal/database"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// tables truncated by -all, children first
var tables = []string{
	"payment_audit_logs",
	"payments",
	"bookings",
	"cart_items",
	"popular_services",
	"services",
	"categories",
	"technicians",
	"cities",
	"rate_limit_hits",
	"audit_logs",
	"users",
}

func main() {
	var (
		dbURLFlag string
		all       bool
		force     bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&all, "all", false, "truncate every table instead of running the cleanup jobs")
	flag.BoolVar(&force, "force", false, "allow -all when ENVIRONMENT=production")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// .env is optional; it keeps secrets off the command line
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if all {
		if os.Getenv("ENVIRONMENT") == "production" && !force {
			logger.Fatal("Refusing to truncate a production database without -force")
		}
		truncate(ctx, db, logger)
		return
	}

	users := database.NewUserRepository(db.DB)
	jobs := services.NewCronService(services.CronJobs{
		UserOTPs:    users,
		BookingOTPs: database.NewBookingRepository(db.DB),
		Unverified:  users,
		RateLimits: services.NewRateLimitService(db, config.RateLimitConfig{
			Window: time.Duration(envInt("RATE_LIMIT_WINDOW_MINUTES", 15)) * time.Minute,
		}),
		Audit: services.NewAuditService(db, logger, true),
	}, logger)

	results, err := jobs.RunOnce(ctx)
	if err != nil {
		logger.Fatalf("Cleanup failed: %v", err)
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Cleanup complete:")
	for _, name := range names {
		fmt.Printf("  %s: %d rows\n", name, results[name])
	}
}

func truncate(ctx context.Context, db *database.PostgresDB, logger *logrus.Logger) {
	query := "TRUNCATE TABLE "
	for i, t := range tables {
		if i > 0 {
			query += ", "
		}
		query += t
	}
	query += " RESTART IDENTITY CASCADE"

	if _, err := db.ExecContext(ctx, query); err != nil {
		logger.Fatalf("Failed to truncate tables: %v", err)
	}
	logger.Info("All data cleared (tables truncated, identities reset)")

	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}

func envInt(key string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(os.Getenv(key), "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}
