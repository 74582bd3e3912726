package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/adapter/repo"
	"server/internal/infra"
	"server/internal/usage"
)

// usagecredit grants a manual credit adjustment to a user's monthly ledger,
// typically as goodwill after a failed generation that was still debited.
func main() {
	var (
		userFlag   string
		amountFlag int
		reasonFlag string
		jobFlag    string
	)

	flag.StringVar(&userFlag, "user", "", "owner ID to credit")
	flag.IntVar(&amountFlag, "amount", 1, "number of generations to credit back")
	flag.StringVar(&reasonFlag, "reason", "", "why the credit is granted")
	flag.StringVar(&jobFlag, "job", "", "related generation job ID (optional)")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	reason := strings.TrimSpace(reasonFlag)
	if reason == "" {
		exitWithError(errors.New("-reason is required"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "usagecredit").Logger()
	ledger := usage.NewLedger(repo.NewUsageRepository(pool), time.UTC)

	if err := ledger.Credit(ctx, userID, amountFlag, reason, strings.TrimSpace(jobFlag)); err != nil {
		exitWithError(fmt.Errorf("failed to grant credit: %w", err))
	}

	logger.Info().Str("user", userID).Int("amount", amountFlag).Msg("credit granted")
	fmt.Printf("Credited %d generation(s) to %s\n", amountFlag, userID)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
