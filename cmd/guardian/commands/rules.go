package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/guardian/internal/exitengine"
	"github.com/wonny/guardian/pkg/config"
	"github.com/wonny/guardian/pkg/database"
	"github.com/wonny/guardian/pkg/logger"
)

// rulesCmd lists persisted protection rules
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "영속화된 보호 규칙 조회",
	Long: `데이터베이스에 저장된 보호 규칙을 조회합니다.

엔진이 실행 중이 아니어도 사용할 수 있습니다.

Example:
  go run ./cmd/guardian rules`,
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}

func runRules(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := exitengine.NewRepository(db.Pool)
	rules, err := repo.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	fmt.Println("=== Protection Rules ===")
	if len(rules) == 0 {
		fmt.Println("(없음)")
		return nil
	}

	fmt.Printf("%-10s %-10s %-5s %-9s %-12s %-12s %-12s %-4s %-4s\n",
		"TICKET", "SYMBOL", "DIR", "STATE", "ENTRY", "STOP", "TARGET", "BE", "PT")
	for _, r := range rules {
		fmt.Printf("%-10d %-10s %-5s %-9s %-12.5f %-12.5f %-12.5f %-4s %-4s\n",
			r.Ticket, r.Symbol, r.Direction, r.State(),
			r.EntryPrice, r.InitialStop, r.InitialTarget,
			checkMark(r.BreakevenTriggered), checkMark(r.PartialDone))
	}
	fmt.Printf("\n총 %d개\n", len(rules))

	log.WithField("count", len(rules)).Debug("Rules listed")
	return nil
}

func checkMark(done bool) string {
	if done {
		return "✅"
	}
	return "-"
}
