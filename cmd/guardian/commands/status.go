package commands

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/wonny/guardian/internal/exitengine"
	"github.com/wonny/guardian/pkg/config"
)

// statusCmd queries a running engine over its HTTP API
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "실행 중인 엔진 상태 조회",
	Long: `실행 중인 엔진의 상태 API를 조회합니다.

Example:
  go run ./cmd/guardian status
  go run ./cmd/guardian status --port 8099`,
	RunE: runStatus,
}

var statusPort string

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusPort, "port", "", "상태 API 포트 (기본: PORT 환경변수)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	port := cfg.Port
	if statusPort != "" {
		port = statusPort
	}

	client := resty.New().
		SetBaseURL(fmt.Sprintf("http://localhost:%s", port)).
		SetTimeout(5 * time.Second)

	var status exitengine.Status
	resp, err := client.R().
		SetResult(&status).
		Get("/api/engine/status")
	if err != nil {
		return fmt.Errorf("engine unreachable on port %s: %w", port, err)
	}
	if resp.IsError() {
		return fmt.Errorf("engine returned %s", resp.Status())
	}

	fmt.Println("=== Engine Status ===")
	fmt.Printf("running:         %v\n", status.Running)
	fmt.Printf("cycles:          %d\n", status.CycleCount)
	if !status.LastCycleAt.IsZero() {
		fmt.Printf("last cycle:      %s (%s)\n",
			status.LastCycleAt.Format(time.RFC3339), status.LastCycleDuration)
	}
	fmt.Printf("active rules:    %d\n", status.ActiveRules)

	return nil
}
