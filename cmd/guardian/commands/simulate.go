package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/guardian/internal/risk"
)

// simulateCmd runs the outcome simulator from the command line
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "청산 결과 확률 추정",
	Long: `랜덤워크 모델로 손절/목표 도달 확률을 추정합니다.

닫힌 형태 해와 몬테카를로 경로 추정을 함께 출력합니다.
트렌드를 모르는 근사 모델이므로 참고용입니다.

Example:
  go run ./cmd/guardian simulate --entry 3950 --stop 3944 --target 3955 --atr 2.0`,
	RunE: runSimulate,
}

var (
	simEntry  float64
	simStop   float64
	simTarget float64
	simATR    float64
	simPaths  int
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().Float64Var(&simEntry, "entry", 0, "진입가")
	simulateCmd.Flags().Float64Var(&simStop, "stop", 0, "손절가")
	simulateCmd.Flags().Float64Var(&simTarget, "target", 0, "목표가")
	simulateCmd.Flags().Float64Var(&simATR, "atr", 0, "ATR")
	simulateCmd.Flags().IntVar(&simPaths, "paths", 10000, "몬테카를로 경로 수")
	_ = simulateCmd.MarkFlagRequired("entry")
	_ = simulateCmd.MarkFlagRequired("stop")
	_ = simulateCmd.MarkFlagRequired("target")
	_ = simulateCmd.MarkFlagRequired("atr")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	analytic, err := risk.Simulate(simEntry, simStop, simTarget, simATR)
	if err != nil {
		return err
	}

	fmt.Println("=== Outcome Simulation ===")
	fmt.Printf("entry=%.5f stop=%.5f target=%.5f atr=%.5f\n\n", simEntry, simStop, simTarget, simATR)
	fmt.Printf("closed-form:  %s\n", analytic)

	mc := risk.NewMonteCarloSimulator(risk.MonteCarloConfig{NumPaths: simPaths, MaxSteps: 200_000})
	estimated, err := mc.Estimate(simEntry, simStop, simTarget, simATR)
	if err != nil {
		return err
	}
	fmt.Printf("monte-carlo:  %s (%d paths)\n", estimated, simPaths)

	return nil
}
