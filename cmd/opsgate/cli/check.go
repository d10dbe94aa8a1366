package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/api"
	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/governance"
)

var (
	checkTool  string
	checkArgs  string
	checkRules string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run a governance check for a tool call",
	Long: `Check what decision a tool invocation would receive without executing
anything. Useful for testing and debugging governance rules.`,
	Example: `  opsgate check --rules rules.yaml --tool provision_infrastructure --args '{"environment":"production"}'
  opsgate check -c settings.yaml --tool analyze_costs`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkTool, "tool", "", "tool name to check")
	checkCmd.Flags().StringVar(&checkArgs, "args", "", "JSON arguments")
	checkCmd.Flags().StringVar(&checkRules, "rules", "", "rule file (overrides settings)")
	_ = checkCmd.MarkFlagRequired("tool")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	rulesPath := cfg.RulesPath
	if checkRules != "" {
		rulesPath = checkRules
	}

	engine := governance.NewRuleEngine(rulesPath, governance.Options{
		EnforcePolicies:  cfg.EnforcePolicies,
		RequireApprovals: cfg.RequireApprovals,
	}, logger)

	call := &api.ToolCall{Name: checkTool}
	if checkArgs != "" {
		if err := json.Unmarshal([]byte(checkArgs), &call.Arguments); err != nil {
			return fmt.Errorf("parsing --args: %w", err)
		}
	}

	result, err := engine.CheckPolicy(context.Background(), call)
	if err != nil {
		return fmt.Errorf("evaluation error: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
