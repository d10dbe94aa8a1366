package registry

import (
	"context"
	"fmt"
)

// NewBuiltinRegistry returns a registry populated with the console's
// standard tool set. The invokers are local stubs standing in for the
// cloud-side implementations; they echo enough structure for chain
// execution, result propagation, and the demo CLI.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()

	r.MustRegister(&ToolSpec{
		Name:        "discover_resources",
		Category:    CategoryProvision,
		Action:      "discover",
		Description: "Enumerate cloud resources in an environment",
		Keywords:    []string{"discover", "inventory", "enumerate", "resources", "list resources"},
		Params: []ParamSpec{
			{Name: "environment", Required: true, Default: "production", Pattern: `\b(production|prod|staging|dev|development|sandbox)\b`},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"environment": args["environment"],
			"resources":   []string{"vpc-main", "eks-cluster-01", "rds-primary", "s3-artifacts"},
			"count":       4,
		}, nil
	})

	r.MustRegister(&ToolSpec{
		Name:        "provision_infrastructure",
		Category:    CategoryProvision,
		Action:      "provision",
		Description: "Provision infrastructure from an approved template",
		Keywords:    []string{"provision", "create", "deploy", "spin up", "infrastructure", "stack"},
		Params: []ParamSpec{
			{Name: "template", Required: true, Prompt: "which infrastructure template to provision"},
			{Name: "environment", Required: true, Default: "staging", Pattern: `\b(production|prod|staging|dev|development|sandbox)\b`},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"stack_id": fmt.Sprintf("stack-%v-%v", args["template"], args["environment"]),
			"status":   "provisioned",
		}, nil
	})

	r.MustRegister(&ToolSpec{
		Name:        "run_compliance_scan",
		Category:    CategoryCompliance,
		Action:      "scan",
		Description: "Run a compliance scan against discovered resources",
		Keywords:    []string{"compliance", "scan", "audit", "controls", "ato", "assess"},
		Params: []ParamSpec{
			{Name: "framework", Required: true, Default: "nist-800-53", Pattern: `\b(nist-800-53|fedramp|cis|soc2|hipaa)\b`},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"framework": args["framework"],
			"findings":  2,
			"passed":    47,
			"scanned":   args["previous_result"],
		}, nil
	})

	r.MustRegister(&ToolSpec{
		Name:        "analyze_costs",
		Category:    CategoryCost,
		Action:      "analyze",
		Description: "Analyze cloud spend for an environment and window",
		Keywords:    []string{"cost", "costs", "spend", "spending", "bill", "billing", "expensive"},
		Params: []ParamSpec{
			{Name: "window_days", Required: true, Default: 30},
			{Name: "environment", Required: false, Pattern: `\b(production|prod|staging|dev|development|sandbox)\b`},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"total_usd":   12840.55,
			"window_days": args["window_days"],
			"top_service": "compute",
		}, nil
	})

	r.MustRegister(&ToolSpec{
		Name:        "generate_cost_report",
		Category:    CategoryReporting,
		Action:      "report",
		Description: "Render a cost analysis into a shareable report",
		Keywords:    []string{"report", "summary", "summarize", "breakdown"},
		Params: []ParamSpec{
			{Name: "format", Required: true, Default: "markdown"},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"format": args["format"],
			"source": args["previous_result"],
			"url":    "reports/cost-latest.md",
		}, nil
	})

	r.MustRegister(&ToolSpec{
		Name:        "request_privilege_elevation",
		Category:    CategoryPrivilege,
		Action:      "elevate",
		Description: "Request temporary elevated access to an environment",
		Keywords:    []string{"privilege", "elevate", "elevation", "admin access", "sudo", "break glass"},
		Params: []ParamSpec{
			{Name: "role", Required: true, Prompt: "which role to elevate to"},
			{Name: "duration_minutes", Required: true, Default: 60},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"role":             args["role"],
			"duration_minutes": args["duration_minutes"],
			"granted":          true,
		}, nil
	})

	return r
}
