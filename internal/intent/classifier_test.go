package intent

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/opsgate/opsgate/api"
	"github.com/opsgate/opsgate/internal/history"
	"github.com/opsgate/opsgate/internal/registry"
)

func testClassifier(t *testing.T, store history.Store) *Classifier {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewClassifier(registry.NewBuiltinRegistry(), store, logger)
}

func TestClassify_SingleTool(t *testing.T) {
	c := testClassifier(t, nil)

	result := c.Classify(context.Background(), "u-1", "run a compliance scan on staging")
	if result.IntentType != api.IntentToolExecution {
		t.Fatalf("expected tool execution, got %s", result.IntentType)
	}
	if result.ToolName != "run_compliance_scan" {
		t.Fatalf("expected run_compliance_scan, got %s", result.ToolName)
	}
	if result.Confidence < 0.4 {
		t.Errorf("actionable intent must clear the confidence floor, got %v", result.Confidence)
	}
	if result.RequiresToolChain {
		t.Error("single clause must not classify as a chain")
	}
	// framework defaults when not mentioned
	if result.Parameters["framework"] != "nist-800-53" {
		t.Errorf("expected default framework, got %v", result.Parameters["framework"])
	}
}

func TestClassify_IsDeterministic(t *testing.T) {
	c := testClassifier(t, nil)

	input := "analyze cloud costs for production"
	first := c.Classify(context.Background(), "u-1", input)
	for i := 0; i < 5; i++ {
		again := c.Classify(context.Background(), "u-1", input)
		if again.ToolName != first.ToolName || again.Confidence != first.Confidence {
			t.Fatalf("classification drifted on run %d: %s/%v vs %s/%v",
				i, again.ToolName, again.Confidence, first.ToolName, first.Confidence)
		}
	}
}

func TestClassify_ChainDetection(t *testing.T) {
	c := testClassifier(t, nil)

	result := c.Classify(context.Background(), "u-1",
		"discover resources in environment=staging and then run a compliance scan")
	if !result.RequiresToolChain {
		t.Fatalf("expected a tool chain, got %+v", result)
	}
	if len(result.ToolChain) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(result.ToolChain))
	}

	first, second := result.ToolChain[0], result.ToolChain[1]
	if first.ToolName != "discover_resources" || second.ToolName != "run_compliance_scan" {
		t.Errorf("unexpected chain order: %s, %s", first.ToolName, second.ToolName)
	}
	if first.StepNumber != 1 || second.StepNumber != 2 {
		t.Errorf("step numbers must be contiguous from 1: %d, %d", first.StepNumber, second.StepNumber)
	}
	if first.DependsOnPrevious {
		t.Error("first step must not depend on a previous step")
	}
	if !second.DependsOnPrevious {
		t.Error("later steps must depend on the previous result")
	}
	if first.Parameters["environment"] != "staging" {
		t.Errorf("explicit key=value parameter lost: %v", first.Parameters)
	}
}

func TestClassify_SameToolTwiceIsNotAChain(t *testing.T) {
	c := testClassifier(t, nil)

	// Both clauses resolve to the same tool; backs off to single-tool.
	result := c.Classify(context.Background(), "u-1", "analyze costs then analyze spend again")
	if result.RequiresToolChain {
		t.Fatalf("repeated tool must not form a chain: %+v", result.ToolChain)
	}
	if result.ToolName != "analyze_costs" {
		t.Errorf("expected single analyze_costs intent, got %s", result.ToolName)
	}
}

func TestClassify_FollowUpForMissingRequiredParam(t *testing.T) {
	c := testClassifier(t, nil)

	result := c.Classify(context.Background(), "u-1", "elevate my privileges")
	if result.ToolName != "request_privilege_elevation" {
		t.Fatalf("expected privilege elevation, got %s", result.ToolName)
	}
	if !result.RequiresFollowUp {
		t.Fatal("missing required role must trigger a follow-up, not an invocation")
	}
	if !strings.Contains(result.FollowUpPrompt, "which role to elevate to") {
		t.Errorf("follow-up should use the parameter prompt, got %q", result.FollowUpPrompt)
	}
	// duration_minutes has a default, so only role is outstanding.
	if result.Parameters["duration_minutes"] != 60 {
		t.Errorf("defaulted parameter missing: %v", result.Parameters)
	}
}

func TestClassify_ExplicitKeyValueWins(t *testing.T) {
	c := testClassifier(t, nil)

	result := c.Classify(context.Background(), "u-1",
		"elevate my privileges role=read-only duration_minutes=15")
	if result.RequiresFollowUp {
		t.Fatalf("all required params supplied, got follow-up: %q", result.FollowUpPrompt)
	}
	if result.Parameters["role"] != "read-only" {
		t.Errorf("role = %v", result.Parameters["role"])
	}
	if result.Parameters["duration_minutes"] != "15" {
		t.Errorf("duration_minutes = %v", result.Parameters["duration_minutes"])
	}
}

func TestClassify_ConversationalFallback(t *testing.T) {
	c := testClassifier(t, nil)

	for _, input := range []string{
		"good morning",
		"thanks, that was helpful",
		"",
	} {
		result := c.Classify(context.Background(), "u-1", input)
		if result.IntentType != api.IntentConversational {
			t.Errorf("%q: expected conversational, got %s (%s)", input, result.IntentType, result.ToolName)
		}
		if result.Confidence >= minConfidence {
			t.Errorf("%q: fallback confidence %v should stay below the floor", input, result.Confidence)
		}
	}
}

func TestClassify_InformationRequest(t *testing.T) {
	c := testClassifier(t, nil)

	result := c.Classify(context.Background(), "u-1", "what did we spend on compute last month?")
	if result.ToolName != "analyze_costs" {
		t.Fatalf("expected analyze_costs, got %s", result.ToolName)
	}
	if result.IntentType != api.IntentInformationRequest {
		t.Errorf("question-shaped cost intent should be an information request, got %s", result.IntentType)
	}
}

func TestClassify_HistoryRaisesConfidence(t *testing.T) {
	store := history.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := store.RecordIntent(ctx, &history.IntentRecord{
			UserID:    "u-1",
			UserInput: "scan again",
			Category:  string(registry.CategoryCompliance),
			Action:    "scan",
			ToolName:  "run_compliance_scan",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	withHistory := testClassifier(t, store)
	without := testClassifier(t, nil)

	input := "run a compliance scan"
	a := withHistory.Classify(ctx, "u-1", input)
	b := without.Classify(ctx, "u-1", input)
	if a.ToolName != b.ToolName {
		t.Fatalf("precedent must not change tool resolution: %s vs %s", a.ToolName, b.ToolName)
	}
	if a.Confidence <= b.Confidence {
		t.Errorf("precedent should raise confidence: %v <= %v", a.Confidence, b.Confidence)
	}

	// Another user's history contributes nothing.
	other := withHistory.Classify(ctx, "u-2", input)
	if other.Confidence != b.Confidence {
		t.Errorf("precedent leaked across users: %v vs %v", other.Confidence, b.Confidence)
	}
}

func TestClassify_ConfidenceCap(t *testing.T) {
	c := testClassifier(t, nil)

	// Pile on every keyword the cost tool knows.
	result := c.Classify(context.Background(), "u-1",
		"cost costs spend spending bill billing expensive environment=production")
	if result.Confidence > 0.95 {
		t.Errorf("confidence must cap at 0.95, got %v", result.Confidence)
	}
}

func TestClassify_Alternatives(t *testing.T) {
	c := testClassifier(t, nil)

	// "report" and "cost" pull toward different tools; both clear the floor.
	result := c.Classify(context.Background(), "u-1", "report on our cloud costs breakdown")
	if len(result.Alternatives) == 0 {
		t.Fatalf("expected ranked alternatives, got none (picked %s)", result.ToolName)
	}
	for _, alt := range result.Alternatives {
		if alt.Confidence > result.Confidence {
			t.Errorf("alternative %s outranks the primary: %v > %v",
				alt.ToolName, alt.Confidence, result.Confidence)
		}
		if alt.ToolName == result.ToolName {
			t.Errorf("primary tool %s repeated in alternatives", alt.ToolName)
		}
	}
}

func TestClassify_PatternExtraction(t *testing.T) {
	c := testClassifier(t, nil)

	result := c.Classify(context.Background(), "u-1", "discover resources in the staging account")
	if result.ToolName != "discover_resources" {
		t.Fatalf("expected discover_resources, got %s", result.ToolName)
	}
	if result.Parameters["environment"] != "staging" {
		t.Errorf("pattern extraction failed: %v", result.Parameters)
	}
}

func TestSplitChain(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"discover resources then scan them", 2},
		{"analyze costs and then generate a report after that email it", 3},
		{"provision a stack", 1},
		{"list resources followed by a compliance audit", 2},
	}
	for _, tc := range cases {
		if got := splitChain(tc.input); len(got) != tc.want {
			t.Errorf("splitChain(%q) = %d segments %v, want %d", tc.input, len(got), got, tc.want)
		}
	}
}
