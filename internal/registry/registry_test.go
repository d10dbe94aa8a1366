package registry

import (
	"context"
	"errors"
	"sort"
	"testing"
)

func TestRegister_Validation(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }

	if err := r.Register(nil, noop); err == nil {
		t.Error("nil spec must be rejected")
	}
	if err := r.Register(&ToolSpec{}, noop); err == nil {
		t.Error("empty tool name must be rejected")
	}
	if err := r.Register(&ToolSpec{Name: "t"}, nil); err == nil {
		t.Error("nil invoker must be rejected")
	}

	if err := r.Register(&ToolSpec{Name: "t"}, noop); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&ToolSpec{Name: "t"}, noop); err == nil {
		t.Error("duplicate registration must be rejected")
	}
}

func TestLookupAndAll(t *testing.T) {
	r := NewBuiltinRegistry()

	spec, ok := r.Lookup("run_compliance_scan")
	if !ok {
		t.Fatal("builtin tool missing")
	}
	if spec.Category != CategoryCompliance || spec.Action != "scan" {
		t.Errorf("unexpected spec: %+v", spec)
	}

	if _, ok := r.Lookup("no_such_tool"); ok {
		t.Error("unknown tool should not resolve")
	}

	all := r.All()
	if len(all) != 6 {
		t.Fatalf("expected 6 builtin tools, got %d", len(all))
	}
	if !sort.SliceIsSorted(all, func(i, j int) bool { return all[i].Name < all[j].Name }) {
		t.Error("All must return specs ordered by name")
	}
}

func TestInvoke(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&ToolSpec{Name: "echo"}, func(_ context.Context, args map[string]any) (any, error) {
		return args["value"], nil
	})

	out, err := r.Invoke(context.Background(), "echo", map[string]any{"value": 42})
	if err != nil {
		t.Fatal(err)
	}
	if out != 42 {
		t.Errorf("Invoke returned %v", out)
	}

	if _, err := r.Invoke(context.Background(), "missing", nil); err == nil {
		t.Error("invoking an unregistered tool must error")
	}
}

func TestInvoke_ErrorPropagates(t *testing.T) {
	r := NewRegistry()
	want := errors.New("backend rejected the request")
	r.MustRegister(&ToolSpec{Name: "failing"}, func(context.Context, map[string]any) (any, error) {
		return nil, want
	})

	if _, err := r.Invoke(context.Background(), "failing", nil); !errors.Is(err, want) {
		t.Errorf("expected the invoker error, got %v", err)
	}
}

func TestRequiredParams(t *testing.T) {
	spec := &ToolSpec{
		Name: "t",
		Params: []ParamSpec{
			{Name: "a", Required: true},
			{Name: "b", Required: true, Default: "x"},
			{Name: "c", Required: false},
		},
	}
	got := spec.RequiredParams()
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("RequiredParams = %v, want [a]", got)
	}
}

func TestBuiltin_ChainResultPropagation(t *testing.T) {
	r := NewBuiltinRegistry()
	ctx := context.Background()

	discovered, err := r.Invoke(ctx, "discover_resources", map[string]any{"environment": "staging"})
	if err != nil {
		t.Fatal(err)
	}

	scanned, err := r.Invoke(ctx, "run_compliance_scan", map[string]any{
		"framework":       "fedramp",
		"previous_result": discovered,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, ok := scanned.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result type %T", scanned)
	}
	if out["framework"] != "fedramp" {
		t.Errorf("framework = %v", out["framework"])
	}
	if out["scanned"] == nil {
		t.Error("scan result should carry the propagated discovery output")
	}
}
