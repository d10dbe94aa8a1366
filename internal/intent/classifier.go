// Package intent maps free-form user input to a structured, actionable
// intent: a single tool call, an ordered tool chain, or a conversational
// fallback. The classifier is deliberately a deterministic signal
// combiner — keyword matches, parameter compatibility, and the user's
// recent history each contribute to confidence — so the same input always
// classifies the same way. An ML/LLM scorer can replace the keyword signal
// without changing the contract.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/opsgate/opsgate/api"
	"github.com/opsgate/opsgate/internal/history"
	"github.com/opsgate/opsgate/internal/registry"
)

const (
	// minConfidence is the floor below which input classifies as
	// conversational rather than actionable.
	minConfidence = 0.4

	// conversationalConfidence is reported for unrecognized input.
	conversationalConfidence = 0.2

	// historyWindow is how many recent records feed the precedent signal.
	historyWindow = 10
)

// chainSplit separates sequential clauses: "discover resources then scan
// them", "analyze costs and then generate a report".
var chainSplit = regexp.MustCompile(`(?i)\b(?:and\s+then|then|after\s+that|followed\s+by)\b`)

// kvToken extracts explicit key=value parameters from input.
var kvToken = regexp.MustCompile(`\b(\w+)=([\w./:-]+)`)

var questionPrefixes = []string{"what", "how", "show", "list", "why", "when", "which", "where"}

// Classifier resolves user input against the tool registry.
type Classifier struct {
	registry *registry.Registry
	store    history.Store
	logger   *slog.Logger

	// compiled parameter extraction patterns, keyed tool:param
	patterns map[string]*regexp.Regexp
}

// NewClassifier creates a classifier over the given registry. The history
// store is optional; without it the precedent signal contributes nothing.
func NewClassifier(reg *registry.Registry, store history.Store, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{
		registry: reg,
		store:    store,
		logger:   logger,
		patterns: make(map[string]*regexp.Regexp),
	}
	for _, spec := range reg.All() {
		for _, p := range spec.Params {
			if p.Pattern != "" {
				// Patterns are part of the builtin specs; a bad one is a
				// programming error, not user input.
				c.patterns[spec.Name+":"+p.Name] = regexp.MustCompile(`(?i)` + p.Pattern)
			}
		}
	}
	return c
}

// Classify maps one user turn to an intent. It never fails on
// unrecognized input: anything it cannot resolve is conversational with
// low confidence.
func (c *Classifier) Classify(ctx context.Context, userID, input string) *api.IntentResult {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return conversational(userID, "empty input")
	}

	recentCategories := c.recentCategories(ctx, userID)

	// Sequential clauses with distinct resolvable tools become a chain.
	if segments := splitChain(normalized); len(segments) > 1 {
		if result := c.classifyChain(userID, segments, recentCategories); result != nil {
			return result
		}
	}

	scores := c.scoreAll(normalized, recentCategories)
	if len(scores) == 0 || scores[0].confidence < minConfidence {
		return conversational(userID, "no tool matched the request")
	}

	best := scores[0]
	params, missing := c.extractParams(best.spec, normalized)

	result := &api.IntentResult{
		IntentType: api.IntentToolExecution,
		Category:   string(best.spec.Category),
		Action:     best.spec.Action,
		Confidence: best.confidence,
		ToolName:   best.spec.Name,
		Parameters: params,
		Reasoning:  best.reasoning,
		UserID:     userID,
	}

	if isQuestion(normalized) &&
		(best.spec.Category == registry.CategoryCost || best.spec.Category == registry.CategoryReporting) {
		result.IntentType = api.IntentInformationRequest
	}

	for _, alt := range scores[1:] {
		if alt.confidence < minConfidence {
			break
		}
		result.Alternatives = append(result.Alternatives, api.Alternative{
			ToolName:   alt.spec.Name,
			Confidence: alt.confidence,
		})
	}

	if len(missing) > 0 {
		result.RequiresFollowUp = true
		result.FollowUpPrompt = followUpPrompt(best.spec, missing)
	}

	return result
}

// classifyChain resolves each clause to a tool; it backs off to single-tool
// classification (nil return) unless at least two distinct tools resolve.
func (c *Classifier) classifyChain(userID string, segments []string, recentCategories map[string]bool) *api.IntentResult {
	type resolved struct {
		spec       *registry.ToolSpec
		confidence float64
		params     map[string]any
		missing    []string
		text       string
	}

	var steps []resolved
	distinct := make(map[string]bool)
	for _, seg := range segments {
		scores := c.scoreAll(seg, recentCategories)
		if len(scores) == 0 || scores[0].confidence < minConfidence {
			continue
		}
		params, missing := c.extractParams(scores[0].spec, seg)
		steps = append(steps, resolved{
			spec:       scores[0].spec,
			confidence: scores[0].confidence,
			params:     params,
			missing:    missing,
			text:       seg,
		})
		distinct[scores[0].spec.Name] = true
	}

	if len(steps) < 2 || len(distinct) < 2 {
		return nil
	}

	result := &api.IntentResult{
		IntentType:        api.IntentToolExecution,
		Category:          string(steps[0].spec.Category),
		Action:            steps[0].spec.Action,
		RequiresToolChain: true,
		UserID:            userID,
		Reasoning:         fmt.Sprintf("resolved %d sequential operations", len(steps)),
	}

	total := 0.0
	for i, st := range steps {
		result.ToolChain = append(result.ToolChain, &api.ToolStep{
			StepNumber:        i + 1,
			ToolName:          st.spec.Name,
			Action:            st.spec.Action,
			Parameters:        st.params,
			Description:       st.spec.Description,
			DependsOnPrevious: i > 0,
			Status:            api.StepPending,
		})
		total += st.confidence

		if len(st.missing) > 0 && !result.RequiresFollowUp {
			result.RequiresFollowUp = true
			result.FollowUpPrompt = followUpPrompt(st.spec, st.missing)
		}
	}
	result.Confidence = total / float64(len(steps))
	result.ToolName = steps[0].spec.Name
	result.Parameters = steps[0].params

	return result
}

type toolScore struct {
	spec       *registry.ToolSpec
	confidence float64
	reasoning  string
}

// scoreAll ranks every registered tool against the input. Confidence is a
// monotonic function of independent agreeing signals: each additional
// keyword hit, an extractable parameter, and historical precedent only
// ever raise it.
func (c *Classifier) scoreAll(input string, recentCategories map[string]bool) []toolScore {
	var scores []toolScore
	for _, spec := range c.registry.All() {
		hits := 0
		for _, kw := range spec.Keywords {
			if strings.Contains(input, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}

		confidence := 0.45 + 0.1*float64(hits-1)
		signals := []string{fmt.Sprintf("%d keyword match(es)", hits)}

		if c.hasExtractableParam(spec, input) {
			confidence += 0.1
			signals = append(signals, "parameter extracted")
		}
		if recentCategories[string(spec.Category)] {
			confidence += 0.1
			signals = append(signals, "recent history precedent")
		}
		if confidence > 0.95 {
			confidence = 0.95
		}

		scores = append(scores, toolScore{
			spec:       spec,
			confidence: confidence,
			reasoning:  fmt.Sprintf("%s: %s", spec.Name, strings.Join(signals, ", ")),
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].confidence != scores[j].confidence {
			return scores[i].confidence > scores[j].confidence
		}
		return scores[i].spec.Name < scores[j].spec.Name
	})
	return scores
}

func (c *Classifier) hasExtractableParam(spec *registry.ToolSpec, input string) bool {
	for _, p := range spec.Params {
		if re, ok := c.patterns[spec.Name+":"+p.Name]; ok && re.MatchString(input) {
			return true
		}
	}
	return false
}

// extractParams pulls parameter values from the input: explicit key=value
// tokens first, then per-parameter patterns, then defaults. Required
// parameters that remain unresolved are returned as missing rather than
// guessed.
func (c *Classifier) extractParams(spec *registry.ToolSpec, input string) (map[string]any, []string) {
	params := make(map[string]any)

	explicit := make(map[string]string)
	for _, m := range kvToken.FindAllStringSubmatch(input, -1) {
		explicit[m[1]] = m[2]
	}

	var missing []string
	for _, p := range spec.Params {
		if v, ok := explicit[p.Name]; ok {
			params[p.Name] = v
			continue
		}
		if re, ok := c.patterns[spec.Name+":"+p.Name]; ok {
			if m := re.FindString(input); m != "" {
				params[p.Name] = m
				continue
			}
		}
		if p.Default != nil {
			params[p.Name] = p.Default
			continue
		}
		if p.Required {
			missing = append(missing, p.Name)
		}
	}

	return params, missing
}

func (c *Classifier) recentCategories(ctx context.Context, userID string) map[string]bool {
	if c.store == nil || userID == "" {
		return nil
	}
	recent, err := c.store.RecentByUser(ctx, userID, historyWindow)
	if err != nil {
		c.logger.Warn("history lookup failed, classifying without precedent",
			"user", userID, "error", err)
		return nil
	}
	cats := make(map[string]bool, len(recent))
	for _, rec := range recent {
		if rec.Category != "" {
			cats[rec.Category] = true
		}
	}
	return cats
}

func splitChain(input string) []string {
	parts := chainSplit.Split(input, -1)
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isQuestion(input string) bool {
	if strings.HasSuffix(input, "?") {
		return true
	}
	for _, prefix := range questionPrefixes {
		if strings.HasPrefix(input, prefix+" ") {
			return true
		}
	}
	return false
}

func followUpPrompt(spec *registry.ToolSpec, missing []string) string {
	prompts := make([]string, 0, len(missing))
	for _, name := range missing {
		prompt := name
		for _, p := range spec.Params {
			if p.Name == name && p.Prompt != "" {
				prompt = p.Prompt
				break
			}
		}
		prompts = append(prompts, prompt)
	}
	return fmt.Sprintf("To run %s I still need: %s.", spec.Name, strings.Join(prompts, "; "))
}

func conversational(userID, reasoning string) *api.IntentResult {
	return &api.IntentResult{
		IntentType: api.IntentConversational,
		Confidence: conversationalConfidence,
		Reasoning:  reasoning,
		UserID:     userID,
	}
}
