// Package rules resolves which team a defect is assigned to using an ordered
// decision table stored in the durable store.
//
// The whole rule set is cached as one msgpack value under
// "rules:cached_rules" and reloaded after AddRule.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-settings-store/cache"
	"github.com/goliatone/go-settings-store/internal/durable"
	"github.com/goliatone/go-settings-store/pkg/storeerr"
	"github.com/goliatone/go-settings-store/repositorycache"
)

// NoMatch is the team reported when no rule survives the criteria.
const NoMatch = "No match found"

const (
	CacheNamespace = "rules"
	cacheEntry     = "cached_rules"

	instrumentationName = "github.com/goliatone/go-settings-store/rules"
)

// Rule field names usable in criteria.
const (
	FieldID             = "id"
	FieldTestPriority   = "test_priority"
	FieldDefectSeverity = "defect_severity"
	FieldModule         = "module"
	FieldAssignedTeam   = "assigned_team"
)

var knownFields = mapset.NewSet(
	FieldID,
	FieldTestPriority,
	FieldDefectSeverity,
	FieldModule,
	FieldAssignedTeam,
)

// Rule is one row of the decision table. A nil criterion column never matches.
type Rule struct {
	ID             int64   `json:"id" msgpack:"id"`
	TestPriority   *string `json:"test_priority,omitempty" msgpack:"test_priority"`
	DefectSeverity *string `json:"defect_severity,omitempty" msgpack:"defect_severity"`
	Module         *string `json:"module,omitempty" msgpack:"module"`
	AssignedTeam   string  `json:"assigned_team" msgpack:"assigned_team"`
}

// Validate requires a team and at least one criterion column.
func (r Rule) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AssignedTeam, validation.Required),
		validation.Field(&r.TestPriority, validation.When(r.DefectSeverity == nil && r.Module == nil,
			validation.Required.Error("at least one of test_priority, defect_severity or module is required"))),
	)
}

func (r Rule) value(field string) (string, bool) {
	switch field {
	case FieldID:
		return strconv.FormatInt(r.ID, 10), true
	case FieldTestPriority:
		return deref(r.TestPriority)
	case FieldDefectSeverity:
		return deref(r.DefectSeverity)
	case FieldModule:
		return deref(r.Module)
	case FieldAssignedTeam:
		return r.AssignedTeam, true
	default:
		return "", false
	}
}

// Criterion restricts the candidates to rules whose Field equals Value.
type Criterion struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Criteria are applied in order.
type Criteria []Criterion

// With returns c extended by one criterion.
func (c Criteria) With(field, value string) Criteria {
	return append(c[:len(c):len(c)], Criterion{Field: field, Value: value})
}

// Assignment is the outcome of Evaluate.
type Assignment struct {
	Team    string `json:"team"`
	RuleID  int64  `json:"rule_id,omitempty"`
	Matched bool   `json:"matched"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer overrides the tracer. Defaults to the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// Engine evaluates criteria against the cached rule set.
type Engine struct {
	repo     *durable.RuleRepository
	aside    *repositorycache.Aside
	cacheKey string
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New returns an Engine.
func New(repo *durable.RuleRepository, aside *repositorycache.Aside, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		aside:    aside,
		cacheKey: cache.NewDefaultKeySerializer().SerializeKey(CacheNamespace, cacheEntry),
		logger:   slog.Default(),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate filters the rule set by each criterion in turn. The first rule
// left, in insertion order, decides the team. When none is left the result
// carries NoMatch and Matched=false; that is not an error.
func (e *Engine) Evaluate(ctx context.Context, criteria Criteria) (Assignment, error) {
	ctx, span := e.tracer.Start(ctx, "rules.Evaluate", trace.WithAttributes(
		attribute.Int("rules.criteria", len(criteria)),
	))
	defer span.End()

	rules, err := e.Rules(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load rules failed")
		return Assignment{}, err
	}

	candidates := rules
	for _, c := range criteria {
		field := normalizeField(c.Field)
		if !knownFields.Contains(field) {
			e.logger.DebugContext(ctx, "unknown rule field", slog.String("field", c.Field))
			candidates = nil
			break
		}
		candidates = filter(candidates, field, c.Value)
		if len(candidates) == 0 {
			break
		}
	}

	if len(candidates) == 0 {
		span.SetAttributes(attribute.Bool("rules.matched", false))
		return Assignment{Team: NoMatch}, nil
	}

	winner := candidates[0]
	span.SetAttributes(
		attribute.Bool("rules.matched", true),
		attribute.Int64("rules.rule_id", winner.ID),
	)
	return Assignment{Team: winner.AssignedTeam, RuleID: winner.ID, Matched: true}, nil
}

// Rules returns the rule set in insertion order, loading it into the cache
// on a miss.
func (e *Engine) Rules(ctx context.Context) ([]Rule, error) {
	encoded, _, err := e.aside.Read(ctx, e.cacheKey, func(ctx context.Context) (string, bool, error) {
		rows, err := e.repo.List(ctx)
		if err != nil {
			e.logger.ErrorContext(ctx, "rule set load failed", slog.Any("error", err))
			return "", false, err
		}
		data, err := msgpack.Marshal(rulesFromRows(rows))
		if err != nil {
			return "", false, fmt.Errorf("rules: encode rule set: %w", err)
		}
		return string(data), true, nil
	})
	if err != nil {
		return nil, err
	}

	var rules []Rule
	if err := msgpack.Unmarshal([]byte(encoded), &rules); err != nil {
		// a corrupt entry is dropped so the next call reloads it
		e.aside.Invalidate(ctx, e.cacheKey)
		return nil, fmt.Errorf("rules: decode cached rule set: %w", err)
	}
	return rules, nil
}

// AddRule validates and stores rule, then invalidates the cached rule set.
// The stored rule is returned with its ID.
func (e *Engine) AddRule(ctx context.Context, rule Rule) (Rule, error) {
	if err := rule.Validate(); err != nil {
		fields := map[string]string{}
		if errs, ok := err.(validation.Errors); ok {
			for field, fieldErr := range errs {
				fields[field] = fieldErr.Error()
			}
		}
		return Rule{}, storeerr.Validation(err, "invalid rule", fields)
	}

	row := &durable.RuleRow{
		TestPriority:   rule.TestPriority,
		DefectSeverity: rule.DefectSeverity,
		Module:         rule.Module,
		AssignedTeam:   rule.AssignedTeam,
	}
	if err := e.repo.Insert(ctx, row); err != nil {
		e.logger.ErrorContext(ctx, "rule insert failed", slog.Any("error", err))
		return Rule{}, err
	}

	e.aside.Invalidate(ctx, e.cacheKey)
	e.logger.InfoContext(ctx, "rule added", slog.Int64("id", row.ID), slog.String("team", row.AssignedTeam))
	return ruleFromRow(*row), nil
}

func filter(rules []Rule, field, want string) []Rule {
	var out []Rule
	for _, r := range rules {
		if v, ok := r.value(field); ok && v == want {
			out = append(out, r)
		}
	}
	return out
}

func rulesFromRows(rows []durable.RuleRow) []Rule {
	rules := make([]Rule, len(rows))
	for i, row := range rows {
		rules[i] = ruleFromRow(row)
	}
	return rules
}

func ruleFromRow(row durable.RuleRow) Rule {
	return Rule{
		ID:             row.ID,
		TestPriority:   row.TestPriority,
		DefectSeverity: row.DefectSeverity,
		Module:         row.Module,
		AssignedTeam:   row.AssignedTeam,
	}
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}
