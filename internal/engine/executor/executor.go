// Package executor drives a report run end to end: permission scope,
// condition reduction, the two pipeline builds (count, then paged data),
// execution, and calc post-processing. The custom-SQL report type takes a
// separate path through the safety gate instead of the pipeline.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/internal/engine/calc"
	"github.com/Ranguvenu/skf-sub003/internal/engine/condition"
	"github.com/Ranguvenu/skf-sub003/internal/engine/filter"
	"github.com/Ranguvenu/skf-sub003/internal/engine/permission"
	"github.com/Ranguvenu/skf-sub003/internal/engine/query"
	"github.com/Ranguvenu/skf-sub003/internal/engine/sqlgate"
	"github.com/Ranguvenu/skf-sub003/pkg/setexpr"
)

const DefaultPageSize = 50

// Options configures an executor. Prefix is the physical table-name prefix
// the {table} placeholders expand to; Security is the gate mode applied to
// interactive custom-SQL runs.
type Options struct {
	Prefix   string
	WWWRoot  string
	Security sqlgate.Mode
}

type Executor interface {
	// Run executes a report for an interactive caller.
	Run(ctx context.Context, def *engine.Definition, req *engine.RunRequest) (*engine.Result, error)

	// RunTrusted executes a report in low-security mode. Reserved for
	// non-interactive callers (the scheduler); never reachable from a
	// request handler.
	RunTrusted(ctx context.Context, def *engine.Definition, req *engine.RunRequest) (*engine.Result, error)
}

type ExecutorImpl struct {
	db         engine.DB
	logger     *zap.Logger
	conditions *condition.Registry
	filters    *filter.Registry
	calcs      *calc.Registry
	gate       *sqlgate.Gate
	checker    *permission.Checker
	opts       Options
}

func NewExecutor(db engine.DB, logger *zap.Logger, opts Options) *ExecutorImpl {
	if opts.Security == "" {
		opts.Security = sqlgate.ModeHigh
	}
	return &ExecutorImpl{
		db:         db,
		logger:     logger,
		conditions: condition.NewRegistry(),
		filters:    filter.NewRegistry(),
		calcs:      calc.NewRegistry(),
		gate:       sqlgate.New(opts.Prefix),
		checker:    permission.NewChecker(db),
		opts:       opts,
	}
}

func (e *ExecutorImpl) Run(ctx context.Context, def *engine.Definition, req *engine.RunRequest) (*engine.Result, error) {
	return e.run(ctx, def, req, e.opts.Security)
}

func (e *ExecutorImpl) RunTrusted(ctx context.Context, def *engine.Definition, req *engine.RunRequest) (*engine.Result, error) {
	return e.run(ctx, def, req, sqlgate.ModeLow)
}

func (e *ExecutorImpl) run(ctx context.Context, def *engine.Definition, req *engine.RunRequest, mode sqlgate.Mode) (*engine.Result, error) {
	runID := uuid.NewString()
	start := time.Now()
	e.logger.Info("report run started",
		zap.String("run_id", runID),
		zap.String("report", def.Name),
		zap.String("type", def.Type))

	var (
		res *engine.Result
		err error
	)
	if def.Type == engine.TypeSQL {
		res, err = e.runCustomSQL(ctx, runID, def, req, mode)
	} else {
		res, err = e.runPipeline(ctx, runID, def, req)
	}
	if err != nil {
		e.logger.Warn("report run failed",
			zap.String("run_id", runID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	calcs, err := e.calcs.ComputeAll(def.Elements(engine.ComponentCalcs), res.Rows)
	if err != nil {
		return nil, err
	}
	res.Calcs = calcs

	e.logger.Info("report run finished",
		zap.String("run_id", runID),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("rows", len(res.Rows)),
		zap.Int64("total", res.Total))
	return res, nil
}

func (e *ExecutorImpl) runPipeline(ctx context.Context, runID string, def *engine.Definition, req *engine.RunRequest) (*engine.Result, error) {
	spec, err := engine.TypeSpecFor(def.Type)
	if err != nil {
		return nil, err
	}

	// Required basic parameters gate the run; a report presented before the
	// caller picked them is awaiting input, not failing.
	var missing []string
	for _, name := range spec.BasicParams {
		if req.Param(name) == 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &engine.AwaitingParametersError{Missing: missing}
	}

	scope := permission.NewScope(e.checker, req.Identity)
	restriction, err := scope.Restriction(ctx)
	if err != nil {
		return nil, err
	}

	conditions, err := e.reduceConditions(ctx, spec, def, req)
	if err != nil {
		return nil, err
	}

	funcs, err := e.filters.Funcs(spec, def, req)
	if err != nil {
		return nil, err
	}

	pipeline := query.NewPipeline(query.BuildInput{
		Spec:        spec,
		Def:         def,
		Req:         req,
		Restriction: restriction,
		Conditions:  conditions,
	}, funcs...)

	countSQL, countParams, err := pipeline.Build(query.ModeCount)
	if err != nil {
		return nil, err
	}
	total, err := e.queryCount(ctx, runID, countSQL, countParams)
	if err != nil {
		return nil, err
	}

	dataSQL, dataParams, err := pipeline.Build(query.ModeData)
	if err != nil {
		return nil, err
	}
	dataSQL += pageClause(req)

	rows, err := e.query(ctx, runID, dataSQL, dataParams)
	if err != nil {
		return nil, err
	}

	return &engine.Result{
		Columns: selectedColumns(spec, def),
		Rows:    rows,
		Total:   total,
	}, nil
}

// reduceConditions resolves the definition's condition elements to ID sets
// and folds them with the stored expression into one allow-list.
func (e *ExecutorImpl) reduceConditions(ctx context.Context, spec *engine.TypeSpec, def *engine.Definition, req *engine.RunRequest) (engine.ConditionResult, error) {
	elems := def.Elements(engine.ComponentConditions)
	if len(elems) == 0 {
		return engine.ConditionResult{}, nil
	}

	rc := &condition.Context{
		DB:       e.db,
		Identity: req.Identity,
		CourseID: req.Param("courses"),
		Entity:   spec.Entity,
	}
	slots, err := e.conditions.ResolveSlots(ctx, elems, rc)
	if err != nil {
		return engine.ConditionResult{}, err
	}

	// "not" complements against the entity's full ID set; only fetch it
	// when the expression actually uses the operator.
	var universe setexpr.IDSet
	if setexpr.UsesComplement(def.ConditionExpr) {
		universe, err = e.conditions.Universe(ctx, rc)
		if err != nil {
			return engine.ConditionResult{}, err
		}
	}

	set, err := setexpr.EvaluateWithUniverse(def.ConditionExpr, slots, universe)
	if err != nil {
		return engine.ConditionResult{}, err
	}
	return engine.ConditionResult{Active: true, IDs: set.Values()}, nil
}

// runCustomSQL executes a free-form SQL report: safety gate, sentinel and
// filter-token substitution, then a count wrap and the paged data query.
// Running one requires the manage capability; the row-level restriction
// cannot be injected into arbitrary authored SQL, so authorship is the
// trust boundary here.
func (e *ExecutorImpl) runCustomSQL(ctx context.Context, runID string, def *engine.Definition, req *engine.RunRequest, mode sqlgate.Mode) (*engine.Result, error) {
	sqlText := strings.TrimSpace(def.CustomSQL)
	if sqlText == "" {
		return nil, &engine.ConfigError{Component: engine.ComponentCustomSQL, Reason: "empty sql statement"}
	}

	if mode != sqlgate.ModeLow {
		manage, err := e.checker.HasCapability(ctx, req.Identity, permission.CapManage)
		if err != nil {
			return nil, err
		}
		if !manage {
			return nil, permission.ErrDenied
		}
	}

	if err := e.gate.Validate(sqlText, mode); err != nil {
		return nil, err
	}

	sqlText = e.gate.Substitute(sqlText, sqlgate.SubstitutionContext{
		UserID:     req.Identity.UserID,
		CourseID:   req.Param("courses"),
		CategoryID: req.Param("category"),
		StartTime:  req.Param("startdate"),
		EndTime:    req.Param("enddate"),
		WWWRoot:    e.opts.WWWRoot,
	})

	sqlText, params, err := e.filters.RewriteSQL(def, req, sqlText)
	if err != nil {
		return nil, err
	}

	countSQL := fmt.Sprintf("SELECT COUNT(*) AS total FROM (%s) report_count", sqlText)
	total, err := e.queryCount(ctx, runID, countSQL, params)
	if err != nil {
		return nil, err
	}

	dataSQL := fmt.Sprintf("SELECT * FROM (%s) report_data", sqlText) + pageClause(req)
	rows, err := e.query(ctx, runID, dataSQL, params)
	if err != nil {
		return nil, err
	}

	return &engine.Result{
		Columns: rowColumns(rows),
		Rows:    rows,
		Total:   total,
	}, nil
}

// query runs one statement, still in logical {table} form; the database
// layer owns the physical-name mapping for every caller.
func (e *ExecutorImpl) query(ctx context.Context, runID, sqlText string, params map[string]any) ([]map[string]any, error) {
	rows, err := e.db.Query(ctx, sqlText, params)
	if err != nil {
		return nil, &engine.ExecutionError{RunID: runID, SQL: sqlText, Err: err}
	}
	return rows, nil
}

func (e *ExecutorImpl) queryCount(ctx context.Context, runID, sqlText string, params map[string]any) (int64, error) {
	rows, err := e.query(ctx, runID, sqlText, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for _, v := range rows[0] {
		if n, ok := engine.AsInt64(v); ok {
			return n, nil
		}
	}
	return 0, &engine.ExecutionError{RunID: runID, SQL: sqlText,
		Err: fmt.Errorf("count query returned no numeric column")}
}

func pageClause(req *engine.RunRequest) string {
	size := req.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", size, (page-1)*size)
}

// selectedColumns lists the result columns in projection order: the base
// id column followed by the designer's picks, deduplicated like the
// select stage does.
func selectedColumns(spec *engine.TypeSpec, def *engine.Definition) []string {
	cols := []string{"id"}
	seen := map[string]bool{"id": true}
	for _, elem := range def.Elements(engine.ComponentColumns) {
		name, _ := elem.FormData["column"].(string)
		if elem.PluginName == "aggregate" {
			fn, _ := elem.FormData["fn"].(string)
			name = strings.ToUpper(fn) + "_" + name
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		cols = append(cols, name)
	}
	return cols
}

// rowColumns derives a stable column list for schemaless custom-SQL rows.
func rowColumns(rows []map[string]any) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
