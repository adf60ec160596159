package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Ranguvenu/skf-sub003/internal/config"
	"github.com/Ranguvenu/skf-sub003/internal/engine"
	"github.com/Ranguvenu/skf-sub003/internal/engine/calc"
	"github.com/Ranguvenu/skf-sub003/internal/engine/condition"
	"github.com/Ranguvenu/skf-sub003/internal/engine/executor"
	"github.com/Ranguvenu/skf-sub003/internal/engine/filter"
	"github.com/Ranguvenu/skf-sub003/internal/engine/sqlgate"
	"github.com/Ranguvenu/skf-sub003/pkg/setexpr"
	"github.com/Ranguvenu/skf-sub003/pkg/utils"
)

// RunOptions carries the caller-supplied inputs of one run: bound
// parameters, free-text search and the page window.
type RunOptions struct {
	Params   map[string]any `json:"params"`
	Search   string         `json:"search"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

type ReportService interface {
	CreateReport(ctx context.Context, report *Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	ListReports(ctx context.Context) ([]Report, error)
	UpdateReport(ctx context.Context, id string, report *Report) error
	DeleteReport(ctx context.Context, id string) error

	// ValidateReport checks a definition the way saving does, without
	// persisting it.
	ValidateReport(report *Report) error

	// ValidateSQL runs a statement through the safety gate in the
	// configured interactive mode.
	ValidateSQL(sqlText string) error

	RunReport(ctx context.Context, id string, identity engine.Identity, opts RunOptions) (*engine.Result, error)
	ExportReport(ctx context.Context, id string, format string, identity engine.Identity, opts RunOptions) ([]byte, string, error)
}

type ReportServiceImpl struct {
	ReportRepo ReportRepository
	Executor   executor.Executor
	Logger     *zap.Logger

	conditions *condition.Registry
	filters    *filter.Registry
	calcs      *calc.Registry
	gate       *sqlgate.Gate
	gateMode   sqlgate.Mode
}

func NewReportService(reportRepo ReportRepository, exec executor.Executor, cfg *config.Config, logger *zap.Logger) ReportService {
	return &ReportServiceImpl{
		ReportRepo: reportRepo,
		Executor:   exec,
		Logger:     logger,
		conditions: condition.NewRegistry(),
		filters:    filter.NewRegistry(),
		calcs:      calc.NewRegistry(),
		gate:       sqlgate.New(cfg.TablePrefix),
		gateMode:   sqlgate.Mode(cfg.SQLSecurity),
	}
}

func (s *ReportServiceImpl) CreateReport(ctx context.Context, report *Report) error {
	if err := s.ValidateReport(report); err != nil {
		return err
	}
	err := s.ReportRepo.Create(ctx, report)
	if err == nil {
		s.Logger.Info("report created",
			zap.String("report_id", report.ID.Hex()),
			zap.String("type", report.Type))
	}
	return err
}

func (s *ReportServiceImpl) GetReport(ctx context.Context, id string) (*Report, error) {
	return s.ReportRepo.Get(ctx, id)
}

func (s *ReportServiceImpl) ListReports(ctx context.Context) ([]Report, error) {
	return s.ReportRepo.List(ctx)
}

func (s *ReportServiceImpl) UpdateReport(ctx context.Context, id string, report *Report) error {
	if err := s.ValidateReport(report); err != nil {
		return err
	}
	err := s.ReportRepo.Update(ctx, id, report)
	if err == nil {
		s.Logger.Info("report updated", zap.String("report_id", id))
	}
	return err
}

func (s *ReportServiceImpl) DeleteReport(ctx context.Context, id string) error {
	err := s.ReportRepo.Delete(ctx, id)
	if err == nil {
		s.Logger.Info("report deleted", zap.String("report_id", id))
	}
	return err
}

// ValidateReport rejects malformed definitions at save time so a stored
// report never fails a run with a raw database error.
func (s *ReportServiceImpl) ValidateReport(report *Report) error {
	spec, err := engine.TypeSpecFor(report.Type)
	if err != nil {
		return err
	}

	if report.Type == engine.TypeSQL {
		if report.CustomSQL == "" {
			return &engine.ConfigError{Component: engine.ComponentCustomSQL, Reason: "empty sql statement"}
		}
		return s.gate.Validate(report.CustomSQL, s.gateMode)
	}

	for _, comp := range report.Components {
		switch comp.Name {
		case engine.ComponentColumns:
			for _, elem := range comp.Elements {
				if err := validateColumn(spec, elem); err != nil {
					return err
				}
			}
		case engine.ComponentFilters:
			for _, elem := range comp.Elements {
				if err := s.filters.Validate(spec, elem); err != nil {
					return err
				}
			}
		case engine.ComponentConditions:
			for _, elem := range comp.Elements {
				if err := s.conditions.Validate(spec, elem); err != nil {
					return err
				}
			}
		case engine.ComponentCalcs:
			for _, elem := range comp.Elements {
				if err := s.calcs.Validate(elem); err != nil {
					return err
				}
			}
		case engine.ComponentPermissions:
			// reserved, nothing stored yet
		default:
			return &engine.ConfigError{Component: comp.Name, Reason: "unknown component"}
		}
	}

	def := report.Definition()
	return setexpr.Validate(report.ConditionExpr, len(def.Elements(engine.ComponentConditions)))
}

func validateColumn(spec *engine.TypeSpec, elem engine.Element) error {
	switch elem.PluginName {
	case "field", "aggregate":
	default:
		return &engine.ConfigError{Component: engine.ComponentColumns, Plugin: elem.PluginName,
			Reason: "unknown column plugin"}
	}
	name, _ := elem.FormData["column"].(string)
	if !spec.HasColumn(name) {
		return &engine.ConfigError{Component: engine.ComponentColumns, Plugin: elem.PluginName,
			Reason: fmt.Sprintf("column %q does not exist in the %s report schema", name, spec.Name)}
	}
	return nil
}

func (s *ReportServiceImpl) ValidateSQL(sqlText string) error {
	return s.gate.Validate(sqlText, s.gateMode)
}

func (s *ReportServiceImpl) RunReport(ctx context.Context, id string, identity engine.Identity, opts RunOptions) (*engine.Result, error) {
	report, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Executor.Run(ctx, report.Definition(), &engine.RunRequest{
		Identity: identity,
		Params:   opts.Params,
		Search:   opts.Search,
		Page:     opts.Page,
		PageSize: opts.PageSize,
	})
}

func (s *ReportServiceImpl) ExportReport(ctx context.Context, id string, format string, identity engine.Identity, opts RunOptions) ([]byte, string, error) {
	report, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, "", err
	}

	// Exports are not paged.
	opts.Page = 1
	opts.PageSize = 100000
	result, err := s.Executor.Run(ctx, report.Definition(), &engine.RunRequest{
		Identity: identity,
		Params:   opts.Params,
		Search:   opts.Search,
		Page:     opts.Page,
		PageSize: opts.PageSize,
	})
	if err != nil {
		return nil, "", err
	}

	base := fmt.Sprintf("%s_%s", utils.Slugify(report.Name), time.Now().Format("20060102_150405"))
	switch format {
	case "csv":
		data, err := writeCSV(result)
		return data, base + ".csv", err
	case "xlsx":
		data, err := writeExcel(result)
		return data, base + ".xlsx", err
	}
	return nil, "", fmt.Errorf("unsupported format: %s", format)
}

func writeCSV(result *engine.Result) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(result.Columns); err != nil {
		return nil, err
	}
	for _, rec := range result.Rows {
		row := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			row[i] = cellString(rec[col])
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeExcel(result *engine.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Report"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	for i, col := range result.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, rec := range result.Rows {
		for colIdx, col := range result.Columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			switch v := rec[col].(type) {
			case time.Time:
				f.SetCellValue(sheetName, cell, v.Format("2006-01-02 15:04:05"))
			default:
				f.SetCellValue(sheetName, cell, v)
			}
		}
	}

	for i := range result.Columns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, 15)
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("%v", v)
}
