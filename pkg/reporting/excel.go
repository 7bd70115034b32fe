package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/orchestrator"
)

// ExcelReporter writes a multi-sheet workbook for a completed run
type ExcelReporter struct{}

// NewExcelReporter creates an Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

type excelStyles struct {
	header   int
	positive int
	negative int
}

// WriteRunReport writes the run summary and the per-tick trail to an
// xlsx workbook at path, creating parent directories as needed
func (r *ExcelReporter) WriteRunReport(path string, summary *orchestrator.RunSummary, results []orchestrator.TimestepResult) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Run Summary"
	const timestepsSheet = "Timesteps"
	const riskSheet = "Risk Breaches"
	const transitionsSheet = "Transitions"

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	fx.NewSheet(timestepsSheet)
	fx.NewSheet(riskSheet)
	fx.NewSheet(transitionsSheet)

	styles, err := r.createStyles(fx)
	if err != nil {
		return fmt.Errorf("failed to create Excel styles: %w", err)
	}

	if err := r.writeSummarySheet(fx, summarySheet, summary, styles); err != nil {
		return fmt.Errorf("failed to write summary sheet: %w", err)
	}
	if err := r.writeTimestepsSheet(fx, timestepsSheet, results, styles); err != nil {
		return fmt.Errorf("failed to write timesteps sheet: %w", err)
	}
	if err := r.writeRiskSheet(fx, riskSheet, summary, styles); err != nil {
		return fmt.Errorf("failed to write risk sheet: %w", err)
	}
	if err := r.writeTransitionsSheet(fx, transitionsSheet, summary, styles); err != nil {
		return fmt.Errorf("failed to write transitions sheet: %w", err)
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	if styles.header, err = fx.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"366092"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}); err != nil {
		return styles, err
	}

	if styles.positive, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "006100"},
	}); err != nil {
		return styles, err
	}

	if styles.negative, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "9C0006"},
	}); err != nil {
		return styles, err
	}

	return styles, nil
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, summary *orchestrator.RunSummary, styles excelStyles) error {
	rows := [][]interface{}{
		{"Run ID", summary.RunID},
		{"Ticks", summary.Ticks},
		{"Failed Ticks", summary.FailedTicks},
		{"Instructions Succeeded", summary.InstructionsSucceeded},
		{"Instructions Failed", summary.InstructionsFailed},
		{"Risk Breaches", len(summary.RiskBreaches)},
		{"Transitions", len(summary.Transitions)},
		{"Final State", string(summary.FinalState)},
		{"Final Net Delta", summary.FinalNetDelta},
	}

	for i, row := range rows {
		labelCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valueCell, _ := excelize.CoordinatesToCellName(2, i+1)
		fx.SetCellValue(sheet, labelCell, row[0])
		fx.SetCellValue(sheet, valueCell, row[1])
		fx.SetCellStyle(sheet, labelCell, labelCell, styles.header)
	}

	fx.SetColWidth(sheet, "A", "A", 24)
	fx.SetColWidth(sheet, "B", "B", 30)
	return nil
}

func (r *ExcelReporter) writeTimestepsSheet(fx *excelize.File, sheet string, results []orchestrator.TimestepResult, styles excelStyles) error {
	headers := []string{"Sequence", "Timestamp", "State", "Net Delta", "Actions", "Succeeded", "Failed", "Errors"}
	if err := r.writeHeader(fx, sheet, headers, styles); err != nil {
		return err
	}

	for i, result := range results {
		row := i + 2
		succeeded, failed := 0, 0
		if result.Execution != nil {
			succeeded = result.Execution.Succeeded
			failed = result.Execution.Failed
		}

		r.setRow(fx, sheet, row, []interface{}{
			result.Sequence,
			result.Timestamp.Format(time.RFC3339),
			string(result.StrategyState),
			result.NetDelta,
			actionList(result),
			succeeded,
			failed,
			len(result.Errors),
		})

		if failed > 0 || len(result.Errors) > 0 {
			cell, _ := excelize.CoordinatesToCellName(7, row)
			fx.SetCellStyle(sheet, cell, cell, styles.negative)
		}
	}

	fx.SetColWidth(sheet, "B", "B", 22)
	fx.SetColWidth(sheet, "E", "E", 28)
	return nil
}

func (r *ExcelReporter) writeRiskSheet(fx *excelize.File, sheet string, summary *orchestrator.RunSummary, styles excelStyles) error {
	headers := []string{"Timestamp", "Dimension", "Level", "Value", "Health Factor", "Message"}
	if err := r.writeHeader(fx, sheet, headers, styles); err != nil {
		return err
	}

	for i, breach := range summary.RiskBreaches {
		row := i + 2
		r.setRow(fx, sheet, row, []interface{}{
			breach.Timestamp.Format(time.RFC3339),
			string(breach.Dimension),
			string(breach.Level),
			breach.Value,
			breach.HealthFactor,
			breach.Message,
		})
	}

	fx.SetColWidth(sheet, "A", "A", 22)
	fx.SetColWidth(sheet, "F", "F", 50)
	return nil
}

func (r *ExcelReporter) writeTransitionsSheet(fx *excelize.File, sheet string, summary *orchestrator.RunSummary, styles excelStyles) error {
	headers := []string{"Timestamp", "From", "To", "Reason", "Forced"}
	if err := r.writeHeader(fx, sheet, headers, styles); err != nil {
		return err
	}

	for i, transition := range summary.Transitions {
		row := i + 2
		r.setRow(fx, sheet, row, []interface{}{
			transition.Timestamp.Format(time.RFC3339),
			string(transition.From),
			string(transition.To),
			transition.Reason,
			transition.Forced,
		})
	}

	fx.SetColWidth(sheet, "A", "A", 22)
	fx.SetColWidth(sheet, "D", "D", 40)
	return nil
}

func (r *ExcelReporter) writeHeader(fx *excelize.File, sheet string, headers []string, styles excelStyles) error {
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		fx.SetCellValue(sheet, cell, header)
		fx.SetCellStyle(sheet, cell, cell, styles.header)
	}
	return nil
}

func (r *ExcelReporter) setRow(fx *excelize.File, sheet string, row int, values []interface{}) {
	for i, value := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		fx.SetCellValue(sheet, cell, value)
	}
}
