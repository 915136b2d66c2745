package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bitfantasy/nimo-qualify/internal/srm/entity"
)

var evaluationExportHeaders = []string{
	"评估ID", "招标ID", "供应商编码", "供应商名称", "评估人", "状态",
	"人工评分", "AI评分", "偏差", "待二次复核", "等级", "结论",
	"截止日期", "是否逾期", "逾期天数", "提交时间", "完成时间",
}

// ExportEvaluations 导出监督列表为 xlsx
func (s *EvaluationService) ExportEvaluations(ctx context.Context, f ListFilter) (*excelize.File, string, error) {
	xf := excelize.NewFile()
	sheet := "Evaluations"
	if err := xf.SetSheetName("Sheet1", sheet); err != nil {
		xf.Close()
		return nil, "", err
	}

	headerStyle, _ := xf.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	overdueStyle, _ := xf.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "C00000"},
	})

	for i, h := range evaluationExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		xf.SetCellValue(sheet, col+"1", h)
		xf.SetCellStyle(sheet, col+"1", col+"1", headerStyle)
	}

	row := 2
	err := s.repos.Evaluation.FindEach(ctx, s.repoFilter(f), 200, func(items []entity.Evaluation) error {
		views, err := s.views(items)
		if err != nil {
			return err
		}
		for _, v := range views {
			s.writeExportRow(xf, sheet, row, v)
			if v.Overdue {
				xf.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("Q%d", row), overdueStyle)
			}
			row++
		}
		return nil
	})
	if err != nil {
		xf.Close()
		return nil, "", fmt.Errorf("export evaluations: %w", err)
	}

	colWidths := []float64{34, 16, 14, 28, 16, 14, 10, 10, 8, 12, 14, 10, 12, 10, 10, 20, 20}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		xf.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("qualification_evaluations_%s.xlsx", s.machine.Now().Format("20060102"))
	return xf, filename, nil
}

func (s *EvaluationService) writeExportRow(xf *excelize.File, sheet string, row int, v *EvaluationView) {
	cell := func(col string) string { return fmt.Sprintf("%s%d", col, row) }

	xf.SetCellValue(sheet, cell("A"), v.ID)
	xf.SetCellValue(sheet, cell("B"), v.TenderID)
	if v.Supplier != nil {
		xf.SetCellValue(sheet, cell("C"), v.Supplier.Code)
		xf.SetCellValue(sheet, cell("D"), v.Supplier.Name)
	}
	xf.SetCellValue(sheet, cell("E"), v.EvaluatorID)
	xf.SetCellValue(sheet, cell("F"), v.Status)
	if v.DisplayScore != nil {
		xf.SetCellValue(sheet, cell("G"), *v.DisplayScore)
	}
	if v.AIScore != nil {
		xf.SetCellValue(sheet, cell("H"), *v.AIScore)
	}
	if v.Divergence != nil {
		xf.SetCellValue(sheet, cell("I"), *v.Divergence)
	}
	xf.SetCellValue(sheet, cell("J"), yesNo(v.SecondaryReviewPending))
	xf.SetCellValue(sheet, cell("K"), string(v.Band))
	xf.SetCellValue(sheet, cell("L"), v.Decision)
	xf.SetCellValue(sheet, cell("M"), v.EvaluationDeadline.Format("2006-01-02"))
	xf.SetCellValue(sheet, cell("N"), yesNo(v.Overdue))
	xf.SetCellValue(sheet, cell("O"), v.DaysOverdue)
	xf.SetCellValue(sheet, cell("P"), formatTime(v.SubmissionDate))
	xf.SetCellValue(sheet, cell("Q"), formatTime(v.CompletedAt))
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}
