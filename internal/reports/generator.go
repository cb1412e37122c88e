package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
)

var csvHeader = []string{
	"date", "day_index", "planned_meals", "confirmed_meals", "freeform_records",
	"calories", "protein_g", "carbs_g", "fat_g", "calorie_target",
}

func RenderCSV(a *Adherence) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range a.Rows {
		row := []string{
			r.Date,
			strconv.Itoa(r.DayIndex),
			strconv.Itoa(r.Planned),
			strconv.Itoa(r.Confirmed),
			strconv.Itoa(r.Freeform),
			formatAmount(r.Consumed.Calories),
			formatAmount(r.Consumed.Protein),
			formatAmount(r.Consumed.Carbs),
			formatAmount(r.Consumed.Fat),
			formatAmount(r.CalorieTarget),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderPDF draws the summary and a per-day table with the core Helvetica font.
func RenderPDF(a *Adherence) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Plan adherence", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Plan adherence report")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Plan: %s", a.PlanName))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s - %s", a.From, a.To))
	pdf.Ln(10)

	s := a.Summary
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	for _, line := range []string{
		fmt.Sprintf("Days: %d", s.Days),
		fmt.Sprintf("Meals confirmed: %d of %d (%.1f%%)", s.Confirmed, s.Planned, s.AdherencePct),
		fmt.Sprintf("Average intake: %.0f kcal/day", s.AvgCaloriesPerD),
	} {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}
	pdf.Ln(6)

	widths := []float64{24, 14, 18, 20, 18, 22, 18, 18, 18, 20}
	headers := []string{"Date", "Day", "Planned", "Confirmed", "Free", "kcal", "Protein", "Carbs", "Fat", "Target"}
	pdf.SetFont("Helvetica", "B", 8)
	for i, h := range headers {
		ln := 0
		if i == len(headers)-1 {
			ln = 1
		}
		pdf.CellFormat(widths[i], 6, h, "1", ln, "C", false, 0, "")
	}

	pdf.SetFont("Helvetica", "", 8)
	for _, r := range a.Rows {
		day := "-"
		if r.DayIndex > 0 {
			day = strconv.Itoa(r.DayIndex)
		}
		cells := []string{
			r.Date, day,
			strconv.Itoa(r.Planned), strconv.Itoa(r.Confirmed), strconv.Itoa(r.Freeform),
			formatAmount(r.Consumed.Calories), formatAmount(r.Consumed.Protein),
			formatAmount(r.Consumed.Carbs), formatAmount(r.Consumed.Fat),
			formatAmount(r.CalorieTarget),
		}
		for i, c := range cells {
			ln := 0
			if i == len(cells)-1 {
				ln = 1
			}
			pdf.CellFormat(widths[i], 6, c, "1", ln, "C", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
