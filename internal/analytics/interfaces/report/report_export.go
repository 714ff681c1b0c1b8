package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"

	efficiency "benchlab-telemetry/internal/analytics/domain/efficiency"
)

// BuildReportJSON renders the report as indented JSON.
func BuildReportJSON(rep efficiency.Report) ([]byte, error) {
	return json.MarshalIndent(rep, "", "  ")
}

// BuildReportPDF renders a one-page efficiency summary.
func BuildReportPDF(rep efficiency.Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Power Efficiency Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	if rep.StagePair != [2]string{} {
		pdf.Cell(0, 6, fmt.Sprintf("Stage pair: %s -> %s", rep.StagePair[0], rep.StagePair[1]))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", rep.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Samples: %d", rep.SampleCount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Duration: %.1f s", rep.DurationSec))
	pdf.Ln(8)

	l := rep.Latency
	pdf.Cell(0, 6, fmt.Sprintf("Latency: %.2f ms (stdev %.2f), P95 %.2f ms, P99 %.2f ms", l.MeanMS, l.StdevMS, l.P95MS, l.P99MS))
	pdf.Ln(5)
	p := rep.Power
	pdf.Cell(0, 6, fmt.Sprintf("Power: %.2f W (stdev %.2f), range %.2f - %.2f W", p.MeanW, p.StdevW, p.MinW, p.MaxW))
	pdf.Ln(5)
	e := rep.Efficiency
	pdf.Cell(0, 6, fmt.Sprintf("Efficiency: %.4f ms/W, best %.4f ms/W", e.MeanMSPerW, e.BestMSPerW))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(10, 6, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Latency (ms)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Power (W)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "ms/W", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Score", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for i, point := range rep.OptimalPoints {
		pdf.CellFormat(10, 6, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", point.LatencyMS), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", point.PowerW), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.4f", point.EfficiencyMSPerW), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", point.PerformanceScore), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(rep.PowerBuckets) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 6, "Power bucket", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Count", "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, "Mean latency (ms)", "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, "Mean power (W)", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		names := make([]string, 0, len(rep.PowerBuckets))
		for name := range rep.PowerBuckets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b := rep.PowerBuckets[name]
			pdf.CellFormat(40, 6, name, "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%d", b.Count), "1", 0, "R", false, 0, "")
			pdf.CellFormat(50, 6, fmt.Sprintf("%.2f", b.MeanLatencyMS), "1", 0, "R", false, 0, "")
			pdf.CellFormat(50, 6, fmt.Sprintf("%.2f", b.MeanPowerW), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
