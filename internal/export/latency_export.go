package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"

	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

// DefaultApplication is written to the Application column when none is given.
const DefaultApplication = "Vantage:Pipeline"

// Header is the frame-time capture column layout.
var Header = []string{"TimeInSeconds", "MsBetweenPresents", "Dropped", "Application", "Note_Power_W"}

// Row is one exported latency sample.
type Row struct {
	TimeInSeconds float64
	LatencyMS     float64
	Dropped       bool
	PowerW        *float64
}

// Rows filters samples of pair and rebases time on the first kept sample.
func Rows(samples []telemetry.LatencySample, pair [2]string) []Row {
	var rows []Row
	var t0 int64
	for _, s := range samples {
		if s.StagePair != pair {
			continue
		}
		if rows == nil {
			t0 = s.AlignedTimestampNS
			rows = make([]Row, 0, len(samples))
		}
		rows = append(rows, Row{
			TimeInSeconds: float64(s.AlignedTimestampNS-t0) / 1e9,
			LatencyMS:     s.LatencyMS,
			Dropped:       math.IsNaN(s.LatencyMS),
			PowerW:        s.PowerW,
		})
	}
	return rows
}

func (r Row) record(application string) []string {
	dropped := "0"
	latency := r.LatencyMS
	if r.Dropped {
		dropped = "1"
		latency = 0
	}
	power := ""
	if r.PowerW != nil {
		power = strconv.FormatFloat(*r.PowerW, 'f', 2, 64)
	}
	return []string{
		strconv.FormatFloat(r.TimeInSeconds, 'f', 6, 64),
		strconv.FormatFloat(latency, 'f', 3, 64),
		dropped,
		application,
		power,
	}
}

// WriteCSV writes rows with the capture header.
func WriteCSV(w io.Writer, rows []Row, application string) error {
	if application == "" {
		application = DefaultApplication
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row.record(application)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// BuildXLSX renders rows into a workbook with a samples sheet and a summary.
func BuildXLSX(rows []Row, pair [2]string, application string) ([]byte, error) {
	if application == "" {
		application = DefaultApplication
	}
	f := excelize.NewFile()
	defer f.Close()
	samplesSheet := "samples"
	summarySheet := "summary"
	if err := f.SetSheetName("Sheet1", samplesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	for i, name := range Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(samplesSheet, cell, name)
	}
	var powered int
	for i, row := range rows {
		line := i + 2
		_ = f.SetCellValue(samplesSheet, fmt.Sprintf("A%d", line), row.TimeInSeconds)
		if row.Dropped {
			_ = f.SetCellValue(samplesSheet, fmt.Sprintf("B%d", line), 0)
			_ = f.SetCellValue(samplesSheet, fmt.Sprintf("C%d", line), 1)
		} else {
			_ = f.SetCellValue(samplesSheet, fmt.Sprintf("B%d", line), row.LatencyMS)
			_ = f.SetCellValue(samplesSheet, fmt.Sprintf("C%d", line), 0)
		}
		_ = f.SetCellValue(samplesSheet, fmt.Sprintf("D%d", line), application)
		if row.PowerW != nil {
			_ = f.SetCellValue(samplesSheet, fmt.Sprintf("E%d", line), *row.PowerW)
			powered++
		}
	}

	_ = f.SetCellValue(summarySheet, "A1", "Latency Export")
	_ = f.SetCellValue(summarySheet, "A3", "Stage Pair")
	_ = f.SetCellValue(summarySheet, "B3", pair[0]+" -> "+pair[1])
	_ = f.SetCellValue(summarySheet, "A4", "Application")
	_ = f.SetCellValue(summarySheet, "B4", application)
	_ = f.SetCellValue(summarySheet, "A5", "Samples")
	_ = f.SetCellValue(summarySheet, "B5", len(rows))
	_ = f.SetCellValue(summarySheet, "A6", "Samples With Power")
	_ = f.SetCellValue(summarySheet, "B6", powered)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
