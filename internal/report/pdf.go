package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/dvgate/internal/rules"
)

// SaveScanPDF renders the scan report into a PDF document. When digest is
// non-empty a QR code of it is placed next to the summary so the printed
// page can be matched against the NDJSON diagnostics log it describes.
func SaveScanPDF(rep ScanReport, digest, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("DV Scan Report", false)
	pdf.SetAuthor("dvctl", false)
	pdf.SetCreator("dvctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "DV Scan Report")
	addSummarySection(pdf, rep, digest)
	addFrameSection(pdf, rep.Frames)
	addFindingsSection(pdf, rep.Acceptance.Findings)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, rep ScanReport, digest string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "File", value: emptyFallback(rep.File, "-")},
		{label: "System", value: rep.Standard},
		{label: "Frames", value: strconv.Itoa(len(rep.Frames))},
		{label: "Findings", value: strconv.Itoa(rep.Acceptance.Summary.Total)},
		{label: "Errors", value: strconv.Itoa(rep.Acceptance.Summary.Errors)},
		{label: "Warnings", value: strconv.Itoa(rep.Acceptance.Summary.Warnings)},
		{label: "Fields Trusted", value: strconv.Itoa(rep.Verdicts.Trusted)},
		{label: "Fields Repaired", value: strconv.Itoa(rep.Verdicts.Repaired)},
		{label: "Fields Unrecoverable", value: strconv.Itoa(rep.Verdicts.Unrecoverable)},
		{label: "Overall", value: passLabel(rep.Acceptance.Summary.Pass)},
	}
	yStart := pdf.GetY()
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	if digest != "" {
		if png, err := DigestToQR(digest, 256); err == nil {
			opts := gofpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader("digest-qr", opts, bytes.NewReader(png))
			pdf.ImageOptions("digest-qr", 150, yStart, 30, 30, false, opts, 0, "")
		}
	}
	pdf.Ln(4)
}

func addFrameSection(pdf *gofpdf.Fpdf, frames []FrameSummary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Frames")
	pdf.Ln(9)

	headers := []string{"Frame", "Offset", "Missing", "Findings", "Timecode", "Verdict"}
	widths := []float64{18, 28, 20, 22, 52, 40}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	lineHeight := 5.0
	for _, f := range frames {
		tc, verdict := "-", "-"
		for _, fld := range f.Fields {
			if fld.Field != "timecode" {
				continue
			}
			tc = emptyFallback(fld.Value, "-")
			verdict = fld.Verdict
			if fld.Source != "" {
				verdict += " from " + fld.Source
			}
		}
		values := []string{
			strconv.Itoa(f.Number),
			fmt.Sprintf("0x%X", f.Offset),
			strconv.Itoa(f.Missing),
			strconv.Itoa(f.Diagnostics),
			tc,
			verdict,
		}
		renderTableRow(pdf, widths, values, lineHeight)
	}
	pdf.Ln(4)
}

func addFindingsSection(pdf *gofpdf.Fpdf, findings []rules.Diagnostic) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Findings")
	pdf.Ln(9)

	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No findings recorded.", "", "L", false)
		return
	}

	for i, d := range findings {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s)", i+1, d.RuleId, severityLabel(d.Severity))
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(d.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}

		meta := findingMetadata(d)
		if meta != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, meta, "", "L", false)
		}

		if len(d.Values) > 0 {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, "Values: "+strings.Join(d.Values, "; "), "", "L", false)
		}

		if len(d.Refs) > 0 {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, "Refs: "+strings.Join(d.Refs, ", "), "", "L", false)
		}

		pdf.Ln(2)
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		cellText := strings.Join(lines, "\n")
		pdf.MultiCell(widths[i], lineHeight, cellText, "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func severityLabel(sev rules.Severity) string {
	if s := strings.TrimSpace(string(sev)); s != "" {
		return s
	}
	return "UNKNOWN"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func findingMetadata(d rules.Diagnostic) string {
	parts := make([]string, 0, 5)
	if !d.Ts.IsZero() {
		parts = append(parts, d.Ts.Format(time.RFC3339))
	}
	if d.File != "" {
		parts = append(parts, d.File)
	}
	parts = append(parts, fmt.Sprintf("Frame %d", d.Frame))
	if d.Block != "" {
		parts = append(parts, "Block "+d.Block)
	}
	if d.Offset != "" {
		parts = append(parts, "Offset "+d.Offset)
	}
	return strings.Join(parts, " / ")
}
