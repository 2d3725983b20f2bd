// Package report renders the outcome of a scan: a machine-readable JSON
// summary, an NDJSON diagnostics log, and a printable PDF with a QR code
// binding the document to the diagnostics digest.
package report

import (
	"encoding/json"
	"os"

	"example.com/dvgate/internal/dif"
	"example.com/dvgate/internal/repair"
	"example.com/dvgate/internal/rules"
	"example.com/dvgate/internal/stream"
)

// FieldSummary is one arbitrated metadata field of one frame.
type FieldSummary struct {
	Field     string   `json:"field"`
	Verdict   string   `json:"verdict"`
	Value     string   `json:"value,omitempty"`
	Source    string   `json:"source,omitempty"`
	Discarded []string `json:"discarded,omitempty"`
}

// FrameSummary condenses one pipeline result for reporting.
type FrameSummary struct {
	Number       int               `json:"number"`
	Offset       int64             `json:"offset"`
	Missing      int               `json:"missingBlocks"`
	Diagnostics  int               `json:"diagnostics"`
	SkippedBytes int64             `json:"skippedBytes,omitempty"`
	Sections     map[string]string `json:"sections"`
	Fields       []FieldSummary    `json:"fields,omitempty"`
}

// ScanReport is the full result of scanning one capture.
type ScanReport struct {
	File     string `json:"file"`
	Standard string `json:"standard"`

	Acceptance rules.AcceptanceReport `json:"acceptance"`

	Verdicts struct {
		Trusted       int `json:"trusted"`
		Repaired      int `json:"repaired"`
		Unrecoverable int `json:"unrecoverable"`
	} `json:"verdicts"`

	Frames []FrameSummary `json:"frames"`
}

// Build condenses the per-frame pipeline results and the engine's
// accumulated findings into one report.
func Build(file string, std dif.Standard, results []*stream.Result, eng *rules.Engine) ScanReport {
	rep := ScanReport{
		File:       file,
		Standard:   std.String(),
		Acceptance: eng.MakeAcceptance(),
	}
	for _, r := range results {
		f := r.Outcome.Frame
		missing := 0
		for t := dif.SectionHeader; t <= dif.SectionVideo; t++ {
			missing += f.MissingCount(t)
		}
		fs := FrameSummary{
			Number:      f.Number,
			Offset:      f.Offset,
			Missing:     missing,
			Diagnostics: len(r.Outcome.Diagnostics),
			Sections:    make(map[string]string, len(r.Outcome.Sections)),
		}
		for _, s := range r.Spans {
			fs.SkippedBytes += s.Length
		}
		for sec, v := range r.Outcome.Sections {
			fs.Sections[sec.String()] = v.String()
		}
		for _, fld := range r.Outcome.Fields {
			sum := FieldSummary{
				Field:     fld.Field,
				Verdict:   fld.Verdict.String(),
				Value:     fld.Value,
				Discarded: fld.Discarded,
			}
			if fld.Verdict == repair.Repaired {
				sum.Source = fld.Source.String()
			}
			switch fld.Verdict {
			case repair.Trusted:
				rep.Verdicts.Trusted++
			case repair.Repaired:
				rep.Verdicts.Repaired++
			case repair.Unrecoverable:
				rep.Verdicts.Unrecoverable++
			}
			fs.Fields = append(fs.Fields, sum)
		}
		rep.Frames = append(rep.Frames, fs)
	}
	return rep
}

func SaveScanJSON(rep ScanReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadScanJSON(path string) (ScanReport, error) {
	var rep ScanReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
