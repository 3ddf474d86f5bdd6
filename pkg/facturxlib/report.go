package facturxlib

import (
	"context"
	"errors"
	"os"

	"github.com/rezonia/facturx/internal/cii"
	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/processor"
)

// FileReport is the structural check of a single PDF or XML file
type FileReport struct {
	File   string `json:"file"`
	Format string `json:"format"`
	Status string `json:"status"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Check validates the invoice carried by data. PDFs are checked through
// their embedded XML.
func (t *Toolkit) Check(filename string, data []byte) FileReport {
	report := FileReport{File: filename}
	xml, format, err := processor.Decode(filename, data)
	report.Format = format.String()
	if err != nil {
		report.Status = string(model.KindOf(err))
		var me *model.Error
		if errors.As(err, &me) {
			report.Reason = me.Message
		}
		return report
	}

	res := cii.Validate(xml)
	report.Status = res.Status.String()
	report.Valid = res.Valid()
	report.Reason = res.Reason
	return report
}

// CheckFiles reads and checks paths concurrently. Reports keep the order of paths.
func (t *Toolkit) CheckFiles(ctx context.Context, paths []string) []FileReport {
	reports := make([]FileReport, len(paths))
	done := make(chan struct{}, len(paths))

	for i, path := range paths {
		go func(idx int, path string) {
			defer func() { done <- struct{}{} }()
			if err := ctx.Err(); err != nil {
				reports[idx] = FileReport{File: path, Status: "error", Reason: err.Error()}
				return
			}
			data, err := os.ReadFile(path)
			if err != nil {
				reports[idx] = FileReport{File: path, Status: "error", Reason: err.Error()}
				return
			}
			reports[idx] = t.Check(path, data)
		}(i, path)
	}

	for range paths {
		<-done
	}
	return reports
}
