package report

import (
	"errors"
	"fmt"
	"log/slog"

	ctsio "github.com/jrh3k5/walletops/internal/io"
)

const fileTimestampFormat = "20060102-150405"

// Assembler writes reports into a directory.
type Assembler struct {
	dir string
}

func NewAssembler(dir string) *Assembler {
	return &Assembler{dir: dir}
}

// Saved lists the files written by Save. FailedPath is empty when there were no
// failures or the file could not be written.
type Saved struct {
	ReportPath string
	FailedPath string
}

// Save writes the report and, if any transfer failed, a file of the failed
// recipients. Both writes are always attempted; their errors are joined.
func (a *Assembler) Save(report *BatchReport) (*Saved, error) {
	stamp := report.Metadata.StartedAt.UTC().Format(fileTimestampFormat)
	saved := &Saved{}

	var reportErr error
	if path, err := a.write("batch-report-"+stamp, report); err != nil {
		reportErr = fmt.Errorf("failed to save batch report: %w", err)
	} else {
		saved.ReportPath = path
		slog.Info(fmt.Sprintf("Saved batch report to %s", path))
	}

	var failedErr error
	if failed := FailedTransfers(report.Failed); len(failed) > 0 {
		if path, err := a.write("failed-transfers-"+stamp, failed); err != nil {
			failedErr = fmt.Errorf("failed to save failed transfers: %w", err)
		} else {
			saved.FailedPath = path
			slog.Info(fmt.Sprintf("Saved %d failed transfer(s) to %s; pass it as the recipients file to retry them", len(failed), path))
		}
	}

	return saved, errors.Join(reportErr, failedErr)
}

func (a *Assembler) write(name string, value any) (string, error) {
	path, err := ctsio.UniquePath(a.dir, name, ".json")
	if err != nil {
		return "", err
	}

	if err := ctsio.WriteJSON(path, value); err != nil {
		return "", err
	}

	return path, nil
}
