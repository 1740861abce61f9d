package exchange

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
)

// SyncReport pairs the import half of a sync with the export that
// follows it.
type SyncReport struct {
	Import   *ImportReport `json:"import,omitempty"`
	Exported int           `json:"exported"`
}

// Sync reconciles the store with the JSONL file at path: the file is
// imported with the merge strategy, then the full store is re-exported
// to the same path. Running it twice in a row changes nothing. A missing
// file is not an error; the sync degrades to a plain export.
func (e *Engine) Sync(ctx context.Context, path string, opts ImportOptions) (*SyncReport, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyMerge
	}

	report := &SyncReport{}
	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// nothing to pull in
	case err != nil:
		return nil, err
	default:
		imp, ierr := e.Import(ctx, f, opts)
		f.Close()
		if ierr != nil {
			return nil, ierr
		}
		report.Import = imp
	}

	exp, err := e.ExportFile(ctx, path, ExportOptions{
		Compress: strings.HasSuffix(path, ".gz"),
	})
	if err != nil {
		return nil, err
	}
	report.Exported = exp.Count
	return report, nil
}
