package ingest

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/elite-command/refinery/internal/model"
	"github.com/elite-command/refinery/internal/normalize"
)

// Store is the persistence surface the importer needs.
type Store interface {
	SaveEntry(ctx context.Context, e *model.RawEntry) error
}

// Options bounds a workbook import.
type Options struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // header rows to skip beyond the first
	SheetLimit int    // max sheets scanned when SheetName is empty, 0 = first only
	RowLimit   int    // max data rows per sheet, 0 = unlimited
}

// Importer converts uploaded reports into pending raw entries.
type Importer struct {
	store    Store
	opts     Options
	sourceID string
}

// NewImporter returns an importer writing through store.
func NewImporter(store Store, opts Options) *Importer {
	return &Importer{store: store, opts: opts, sourceID: "file_upload"}
}

// Summary reports what one import produced.
type Summary struct {
	Sheets  int
	Rows    int
	Entries int
	Skipped int
}

// ImportXLSX reads a workbook and creates one pending entry per data row.
// The first non-skipped row of each sheet names the fields; cells parse to
// numbers when they look numeric and stay strings otherwise.
func (im *Importer) ImportXLSX(ctx context.Context, companyID, path string) (Summary, error) {
	if companyID == "" {
		return Summary{}, eris.New("ingest: missing company id")
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		return Summary{}, eris.Wrap(err, "ingest: open workbook")
	}

	sheets, err := im.selectSheets(f)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, sheet := range sheets {
		if ctx.Err() != nil {
			return sum, eris.Wrap(ctx.Err(), "ingest: cancelled")
		}
		s, err := im.importSheet(ctx, companyID, sheet)
		if err != nil {
			return sum, err
		}
		sum.Sheets++
		sum.Rows += s.Rows
		sum.Entries += s.Entries
		sum.Skipped += s.Skipped
	}

	zap.L().Info("workbook imported",
		zap.String("company_id", companyID),
		zap.String("path", path),
		zap.Int("sheets", sum.Sheets),
		zap.Int("entries", sum.Entries),
		zap.Int("skipped", sum.Skipped))
	return sum, nil
}

func (im *Importer) selectSheets(f *xlsx.File) ([]*xlsx.Sheet, error) {
	if im.opts.SheetName != "" {
		sheet, ok := f.Sheet[im.opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", im.opts.SheetName)
		}
		return []*xlsx.Sheet{sheet}, nil
	}

	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}

	limit := im.opts.SheetLimit
	if limit <= 0 {
		if im.opts.SheetIndex >= len(f.Sheets) {
			return nil, eris.Errorf("ingest: sheet index %d out of range (file has %d sheets)", im.opts.SheetIndex, len(f.Sheets))
		}
		return []*xlsx.Sheet{f.Sheets[im.opts.SheetIndex]}, nil
	}
	if limit > len(f.Sheets) {
		limit = len(f.Sheets)
	}
	return f.Sheets[:limit], nil
}

func (im *Importer) importSheet(ctx context.Context, companyID string, sheet *xlsx.Sheet) (Summary, error) {
	var sum Summary
	var headers []string

	for i, row := range sheet.Rows {
		if i < im.opts.SkipRows {
			continue
		}
		cells := rowToStrings(row)
		if headers == nil {
			headers = cells
			continue
		}

		sum.Rows++
		if im.opts.RowLimit > 0 && sum.Rows > im.opts.RowLimit {
			zap.L().Warn("row limit reached, truncating sheet",
				zap.String("sheet", sheet.Name), zap.Int("limit", im.opts.RowLimit))
			sum.Rows--
			break
		}

		fields := rowToFields(headers, cells)
		if len(fields) == 0 {
			sum.Skipped++
			continue
		}

		entry := &model.RawEntry{
			ID:        uuid.New().String(),
			CompanyID: companyID,
			SourceID:  im.sourceID,
			Fields:    fields,
			Status:    model.EntryPending,
			CreatedAt: time.Now().UTC(),
		}
		if err := im.store.SaveEntry(ctx, entry); err != nil {
			return sum, eris.Wrap(err, "ingest: save entry")
		}
		sum.Entries++
	}
	return sum, nil
}

// ImportText pre-shapes a loose text report into one pending entry using the
// per-category metric patterns. Nothing recognizable yields no entry.
func (im *Importer) ImportText(ctx context.Context, companyID string, category model.DataCategory, text string) (*model.RawEntry, error) {
	if companyID == "" {
		return nil, eris.New("ingest: missing company id")
	}

	extracted := normalize.ExtractFromText(category, text)
	if len(extracted) == 0 {
		return nil, nil
	}

	fields := make(map[string]any, len(extracted))
	for _, m := range extracted {
		fields[m.Code] = m.Value
	}

	entry := &model.RawEntry{
		ID:        uuid.New().String(),
		CompanyID: companyID,
		SourceID:  im.sourceID,
		DataType:  category,
		Fields:    fields,
		Status:    model.EntryPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := im.store.SaveEntry(ctx, entry); err != nil {
		return nil, eris.Wrap(err, "ingest: save entry")
	}
	return entry, nil
}

// rowToFields zips headers with cells, dropping blank headers and blank
// cells. Numeric-looking cells become float64 so downstream cleaning sees
// the same shapes webhooks deliver.
func rowToFields(headers, cells []string) map[string]any {
	fields := make(map[string]any)
	for j, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" || j >= len(cells) {
			continue
		}
		c := strings.TrimSpace(cells[j])
		if c == "" {
			continue
		}
		if n, err := strconv.ParseFloat(strings.ReplaceAll(c, ",", ""), 64); err == nil {
			fields[h] = n
		} else {
			fields[h] = c
		}
	}
	return fields
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
