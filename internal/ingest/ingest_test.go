package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/elite-command/refinery/internal/model"
)

type memStore struct {
	entries []*model.RawEntry
	saveErr error
}

func (m *memStore) SaveEntry(_ context.Context, e *model.RawEntry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "report.xlsx")
	err := f.Save(path)
	require.NoError(t, err)
	return path
}

func TestImportXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Metrics": {
			{"mrr", "churn_rate", "notes"},
			{"10000", "3.2%", "strong month"},
			{"12,500", "2.9%", ""},
		},
	})

	s := &memStore{}
	im := NewImporter(s, Options{})

	sum, err := im.ImportXLSX(context.Background(), "co-1", path)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sheets)
	assert.Equal(t, 2, sum.Rows)
	assert.Equal(t, 2, sum.Entries)
	assert.Equal(t, 0, sum.Skipped)

	require.Len(t, s.entries, 2)
	first := s.entries[0]
	assert.Equal(t, "co-1", first.CompanyID)
	assert.Equal(t, "file_upload", first.SourceID)
	assert.Equal(t, model.EntryPending, first.Status)
	assert.NotEmpty(t, first.ID)

	assert.Equal(t, 10000.0, first.Fields["mrr"])
	assert.Equal(t, "3.2%", first.Fields["churn_rate"])
	assert.Equal(t, "strong month", first.Fields["notes"])

	// Comma-grouped numbers still parse.
	assert.Equal(t, 12500.0, s.entries[1].Fields["mrr"])
	// Blank cells never become fields.
	_, ok := s.entries[1].Fields["notes"]
	assert.False(t, ok)
}

func TestImportXLSX_BlankRowsSkipped(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Metrics": {
			{"revenue"},
			{""},
			{"500"},
		},
	})

	s := &memStore{}
	im := NewImporter(s, Options{})

	sum, err := im.ImportXLSX(context.Background(), "co-1", path)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Entries)
	assert.Equal(t, 1, sum.Skipped)
}

func TestImportXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Ignore":  {{"x"}, {"1"}},
		"Revenue": {{"arr"}, {"120000"}},
	})

	s := &memStore{}
	im := NewImporter(s, Options{SheetName: "Revenue"})

	sum, err := im.ImportXLSX(context.Background(), "co-1", path)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Entries)
	assert.Equal(t, 120000.0, s.entries[0].Fields["arr"])
}

func TestImportXLSX_SheetNameNotFound(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {{"a"}},
	})

	im := NewImporter(&memStore{}, Options{SheetName: "Missing"})
	_, err := im.ImportXLSX(context.Background(), "co-1", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestImportXLSX_SheetIndexOutOfRange(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {{"a"}},
	})

	im := NewImporter(&memStore{}, Options{SheetIndex: 5})
	_, err := im.ImportXLSX(context.Background(), "co-1", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestImportXLSX_RowLimit(t *testing.T) {
	rows := [][]string{{"users"}}
	for i := 0; i < 10; i++ {
		rows = append(rows, []string{"100"})
	}
	path := createTestXLSX(t, map[string][][]string{"Ops": rows})

	s := &memStore{}
	im := NewImporter(s, Options{RowLimit: 3})

	sum, err := im.ImportXLSX(context.Background(), "co-1", path)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Entries)
	assert.Len(t, s.entries, 3)
}

func TestImportXLSX_SkipRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Metrics": {
			{"Quarterly Report"},
			{"mrr"},
			{"9000"},
		},
	})

	s := &memStore{}
	im := NewImporter(s, Options{SkipRows: 1})

	sum, err := im.ImportXLSX(context.Background(), "co-1", path)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Entries)
	assert.Equal(t, 9000.0, s.entries[0].Fields["mrr"])
}

func TestImportXLSX_MissingCompany(t *testing.T) {
	im := NewImporter(&memStore{}, Options{})
	_, err := im.ImportXLSX(context.Background(), "", "nowhere.xlsx")
	require.Error(t, err)
}

func TestImportText_Financial(t *testing.T) {
	s := &memStore{}
	im := NewImporter(s, Options{})

	entry, err := im.ImportText(context.Background(), "co-1", model.CategoryFinancial,
		"Monthly update: MRR $45k, burn rate $30,000, runway 14 months")
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, model.CategoryFinancial, entry.DataType)
	assert.Equal(t, model.EntryPending, entry.Status)
	assert.Equal(t, 45000.0, entry.Fields["mrr"])
	assert.Equal(t, 30000.0, entry.Fields["burn_rate"])
	require.Len(t, s.entries, 1)
}

func TestImportText_NothingRecognized(t *testing.T) {
	s := &memStore{}
	im := NewImporter(s, Options{})

	entry, err := im.ImportText(context.Background(), "co-1", model.CategoryFinancial,
		"no metrics in this note")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Empty(t, s.entries)
}

func TestParseFTPURL(t *testing.T) {
	host, path, err := parseFTPURL("ftp://reports.example.com/drops/q3.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "reports.example.com:21", host)
	assert.Equal(t, "/drops/q3.xlsx", path)

	host, _, err = parseFTPURL("ftp://reports.example.com:2121/a.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "reports.example.com:2121", host)

	_, _, err = parseFTPURL("https://example.com/a.xlsx")
	require.Error(t, err)

	_, _, err = parseFTPURL("ftp://example.com")
	require.Error(t, err)
}
