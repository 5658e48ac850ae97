package loader

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dgallion1/gccquiz/internal/company"
	"github.com/dgallion1/gccquiz/internal/report"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFS(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, f, []byte("%PDF-1.4"), 0o644))
	}
	return fs
}

func TestLoad_SingleUAEReport(t *testing.T) {
	fs := newFS(t, "/files/UAE/FAB_2023.pdf")

	docs, skipped, err := New(fs, "/files", nil, discardLogger()).Load(nil)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, docs, 1)

	d := docs[0]
	assert.Equal(t, filepath.Join("/files", "UAE", "FAB_2023.pdf"), d.Path)
	assert.Equal(t, "FAB_2023.pdf", d.Filename)
	assert.Equal(t, "First Abu Dhabi Bank", d.Company)
	assert.Equal(t, "UAE", d.Country)
	assert.Equal(t, "2023", d.ReportYear)
	assert.Empty(t, d.Text)
}

func TestLoad_MissingRootIsNotFound(t *testing.T) {
	_, _, err := New(afero.NewMemMapFs(), "/files", nil, discardLogger()).Load(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, report.ErrNotFound))
	assert.Equal(t, report.KindNotFound, report.KindOf(err))
}

func TestLoad_OrderAndFiltering(t *testing.T) {
	fs := newFS(t,
		"/files/UAE/ENBD_2023.pdf",
		"/files/UAE/ADIB-2022.PDF",
		"/files/UAE/notes.txt",
		"/files/ksa/Almarai_Annual_Report.pdf",
		"/files/Egypt/CIB_2023.pdf",
		"/files/.cache/x.pdf",
		"/files/readme.md",
	)

	docs, skipped, err := New(fs, "/files", nil, discardLogger()).Load(nil)
	require.NoError(t, err)

	var names []string
	for _, d := range docs {
		names = append(names, d.Country+"/"+d.Filename)
	}
	assert.Equal(t, []string{"UAE/ADIB-2022.PDF", "UAE/ENBD_2023.pdf", "KSA/Almarai_Annual_Report.pdf"}, names)

	reasons := map[string]string{}
	for _, s := range skipped {
		reasons[filepath.Base(s.Path)] = s.Reason
	}
	assert.Equal(t, "unknown country directory", reasons["Egypt"])
	assert.Equal(t, "unsupported file type", reasons["notes.txt"])
	assert.Len(t, skipped, 2)
}

func TestLoad_CountryFilter(t *testing.T) {
	fs := newFS(t, "/files/UAE/FAB_2023.pdf", "/files/Qatar/QNB_2023.pdf")

	docs, _, err := New(fs, "/files", nil, discardLogger()).Load([]string{"qatar"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Qatar", docs[0].Country)
	assert.Equal(t, "QNB Qatar", docs[0].Company)
}

func TestLoad_UnknownFilterValue(t *testing.T) {
	fs := newFS(t, "/files/UAE/FAB_2023.pdf")
	_, _, err := New(fs, "/files", nil, discardLogger()).Load([]string{"Egypt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown country")
}

func TestWalk_StopsOnCallbackError(t *testing.T) {
	fs := newFS(t, "/files/Oman/BM_2022.pdf", "/files/Oman/SIB_2022.pdf")
	stop := errors.New("stop")
	seen := 0
	_, err := New(fs, "/files", nil, discardLogger()).Walk(nil, func(report.Document) error {
		seen++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, seen)
}

func TestCompanyName(t *testing.T) {
	dir := company.NewDirectory()
	tests := []struct {
		filename string
		country  string
		want     string
	}{
		{"FAB_2023.pdf", "UAE", "First Abu Dhabi Bank"},
		{"nbk-annual-2022.pdf", "Kuwait", "National Bank of Kuwait"},
		{"QNB_2023.pdf", "Qatar", "QNB Qatar"},
		{"almarai-annual_report_2023.pdf", "KSA", "Almarai Annual"},
		{"Saudi Aramco 2023.pdf", "KSA", "Saudi Aramco 2023"},
		{"_.pdf", "Oman", "Unknown Oman"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, CompanyName(tt.filename, tt.country, dir))
		})
	}
}

func TestInferYear(t *testing.T) {
	assert.Equal(t, "2023", InferYear("FAB_2023.pdf"))
	assert.Equal(t, "2021", InferYear("report-2021-q4.pdf"))
	assert.Equal(t, "", InferYear("FAB_120231.pdf"))
	assert.Equal(t, "", InferYear("annual.pdf"))
}

func TestYearFromText(t *testing.T) {
	text := "Annual Report 2023. Compared with 2022, net profit rose. In 2023 the bank expanded."
	assert.Equal(t, "2023", YearFromText(text))
	assert.Equal(t, "2024", YearFromText("fiscal 2023 and fiscal 2024"))
	assert.Equal(t, "", YearFromText("no years here, only 1999"))
}

func TestCanonicalCountry(t *testing.T) {
	for _, in := range []string{"uae", "UAE", " Uae "} {
		c, ok := CanonicalCountry(in)
		assert.True(t, ok)
		assert.Equal(t, "UAE", c)
	}
	_, ok := CanonicalCountry("Egypt")
	assert.False(t, ok)
}
