package dataset

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
	"github.com/pivolan/textile_dashboard/domain/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vendorsCSV = "DisplayName,Active,Balance\nLoom & Co,true,1500\nThread House,false,0\n"

func gzipBytes(t *testing.T, data string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func lz4Bytes(t *testing.T, data string) []byte {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data string) []byte {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFileSourceFormats(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "plain.csv", []byte(vendorsCSV), 0o644))
	require.NoError(t, afero.WriteFile(fs, "gz.csv.gz", gzipBytes(t, vendorsCSV), 0o644))
	require.NoError(t, afero.WriteFile(fs, "lz.csv.lz4", lz4Bytes(t, vendorsCSV), 0o644))
	require.NoError(t, afero.WriteFile(fs, "zs.csv.zst", zstdBytes(t, vendorsCSV), 0o644))
	require.NoError(t, afero.WriteFile(fs, "zipped.zip", zipBytes(t, map[string]string{
		"readme.txt":  "a much longer text file that is not a dataset at all, really not",
		"vendors.csv": vendorsCSV,
	}), 0o644))

	src := NewFileSource(fs)
	for _, name := range []string{"plain", "gz", "lz", "zs", "zipped"} {
		t.Run(name, func(t *testing.T) {
			tbl, err := src.Load(context.Background(), name)
			require.NoError(t, err)
			assert.Equal(t, []string{"DisplayName", "Active", "Balance"}, tbl.Columns)
			assert.Equal(t, 2, tbl.Len())
			assert.Equal(t, "Loom & Co", tbl.Rows[0]["DisplayName"].Formatted)
		})
	}

	_, err := src.Load(context.Background(), "absent")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"accounts":         "accounts",
		"Accounts.csv":     "accounts",
		"invoices.csv.gz":  "invoices",
		" Vendors ":        "vendors",
		"Dépenses":         "depenses",
		"../etc/passwd":    "etc_passwd",
		"nonexistent.csv":  "nonexistent",
		"bank statements":  "bank_statements",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

type countingSource struct {
	calls  atomic.Int32
	tables map[string]*models.Table
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Load(ctx context.Context, name string) (*models.Table, error) {
	s.calls.Add(1)
	if t, ok := s.tables[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%s: %w", name, models.ErrNotFound)
}

func TestLoaderCachesByName(t *testing.T) {
	src := &countingSource{tables: map[string]*models.Table{
		"accounts": models.NewTable("accounts", []string{"Name"}, []interface{}{"Cotton Twill"}),
	}}
	cache := NewCache()
	loader := NewLoader(cache, src)

	first, err := loader.Load(context.Background(), "accounts")
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), "accounts.csv")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, []string{"accounts"}, cache.Keys())
}

func TestLoaderConcurrentMissLoadsOnce(t *testing.T) {
	src := &countingSource{tables: map[string]*models.Table{
		"bills": models.NewTable("bills", []string{"TotalAmt"}, []interface{}{10.0}),
	}}
	loader := NewLoader(NewCache(), src)

	var wg sync.WaitGroup
	results := make([]*models.Table, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = loader.Load(context.Background(), "bills")
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.LessOrEqual(t, src.calls.Load(), int32(8))
	assert.Equal(t, 1, loader.Cache().Len())
}

type gatedSource struct {
	started chan struct{}
	release chan struct{}
}

func (s *gatedSource) Name() string { return "gated" }

func (s *gatedSource) Load(ctx context.Context, name string) (*models.Table, error) {
	close(s.started)
	<-s.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return models.NewTable(name, []string{"TotalAmt"}, []interface{}{10.0}), nil
}

func TestLoaderIgnoresFirstCallerCancel(t *testing.T) {
	src := &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
	loader := NewLoader(NewCache(), src)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		table *models.Table
		err   error
	}
	done := make(chan result, 1)
	go func() {
		tbl, err := loader.Load(ctx, "bills")
		done <- result{tbl, err}
	}()

	<-src.started
	cancel()
	close(src.release)

	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, 1, first.table.Len())

	again, err := loader.Load(context.Background(), "bills")
	require.NoError(t, err)
	assert.Same(t, first.table, again)
}

func TestLoaderNotFound(t *testing.T) {
	src := &countingSource{}
	loader := NewLoader(NewCache(), src)

	tbl, err := loader.Load(context.Background(), "nonexistent.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	require.NotNil(t, tbl)
	assert.True(t, tbl.IsEmpty())

	// not cached: the next call consults the source again
	_, _ = loader.Load(context.Background(), "nonexistent.csv")
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, 0, loader.Cache().Len())
}

type brokenSource struct{}

func (brokenSource) Name() string { return "broken" }

func (brokenSource) Load(ctx context.Context, name string) (*models.Table, error) {
	return nil, errors.New("disk on fire")
}

func TestLoaderSourceOrderAndFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "vendors.csv", []byte(vendorsCSV), 0o644))

	loader := NewLoader(NewCache(), NewFileSource(fs), brokenSource{})
	tbl, err := loader.Load(context.Background(), "vendors")
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())

	tbl, err = loader.Load(context.Background(), "customers")
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrNotFound))
	assert.True(t, tbl.IsEmpty())
}

func TestLoaderPreload(t *testing.T) {
	src := &countingSource{tables: map[string]*models.Table{
		"accounts": models.NewTable("accounts", []string{"Name"}),
		"bills":    models.NewTable("bills", []string{"TotalAmt"}),
	}}
	loader := NewLoader(NewCache(), src)

	missing, err := loader.Preload(context.Background(), "accounts", "bills", "expenses", "vendors")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"expenses", "vendors"}, missing)
	assert.Equal(t, []string{"accounts", "bills"}, loader.Cache().Keys())
}
