package dataset

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
)

// candidateKeys lists the object names tried for a logical dataset name,
// plain CSV first.
func candidateKeys(name string) []string {
	return []string{
		name + ".csv",
		name + ".csv.gz",
		name + ".csv.lz4",
		name + ".csv.zst",
		name + ".zip",
		name,
	}
}

// unpackArchive returns a reader over the CSV content of key, decompressing
// by extension. The caller closes the returned reader; src is not closed.
func unpackArchive(key string, src io.Reader) (io.ReadCloser, error) {
	switch path.Ext(key) {
	case ".gz":
		return gzip.NewReader(src)
	case ".lz4":
		return io.NopCloser(lz4.NewReader(src)), nil
	case ".zst":
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case ".zip":
		return unpackZipArchive(src)
	}
	return io.NopCloser(src), nil
}

// unpackZipArchive picks the largest file of the archive, preferring CSV members.
func unpackZipArchive(src io.Reader) (io.ReadCloser, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var largestFile *zip.File
	var largestSize uint64
	largestIsCSV := false
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		isCSV := strings.HasSuffix(strings.ToLower(f.Name), ".csv")
		if largestIsCSV && !isCSV {
			continue
		}
		if largestFile == nil || (isCSV && !largestIsCSV) || f.UncompressedSize64 > largestSize {
			largestFile = f
			largestSize = f.UncompressedSize64
			largestIsCSV = isCSV
		}
	}
	if largestFile == nil {
		return nil, fmt.Errorf("zip archive has no files")
	}
	return largestFile.Open()
}
