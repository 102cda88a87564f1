package transform

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"datapilot-go/internal/model"
)

func encodeCSV(w io.Writer, ds *model.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return err
	}
	record := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i, c := range ds.Columns {
			record[i] = FormatCell(row[c])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// checkShape 把数据集编码为 CSV 再逐行读回，任何一行字段数与列头不一致都拒绝整个结果。
func checkShape(ds *model.Dataset) error {
	for i, row := range ds.Rows {
		if len(row) != len(ds.Columns) {
			return fmt.Errorf("%w: row %d has %d fields, expected %d", ErrRowShape, i+1, len(row), len(ds.Columns))
		}
	}
	var buf bytes.Buffer
	if err := encodeCSV(&buf, ds); err != nil {
		return err
	}
	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRowShape, err)
		}
		line++
		if len(record) != len(ds.Columns) {
			return fmt.Errorf("%w: line %d has %d fields, expected %d", ErrRowShape, line, len(record), len(ds.Columns))
		}
	}
}

// WriteCSV 把清洗后的数据集写到 path，必要时创建目录。
func WriteCSV(path string, ds *model.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeCSV(f, ds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
