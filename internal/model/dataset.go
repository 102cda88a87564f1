package model

import (
	"errors"
	"fmt"
)

// Row 是一行数据：列名 -> 标量值（nil、string、int64、float64、bool、time.Time）。
type Row map[string]any

// Dataset 是共享同一列头的有序行集合。
type Dataset struct {
	Columns []string
	Rows    []Row
}

var (
	// ErrEmptyDataset 表示没有列或没有行。
	ErrEmptyDataset = errors.New("dataset is empty")
	// ErrMalformedDataset 表示列头重复或某行的列集合与列头不一致。
	ErrMalformedDataset = errors.New("dataset is malformed")
)

// Validate 检查数据集不变量：非空、列头唯一、每一行的列集合与列头完全一致。
func (d *Dataset) Validate() error {
	if d == nil || len(d.Columns) == 0 || len(d.Rows) == 0 {
		return ErrEmptyDataset
	}
	seen := make(map[string]struct{}, len(d.Columns))
	for _, c := range d.Columns {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: duplicated column %q", ErrMalformedDataset, c)
		}
		seen[c] = struct{}{}
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("%w: row %d has %d fields, header has %d", ErrMalformedDataset, i, len(row), len(d.Columns))
		}
		for k := range row {
			if _, ok := seen[k]; !ok {
				return fmt.Errorf("%w: row %d has unknown column %q", ErrMalformedDataset, i, k)
			}
		}
	}
	return nil
}

// HasColumn 判断列头中是否存在该列。
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Values 返回某一列在所有行中的值，顺序与行一致。
func (d *Dataset) Values(column string) []any {
	out := make([]any, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row[column]
	}
	return out
}

// Clone 深拷贝行，便于清洗时不修改原始数据。
func (d *Dataset) Clone() *Dataset {
	cols := append([]string(nil), d.Columns...)
	rows := make([]Row, len(d.Rows))
	for i, r := range d.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		rows[i] = nr
	}
	return &Dataset{Columns: cols, Rows: rows}
}
