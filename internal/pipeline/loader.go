package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"datapilot-go/internal/model"

	"github.com/xuri/excelize/v2"
)

// SupportedExtension 判断文件扩展名（不区分大小写）是否受支持。
func SupportedExtension(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".json", ".xlsx":
		return true
	}
	return false
}

// LoadDataset 按扩展名读取表格文件，并校验数据集不变量。
func LoadDataset(path string) (*model.Dataset, error) {
	var (
		ds  *model.Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		ds, err = loadCSV(path)
	case ".json":
		ds, err = loadJSON(path)
	case ".xlsx":
		ds, err = loadXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func loadCSV(path string) (*model.Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(raw))
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, model.ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedDataset, err)
	}

	ds := &model.Dataset{Columns: headerNames(header)}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrMalformedDataset, err)
		}
		if blankRecord(record) {
			continue
		}
		row := make(model.Row, len(ds.Columns))
		for i, c := range ds.Columns {
			row[c] = parseCell(record[i])
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func loadXLSX(path string) (*model.Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedDataset, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, model.ErrEmptyDataset
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedDataset, err)
	}
	if len(rows) == 0 {
		return nil, model.ErrEmptyDataset
	}

	ds := &model.Dataset{Columns: headerNames(rows[0])}
	for _, record := range rows[1:] {
		if blankRecord(record) {
			continue
		}
		if len(record) > len(ds.Columns) {
			return nil, fmt.Errorf("%w: row has %d cells, header has %d", model.ErrMalformedDataset, len(record), len(ds.Columns))
		}
		// excelize 会截掉行尾的空单元格
		row := make(model.Row, len(ds.Columns))
		for i, c := range ds.Columns {
			if i < len(record) {
				row[c] = parseCell(record[i])
			} else {
				row[c] = nil
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

// loadJSON 支持两种朝向：记录数组 [{col: v}, ...] 与列对象 {col: [v, ...]} / {col: {"0": v}}。
func loadJSON(path string) (*model.Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, model.ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedDataset, err)
	}
	switch tok {
	case json.Delim('['):
		return decodeRecords(dec)
	case json.Delim('{'):
		return decodeColumns(dec)
	default:
		return nil, fmt.Errorf("%w: top-level JSON must be an array or object", model.ErrMalformedDataset)
	}
}

func decodeRecords(dec *json.Decoder) (*model.Dataset, error) {
	ds := &model.Dataset{}
	seen := map[string]struct{}{}
	for dec.More() {
		keys, values, err := decodeObject(dec)
		if err != nil {
			return nil, err
		}
		row := make(model.Row, len(keys))
		for i, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				ds.Columns = append(ds.Columns, k)
			}
			row[k] = normalizeJSONValue(values[i])
		}
		ds.Rows = append(ds.Rows, row)
	}
	// 记录之间键不一致时用 nil 补齐
	for _, row := range ds.Rows {
		for _, c := range ds.Columns {
			if _, ok := row[c]; !ok {
				row[c] = nil
			}
		}
	}
	return ds, nil
}

// decodeObject 按出现顺序读取一个 JSON 对象的键值对。
func decodeObject(dec *json.Decoder) ([]string, []interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrMalformedDataset, err)
	}
	if tok != json.Delim('{') {
		return nil, nil, fmt.Errorf("%w: expected a JSON object per record", model.ErrMalformedDataset)
	}
	var keys []string
	var values []interface{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", model.ErrMalformedDataset, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("%w: non-string key", model.ErrMalformedDataset)
		}
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", model.ErrMalformedDataset, err)
		}
		keys = append(keys, strings.TrimSpace(key))
		values = append(values, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrMalformedDataset, err)
	}
	return keys, values, nil
}

func decodeColumns(dec *json.Decoder) (*model.Dataset, error) {
	ds := &model.Dataset{}
	var columns [][]interface{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrMalformedDataset, err)
		}
		key, _ := keyTok.(string)
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrMalformedDataset, err)
		}
		var values []interface{}
		switch col := v.(type) {
		case []interface{}:
			values = col
		case map[string]interface{}:
			values = indexedValues(col)
		default:
			return nil, fmt.Errorf("%w: column %q is not an array", model.ErrMalformedDataset, key)
		}
		ds.Columns = append(ds.Columns, strings.TrimSpace(key))
		columns = append(columns, values)
	}

	n := 0
	for _, col := range columns {
		if len(col) > n {
			n = len(col)
		}
	}
	for i := 0; i < n; i++ {
		row := make(model.Row, len(ds.Columns))
		for j, c := range ds.Columns {
			if i < len(columns[j]) {
				row[c] = normalizeJSONValue(columns[j][i])
			} else {
				row[c] = nil
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

// indexedValues 把 {"0": v0, "1": v1} 按数字下标排序成切片。
func indexedValues(col map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(col))
	for k := range col {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		out[i] = col[k]
	}
	return out
}

func normalizeJSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case string:
		return parseCell(val)
	case bool:
		return val
	default:
		// 嵌套结构以 JSON 文本保存
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// parseCell 把文本单元格规范化为标量：空 -> nil，整数 -> int64，小数 -> float64，true/false -> bool。
func parseCell(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	lower := strings.ToLower(s)
	switch lower {
	case "nan", "null", "none", "n/a", "na":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}

func headerNames(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		out[i] = h
	}
	return out
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
