package source

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"
)

// Format names a dataset encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name. Empty input is resolved from the data
// location's extension, defaulting to json.
func ParseFormat(name, location string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		switch {
		case strings.HasSuffix(location, ".csv"):
			return FormatCSV, nil
		case strings.HasSuffix(location, ".parquet"):
			return FormatParquet, nil
		default:
			return FormatJSON, nil
		}
	}
	switch f := Format(name); f {
	case FormatJSON, FormatCSV, FormatParquet:
		return f, nil
	default:
		return "", wrapError(CodeUnsupportedFormat, false, fmt.Errorf("unsupported data format %q", name))
	}
}

// DecodeJSON reads an array of dataset items.
func DecodeJSON(data []byte) ([]map[string]any, error) {
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, wrapError(CodeDecodeFailed, false, fmt.Errorf("decode json dataset: %w", err))
	}
	return items, nil
}

// DecodeCSV reads rows keyed by the header line. Numeric and boolean cells
// are typed; empty cells are dropped.
func DecodeCSV(data []byte) ([]map[string]any, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, wrapError(CodeDecodeFailed, false, fmt.Errorf("read csv header: %w", err))
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var rows []map[string]any
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrapError(CodeDecodeFailed, false, fmt.Errorf("read csv row %d: %w", len(rows)+2, err))
		}
		row := make(map[string]any, len(header))
		for i, cell := range cells {
			if i >= len(header) || cell == "" {
				continue
			}
			row[header[i]] = cellValue(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cellValue(cell string) any {
	if n, err := strconv.ParseFloat(cell, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(cell); err == nil && (cell == "true" || cell == "false") {
		return b
	}
	return cell
}

// DecodeParquet reads every row of a flat parquet file into maps keyed by
// the file's column names.
func DecodeParquet(data []byte) ([]map[string]any, error) {
	pf, err := buffer.NewBufferFile(data)
	if err != nil {
		return nil, wrapError(CodeDecodeFailed, false, err)
	}
	pr, err := reader.NewParquetReader(pf, nil, 4)
	if err != nil {
		return nil, wrapError(CodeDecodeFailed, false, fmt.Errorf("open parquet: %w", err))
	}
	defer pr.ReadStop()

	columns := make(map[string]string, len(pr.SchemaHandler.Infos))
	for _, info := range pr.SchemaHandler.Infos {
		columns[info.InName] = info.ExName
	}

	num := int(pr.GetNumRows())
	if num == 0 {
		return nil, nil
	}
	res, err := pr.ReadByNumber(num)
	if err != nil {
		return nil, wrapError(CodeDecodeFailed, false, fmt.Errorf("read parquet rows: %w", err))
	}

	rows := make([]map[string]any, 0, len(res))
	for _, r := range res {
		v := reflect.ValueOf(r)
		if v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, wrapError(CodeDecodeFailed, false, fmt.Errorf("unexpected parquet row type %s", v.Type()))
		}
		row := make(map[string]any, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			if field.Kind() == reflect.Ptr {
				if field.IsNil() {
					continue
				}
				field = field.Elem()
			}
			name := columns[v.Type().Field(i).Name]
			if name == "" {
				name = v.Type().Field(i).Name
			}
			row[name] = parquetValue(field)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parquetValue(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return float64(v.Int())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Bool:
		return v.Bool()
	case reflect.String:
		return v.String()
	default:
		return v.Interface()
	}
}
