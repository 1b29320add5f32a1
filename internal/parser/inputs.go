package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"flow-classifier/internal/model"
	"flow-classifier/pkg/wellknown"
)

var keyColumns = []string{"label", "src", "dst", "protocol", "src_port", "dst_port"}

// ParseKeys reads lookup keys from a CSV file with the header
// label,src,dst,protocol,src_port,dst_port (any column order, case
// insensitive). Rows that do not form a valid key are skipped.
func ParseKeys(r io.Reader) ([]model.LabeledKey, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	colMap := make(map[string]int)
	for i, colName := range header {
		colMap[strings.ToLower(strings.TrimSpace(colName))] = i
	}
	for _, col := range keyColumns[1:4] {
		if _, ok := colMap[col]; !ok {
			return nil, fmt.Errorf("could not find '%s' column in key file", col)
		}
	}

	var keys []model.LabeledKey
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		field := func(name string) string {
			if i, ok := colMap[name]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		key, err := parseKey(field("src"), field("dst"), field("protocol"), field("src_port"), field("dst_port"))
		if err != nil {
			slog.Warn("Skipping invalid key", "line", line, "error", err)
			continue
		}
		label := field("label")
		if label == "" {
			label = strconv.Itoa(line)
		}
		keys = append(keys, model.LabeledKey{Label: label, Key: key})
	}
	return keys, nil
}

func parseKey(src, dst, proto, srcPort, dstPort string) (model.LookupKey, error) {
	var key model.LookupKey
	var err error
	if key.Src, err = model.ParseAddr(src); err != nil {
		return key, fmt.Errorf("src: %w", err)
	}
	if key.Dst, err = model.ParseAddr(dst); err != nil {
		return key, fmt.Errorf("dst: %w", err)
	}
	if key.Protocol, err = parseProtocol(proto); err != nil {
		return key, err
	}
	if key.SrcPort, err = parseKeyPort(srcPort); err != nil {
		return key, fmt.Errorf("src_port: %w", err)
	}
	if key.DstPort, err = parseKeyPort(dstPort); err != nil {
		return key, fmt.Errorf("dst_port: %w", err)
	}
	return key, nil
}

func parseProtocol(s string) (uint8, error) {
	if num, ok := wellknown.LookupProtocol(s); ok {
		return num, nil
	}
	num, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
	return uint8(num), nil
}

func parseKeyPort(s string) (uint16, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}
