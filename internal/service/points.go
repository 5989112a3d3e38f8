package service

import (
	"fmt"
	"math"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"CapIot.ixonsync/internal/table"
)

// exportTimeLayout matches export timestamps; fractional seconds after the
// seconds field are accepted when parsing.
const exportTimeLayout = "2006-01-02 15:04:05"

// ParseExport turns one export into points of measurement, indexed by the
// time column. Any unparsable timestamp fails the whole export. Numeric
// cells become float fields, other non-empty cells string fields; rows
// without fields produce no point. rows is the number of data rows read.
func ParseExport(measurement, text string) (points []*write.Point, rows int, err error) {
	tbl, err := table.Parse(text)
	if err != nil {
		return nil, 0, err
	}
	idx := tbl.Column(timeColumn)
	if idx < 0 {
		return nil, 0, fmt.Errorf("column %q not found", timeColumn)
	}

	for n, row := range tbl.Rows {
		ts, err := time.Parse(exportTimeLayout, row[idx])
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: %w", n+1, err)
		}
		fields := make(map[string]interface{}, len(row)-1)
		for i, cell := range row {
			if i == idx || cell == "" {
				continue
			}
			if v := fieldValue(cell); v != nil {
				fields[tbl.Header[i]] = v
			}
		}
		if len(fields) == 0 {
			continue
		}
		points = append(points, influxdb2.NewPoint(measurement, nil, fields, ts))
	}
	return points, tbl.Len(), nil
}

// fieldValue returns nil for NaN and infinities, which have no line protocol form.
func fieldValue(cell string) interface{} {
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return cell
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
