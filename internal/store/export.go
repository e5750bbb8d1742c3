package store

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// csvHeader is the fixed 15-column export order. Consumers key on column
// position, so the order is part of the contract.
var csvHeader = []string{
	"id", "address", "city", "state", "zip",
	"latitude", "longitude", "marketValue", "propertyType",
	"bedrooms", "bathrooms", "acreage", "description",
	"status", "submittedAt",
}

// ExportJSON renders the collection as pretty-printed JSON.
func (s *PropertyService) ExportJSON() (string, error) {
	data, err := json.MarshalIndent(s.List(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ExportCSV renders the collection as CSV with the fixed 15-column
// header. Every string field is quoted regardless of content.
func (s *PropertyService) ExportCSV() string {
	var b strings.Builder
	b.WriteString(strings.Join(csvHeader, ","))
	b.WriteByte('\n')
	for _, p := range s.List() {
		row := []string{
			quote(p.ID),
			quote(p.Address),
			quote(p.City),
			quote(p.State),
			quote(p.Zip),
			strconv.FormatFloat(p.Coordinate.Lat, 'f', -1, 64),
			strconv.FormatFloat(p.Coordinate.Lng, 'f', -1, 64),
			strconv.FormatFloat(p.MarketValue, 'f', -1, 64),
			quote(string(p.PropertyType)),
			strconv.Itoa(p.Bedrooms),
			strconv.FormatFloat(p.Bathrooms, 'f', -1, 64),
			strconv.FormatFloat(p.Acreage, 'f', -1, 64),
			quote(p.Description),
			quote(string(p.Status)),
			quote(p.SubmittedAt.Format(time.RFC3339)),
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

// quote wraps a string field in double quotes, escaping embedded quotes
// CSV-style.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
