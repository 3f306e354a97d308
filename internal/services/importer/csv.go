package importer

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var dateLayouts = []string{"2006-01-02", "02-01-2006", "02/01/2006"}

// parseDate accepts ISO dates and the day-first forms bank exports use.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// parseAmount accepts "1234.50", "1234,50", "1 234,50", "1.234,50" and
// "1,234.50". When both marks appear the last one is the decimal mark. A
// single comma followed by exactly three digits could be either and is
// rejected.
func parseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")

	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0 && strings.Count(s, ",") > 1:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if len(s)-comma-1 == 3 {
			return decimal.Decimal{}, fmt.Errorf("ambiguous amount %q", raw)
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", raw)
	}
	return d.Round(2), nil
}

// newCSVReader sniffs the delimiter from the first line.
func newCSVReader(r io.Reader) *csv.Reader {
	br := bufio.NewReader(r)
	sample, _ := br.Peek(1024)
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	switch {
	case bytes.Count(sample, []byte(";")) > bytes.Count(sample, []byte(",")):
		reader.Comma = ';'
	case bytes.Contains(sample, []byte("\t")) && !bytes.Contains(sample, []byte(",")):
		reader.Comma = '\t'
	}
	return reader
}

// columns maps lower-cased header names to their index.
type columns map[string]int

func readHeader(r *csv.Reader, required ...string) (columns, error) {
	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrBadHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}

	cols := columns{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		cols[name] = i
	}
	var missing []string
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrBadHeader, strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columns) get(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func blank(record []string) bool {
	return strings.TrimSpace(strings.Join(record, "")) == ""
}

// rowRefs gives statement rows without a bank reference a stable one, so
// re-importing the same file does not duplicate them while identical rows
// inside one file stay distinct.
type rowRefs map[string]int

func (seen rowRefs) next(date time.Time, amount decimal.Decimal, label string) string {
	key := date.Format("2006-01-02") + "|" + amount.StringFixed(2) + "|" + label
	n := seen[key]
	seen[key] = n + 1
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", key, n)))
	return "ROW-" + hex.EncodeToString(sum[:6])
}
