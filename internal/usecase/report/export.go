package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/kailas-cloud/tokenwatch/internal/domain"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
)

// Format is an export serialization.
type Format string

// Supported export formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates an export format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", domain.NewUnsupportedFormat(s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// writeCSV writes the header and one row per session.
func writeCSV(w io.Writer, rows []usage.Ranked) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"session_id", "tokens"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Session, strconv.FormatUint(r.Tokens, 10)}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// writeJSON writes a session_id -> tokens object with keys in row order.
// encoding/json sorts map keys, so the object is assembled by hand.
func writeJSON(w io.Writer, rows []usage.Ranked) error {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.Session)
		if err != nil {
			return fmt.Errorf("encode session key: %w", err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatUint(r.Tokens, 10))
	}
	buf.WriteString("}\n")
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write json export: %w", err)
	}
	return nil
}
