package source

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/mirip/internal/models"
)

// DumpProvider reads products from a file of single-line
// "INSERT INTO `products` (...) VALUES (...);" statements.
type DumpProvider struct {
	path   string
	table  string
	logger *zap.Logger
}

// NewDumpProvider returns a provider over the dump at path.
func NewDumpProvider(path, table string, logger *zap.Logger) *DumpProvider {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DumpProvider{path: path, table: table, logger: logger}
}

// Name returns "dump".
func (d *DumpProvider) Name() string {
	return "dump"
}

// Path returns the dump file path.
func (d *DumpProvider) Path() string {
	return d.path
}

// FetchAll parses the dump. A missing file yields no rows.
func (d *DumpProvider) FetchAll(ctx context.Context) ([]models.Product, error) {
	f, err := os.Open(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d.logger.Debug("Dump file not found", zap.String("path", d.path))
			return []models.Product{}, nil
		}
		return nil, fmt.Errorf("failed to open dump: %w", err)
	}
	defer f.Close()
	rows, skipped, err := ParseDump(f, d.table)
	if skipped > 0 {
		d.logger.Warn("Skipped malformed dump lines", zap.String("path", d.path), zap.Int("lines", skipped))
	}
	return rows, err
}

// FetchOne scans the dump for the row with the given id.
func (d *DumpProvider) FetchOne(ctx context.Context, id int64) (models.Product, error) {
	rows, err := d.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if rid, ok := r.ID(); ok && rid == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// ParseDump reads INSERT lines for table from r. Lines for other tables are
// ignored; lines whose column and value counts differ are skipped and counted.
func ParseDump(r io.Reader, table string) (rows []models.Product, skipped int, err error) {
	prefix := "INSERT INTO `" + table + "`"
	lineRe := regexp.MustCompile("^INSERT INTO `" + regexp.QuoteMeta(table) + "` \\((.*?)\\) VALUES \\((.*)\\);$")

	rows = []models.Product{}
	br := bufio.NewReader(r)
	for {
		line, rerr := br.ReadString('\n')
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			if row, ok := parseInsert(lineRe, line); ok {
				rows = append(rows, row)
			} else {
				skipped++
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return rows, skipped, nil
			}
			return rows, skipped, rerr
		}
	}
}

func parseInsert(re *regexp.Regexp, line string) (models.Product, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	colTokens := strings.Split(m[1], ",")
	tokens := splitValues(m[2])
	if len(colTokens) != len(tokens) {
		return nil, false
	}
	row := make(models.Product, len(colTokens))
	for i, c := range colTokens {
		row[strings.Trim(strings.TrimSpace(c), "`")] = parseLiteral(tokens[i])
	}
	return row, true
}

// splitValues splits a VALUES list on top-level commas, respecting quotes and backslash escapes.
func splitValues(s string) []string {
	var out []string
	var buf strings.Builder
	inStr, esc := false, false
	for _, ch := range s {
		switch {
		case esc:
			esc = false
		case ch == '\\':
			esc = true
		case ch == '\'':
			inStr = !inStr
		case ch == ',' && !inStr:
			out = append(out, strings.TrimSpace(buf.String()))
			buf.Reset()
			continue
		}
		buf.WriteRune(ch)
	}
	if buf.Len() > 0 {
		out = append(out, strings.TrimSpace(buf.String()))
	}
	return out
}

// parseLiteral converts one SQL literal: NULL to nil, quoted strings unescaped,
// integers to int64, decimals to float64. Anything else, hex literals included, stays text.
func parseLiteral(tok string) any {
	if strings.EqualFold(tok, "NULL") {
		return nil
	}
	if len(tok) >= 2 && tok[0] == '\'' && tok[len(tok)-1] == '\'' {
		return unescapeString(tok[1 : len(tok)-1])
	}
	if strings.Contains(tok, ".") {
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return f
		}
		return tok
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return n
	}
	return tok
}

func unescapeString(s string) string {
	if !strings.ContainsAny(s, `\'`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' && i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case '0':
			b.WriteByte(0)
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'Z':
			b.WriteByte(0x1a)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// escapeString escapes s the way MySQL's mysql_real_escape_string does.
func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 0:
			b.WriteString(`\0`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0x1a:
			b.WriteString(`\Z`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// sqlLiteral renders v as a SQL literal.
func sqlLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case []byte:
		return "0x" + hex.EncodeToString(x)
	case string:
		return "'" + escapeString(x) + "'"
	default:
		return "'" + escapeString(fmt.Sprint(x)) + "'"
	}
}

// WriteDump writes one INSERT statement per row, in a form ParseDump reads back.
func WriteDump(w io.Writer, table string, cols []string, rows [][]any) error {
	bw := bufio.NewWriter(w)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = "`" + c + "`"
	}
	head := "INSERT INTO `" + table + "` (" + strings.Join(quoted, ", ") + ") VALUES ("
	vals := make([]string, len(cols))
	for _, row := range rows {
		if len(row) != len(cols) {
			return fmt.Errorf("row has %d values for %d columns", len(row), len(cols))
		}
		for i, v := range row {
			vals[i] = sqlLiteral(v)
		}
		if _, err := bw.WriteString(head + strings.Join(vals, ", ") + ");\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
