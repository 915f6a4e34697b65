package codec

import "strings"

// parseQuotedCSV is a small CSV tokenizer supporting a configurable quote
// rune, which Go's standard encoding/csv.Reader does not expose (its quote
// character is hardwired to '"'). The snapshot CSV quotes with '\'', so
// this tokenizer handles both the delimiter and the quoting itself and
// encoding/csv is not used. Quoting follows the usual CSV convention: a
// doubled quote rune inside a quoted field is a literal quote rune.
func parseQuotedCSV(text string, delimiter, quote rune) [][]string {
	var rows [][]string
	var row []string
	var field strings.Builder
	inQuotes := false

	runes := []rune(text)
	n := len(runes)

	flushField := func() {
		row = append(row, field.String())
		field.Reset()
	}
	flushRow := func() {
		flushField()
		rows = append(rows, row)
		row = nil
	}

	for i := 0; i < n; i++ {
		c := runes[i]
		switch {
		case inQuotes:
			if c == quote {
				if i+1 < n && runes[i+1] == quote {
					field.WriteRune(quote)
					i++
				} else {
					inQuotes = false
				}
			} else {
				field.WriteRune(c)
			}
		case c == quote && field.Len() == 0:
			inQuotes = true
		case c == delimiter:
			flushField()
		case c == '\r':
			// Swallow; a following '\n' (or end of input) ends the row.
		case c == '\n':
			flushRow()
		default:
			field.WriteRune(c)
		}
	}

	// Final row, if the input didn't end on a newline.
	if field.Len() > 0 || len(row) > 0 {
		flushRow()
	}

	return rows
}
