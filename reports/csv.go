package reports

import (
	"bufio"
	"io"
	"strings"
)

// WriteCSV writes the header and rows with every field quoted and embedded
// quotes doubled. Rows are separated by a single newline with none after the
// last one.
func WriteCSV(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)

	writeRow := func(fields []string) {
		for i, f := range fields {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteByte('"')
			bw.WriteString(strings.ReplaceAll(f, `"`, `""`))
			bw.WriteByte('"')
		}
	}

	writeRow(t.Header)
	for _, row := range t.Rows {
		bw.WriteByte('\n')
		writeRow(row)
	}
	return bw.Flush()
}
