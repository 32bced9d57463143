package process

import (
	"bytes"
	"strings"
)

// DefaultMaxLineLength bounds a single output line. A longer line ends the
// stream as a read error.
const DefaultMaxLineLength = 1 << 20

// ScanLines is a bufio.SplitFunc that accepts "\n", "\r\n" and a lone "\r"
// as terminators. Terminators are stripped, empty lines are kept and a
// final unterminated fragment is returned at EOF.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		// "\r" at the end of the buffer may be the first half of "\r\n".
		if !atEOF {
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// decodeLine converts raw bytes to a string, replacing invalid UTF-8.
func decodeLine(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
