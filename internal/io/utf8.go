package io

import (
	"bufio"
	"bytes"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// StripUTF8BOM wraps r in a buffered reader that skips a leading UTF-8 byte order mark.
// Spreadsheet exports of recipient lists commonly start with one.
func StripUTF8BOM(r io.Reader) io.Reader {
	buffered := bufio.NewReader(r)
	if prefix, err := buffered.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = buffered.Discard(len(utf8BOM))
	}

	return buffered
}
