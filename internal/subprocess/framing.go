package subprocess

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// encodeLine frames one wire string as a JSON string literal and a newline.
func encodeLine(message string) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	// Encode appends the trailing newline.
	if err := enc.Encode(message); err != nil {
		return nil, fmt.Errorf("encode line: %w", err)
	}

	return buf.Bytes(), nil
}

// decodeLine unframes one line. Lines that are not JSON string literals are
// returned unchanged.
func decodeLine(line []byte) string {
	line = bytes.TrimRight(line, "\r")

	trimmed := bytes.TrimSpace(line)
	if len(trimmed) > 1 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}

	return string(line)
}

// scanLines reads framed lines from r until EOF or ctx ends, handing each
// decoded string to emit. Blank lines are skipped. emit returns false to stop.
func scanLines(ctx context.Context, r io.Reader, maxSize int, emit func(string) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(maxSize, 64*1024)), maxSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		if !emit(decodeLine(line)) {
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}
