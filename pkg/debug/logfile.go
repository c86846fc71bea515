package debug

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"
)

// OpenLogFile creates or truncates the process log file. Each start gets a
// fresh file so the management log view only shows the current run.
func OpenLogFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// Tail returns the last n lines of the file at path. A missing file
// yields an empty result and fs.ErrNotExist.
func Tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fs.ErrNotExist
		}
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if len(ring) == n {
			ring = append(ring[1:], line)
			continue
		}
		ring = append(ring, line)
	}
	return ring, sc.Err()
}
