package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/modelmeta/hf-crawler/internal/model"
)

// LinkLog is the append-only listing store, one JSON-encoded Listing
// per line. It is the crawl's only discovery checkpoint: when the file
// exists a later run skips discovery entirely and re-reads it.
type LinkLog struct {
	Path string
}

func NewLinkLog(path string) *LinkLog {
	return &LinkLog{Path: path}
}

func (l *LinkLog) Exists() bool {
	info, err := os.Stat(l.Path)
	return err == nil && !info.IsDir()
}

func (l *LinkLog) Append(listings []model.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	file, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open link log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, listing := range listings {
		line, err := json.Marshal(listing)
		if err != nil {
			return fmt.Errorf("failed to encode listing: %w", err)
		}
		if _, err := writer.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to append to link log: %w", err)
		}
	}
	return writer.Flush()
}

func (l *LinkLog) Read() ([]model.Listing, error) {
	file, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open link log: %w", err)
	}
	defer file.Close()

	var listings []model.Listing
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var listing model.Listing
		if err := json.Unmarshal(line, &listing); err != nil {
			return nil, fmt.Errorf("failed to decode link log line: %w", err)
		}
		listings = append(listings, listing)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read link log: %w", err)
	}

	return listings, nil
}
