package logger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogEntry represents a parsed log entry
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Category  string                 `json:"category"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogReader reads the category log files written by MultiLogger
type LogReader struct {
	logsDir string
}

// NewLogReader creates a new log reader
func NewLogReader(logsDir string) *LogReader {
	return &LogReader{
		logsDir: logsDir,
	}
}

// GetLogPath returns the path to a category log file for a specific date
func (lr *LogReader) GetLogPath(category LogCategory, date time.Time) string {
	filename := fmt.Sprintf("%s-%s.log", category, date.Format("20060102"))
	return filepath.Join(lr.logsDir, filename)
}

// ReadLogs returns the last limit entries of a category log; zero means all
func (lr *LogReader) ReadLogs(category LogCategory, date time.Time, limit int) ([]LogEntry, error) {
	file, err := os.Open(lr.GetLogPath(category, date))
	if err != nil {
		if os.IsNotExist(err) {
			return []LogEntry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	entries := make([]LogEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, parseLogLine(category, line))
	}
	return entries, nil
}

// SearchLogs returns entries whose message or fields contain query
func (lr *LogReader) SearchLogs(category LogCategory, date time.Time, query string, limit int) ([]LogEntry, error) {
	entries, err := lr.ReadLogs(category, date, 0)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var filtered []LogEntry
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry.Message), query) ||
			strings.Contains(strings.ToLower(fmt.Sprint(entry.Fields)), query) {
			filtered = append(filtered, entry)
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

// TailLogs follows today's log for a category and sends new entries until ctx is done
func (lr *LogReader) TailLogs(ctx context.Context, category LogCategory, entries chan<- LogEntry) error {
	logPath := lr.GetLogPath(category, time.Now())

	var file *os.File
	for file == nil {
		f, err := os.Open(logPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		file = f
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	reader := bufio.NewReader(file)

	var partial string
	for {
		chunk, err := reader.ReadString('\n')
		partial += chunk
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return err
		}

		line := strings.TrimSpace(partial)
		partial = ""
		if line == "" {
			continue
		}
		select {
		case entries <- parseLogLine(category, line):
		case <-ctx.Done():
			return nil
		}
	}
}

func parseLogLine(category LogCategory, line string) LogEntry {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{
			Timestamp: time.Now().Format(time.RFC3339),
			Level:     "info",
			Message:   line,
			Category:  string(category),
		}
	}

	entry := LogEntry{Category: string(category), Fields: map[string]interface{}{}}
	for k, v := range raw {
		switch k {
		case "ts":
			entry.Timestamp = fmt.Sprint(v)
		case "level":
			entry.Level = fmt.Sprint(v)
		case "msg":
			entry.Message = fmt.Sprint(v)
		default:
			entry.Fields[k] = v
		}
	}
	return entry
}
