package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const maxRecordingSize = 256 << 20

// Load reads a recording from a path or an http(s) URL and validates it.
// A bare JSON array is read as the events of a v2 recording.
func Load(ctx context.Context, path string) (*File, error) {
	data, err := readSource(ctx, path)
	if err != nil {
		return nil, err
	}
	file, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return file, nil
}

// Decode parses and validates recording bytes.
func Decode(data []byte) (*File, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	var file File
	if data[0] == '[' {
		if err := json.Unmarshal(data, &file.Events); err != nil {
			return nil, fmt.Errorf("parse events: %w", err)
		}
	} else if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse recording: %w", err)
	}

	if strings.TrimSpace(file.Version) == "" {
		file.Version = DefaultVersion
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func readSource(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read recording: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("build recording request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch recording: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingSize))
	if err != nil {
		return nil, fmt.Errorf("read recording body: %w", err)
	}
	return data, nil
}
