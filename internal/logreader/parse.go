package logreader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"github.com/digitarald/vscode-session-trace/internal/logging"
)

var readerLog = logging.ForComponent(logging.CompReader)

// scanner buffer sizing: single log lines can carry entire snapshots.
const (
	scanInitialBuf = 64 * 1024
	scanMaxLine    = 16 * 1024 * 1024
)

// Parse reads a session log file, replays its operation log and returns the
// final state. The bool is false when the file is not a session log at all;
// callers skip such files rather than aborting the batch.
func Parse(path string) (*SessionState, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	return parseData(data)
}

func parseData(data []byte) (*SessionState, bool, error) {
	lines := splitLines(data)
	if len(lines) == 0 {
		return nil, false, nil
	}

	state := initialState(lines[0])
	if state == nil {
		// Not NDJSON: maybe the whole file is a single legacy document.
		state = legacyState(bytes.TrimSpace(data))
		if state == nil {
			return nil, false, nil
		}
		return decodeState(state), true, nil
	}

	for _, line := range lines[1:] {
		m, err := parseMutation(line)
		if err != nil {
			// A malformed mutation line loses its effect, never the file.
			if !errors.Is(err, errUnknownKind) {
				readerLog.Debug("mutation_skipped", slog.String("error", err.Error()))
			}
			continue
		}
		if err := apply(state, m); err != nil {
			readerLog.Debug("mutation_failed", slog.String("error", err.Error()))
			continue
		}
	}

	return decodeState(state), true, nil
}

// initialState interprets log line 0: either a snapshot record or a legacy
// flat session object.
func initialState(line []byte) map[string]any {
	var w wireEntry
	if err := json.Unmarshal(line, &w); err != nil {
		return nil
	}
	if w.Kind != nil && MutationKind(*w.Kind) == KindSnapshot {
		var obj map[string]any
		if err := json.Unmarshal(w.V, &obj); err != nil {
			return nil
		}
		return obj
	}
	return legacyState(line)
}

// legacyState accepts a flat JSON object that carries the session identity
// field directly.
func legacyState(data []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	if _, ok := obj["sessionId"]; !ok {
		return nil
	}
	return obj
}

// decodeState converts the weakly-typed replayed map into the typed
// session model. A present-but-wrong-shaped requests field means "no
// requests"; a malformed request element is skipped.
func decodeState(root map[string]any) *SessionState {
	s := &SessionState{
		Version:      int(numberField(root, "version")),
		SessionID:    stringField(root, "sessionId"),
		CreationDate: numberField(root, "creationDate"),
		CustomTitle:  stringField(root, "customTitle"),
	}

	rawRequests, ok := root["requests"].([]any)
	if !ok {
		return s
	}

	for _, rr := range rawRequests {
		encoded, err := json.Marshal(rr)
		if err != nil {
			continue
		}
		var req Request
		if err := json.Unmarshal(encoded, &req); err != nil {
			readerLog.Debug("request_skipped", slog.String("error", err.Error()))
			continue
		}
		s.Requests = append(s.Requests, req)
	}
	return s
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func numberField(m map[string]any, key string) int64 {
	f, _ := m[key].(float64)
	return int64(f)
}

// ReadLines returns the non-empty lines of a file. Used by presentation
// collaborators for diagnostics and line-count display.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, scanInitialBuf), scanMaxLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, string(line))
	}
	return lines, scanner.Err()
}

// splitLines splits raw file data into trimmed, non-empty lines.
func splitLines(data []byte) [][]byte {
	var lines [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, scanInitialBuf), scanMaxLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		// Oversized or unreadable tail: keep what was scanned.
		readerLog.Debug("scan_truncated", slog.String("error", err.Error()))
	}
	return lines
}
