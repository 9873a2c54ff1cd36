package msgstore

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"distributed-kvstore/internal/message"
)

// The WAL (write-ahead log) durably records every stored message before
// it is applied to the in-memory index, the same append-only NDJSON
// design as internal/store/wal.go, generalized from key/Value mutation
// entries to bare messages. There are no deletes: nothing removes a
// message once stored, and reads do not filter out expired messages.
type walEntry struct {
	Message message.Message `json:"message"`
}

// WAL is a simple append-only log backed by a single file.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	path string
}

func newWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &WAL{file: f, path: path}, nil
}

// append serializes entry as JSON and fsyncs it before returning.
func (w *WAL) append(entry walEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if _, err := w.file.Write(data); err != nil {
		return err
	}
	return w.file.Sync()
}

// readAll scans the WAL file from the beginning and returns all entries,
// skipping any trailing corrupt line left by a crash mid-write.
func (w *WAL) readAll() ([]walEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, 0); err != nil {
		return nil, err
	}

	var entries []walEntry
	scanner := bufio.NewScanner(w.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e walEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// truncate empties the WAL after a snapshot has been taken.
func (w *WAL) truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, 0)
	return err
}

func (w *WAL) close() error {
	return w.file.Close()
}
