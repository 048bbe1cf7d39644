package audit

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
)

// maxRecordSize bounds a single compressed audit record. It mirrors the
// wire envelope cap; a length prefix beyond it is corruption, not data.
const maxRecordSize = 1 << 20

// FileSink appends audit events to a single log file, snappy-compressed per
// record with a CRC so a torn tail write is detected on read.
// Record format: [DataLen:4][Data:N][Checksum:4], big-endian.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewFileSink opens (or creates) the audit log under dataDir.
func NewFileSink(dataDir string) (*FileSink, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	path := filepath.Join(dataDir, "audit.log")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileSink{
		file:   file,
		writer: bufio.NewWriter(file),
		path:   path,
	}, nil
}

// Write implements Sink.
func (s *FileSink) Write(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	compressed := snappy.Encode(nil, data)
	if len(compressed) > maxRecordSize {
		return fmt.Errorf("audit record too large: %d bytes", len(compressed))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := binary.Write(s.writer, binary.BigEndian, uint32(len(compressed))); err != nil {
		return err
	}
	if _, err := s.writer.Write(compressed); err != nil {
		return err
	}
	if err := binary.Write(s.writer, binary.BigEndian, crc32.ChecksumIEEE(compressed)); err != nil {
		return err
	}
	return s.writer.Flush()
}

// ReadAll reads every intact event back from the log file. A record failing
// its checksum (torn final write) terminates the scan without error.
func (s *FileSink) ReadAll() ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var events []*Event
	for {
		var dataLen uint32
		if err := binary.Read(reader, binary.BigEndian, &dataLen); err != nil {
			if err == io.EOF {
				return events, nil
			}
			return events, nil
		}
		if dataLen == 0 || dataLen > maxRecordSize {
			// A corrupt length prefix would demand an arbitrary
			// allocation; treat it like a torn tail.
			return events, nil
		}
		compressed := make([]byte, dataLen)
		if _, err := io.ReadFull(reader, compressed); err != nil {
			return events, nil
		}
		var checksum uint32
		if err := binary.Read(reader, binary.BigEndian, &checksum); err != nil {
			return events, nil
		}
		if crc32.ChecksumIEEE(compressed) != checksum {
			return events, nil
		}
		data, err := snappy.Decode(nil, compressed)
		if err != nil {
			return events, nil
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			return events, nil
		}
		events = append(events, &event)
	}
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}
