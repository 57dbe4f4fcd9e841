package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ILLUVRSE/outfit-review/internal/models"
)

const (
	ProcessedFileName = "processed.csv"
	AcceptedFileName  = "accepted.csv"
)

// FileStore keeps both ledgers as CSV files in one directory. A ledger file
// does not exist until its first row is written.
//
// Rows are appended with a single write followed by fsync while holding the
// store lock, so readers never see a partial row. A torn final line left by
// a crash is truncated when the store is opened.
type FileStore struct {
	dir string

	mu        sync.RWMutex
	processed *ledgerFile
	accepted  *ledgerFile
	index     map[string]struct{}
}

// OpenFileStore opens (or prepares) the ledgers in dir and loads the
// processed index.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create ledger dir: %w", ErrStoreIO, err)
	}
	s := &FileStore{
		dir:       dir,
		processed: &ledgerFile{path: filepath.Join(dir, ProcessedFileName), defaultColumns: ProcessedColumns},
		accepted:  &ledgerFile{path: filepath.Join(dir, AcceptedFileName), defaultColumns: AcceptedColumns},
		index:     make(map[string]struct{}),
	}
	if err := s.processed.recover(); err != nil {
		return nil, err
	}
	if err := s.accepted.recover(); err != nil {
		return nil, err
	}
	rows, err := s.processed.rows()
	if err != nil {
		return nil, err
	}
	for _, vals := range rows {
		s.index[combinationFromValues(vals).Fingerprint()] = struct{}{}
	}
	log.Info().Str("dir", dir).Int("processed", len(s.index)).Msg("file ledger opened")
	return s, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreIO, err)
	}
	return nil
}

func (s *FileStore) Contains(ctx context.Context, c models.Combination) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[c.Fingerprint()]
	return ok, nil
}

func (s *FileStore) AppendDecision(ctx context.Context, processed *models.ProcessedRecord, accepted *models.AcceptedRecord) error {
	if processed == nil {
		return fmt.Errorf("nil processed record")
	}
	fp := processed.Combination.Fingerprint()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[fp]; ok {
		return ErrAlreadyProcessed
	}
	prev, err := s.processed.append(processedValues(processed))
	if err != nil {
		return err
	}
	if accepted != nil {
		if _, err := s.accepted.append(acceptedValues(accepted)); err != nil {
			if rbErr := s.processed.truncate(prev); rbErr != nil {
				log.Error().Err(rbErr).Str("path", s.processed.path).Msg("rollback of processed row failed")
			}
			return err
		}
	}
	s.index[fp] = struct{}{}
	return nil
}

func (s *FileStore) ListProcessed(ctx context.Context) ([]models.ProcessedRecord, error) {
	s.mu.RLock()
	rows, err := s.processed.rows()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]models.ProcessedRecord, 0, len(rows))
	for _, vals := range rows {
		rec, err := processedFromValues(vals)
		if err != nil {
			log.Warn().Err(err).Str("path", s.processed.path).Msg("skipping unreadable processed row")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *FileStore) ListAccepted(ctx context.Context) ([]models.AcceptedRecord, error) {
	s.mu.RLock()
	rows, err := s.accepted.rows()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]models.AcceptedRecord, 0, len(rows))
	for _, vals := range rows {
		rec, err := acceptedFromValues(vals)
		if err != nil {
			log.Warn().Err(err).Str("path", s.accepted.path).Msg("skipping unreadable accepted row")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.processed.close(), s.accepted.close())
}

// ledgerFile is one append-only CSV file. Callers hold FileStore.mu.
type ledgerFile struct {
	path           string
	defaultColumns []string

	columns []string
	f       *os.File
	size    int64
}

// recover truncates a torn trailing line and reads the header.
func (l *ledgerFile) recover() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.columns = l.defaultColumns
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrStoreIO, l.path, err)
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		cut := bytes.LastIndexByte(data, '\n') + 1
		log.Warn().Str("path", l.path).Int("dropped_bytes", len(data)-cut).Msg("truncating torn ledger tail")
		if err := os.Truncate(l.path, int64(cut)); err != nil {
			return fmt.Errorf("%w: truncate %s: %w", ErrStoreIO, l.path, err)
		}
		data = data[:cut]
	}
	l.size = int64(len(data))
	l.columns = l.defaultColumns
	if len(data) == 0 {
		return nil
	}
	header, _, _ := strings.Cut(string(data), "\n")
	cols, err := parseHeader(strings.TrimSuffix(header, "\r"))
	if err != nil {
		return fmt.Errorf("%s: %w", l.path, err)
	}
	l.columns = cols
	return nil
}

// rows re-reads the file and decodes every complete, well-formed row.
// Malformed rows are skipped so they never hide the rows around them.
func (l *ledgerFile) rows() ([]map[string]string, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrStoreIO, l.path, err)
	}
	lines := strings.Split(string(data), "\n")
	// The element after the final newline is empty or an incomplete row.
	lines = lines[:len(lines)-1]
	if len(lines) == 0 {
		return nil, nil
	}
	out := make([]map[string]string, 0, len(lines)-1)
	for i, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		vals, err := decodeRow(l.columns, line)
		if err != nil {
			log.Warn().Err(err).Str("path", l.path).Int("line", i+2).Msg("skipping corrupt ledger row")
			continue
		}
		out = append(out, vals)
	}
	return out, nil
}

// append writes one row (preceded by the header for a new file) and syncs
// it. It returns the file size before the write so the caller can roll back.
func (l *ledgerFile) append(vals map[string]string) (int64, error) {
	row, err := encodeRow(l.columns, vals)
	if err != nil {
		return 0, fmt.Errorf("encode row: %w", err)
	}
	if l.f == nil {
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("%w: open %s: %w", ErrStoreIO, l.path, err)
		}
		l.f = f
	}
	prev := l.size
	buf := row
	if prev == 0 {
		head, err := encodeRow(l.columns, identityValues(l.columns))
		if err != nil {
			return 0, fmt.Errorf("encode header: %w", err)
		}
		buf = append(head, row...)
	}
	n, err := l.f.Write(buf)
	if err == nil {
		err = l.f.Sync()
	}
	if err != nil {
		if n > 0 {
			if rbErr := l.truncate(prev); rbErr != nil {
				log.Error().Err(rbErr).Str("path", l.path).Msg("rollback of partial row failed")
			}
		}
		return 0, fmt.Errorf("%w: append %s: %w", ErrStoreIO, l.path, err)
	}
	l.size = prev + int64(n)
	return prev, nil
}

func (l *ledgerFile) truncate(size int64) error {
	if err := os.Truncate(l.path, size); err != nil {
		return err
	}
	l.size = size
	return nil
}

func (l *ledgerFile) close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
