package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"aircx/internal/types"
)

// maxLineBytes bounds one archived record.
const maxLineBytes = 4 << 20

// FileSource replays a JSON-lines archive, one sample set per line. Files
// ending in .zst are decompressed on the fly. Malformed lines are logged and
// skipped.
type FileSource struct {
	open   func() (io.ReadCloser, error)
	name   string
	logger *slog.Logger
}

// Compile-time assertion that FileSource implements Source.
var _ Source = (*FileSource)(nil)

// NewFileSource replays the archive at path.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	return &FileSource{
		open:   func() (io.ReadCloser, error) { return os.Open(path) },
		name:   path,
		logger: orDefault(logger),
	}
}

// NewReaderSource replays an already open stream. compressed selects zstd
// decoding.
func NewReaderSource(name string, r io.Reader, compressed bool, logger *slog.Logger) *FileSource {
	if compressed && !strings.HasSuffix(name, ".zst") {
		name += ".zst"
	}
	return &FileSource{
		open:   func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
		name:   name,
		logger: orDefault(logger),
	}
}

// Run reads the archive to the end or until ctx is done.
func (s *FileSource) Run(ctx context.Context, handle Handler) error {
	f, err := s.open()
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamIngest, fmt.Sprintf("failed to open archive %s", s.name), err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(s.name, ".zst") {
		dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return types.NewAppError(types.ErrCodeUpstreamIngest, fmt.Sprintf("failed to open zstd stream %s", s.name), err)
		}
		defer dec.Close()
		r = dec
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	var line, read, skipped int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		set, err := Decode(raw, "")
		if err != nil {
			skipped++
			s.logger.Warn("malformed sample skipped", "archive", s.name, "line", line, "error", err)
			continue
		}
		read++
		if err := handle(ctx, set); err != nil {
			s.logger.Error("sample handling failed",
				"archive", s.name,
				"line", line,
				"equipment_id", set.EquipmentID,
				"error", err,
			)
		}
	}
	if err := scanner.Err(); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamIngest, fmt.Sprintf("failed to read archive %s", s.name), err)
	}
	s.logger.Info("archive replayed", "archive", s.name, "samples", read, "skipped", skipped)
	return nil
}

// ArchiveWriter appends sample sets to a JSON-lines archive, zstd-compressed
// when the path ends in .zst. It is safe for concurrent use.
type ArchiveWriter struct {
	mu  sync.Mutex
	f   io.WriteCloser
	enc *zstd.Encoder
	w   *bufio.Writer
}

// CreateArchive creates or truncates the archive at path.
func CreateArchive(path string) (*ArchiveWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamIngest, fmt.Sprintf("failed to create archive %s", path), err)
	}
	return newArchiveWriter(f, strings.HasSuffix(path, ".zst"))
}

func newArchiveWriter(f io.WriteCloser, compressed bool) (*ArchiveWriter, error) {
	a := &ArchiveWriter{f: f}
	var w io.Writer = f
	if compressed {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		a.enc = enc
		w = enc
	}
	a.w = bufio.NewWriter(w)
	return a, nil
}

// Write appends one sample set.
func (a *ArchiveWriter) Write(set types.SampleSet) error {
	line, err := Encode(set)
	if err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.w.Write(line); err != nil {
		return err
	}
	return a.w.WriteByte('\n')
}

// Close flushes buffered data and closes the file.
func (a *ArchiveWriter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.w.Flush()
	if a.enc != nil {
		if cerr := a.enc.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := a.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Tee returns a handler that archives every sample before passing it on.
// Archive failures are logged and do not block processing.
func (a *ArchiveWriter) Tee(next Handler, logger *slog.Logger) Handler {
	logger = orDefault(logger)
	return func(ctx context.Context, set types.SampleSet) error {
		if err := a.Write(set); err != nil {
			logger.WarnContext(ctx, "failed to archive sample", "equipment_id", set.EquipmentID, "error", err)
		}
		return next(ctx, set)
	}
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
