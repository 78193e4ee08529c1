package journal

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const fileExt = ".jsonl"

// FilePath is where events for day t live under dir.
func FilePath(dir string, t time.Time) string {
	return filepath.Join(dir, t.UTC().Format("2006-01-02")+fileExt)
}

// FileSink appends one JSON object per line to a file per UTC day.
type FileSink struct {
	dir string

	mu     sync.Mutex
	day    string
	file   *os.File
	logger *zap.Logger
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "",
		LevelKey:       "",
		NameKey:        "",
		CallerKey:      "",
		MessageKey:     "",
		StacktraceKey:  "",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
	}
}

func (s *FileSink) rotate(t time.Time) error {
	day := t.UTC().Format("2006-01-02")
	if s.logger != nil && day == s.day {
		return nil
	}
	if err := s.closeCurrent(); err != nil {
		return err
	}

	f, err := os.OpenFile(FilePath(s.dir, t), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(f), zapcore.InfoLevel)
	s.file, s.logger, s.day = f, zap.New(core), day
	return nil
}

func (s *FileSink) closeCurrent() error {
	if s.logger == nil {
		return nil
	}
	_ = s.logger.Sync()
	err := s.file.Close()
	s.logger, s.file, s.day = nil, nil, ""
	return err
}

func (s *FileSink) Record(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rotate(e.Time); err != nil {
		return err
	}
	fields := []zap.Field{
		zap.Time("time", e.Time),
		zap.String("kind", string(e.Kind)),
		zap.String("symbol", e.Symbol),
	}
	if e.OrderID != "" {
		fields = append(fields, zap.String("order_id", e.OrderID))
	}
	if e.State != "" {
		fields = append(fields, zap.String("state", e.State))
	}
	if e.Side != "" {
		fields = append(fields, zap.String("side", e.Side))
	}
	fields = append(fields,
		zap.String("qty", e.Qty.String()),
		zap.String("price", e.Price.String()),
		zap.String("fee", e.Fee.String()),
		zap.String("realized_pnl", e.RealizedPnL.String()),
		zap.String("available", e.Available.String()),
		zap.String("reserved", e.Reserved.String()),
		zap.String("total", e.Total.String()),
	)
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	s.logger.Info("", fields...)
	return s.logger.Sync()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCurrent()
}

// CompressOlder gzips day files under dir last modified more than retentionDays ago.
func CompressOlder(dir string, retentionDays int, now time.Time) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, fileExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		return gzipFile(p)
	})
}

func gzipFile(p string) error {
	gz := p + ".gz"
	if _, err := os.Stat(gz); err == nil {
		return os.Remove(p)
	}

	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(gz)
		return fmt.Errorf("compress %s: %w", p, err)
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(p)
}
