// Package extract turns source documents (PDF or plain text) into the UTF-8
// transcript text the minutes parser consumes.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	mnerrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
)

// Supported source formats.
const (
	FormatPDF  = "pdf"
	FormatText = "text"
)

// Sentinel causes carried by extraction failures.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrTooLarge          = errors.New("file exceeds maximum size")
	ErrEmpty             = errors.New("no content extracted")
)

// ExtractionError describes a failed extraction of one file.
type ExtractionError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("extract %s: %v: %s", e.Path, e.Err, e.Stderr)
	}
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Config configures an Extractor.
type Config struct {
	// Pdftotext is the binary name or absolute path (default "pdftotext").
	Pdftotext string
	// Layout passes -layout to pdftotext. Off by default: layout mode
	// interleaves columns, which breaks line-based marker detection.
	Layout bool
	// MaxFileSize rejects larger files before reading them. Zero means no limit.
	MaxFileSize int64
}

// Result is the text extracted from one document.
type Result struct {
	Path     string
	Format   string
	Text     string
	Pages    int
	Encoding string
	Size     int64
	// Hash is the hex SHA-256 of the source bytes, used to skip duplicates.
	Hash     string
	Duration time.Duration
}

// Extractor extracts transcript text from files on disk.
type Extractor struct {
	cfg    Config
	runner Runner
	logger logging.Logger
}

// NewExtractor creates an Extractor. A nil runner uses ExecRunner.
func NewExtractor(cfg Config, runner Runner, logger logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// FormatOf maps a file name to a supported format, or "" when unsupported.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF
	case ".txt", ".text":
		return FormatText
	default:
		return ""
	}
}

// Extract reads path and returns its text. Failures are *mnerrors.PipelineError
// values in the extract stage wrapping an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, path string) (*Result, error) {
	start := time.Now()

	format := FormatOf(path)
	if format == "" {
		return nil, e.fail(mnerrors.ErrUnsupportedFormat, path, ErrUnsupportedFormat, "")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, e.fail(mnerrors.ErrExtractionFailed, path, err, "")
	}
	if e.cfg.MaxFileSize > 0 && info.Size() > e.cfg.MaxFileSize {
		return nil, e.fail(mnerrors.ErrContentTooLarge, path,
			fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, info.Size(), e.cfg.MaxFileSize), "")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, e.fail(mnerrors.ErrExtractionFailed, path, err, "")
	}

	res := &Result{
		Path:   path,
		Format: format,
		Size:   info.Size(),
		Hash:   hashBytes(raw),
	}

	switch format {
	case FormatPDF:
		text, pages, stderr, err := e.pdfToText(ctx, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return nil, e.fail(mnerrors.ErrExtractionFailed, path, err, stderr)
		}
		res.Text, res.Pages, res.Encoding = normalize(text), pages, EncodingUTF8
	case FormatText:
		text, encoding, err := decodeText(raw)
		if err != nil {
			return nil, e.fail(mnerrors.ErrExtractionFailed, path, err, "")
		}
		res.Text, res.Pages, res.Encoding = text, 1, encoding
	}

	if strings.TrimSpace(res.Text) == "" {
		return nil, e.fail(mnerrors.ErrEmptyContent, path, ErrEmpty, "")
	}

	res.Duration = time.Since(start)
	e.logger.Debug("extracted document",
		logging.F("file", path),
		logging.F("format", format),
		logging.F("pages", res.Pages),
		logging.F("encoding", res.Encoding),
		logging.F("duration_ms", res.Duration.Milliseconds()),
	)
	return res, nil
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, stderr string, err error) {
	// pdftotext [-layout] -enc UTF-8 -eol unix <path> -
	args := []string{"-enc", "UTF-8", "-eol", "unix", path, "-"}
	if e.cfg.Layout {
		args = append([]string{"-layout"}, args...)
	}
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, args...)
	if err != nil {
		return "", 0, truncate(strings.TrimSpace(string(errb)), 1<<10), err
	}
	text = string(out)
	// pdftotext ends every page with a form feed.
	pages = strings.Count(strings.TrimRight(text, "\f"), "\f") + 1
	text = strings.ReplaceAll(text, "\f", "\n")
	return text, pages, "", nil
}

func (e *Extractor) fail(code mnerrors.ErrorCode, path string, cause error, stderr string) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		code = mnerrors.ErrTimeout
	} else if errors.Is(cause, context.Canceled) {
		code = mnerrors.ErrContextCancelled
	}
	xerr := &ExtractionError{Path: path, Stderr: stderr, Err: cause}
	return mnerrors.New(code, mnerrors.StageExtract, xerr, "%s", xerr.Error())
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Scan lists the supported documents at path. A file is returned as is
// when supported; a directory is walked recursively. Results are sorted.
func Scan(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if FormatOf(path) == "" {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
		}
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if FormatOf(p) != "" && !strings.HasPrefix(d.Name(), ".") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}

	sort.Strings(files)
	return files, nil
}
