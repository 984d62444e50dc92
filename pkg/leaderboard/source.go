package leaderboard

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/canopy-network/ladder/pkg/retry"
	"go.uber.org/zap"
)

// Source yields the raw ranking table, read fully on every call.
type Source interface {
	Rows(ctx context.Context) ([][]string, error)
	Name() string
}

// ParseTable decodes a delimited ranking table. Blank lines and lines starting
// with '#' are ignored; rows may have any number of fields.
func ParseTable(r io.Reader, delim rune) ([][]string, error) {
	if delim == 0 {
		delim = ','
	}
	var filtered bytes.Buffer
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		filtered.WriteString(line)
		filtered.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	cr := csv.NewReader(&filtered)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

// FileSource reads the table from a file on disk.
type FileSource struct {
	Path      string
	Delimiter rune
}

func NewFileSource(path string, delim rune) *FileSource {
	return &FileSource{Path: path, Delimiter: delim}
}

func (f *FileSource) Name() string { return "file:" + f.Path }

func (f *FileSource) Rows(_ context.Context) ([][]string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer func() { _ = fh.Close() }()

	rows, err := ParseTable(fh, f.Delimiter)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrSourceUnavailable, f.Path, err)
	}
	return rows, nil
}

// HTTPSource fetches the table from a URL. Transient failures are retried a
// few times within the tick; 4xx responses are not.
type HTTPSource struct {
	URL       string
	Delimiter rune
	Client    *http.Client
	Retry     retry.Config
	Logger    *zap.Logger
}

func NewHTTPSource(url string, delim rune, logger *zap.Logger) *HTTPSource {
	return &HTTPSource{
		URL:       url,
		Delimiter: delim,
		Client:    &http.Client{Timeout: 3 * time.Second},
		Retry:     retry.ShortConfig(),
		Logger:    logger,
	}
}

func (h *HTTPSource) Name() string { return h.URL }

func (h *HTTPSource) Rows(ctx context.Context) ([][]string, error) {
	var rows [][]string
	err := retry.WithBackoff(ctx, h.Retry, h.Logger, "fetch_ranking_table", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := h.Client.Do(req)
		if err != nil {
			return err
		}
		defer closeBody(resp.Body)

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		parsed, err := ParseTable(resp.Body, h.Delimiter)
		if err != nil {
			return retry.Permanent(err)
		}
		rows = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, h.URL, err)
	}
	return rows, nil
}

// closeBody discards a bounded remainder so the connection can be reused.
func closeBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

// StaticSource serves fixed rows. Err, when set, is returned instead.
type StaticSource struct {
	Table [][]string
	Err   error
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Rows(_ context.Context) ([][]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([][]string, len(s.Table))
	copy(out, s.Table)
	return out, nil
}

// NewSource picks a file or HTTP source from location.
func NewSource(location string, delim rune, logger *zap.Logger) (Source, error) {
	switch {
	case location == "":
		return nil, errors.New("ranking source location is empty")
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return NewHTTPSource(location, delim, logger), nil
	default:
		return NewFileSource(strings.TrimPrefix(location, "file://"), delim), nil
	}
}

// ParseDelimiter maps config values such as "tab" or "|" to a rune.
func ParseDelimiter(s string) rune {
	switch strings.ToLower(s) {
	case "", "comma", ",":
		return ','
	case "tab", `\t`:
		return '\t'
	case "pipe", "|":
		return '|'
	case "semicolon", ";":
		return ';'
	default:
		return []rune(s)[0]
	}
}
