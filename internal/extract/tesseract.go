package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/scanhook/scanhook/internal/blob"
)

// Runner lets tests stub the tesseract binary.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = childEnv(os.Environ())
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}

// childEnv drops SCANHOOK_* variables so secrets never reach the subprocess.
func childEnv(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, "SCANHOOK_") {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

// Locator resolves an object reference to a local file.
type Locator interface {
	Path(ref blob.ObjectRef) (string, error)
}

// TesseractConfig configures the tesseract extractor.
type TesseractConfig struct {
	Binary string // default "tesseract"
	Lang   string // default "eng"
}

// Tesseract extracts text by running the tesseract CLI in TSV mode.
type Tesseract struct {
	cfg     TesseractConfig
	locator Locator
	runner  Runner
	logger  *slog.Logger
}

// NewTesseract builds an extractor reading objects through locator.
func NewTesseract(cfg TesseractConfig, locator Locator, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &Tesseract{cfg: cfg, locator: locator, runner: execRunner{}, logger: logger}
}

// Extract runs `tesseract <file> stdout -l <lang> tsv` and returns, per
// text line in reading order, a LINE fragment followed by its WORD fragments.
func (t *Tesseract) Extract(ctx context.Context, ref blob.ObjectRef) ([]Fragment, error) {
	path, err := t.locator.Path(ref)
	if err != nil {
		return nil, fmt.Errorf("locate object: %w", err)
	}

	start := time.Now()
	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, path, "stdout", "-l", t.cfg.Lang, "tsv")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 1<<10))
	}

	frags, err := parseTSV(out)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("tesseract finished",
		"key", ref.Key,
		"fragments", len(frags),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return frags, nil
}

type lineKey struct{ page, block, par, line int }

// parseTSV groups tesseract word rows (level 5) into lines. Columns:
// level page_num block_num par_num line_num word_num left top width height conf text
func parseTSV(out []byte) ([]Fragment, error) {
	var (
		order []lineKey
		words = map[lineKey][]string{}
	)

	rows := strings.Split(string(out), "\n")
	for i, row := range rows {
		row = strings.TrimRight(row, "\r")
		if i == 0 || row == "" {
			continue // header
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 {
			continue
		}
		if cols[0] != "5" {
			continue
		}

		var k lineKey
		nums := []*int{&k.page, &k.block, &k.par, &k.line}
		for j, dst := range nums {
			n, err := strconv.Atoi(cols[j+1])
			if err != nil {
				return nil, fmt.Errorf("tesseract tsv row %d: bad column %d: %w", i, j+1, err)
			}
			*dst = n
		}

		text := strings.TrimSpace(strings.Join(cols[11:], "\t"))
		if text == "" {
			continue
		}
		if _, seen := words[k]; !seen {
			order = append(order, k)
		}
		words[k] = append(words[k], text)
	}

	frags := make([]Fragment, 0, len(order)*2)
	for _, k := range order {
		frags = append(frags, Fragment{Type: TypeLine, Text: strings.Join(words[k], " ")})
		for _, w := range words[k] {
			frags = append(frags, Fragment{Type: TypeWord, Text: w})
		}
	}
	return frags, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
