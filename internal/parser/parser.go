// Package parser converts raw device log text into structured, typed
// records. Each analysis mode implements the same line-grammar contract
// and is driven by a shared streaming template: extract, locate
// payloads, decompress nested segments, iterate lines, apply the mode
// grammar, assemble the result.
package parser

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/diaglog/backend/internal/archive"
	"github.com/diaglog/backend/internal/models"
	"github.com/diaglog/backend/internal/timeutil"
)

// Mode identifies an analysis mode.
type Mode string

const (
	ModeBandwidth  Mode = "bandwidth"
	ModeModemStats Mode = "modem_stats"
	ModeSessions   Mode = "sessions"
	ModeErrors     Mode = "errors"
	ModeMemory     Mode = "memory"
	ModeGrading    Mode = "grading"
	ModeIdentity   Mode = "identity"
)

// Modes enumerates every available analysis mode.
func Modes() []Mode {
	return []Mode{
		ModeBandwidth, ModeModemStats, ModeSessions,
		ModeErrors, ModeMemory, ModeGrading, ModeIdentity,
	}
}

// ParseMode resolves a mode identifier string.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown parse mode: %q", s)
}

// DefaultCheckpointLines is how many lines are processed between
// cancellation checks. A parser that never checks the context cannot be
// cancelled, so this interval is a correctness-relevant constant.
const DefaultCheckpointLines = 5000

// maxScannerBuffer bounds a single log line (1MB instead of the
// default 64KB).
const maxScannerBuffer = 1024 * 1024

// ProgressCallback is called at every checkpoint during parsing.
type ProgressCallback func(linesProcessed int)

// Options tunes the streaming template.
type Options struct {
	CheckpointLines int              // default DefaultCheckpointLines
	ScratchDir      string           // default os.TempDir()
	OnProgress      ProgressCallback // optional
	ErrorLevel      ErrorLevel       // errors mode only
	ErrorRules      *ErrorRules      // errors mode only, nil = built-in set
}

// Parser is implemented once per analysis mode.
type Parser interface {
	// Name returns the mode identifier.
	Name() string
	// Parse streams the archive and produces the mode's result. A
	// cancelled context yields a partial result with Cancelled set,
	// not an error.
	Parse(ctx context.Context, req *models.ParseRequest) (*models.ParseResult, error)
}

// New returns the parser for a mode. Available modes are statically
// enumerable; there is no mutable registry.
func New(mode Mode, opts Options) (Parser, error) {
	switch mode {
	case ModeBandwidth:
		return &streamParser{mode: mode, grammar: newBandwidthGrammar(), opts: opts}, nil
	case ModeModemStats:
		return &streamParser{mode: mode, grammar: newModemStatsGrammar(), opts: opts}, nil
	case ModeSessions:
		return &streamParser{mode: mode, grammar: newSessionsGrammar(), opts: opts}, nil
	case ModeErrors:
		return &streamParser{mode: mode, grammar: newErrorsGrammar(opts.ErrorLevel, opts.ErrorRules), opts: opts}, nil
	case ModeMemory:
		return &streamParser{mode: mode, grammar: newMemoryGrammar(), opts: opts}, nil
	case ModeGrading:
		return &streamParser{mode: mode, grammar: newGradingGrammar(), opts: opts}, nil
	case ModeIdentity:
		return &streamParser{mode: mode, grammar: newIdentityGrammar(), opts: opts}, nil
	}
	return nil, fmt.Errorf("unknown parse mode: %q", mode)
}

// sink carries per-invocation state into a grammar. Grammars call
// inWindow for early time filtering and fail to record per-line decode
// problems without aborting the pass.
type sink struct {
	loc      *time.Location
	win      timeutil.Window
	errors   []models.ParseError
	warnings []string
}

func (s *sink) inWindow(t time.Time) bool {
	return s.win.Contains(t)
}

func (s *sink) fail(lineNum int, line, reason string) {
	s.errors = append(s.errors, models.ParseError{Line: lineNum, Content: line, Reason: reason})
}

func (s *sink) warn(msg string) {
	s.warnings = append(s.warnings, msg)
}

// parseStamp parses a line timestamp in the request timezone.
func (s *sink) parseStamp(raw string) (time.Time, error) {
	return timeutil.ParseStamp(raw, s.loc)
}

// grammar is the per-mode line contract driven by the shared template.
type grammar interface {
	// line consumes one log line. Decode problems are reported through
	// the sink; the pass always continues.
	line(s *sink, lineNum int, line string)
	// finish assembles the mode records plus their raw-text rendering
	// and the record count.
	finish(s *sink) (parsed interface{}, raw string, count int)
}

// streamParser runs a grammar through the shared streaming template.
type streamParser struct {
	mode    Mode
	grammar grammar
	opts    Options
}

func (p *streamParser) Name() string {
	return string(p.mode)
}

func (p *streamParser) Parse(ctx context.Context, req *models.ParseRequest) (*models.ParseResult, error) {
	loc, err := timeutil.Location(req.Timezone)
	if err != nil {
		return nil, err
	}
	win, err := timeutil.NewWindow(req.Start, req.End, loc)
	if err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp(p.opts.ScratchDir, "parse-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := archive.Extract(req.ArchivePath, scratch); err != nil {
		return nil, fmt.Errorf("extracting %s: %w", req.ArchivePath, err)
	}
	payloads, err := archive.FindPayloads(scratch)
	if err != nil {
		return nil, err
	}

	s := &sink{loc: loc, win: win}
	lineNum := 0
	cancelled := false

	checkpoint := p.opts.CheckpointLines
	if checkpoint <= 0 {
		checkpoint = DefaultCheckpointLines
	}

	for _, payload := range payloads {
		if cancelled {
			break
		}
		rc, err := archive.OpenPayload(payload)
		if err != nil {
			// One unreadable segment does not abort the parse.
			s.warn(fmt.Sprintf("skipping unreadable payload %s: %v", payload, err))
			continue
		}

		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 0, maxScannerBuffer), maxScannerBuffer)

		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if strings.TrimSpace(line) != "" {
				p.grammar.line(s, lineNum, line)
			}

			if lineNum%checkpoint == 0 {
				if p.opts.OnProgress != nil {
					p.opts.OnProgress(lineNum)
				}
				if ctx.Err() != nil {
					cancelled = true
					break
				}
			}
		}
		if err := scanner.Err(); err != nil {
			s.warn(fmt.Sprintf("payload %s truncated: %v", payload, err))
		}
		rc.Close()
	}

	if p.opts.OnProgress != nil {
		p.opts.OnProgress(lineNum)
	}

	parsed, raw, count := p.grammar.finish(s)
	return &models.ParseResult{
		Mode:        string(p.mode),
		RawOutput:   raw,
		ParsedData:  parsed,
		Errors:      s.errors,
		Warnings:    s.warnings,
		Cancelled:   cancelled,
		LineCount:   lineNum,
		RecordCount: count,
	}, nil
}
