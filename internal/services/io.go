// Package services binds debrief's Go side to the external debrief-io and
// debrief-stac processes and composes them into the load workflow.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"debrief/internal/config"
	"debrief/internal/jsonrpc"
	"debrief/internal/logging"
)

// ParseMetadata describes the parser run that produced a ParseResult.
type ParseMetadata struct {
	Parser     string `json:"parser"`
	Version    string `json:"version"`
	Timestamp  string `json:"timestamp"`
	SourceHash string `json:"source_hash"`
}

// ParseResult is the output of debrief-io parse_file. Features are GeoJSON
// and are passed through to debrief-stac untouched.
type ParseResult struct {
	Features []json.RawMessage `json:"features"`
	Metadata ParseMetadata     `json:"metadata"`
}

// ParseError reports a file debrief-io could not parse. Line and Column
// are zero when the message does not mention them.
type ParseError struct {
	Path    string
	Message string
	Line    int
	Column  int
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("failed to parse %s (line %d, column %d): %s", e.Path, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("failed to parse %s (line %d): %s", e.Path, e.Line, e.Message)
	default:
		return fmt.Sprintf("failed to parse %s: %s", e.Path, e.Message)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	lineRe   = regexp.MustCompile(`(?i)line (\d+)`)
	columnRe = regexp.MustCompile(`(?i)column (\d+)`)
)

func newParseError(path string, err error) *ParseError {
	pe := &ParseError{Path: path, Message: err.Error(), Err: err}
	if ce, ok := jsonrpc.AsClientError(err); ok {
		pe.Message = ce.Message
		if data, ok := ce.ApplicationData(); ok {
			if data.Details != "" {
				pe.Message = ce.Message + ": " + data.Details
			}
			pe.Line, pe.Column = data.Line, data.Column
		}
	}
	// Fall back to the message for services that only report positions
	// in text.
	if m := lineRe.FindStringSubmatch(pe.Message); m != nil && pe.Line == 0 {
		pe.Line, _ = strconv.Atoi(m[1])
	}
	if m := columnRe.FindStringSubmatch(pe.Message); m != nil && pe.Column == 0 {
		pe.Column, _ = strconv.Atoi(m[1])
	}
	return pe
}

// IO is the stateless debrief-io parser. Every call spawns a fresh process.
type IO struct {
	client *jsonrpc.Client
	cfg    config.ServiceConfig
}

// NewIO returns a parser client for the configured service. A nil client
// gets a fresh one carrying the service's environment.
func NewIO(client *jsonrpc.Client, cfg config.ServiceConfig) *IO {
	if client == nil {
		client = jsonrpc.NewClient(jsonrpc.WithEnv(cfg.Environ()))
	}
	return &IO{client: client, cfg: cfg}
}

// ParseFile parses path into GeoJSON features. Any failure, including a
// crashed or missing parser, is returned as a *ParseError.
func (s *IO) ParseFile(ctx context.Context, path string) (*ParseResult, error) {
	exe := s.cfg.Executable()
	logging.RPCDebug("Parsing %s with %s", path, exe)

	result, err := jsonrpc.Call[ParseResult](ctx, s.client, exe, s.cfg.Args, "parse_file",
		map[string]any{"file_path": path}, s.cfg.GetTimeout())
	if err != nil {
		pe := newParseError(path, err)
		logging.Get(logging.CategoryRPC).Warn("Parse of %s failed: %s", path, pe.Message)
		return nil, pe
	}
	if result.Features == nil {
		result.Features = []json.RawMessage{}
	}

	logging.RPC("Parsed %s: %d feature(s) via %s %s", path, len(result.Features), result.Metadata.Parser, result.Metadata.Version)
	return &result, nil
}
