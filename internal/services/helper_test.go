package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"debrief/internal/catalog"
	"debrief/internal/config"
	"debrief/internal/jsonrpc"
)

const helperEnv = "GO_WANT_HELPER_PROCESS"

// failEnv names a debrief-stac method the fake service should fail.
const failEnv = "FAKE_STAC_FAIL"

// parserEnv overrides the parser name fakeIO reports.
const parserEnv = "FAKE_IO_PARSER"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		mode := ""
		if len(os.Args) > 1 {
			mode = os.Args[1]
		}
		switch mode {
		case "io":
			fakeIO()
		case "stac":
			fakeSTAC()
		default:
			fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
			os.Exit(64)
		}
		os.Exit(0)
	}
	os.Setenv(helperEnv, "1")
	os.Exit(m.Run())
}

func ioConfig() config.ServiceConfig {
	return config.ServiceConfig{Name: "fake-io", Path: os.Args[0], Args: []string{"io"}, Timeout: "10s"}
}

func stacConfig() config.ServiceConfig {
	return config.ServiceConfig{
		Name:         "fake-stac",
		Path:         os.Args[0],
		Args:         []string{"stac"},
		Timeout:      "10s",
		ReadyTimeout: "10s",
		ReadyMethod:  "ping",
	}
}

type fakeRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

func reply(w io.Writer, id int64, result any) {
	out, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
	w.Write(append(out, '\n'))
}

func replyError(w io.Writer, id int64, code int, message string, data *jsonrpc.ApplicationErrorData) {
	e := map[string]any{"code": code, "message": message}
	if data != nil {
		e["data"] = data
	}
	out, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "error": e})
	w.Write(append(out, '\n'))
}

// fakeIO parses "REP" files: one feature per non-empty line, and a parse
// error at the first line containing BAD (position in the message) or
// WEIRD (position in the error data).
func fakeIO() {
	var req fakeRequest
	data, _ := io.ReadAll(os.Stdin)
	_ = json.Unmarshal(data, &req)

	path, _ := req.Params["file_path"].(string)
	content, err := os.ReadFile(path)
	if err != nil {
		replyError(os.Stdout, req.ID, jsonrpc.ApplicationError, "File not found", &jsonrpc.ApplicationErrorData{
			ErrorType: jsonrpc.ErrTypeFileNotFound, Details: path, Recoverable: false,
		})
		return
	}

	features := []map[string]any{}
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "WEIRD") {
			// The shape debrief-io itself sends: exception name and position.
			replyError(os.Stdout, req.ID, -32002, "Unexpected record type", &jsonrpc.ApplicationErrorData{
				Type: "ParseError", Line: i + 1, Column: 3,
			})
			return
		}
		if strings.Contains(line, "BAD") {
			replyError(os.Stdout, req.ID, jsonrpc.ApplicationError, fmt.Sprintf("Parse error at line %d, column 7", i+1), &jsonrpc.ApplicationErrorData{
				ErrorType: jsonrpc.ErrTypeParse, Details: "unexpected token", Recoverable: false,
			})
			return
		}
		features = append(features, map[string]any{
			"type":       "Feature",
			"geometry":   map[string]any{"type": "Point", "coordinates": []float64{float64(i), float64(i)}},
			"properties": map[string]any{"name": line},
		})
	}

	parser := os.Getenv(parserEnv)
	if parser == "" {
		parser = "rep"
	}
	reply(os.Stdout, req.ID, map[string]any{
		"features": features,
		"metadata": map[string]any{
			"parser":      parser,
			"version":     "1.2.0",
			"timestamp":   "2025-01-01T00:00:00Z",
			"source_hash": "abc123",
		},
	})
}

type fakePlot struct {
	ID       string
	Name     string
	Features int
}

// fakeSTAC keeps plots in memory for the life of the process.
func fakeSTAC() {
	fail := os.Getenv(failEnv)
	stores := map[string]bool{}
	plots := map[string][]*fakePlot{}
	next := 0

	findPlot := func(store, id string) *fakePlot {
		for _, p := range plots[store] {
			if p.ID == id {
				return p
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var req fakeRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		store, _ := req.Params["store_path"].(string)

		if req.Method == fail {
			replyError(os.Stdout, req.ID, jsonrpc.ApplicationError, "Write failed", &jsonrpc.ApplicationErrorData{
				ErrorType: jsonrpc.ErrTypeWrite, Details: "disk full", Recoverable: true, Suggestion: "Free some space",
			})
			continue
		}

		switch req.Method {
		case "ping":
			reply(os.Stdout, req.ID, "pong")

		case "configure":
			list, _ := req.Params["stores"].([]any)
			for _, s := range list {
				stores[s.(string)] = true
			}
			reply(os.Stdout, req.ID, map[string]any{"configured": len(list)})

		case "init_catalog":
			path, _ := req.Params["path"].(string)
			name, _ := req.Params["name"].(string)
			if err := catalog.WriteMinimal(path, filepath.Base(path), name); err != nil {
				replyError(os.Stdout, req.ID, jsonrpc.ApplicationError, err.Error(), nil)
				continue
			}
			reply(os.Stdout, req.ID, map[string]any{"path": path})

		case "list_plots":
			if !stores[store] {
				replyError(os.Stdout, req.ID, jsonrpc.ApplicationError, "Store not found", &jsonrpc.ApplicationErrorData{
					ErrorType: jsonrpc.ErrTypeStoreNotFound, Details: store,
				})
				continue
			}
			out := []map[string]any{}
			for _, p := range plots[store] {
				out = append(out, map[string]any{
					"id": p.ID, "name": p.Name, "created": "2025-01-01T00:00:00Z",
					"modified": "2025-01-01T00:00:00Z", "feature_count": p.Features,
				})
			}
			reply(os.Stdout, req.ID, map[string]any{"plots": out})

		case "create_plot":
			next++
			name, _ := req.Params["name"].(string)
			p := &fakePlot{ID: fmt.Sprintf("plot-%d", next), Name: name}
			plots[store] = append(plots[store], p)
			reply(os.Stdout, req.ID, map[string]any{"plot_id": p.ID, "name": p.Name, "created": "2025-01-01T00:00:00Z"})

		case "add_features":
			id, _ := req.Params["plot_id"].(string)
			p := findPlot(store, id)
			if p == nil {
				replyError(os.Stdout, req.ID, jsonrpc.ApplicationError, "Plot not found", &jsonrpc.ApplicationErrorData{
					ErrorType: jsonrpc.ErrTypePlotNotFound, Details: id,
				})
				continue
			}
			features, _ := req.Params["features"].([]any)
			prov, _ := req.Params["provenance"].(map[string]any)
			p.Features += len(features)
			reply(os.Stdout, req.ID, map[string]any{
				"plot_id": id, "features_added": len(features),
				"provenance_id": fmt.Sprintf("prov-%v", prov["source_hash"]),
			})

		case "copy_asset":
			id, _ := req.Params["plot_id"].(string)
			src, _ := req.Params["source_path"].(string)
			role, _ := req.Params["asset_role"].(string)
			asset := filepath.Join(store, id, "assets", filepath.Base(src))
			reply(os.Stdout, req.ID, map[string]any{"asset_path": asset, "asset_href": "./assets/" + filepath.Base(src) + "#" + role})

		default:
			replyError(os.Stdout, req.ID, jsonrpc.MethodNotFound, "Method not found", nil)
		}
	}
}
