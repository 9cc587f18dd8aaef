package jsonrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

const helperEnv = "GO_WANT_HELPER_PROCESS"

// TestMain doubles as the fake service: when re-executed with helperEnv set,
// the test binary behaves as the process named by os.Args[1].
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		mode := ""
		if len(os.Args) > 1 {
			mode = os.Args[1]
		}
		os.Exit(runHelper(mode))
	}
	os.Setenv(helperEnv, "1")
	goleak.VerifyTestMain(m)
}

// helper returns the executable and args that run the given helper mode.
func helper(mode string) (string, []string) {
	return os.Args[0], []string{mode}
}

func runHelper(mode string) int {
	switch mode {
	case "ok":
		req := readRequest()
		writeJSON(os.Stdout, map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]any{"method": req.Method, "params": req.Params},
		})
	case "null-result":
		req := readRequest()
		fmt.Fprintf(os.Stdout, `{"jsonrpc":"2.0","id":%d,"result":null}`, req.ID)
	case "pretty":
		req := readRequest()
		out, _ := json.MarshalIndent(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "pretty"}, "", "  ")
		os.Stdout.Write(append(out, '\n', '\n'))
	case "exit1":
		readRequest()
		fmt.Fprintln(os.Stderr, "boom: cannot open file")
		return 1
	case "silent":
		time.Sleep(time.Minute)
	case "rpc-error":
		req := readRequest()
		writeJSON(os.Stdout, map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]any{
				"code":    ApplicationError,
				"message": "File not found",
				"data": ApplicationErrorData{
					ErrorType:   ErrTypeFileNotFound,
					Details:     "/missing.rep",
					Recoverable: true,
					Suggestion:  "Check the path",
				},
			},
		})
	case "garbage":
		readRequest()
		fmt.Fprintln(os.Stdout, "this is not json")
	case "both":
		req := readRequest()
		fmt.Fprintf(os.Stdout, `{"jsonrpc":"2.0","id":%d,"result":1,"error":{"code":-32603,"message":"x"}}`, req.ID)
	case "service":
		serve(true, false)
	case "service-noping":
		serve(false, false)
	case "service-noisy":
		serve(true, true)
	case "service-dead":
		fmt.Fprintln(os.Stderr, "failed to initialise")
		return 2
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
		return 64
	}
	return 0
}

type helperRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

func readRequest() helperRequest {
	var req helperRequest
	data, _ := io.ReadAll(os.Stdin)
	_ = json.Unmarshal(data, &req)
	return req
}

func writeJSON(w io.Writer, v any) {
	out, _ := json.Marshal(v)
	w.Write(append(out, '\n'))
}

// serve answers newline-delimited requests until stdin closes. Replies to
// "slow" are delayed, so responses can arrive out of request order.
func serve(ping, noisy bool) {
	var mu sync.Mutex
	reply := func(v map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		if noisy {
			fmt.Fprintln(os.Stdout, "log: handling request")
		}
		if v["result"] == "pretty" {
			out, _ := json.MarshalIndent(v, "", "  ")
			os.Stdout.Write(append(out, '\n'))
			return
		}
		writeJSON(os.Stdout, v)
	}

	var wg sync.WaitGroup
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var req helperRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		switch req.Method {
		case "ping":
			if !ping {
				reply(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": MethodNotFound, "message": "Method not found"}})
				continue
			}
			reply(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "pong"})
		case "echo":
			reply(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": req.Params})
		case "pretty":
			reply(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "pretty"})
		case "pretty-list":
			mu.Lock()
			out, _ := json.MarshalIndent(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": []any{1, 2, map[string]any{"n": 3}}}, "", "  ")
			os.Stdout.Write(append(out, '\n'))
			mu.Unlock()
		case "slow":
			ms, _ := req.Params["ms"].(float64)
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				time.Sleep(time.Duration(ms) * time.Millisecond)
				reply(map[string]any{"jsonrpc": "2.0", "id": id, "result": map[string]any{"slept": ms}})
			}(req.ID)
		case "hang":
		case "fail":
			reply(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": InvalidParams, "message": "bad params"}})
		case "crash":
			os.Exit(3)
		default:
			reply(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": MethodNotFound, "message": "Method not found"}})
		}
	}
	wg.Wait()
}
