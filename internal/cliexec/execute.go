package cliexec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/agentworkd/orchestrator/internal/woerrors"
)

// Result is the outcome of one CLI agent invocation.
type Result struct {
	Success         bool
	Stdout          string
	Stderr          string
	ExitCode        int
	ResultText      string
	SessionID       string
	ErrorMessage    string
	DurationSeconds float64
}

// ExecuteOptions configures one invocation beyond its argv.
type ExecuteOptions struct {
	WorkingDirectory string
	Timeout          time.Duration
	PromptText       string
	WorkOrderID      string

	// ArtifactsDir, if non-empty and WorkOrderID is also set, is where
	// prompt text and raw/parsed JSONL are saved per invocation; with
	// either one empty nothing is saved. Write failures are tolerated.
	ArtifactsDir string
}

// ExecuteAsync spawns argv[0] with argv[1:], pipes PromptText to its
// stdin and closes it, waits for completion or Timeout, and parses its
// stdout as JSONL.
func ExecuteAsync(ctx context.Context, argv []string, opts ExecuteOptions) Result {
	start := time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = opts.WorkingDirectory

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return failedResult(fmt.Errorf("creating stdin pipe: %w", err), start)
	}
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return failedResult(fmt.Errorf("starting process: %w", err), start)
	}

	if _, err := io.WriteString(stdin, opts.PromptText); err != nil {
		_ = stdin.Close()
	}
	_ = stdin.Close()

	err = cmd.Wait()
	duration := time.Since(start).Seconds()

	if runCtx.Err() == context.DeadlineExceeded {
		saveArtifacts(opts, stdoutBuf.String(), nil)
		return Result{
			Success:         false,
			Stdout:          stdoutBuf.String(),
			Stderr:          stderrBuf.String(),
			ExitCode:        -1,
			ErrorMessage:    (&woerrors.TimeoutError{Command: argv[0], Seconds: opts.Timeout.Seconds()}).Error(),
			DurationSeconds: duration,
		}
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	entries := parseJSONL(stdoutBuf.Bytes())
	saveArtifacts(opts, stdoutBuf.String(), entries)

	sessionID := extractSessionID(entries)
	resultObj, hasResult := findResultMessage(entries)

	resultText := ""
	isError := false
	subtype := ""
	if hasResult {
		resultText = stringifyField(resultObj["result"])
		if v, ok := resultObj["is_error"].(bool); ok {
			isError = v
		}
		if v, ok := resultObj["subtype"].(string); ok {
			subtype = v
		}
	}

	success := exitCode == 0 && subtype != "error_during_execution" && !isError

	errorMessage := ""
	if !success {
		switch {
		case resultText != "":
			errorMessage = resultText
		case stderrBuf.Len() > 0:
			errorMessage = stderrBuf.String()
		default:
			errorMessage = fmt.Sprintf("agent CLI exited with code %d", exitCode)
		}
	}

	return Result{
		Success:         success,
		Stdout:          stdoutBuf.String(),
		Stderr:          stderrBuf.String(),
		ExitCode:        exitCode,
		ResultText:      resultText,
		SessionID:       sessionID,
		ErrorMessage:    errorMessage,
		DurationSeconds: duration,
	}
}

func failedResult(err error, start time.Time) Result {
	return Result{
		Success:         false,
		ExitCode:        -1,
		ErrorMessage:    err.Error(),
		DurationSeconds: time.Since(start).Seconds(),
	}
}

// parseJSONL decodes stdout line by line, skipping any line that is
// not a single valid JSON object.
func parseJSONL(raw []byte) []map[string]any {
	var entries []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			continue
		}
		entries = append(entries, obj)
	}
	return entries
}

// extractSessionID returns session_id from the first object that
// carries one.
func extractSessionID(entries []map[string]any) string {
	for _, e := range entries {
		if v, ok := e["session_id"].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// findResultMessage scans from the end for the first object with
// type == "result".
func findResultMessage(entries []map[string]any) (map[string]any, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if t, ok := entries[i]["type"].(string); ok && t == "result" {
			return entries[i], true
		}
	}
	return nil, false
}

func stringifyField(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}

// saveArtifacts writes the prompt and raw/parsed JSONL under
// ArtifactsDir/<work_order_id>/ if artifacts are enabled. Write
// failures are tolerated and never surfaced to the caller.
func saveArtifacts(opts ExecuteOptions, rawStdout string, entries []map[string]any) {
	if opts.ArtifactsDir == "" || opts.WorkOrderID == "" {
		return
	}
	dir := filepath.Join(opts.ArtifactsDir, opts.WorkOrderID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, "prompt.txt"), []byte(opts.PromptText), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "raw.jsonl"), []byte(rawStdout), 0o644)
	if entries != nil {
		if data, err := json.MarshalIndent(entries, "", "  "); err == nil {
			_ = os.WriteFile(filepath.Join(dir, "parsed.json"), data, 0o644)
		}
	}
}
