// Package executor spawns the headless Agent binary for remote-dispatched
// tasks: JSON- or text-mode output parsed into a Result, with hard-kill
// cancellation. It does not serialize tasks that target the same session.
package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/agentbridge/bridge/config"
	"github.com/agentbridge/bridge/db"
	"github.com/agentbridge/bridge/log"
	"github.com/agentbridge/bridge/models"
	"github.com/agentbridge/bridge/notifications"
	"github.com/agentbridge/bridge/registry"
)

// Activity is one parsed unit of tool/turn progress, forwarded to the
// notifier as a task_progress event while a task is running.
type Activity struct {
	Type    string `json:"type"`
	Tool    string `json:"tool,omitempty"`
	Details string `json:"details,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

// Result is the outcome of one headless invocation.
type Result struct {
	Success    bool
	Result     string
	SessionID  string
	DurationMs int64
	NumTurns   int
	Error      string
}

// Executor owns the in-memory project_dir -> session_id continuation map
// and the live process handle needed for cancellation. Neither is
// persisted: a bridge restart loses in-flight continuations, matching the
// upstream behavior this is grounded on.
type Executor struct {
	cfg        *config.Config
	registry   *registry.Registry
	notify     *notifications.Service
	mu         sync.Mutex
	sessionMap map[string]string        // project_dir -> session_id
	running    map[string]*exec.Cmd     // task_id -> live process
}

func New(cfg *config.Config, reg *registry.Registry, notify *notifications.Service) *Executor {
	return &Executor{
		cfg:        cfg,
		registry:   reg,
		notify:     notify,
		sessionMap: make(map[string]string),
		running:    make(map[string]*exec.Cmd),
	}
}

// SessionForProject returns the remembered continuation session for a
// project directory, if any.
func (e *Executor) SessionForProject(projectDir string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessionMap[projectDir]
	return s, ok
}

// ForgetSession drops a project's continuation, forcing the next task to
// start a brand-new Agent session.
func (e *Executor) ForgetSession(projectDir string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessionMap, projectDir)
}

// CanExecute enforces the single-actor rule: a remote task may not start
// while the CLI itself holds the session active.
func (e *Executor) CanExecute(sessionID string) (bool, error) {
	if sessionID == "" {
		return true, nil // brand-new session, nothing to conflict with
	}
	return e.registry.CanExecuteRemoteTask(sessionID)
}

// Execute spawns the headless Agent (JSON-result mode when cfg.AgentExecMode
// is set, text mode otherwise) and blocks until it exits or ctx is cancelled.
func (e *Executor) Execute(ctx context.Context, task models.Task) (Result, error) {
	sessionID := ""
	if task.SessionID != nil {
		sessionID = *task.SessionID
	}
	if sessionID == "" {
		if s, ok := e.SessionForProject(task.ProjectDir); ok {
			sessionID = s
			log.Info().Str("project_dir", task.ProjectDir).Str("session_id", s).Msg("continuing remembered session")
		}
	}

	args := e.buildArgs(task, sessionID)
	cmd := exec.CommandContext(ctx, e.cfg.AgentBinary, args...)
	cmd.Dir = task.ProjectDir
	cmd.Env = append(cmd.Environ(), "AGENT_EXEC_MODE=1")

	stdout, stderr, closePTY, err := e.startProcess(cmd)
	if err != nil {
		return Result{}, err
	}
	defer closePTY()

	e.mu.Lock()
	e.running[task.ID] = cmd
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, task.ID)
		e.mu.Unlock()
	}()

	start := time.Now()
	var stdoutLines, finalLines []string
	var stderrBuf strings.Builder
	inAnswer := false

	var wg sync.WaitGroup
	if stderr != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc := bufio.NewScanner(stderr)
			sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for sc.Scan() {
				stderrBuf.WriteString(sc.Text())
				stderrBuf.WriteByte('\n')
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			if line == "" {
				continue
			}
			stdoutLines = append(stdoutLines, line)

			if e.cfg.AgentExecMode && looksLikeJSON(line) {
				continue // JSON-result mode: the full result is the last line
			}

			if strings.Contains(line, "# Answer") || strings.HasPrefix(line, "Answer:") {
				inAnswer = true
			}
			if inAnswer {
				finalLines = append(finalLines, line)
			} else if act := parseActivityLine(line); act != nil && e.notify != nil {
				e.notify.NotifyTaskProgress(sessionID, act)
			}
		}
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	durationMs := time.Since(start).Milliseconds()

	if res, ok := tryParseJSONResult(stdoutLines); ok {
		res.DurationMs = durationMs
		if res.SessionID != "" {
			e.rememberSession(task.ProjectDir, res.SessionID)
		}
		return res, nil
	}

	stdoutStr := strings.Join(stdoutLines, "\n")
	resultContent := strings.Join(finalLines, "\n")
	resultContent = strings.TrimPrefix(strings.TrimSpace(resultContent), "# Answer")
	resultContent = strings.TrimPrefix(strings.TrimSpace(resultContent), "Answer:")
	resultContent = strings.TrimSpace(resultContent)
	if resultContent == "" {
		resultContent = lastNonActivityBlock(stdoutLines)
	}
	if resultContent == "" {
		resultContent = stdoutStr
	}

	sessID := extractSessionID(stdoutStr)
	if sessID != "" {
		e.rememberSession(task.ProjectDir, sessID)
	}

	success := waitErr == nil
	errMsg := ""
	if !success {
		errMsg = stderrBuf.String()
		if errMsg == "" {
			errMsg = waitErr.Error()
		}
	}

	return Result{
		Success:    success,
		Result:     resultContent,
		SessionID:  sessID,
		DurationMs: durationMs,
		Error:      errMsg,
	}, nil
}

// Cancel hard-kills a running task's process (no graceful terminate: the
// process may be blocked on an LLM call for 30s+).
func (e *Executor) Cancel(taskID string) bool {
	e.mu.Lock()
	cmd, ok := e.running[taskID]
	e.mu.Unlock()
	if !ok || cmd.Process == nil {
		return false
	}
	return cmd.Process.Kill() == nil
}

// startProcess launches cmd either over plain pipes (default) or, when
// cfg.AgentUsePTY is set, attached to a pseudo-terminal. Some Agent builds
// detect a non-tty stdout and refuse to run non-interactively (or drop to a
// degraded output mode); allocating a pty makes the process believe it has
// a real terminal while the bridge still reads its output line by line.
// A pty merges stdout/stderr into one stream, so stderr is nil in that mode.
func (e *Executor) startProcess(cmd *exec.Cmd) (stdout, stderr io.ReadCloser, closeFn func(), err error) {
	if e.cfg.AgentUsePTY {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, nil, func() {}, err
		}
		return ptmx, nil, func() { ptmx.Close() }, nil
	}

	stdout, err = cmd.StdoutPipe()
	if err != nil {
		return nil, nil, func() {}, err
	}
	stderr, err = cmd.StderrPipe()
	if err != nil {
		return nil, nil, func() {}, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, func() {}, err
	}
	return stdout, stderr, func() {}, nil
}

func (e *Executor) rememberSession(projectDir, sessionID string) {
	e.mu.Lock()
	e.sessionMap[projectDir] = sessionID
	e.mu.Unlock()
}

func (e *Executor) buildArgs(task models.Task, sessionID string) []string {
	args := []string{"exec"}
	if task.Model != "" {
		args = append(args, "--model", task.Model)
	}
	if sessionID != "" {
		args = append(args, "--session-id", sessionID)
	}
	args = append(args, "--cwd", task.ProjectDir)
	if e.cfg.AgentExecMode {
		args = append(args, "--output-format", "json")
	} else {
		args = append(args, "--output-format", "text")
	}
	args = append(args, task.Prompt)
	return args
}

type jsonResult struct {
	Result     string `json:"result"`
	SessionID  string `json:"session_id"`
	IsError    bool   `json:"is_error"`
	DurationMs int64  `json:"duration_ms"`
	NumTurns   int    `json:"num_turns"`
}

func looksLikeJSON(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "{")
}

// tryParseJSONResult implements the tolerant JSON-result-mode parser: BOM
// stripped, any prefix before the first '{' discarded, and if a whole-body
// parse fails it falls back to scanning line by line for an object
// containing a "result" field.
func tryParseJSONResult(lines []string) (Result, bool) {
	joined := strings.Join(lines, "\n")
	joined = strings.TrimPrefix(joined, string(rune(0xFEFF)))
	if idx := strings.IndexByte(joined, '{'); idx > 0 {
		joined = joined[idx:]
	}
	if jr, ok := parseOneJSONResult(joined); ok {
		return jr, true
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		line = strings.TrimPrefix(line, string(rune(0xFEFF)))
		if idx := strings.IndexByte(line, '{'); idx > 0 {
			line = line[idx:]
		}
		if !strings.HasPrefix(line, "{") || !strings.Contains(line, `"result"`) {
			continue
		}
		if jr, ok := parseOneJSONResult(line); ok {
			return jr, true
		}
	}
	return Result{}, false
}

func parseOneJSONResult(raw string) (Result, bool) {
	var jr jsonResult
	if err := json.Unmarshal([]byte(raw), &jr); err != nil {
		return Result{}, false
	}
	return Result{
		Success:   !jr.IsError,
		Result:    jr.Result,
		SessionID: jr.SessionID,
		NumTurns:  jr.NumTurns,
	}, true
}

var sessionIDRe = regexp.MustCompile(`(?i)session[:\s]+([a-f0-9-]{36})`)

func extractSessionID(output string) string {
	m := sessionIDRe.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return m[1]
}

var activityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\[(\w+)\]\s*\(([^)]+)\)`),
	regexp.MustCompile(`^\[(\w+)\]\s*(.+)`),
	regexp.MustCompile(`(?i)^executing\.\.\.$`),
	regexp.MustCompile(`(?i)^completed$`),
	regexp.MustCompile(`(?i)^read \d+ lines?`),
	regexp.MustCompile(`(?i)^succeeded\. file edited\.`),
	regexp.MustCompile(`(?i)^error:\s*(.+)`),
}

// parseActivityLine is the text-mode fallback: the headless Agent emits
// human-readable activity on stdout rather than structured events, so we
// regex-sniff tool-use lines the same way the hook-driven path gets them
// from structured cli_thinking events.
func parseActivityLine(line string) *Activity {
	for _, re := range activityPatterns {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		act := &Activity{Raw: line}
		switch len(m) {
		case 3:
			act.Type = "tool_start"
			act.Tool = m[1]
			act.Details = m[2]
		case 2:
			act.Type = "tool_info"
			act.Details = m[1]
		default:
			act.Type = "status"
		}
		return act
	}
	if strings.TrimSpace(line) != "" && !strings.HasPrefix(line, "{") {
		return &Activity{Type: "raw", Raw: line}
	}
	return nil
}

func lastNonActivityBlock(lines []string) string {
	var out []string
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.Contains(trimmed[:min(20, len(trimmed))], "]") {
			break
		}
		out = append([]string{trimmed}, out...)
	}
	return strings.Join(out, "\n")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// PersistNewSessionCompletion wires a completed headless invocation that
// produced a brand-new Agent session into the durable record: the session
// row itself plus the two chat turns (prompt, result) that a UI viewing
// that session later would expect to see.
func PersistNewSessionCompletion(reg *registry.Registry, task models.Task, res Result, nowMs int64) error {
	if res.SessionID == "" {
		return nil
	}
	existing, err := db.GetSession(res.SessionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	name, err := db.NextDisplayName(task.ProjectDir)
	if err != nil {
		return err
	}
	if _, err := reg.Register(res.SessionID, task.ProjectDir, name, "", nowMs); err != nil {
		return err
	}
	if _, err := reg.SetControlState(res.SessionID, models.ControlRemoteActive, nowMs); err != nil {
		return err
	}

	if _, err := db.AppendChatMessage(models.ChatMessage{
		SessionID: res.SessionID,
		Type:      models.ChatUser,
		Content:   task.Prompt,
		Source:    task.Source,
		CreatedAt: nowMs,
	}); err != nil {
		return err
	}
	status := "success"
	if !res.Success {
		status = "error"
	}
	_, err = db.AppendChatMessage(models.ChatMessage{
		SessionID:  res.SessionID,
		Type:       models.ChatAssistant,
		Content:    res.Result,
		Status:     status,
		DurationMs: &res.DurationMs,
		Source:     task.Source,
		CreatedAt:  nowMs,
	})
	return err
}
