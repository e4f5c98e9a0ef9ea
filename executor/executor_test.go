package executor

import "testing"

func TestLooksLikeJSON(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{`{"result": "ok"}`, true},
		{`  {"result": "ok"}`, true},
		{"plain text", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := looksLikeJSON(tt.line); got != tt.want {
			t.Errorf("looksLikeJSON(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestTryParseJSONResultWholeBody(t *testing.T) {
	lines := []string{`{"result":"done","session_id":"abc-123","is_error":false,"duration_ms":42,"num_turns":3}`}
	res, ok := tryParseJSONResult(lines)
	if !ok {
		t.Fatal("expected a parsed result")
	}
	if !res.Success || res.Result != "done" || res.SessionID != "abc-123" || res.NumTurns != 3 {
		t.Errorf("parsed result = %+v, unexpected fields", res)
	}
}

func TestTryParseJSONResultWithBOMAndPrefix(t *testing.T) {
	lines := []string{string(rune(0xFEFF)) + "some preamble {\"result\":\"hi\",\"is_error\":false}"}
	res, ok := tryParseJSONResult(lines)
	if !ok {
		t.Fatal("expected a parsed result despite BOM and prefix junk")
	}
	if res.Result != "hi" {
		t.Errorf("Result = %q, want %q", res.Result, "hi")
	}
}

func TestTryParseJSONResultScansBackwardsForResultLine(t *testing.T) {
	lines := []string{
		`[tool] running something`,
		`not json at all`,
		`{"result":"final answer","is_error":false}`,
		`trailing chatter after the result`,
	}
	res, ok := tryParseJSONResult(lines)
	if !ok {
		t.Fatal("expected to find the trailing result line")
	}
	if res.Result != "final answer" {
		t.Errorf("Result = %q, want %q", res.Result, "final answer")
	}
}

func TestTryParseJSONResultNoMatch(t *testing.T) {
	lines := []string{"just some text", "more text"}
	if _, ok := tryParseJSONResult(lines); ok {
		t.Error("expected no parsed result for non-JSON output")
	}
}

func TestExtractSessionID(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"Session: 12345678-1234-1234-1234-123456789abc", "12345678-1234-1234-1234-123456789abc"},
		{"session:12345678-1234-1234-1234-123456789abc", "12345678-1234-1234-1234-123456789abc"},
		{"no session id here", ""},
	}
	for _, tt := range tests {
		if got := extractSessionID(tt.output); got != tt.want {
			t.Errorf("extractSessionID(%q) = %q, want %q", tt.output, got, tt.want)
		}
	}
}

func TestParseActivityLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantNil  bool
		wantType string
		wantTool string
	}{
		{"tool start", "[Bash] (running tests)", false, "tool_start", "Bash"},
		{"tool start without parens", "[Bash] running without parens", false, "tool_start", "Bash"},
		{"empty line", "", true, "", ""},
		{"json line ignored", `{"type":"x"}`, true, "", ""},
		{"raw text", "some plain status update", false, "raw", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := parseActivityLine(tt.line)
			if tt.wantNil {
				if act != nil {
					t.Errorf("parseActivityLine(%q) = %+v, want nil", tt.line, act)
				}
				return
			}
			if act == nil {
				t.Fatalf("parseActivityLine(%q) = nil, want non-nil", tt.line)
			}
			if act.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", act.Type, tt.wantType)
			}
			if tt.wantTool != "" && act.Tool != tt.wantTool {
				t.Errorf("Tool = %q, want %q", act.Tool, tt.wantTool)
			}
		})
	}
}

func TestLastNonActivityBlock(t *testing.T) {
	lines := []string{
		"[tool] did something",
		"",
		"final line one",
		"final line two",
	}
	got := lastNonActivityBlock(lines)
	want := "final line one\nfinal line two"
	if got != want {
		t.Errorf("lastNonActivityBlock = %q, want %q", got, want)
	}
}

func TestExecutorSessionMap(t *testing.T) {
	e := New(nil, nil, nil)

	if _, ok := e.SessionForProject("/tmp/proj"); ok {
		t.Fatal("expected no remembered session for a fresh executor")
	}

	e.rememberSession("/tmp/proj", "sess-1")
	got, ok := e.SessionForProject("/tmp/proj")
	if !ok || got != "sess-1" {
		t.Errorf("SessionForProject = (%q, %v), want (sess-1, true)", got, ok)
	}

	e.ForgetSession("/tmp/proj")
	if _, ok := e.SessionForProject("/tmp/proj"); ok {
		t.Error("expected session to be forgotten")
	}
}
