package instrumentor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

const regexSource = `package main

import (
	"fmt"
	"regexp"
)

func main() {
	re := regexp.MustCompile("a+b")
	ok, _ := regexp.MatchString("x+y", "xxy")
	fmt.Println(re.MatchString("aab"), ok)
}
`

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestInstrumentor(t *testing.T, mutate func(*Config)) *Instrumentor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Resolver = "none"
	if mutate != nil {
		mutate(&cfg)
	}
	in, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return in
}

func TestNewConfigurationErrors(t *testing.T) {
	tests := map[string]func(*Config){
		"missing template": func(c *Config) { c.Template = filepath.Join(t.TempDir(), "missing.tmpl") },
		"unknown builtin":  func(c *Config) { c.Template = "builtin:nope" },
		"bad resolver":     func(c *Config) { c.Resolver = "magic" },
		"bad policy":       func(c *Config) { c.ReceiverPolicy.Kind = "types" },
		"bad rules":        func(c *Config) { c.Rules = DefaultRegistry.Rules()[:1]; c.Rules[0].Methods = nil },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := New(cfg)
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestProcessFile(t *testing.T) {
	path := writeSource(t, t.TempDir(), "main.go", regexSource)
	in := newTestInstrumentor(t, nil)

	content, modified, err := in.ProcessFile(path, "/tmp/regex.log")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !modified {
		t.Fatal("expected file to be modified")
	}

	result := string(content)
	for _, want := range []string{
		"// INSTRUMENTED BY GO-REGEX-OBSERVER",
		`rxlogjson "encoding/json"`,
		`rxlogos "os"`,
		`"/tmp/regex.log"`,
		`}("a+b"))`,
		`}("x+y"), "xxy")`,
		`re.MatchString("aab")`,
	} {
		if !strings.Contains(result, want) {
			t.Errorf("expected output to contain %s\n%s", want, result)
		}
	}
	if strings.Count(result, "func(pattern string) string") != 2 {
		t.Errorf("expected two fragments\n%s", result)
	}

	original, _ := os.ReadFile(path)
	if string(original) != regexSource {
		t.Error("ProcessFile must not touch the input file")
	}
}

func TestProcessFileParseError(t *testing.T) {
	path := writeSource(t, t.TempDir(), "bad.go", "package main\n\nfunc main() {\n")
	in := newTestInstrumentor(t, nil)

	_, _, err := in.ProcessFile(path, "/tmp/regex.log")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Path != path {
		t.Errorf("expected path %s, got %s", path, parseErr.Path)
	}
}

func TestProcessFileMissing(t *testing.T) {
	in := newTestInstrumentor(t, nil)
	if _, _, err := in.ProcessFile(filepath.Join(t.TempDir(), "nope.go"), "/tmp/regex.log"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestProcessSourceUnchanged(t *testing.T) {
	src := []byte("package main\n\nimport \"strings\"\n\n// untouched   spacing\nvar x = strings.Split(\"a,b\",\",\")\n")
	in := newTestInstrumentor(t, nil)

	res, err := in.ProcessSource("plain.go", src, "/tmp/regex.log")
	if err != nil {
		t.Fatalf("ProcessSource failed: %v", err)
	}
	if res.Modified {
		t.Error("expected no modification")
	}
	if !bytes.Equal(res.Content, src) {
		t.Errorf("expected original bytes, got\n%s", res.Content)
	}
}

func TestProcessSourceAlreadyInstrumented(t *testing.T) {
	in := newTestInstrumentor(t, nil)
	first, err := in.ProcessSource("main.go", []byte(regexSource), "/tmp/regex.log")
	if err != nil {
		t.Fatal(err)
	}

	second, err := in.ProcessSource("main.go", first.Content, "/tmp/regex.log")
	if err != nil {
		t.Fatalf("ProcessSource failed: %v", err)
	}
	if second.Modified || !bytes.Equal(second.Content, first.Content) {
		t.Error("instrumented output must pass through unchanged")
	}
}

func TestProcessSourceFlags(t *testing.T) {
	src := `package main

import "github.com/dlclark/regexp2"

var re = regexp2.MustCompile("(?<word>\\w+)", regexp2.RE2)
`
	in := newTestInstrumentor(t, nil)
	res, err := in.ProcessSource("flags.go", []byte(src), "/tmp/regex.log")
	if err != nil {
		t.Fatalf("ProcessSource failed: %v", err)
	}
	if len(res.Sites) != 1 || res.Sites[0].Flags != "regexp2.RE2" {
		t.Fatalf("unexpected sites %+v", res.Sites)
	}
	if !strings.Contains(string(res.Content), `"flags": "regexp2.RE2"`) {
		t.Errorf("expected flags in fragment\n%s", res.Content)
	}
}

func TestProcessSourceRegexlogTemplate(t *testing.T) {
	in := newTestInstrumentor(t, func(c *Config) { c.Template = RegexlogTemplate })
	res, err := in.ProcessSource("main.go", []byte(regexSource), "/tmp/regex.log")
	if err != nil {
		t.Fatalf("ProcessSource failed: %v", err)
	}
	for _, want := range []string{
		`rxlog "github.com/smith-xyz/go-regex-observer/pkg/instrumentation/regexlog"`,
		`regexp.MustCompile(rxlog.Record("/tmp/regex.log", "main.go", "UNKNOWN", "a+b"))`,
	} {
		if !strings.Contains(string(res.Content), want) {
			t.Errorf("expected output to contain %s\n%s", want, res.Content)
		}
	}
}

func TestProcessSourceImportPolicy(t *testing.T) {
	src := `package main

import re "regexp"

var a = re.MustCompile("a")
var b = regexp.MustCompile("b")
`
	in := newTestInstrumentor(t, func(c *Config) { c.ReceiverPolicy.Kind = "imports" })
	res, err := in.ProcessSource("alias.go", []byte(src), "/tmp/regex.log")
	if err != nil {
		t.Fatalf("ProcessSource failed: %v", err)
	}
	if len(res.Sites) != 1 || res.Sites[0].Receiver != "re" {
		t.Errorf("expected only the aliased import to match, got %+v", res.Sites)
	}
}

func TestProcessFileExampleApp(t *testing.T) {
	path := filepath.Join("..", "..", "examples", "app", "main.go")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("example app not available: %v", err)
	}

	syntaxOnly := newTestInstrumentor(t, nil)
	res, err := syntaxOnly.ProcessFileResult(path, "/tmp/regex.log")
	if err != nil {
		t.Fatalf("ProcessFileResult failed: %v", err)
	}
	if len(res.Sites) != 6 {
		t.Errorf("expected 6 regexp package sites without types, got %d", len(res.Sites))
	}

	var logs bytes.Buffer
	typed := newTestInstrumentor(t, func(c *Config) {
		c.Resolver = "file"
		c.Logger = log.New(&logs, "", 0)
	})
	res, err = typed.ProcessFileResult(path, "/tmp/regex.log")
	if err != nil {
		t.Fatalf("ProcessFileResult failed: %v", err)
	}
	if len(res.Sites) != 10 {
		t.Errorf("expected 10 sites with types, got %d", len(res.Sites))
	}
	if !strings.Contains(logs.String(), "Instrumenting t.Matches") {
		t.Errorf("expected Text receivers in log:\n%s", logs.String())
	}
}

func TestProcessFileInPlaceAndTo(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "main.go", regexSource)
	in := newTestInstrumentor(t, nil)

	out := filepath.Join(dir, "out", "nested", "main.go")
	modified, err := in.ProcessFileTo(path, out, "/tmp/regex.log")
	if err != nil || !modified {
		t.Fatalf("ProcessFileTo = %v, %v", modified, err)
	}
	written, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(written), "// INSTRUMENTED BY GO-REGEX-OBSERVER") {
		t.Error("expected instrumented output file")
	}

	modified, err = in.ProcessFileInPlace(path, "/tmp/regex.log")
	if err != nil || !modified {
		t.Fatalf("ProcessFileInPlace = %v, %v", modified, err)
	}
	again, err := in.ProcessFileInPlace(path, "/tmp/regex.log")
	if err != nil || again {
		t.Errorf("second in-place run should be a no-op, got %v, %v", again, err)
	}
}

// runGo runs the go tool in dir and returns its combined output. The test
// is skipped in short mode or when no go tool is installed.
func runGo(t *testing.T, dir string, args ...string) []byte {
	t.Helper()
	if testing.Short() {
		t.Skip("runs the go tool")
	}
	goTool, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go tool not available")
	}
	cmd := exec.Command(goTool, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOFLAGS=")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestInstrumentedProgramWritesLog(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "main.go", regexSource)
	logPath := filepath.Join(dir, "regex.log")

	in := newTestInstrumentor(t, nil)
	if _, err := in.ProcessFileInPlace(path, logPath); err != nil {
		t.Fatalf("ProcessFileInPlace failed: %v", err)
	}

	runGo(t, dir, "run", "main.go")

	f, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("log not written: %v", err)
	}
	defer f.Close()

	patterns := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec struct {
			File    string `json:"file"`
			Pattern string `json:"pattern"`
			Flags   string `json:"flags"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("invalid log line %q: %v", scanner.Text(), err)
		}
		if rec.File != path || rec.Flags != "UNKNOWN" {
			t.Errorf("unexpected record %+v", rec)
		}
		patterns[rec.Pattern] = true
	}
	if !patterns["a+b"] || !patterns["x+y"] {
		t.Errorf("expected both patterns logged, got %v", patterns)
	}
}

const embedSource = `package main

import (
	_ "embed"
	"fmt"
	"regexp"
)

var re = regexp.MustCompile("a+b") // compiled once

//go:embed data.txt
var data string

func main() {
	// the embedded text must match
	fmt.Println(re.MatchString(data))
}
`

func TestInstrumentedProgramKeepsDirectives(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "go.mod", "module example.com/embedded\n\ngo 1.22\n")
	writeSource(t, dir, "data.txt", "aab")
	path := writeSource(t, dir, "main.go", embedSource)
	logPath := filepath.Join(dir, "regex.log")

	in := newTestInstrumentor(t, nil)
	modified, err := in.ProcessFileInPlace(path, logPath)
	if err != nil || !modified {
		t.Fatalf("ProcessFileInPlace = %v, %v", modified, err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "//go:embed data.txt\nvar data string") {
		t.Errorf("go:embed directive separated from its var\n%s", content)
	}

	out := runGo(t, dir, "run", ".")
	if strings.TrimSpace(string(out)) != "true" {
		t.Errorf("instrumented program printed %q", out)
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("log not written: %v", err)
	}
}

const namedPatternSource = `package main

import (
	"fmt"
	"regexp"
)

type Pattern string

type Text string

func (t Text) Matches(p Pattern) bool {
	return regexp.MustCompile(string(p)).MatchString(string(t))
}

func main() {
	var digits Pattern = "[0-9]+"
	fmt.Println(Text("abc").Matches("a.*c"), Text("abc").Matches(digits))
}
`

func TestProcessSourceNamedPatternType(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "main.go", namedPatternSource)
	logPath := filepath.Join(dir, "regex.log")

	in := newTestInstrumentor(t, func(c *Config) { c.Resolver = "file" })
	res, err := in.ProcessFileResult(path, logPath)
	if err != nil {
		t.Fatalf("ProcessFileResult failed: %v", err)
	}
	if len(res.Sites) != 3 {
		t.Fatalf("expected 3 sites, got %+v", res.Sites)
	}
	output := string(res.Content)
	for _, want := range []string{
		`Text("abc").Matches(Pattern(func(pattern string) string {`,
		`}("a.*c")), Text("abc").Matches(Pattern(func(pattern string) string {`,
		`}(string(digits))))`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %s\n%s", want, output)
		}
	}

	if err := os.WriteFile(path, res.Content, 0644); err != nil {
		t.Fatal(err)
	}
	out := runGo(t, dir, "run", "main.go")
	if strings.TrimSpace(string(out)) != "true false" {
		t.Errorf("instrumented program printed %q", out)
	}
}

func TestProcessSourceReportsRewriteTypeErrors(t *testing.T) {
	dir := t.TempDir()
	tmplPath := writeSource(t, dir, "length.tmpl", `len("REGEXP")`)
	src := `package main

type Text string

func (Text) Matches(p string) bool { return p != "" }

var _ = Text("x").Matches("a")

// Broken on purpose; the input error must not be reported again.
var _ int = "b"
`
	var logs bytes.Buffer
	in := newTestInstrumentor(t, func(c *Config) {
		c.Resolver = "file"
		c.Template = tmplPath
		c.Logger = log.New(&logs, "", 0)
	})
	res, err := in.ProcessSource(filepath.Join(dir, "main.go"), []byte(src), "/tmp/regex.log")
	if err != nil {
		t.Fatalf("ProcessSource failed: %v", err)
	}
	if !res.Modified {
		t.Fatal("expected the Matches call to be rewritten")
	}
	if len(res.TypeErrors) != 1 {
		t.Errorf("expected the one input type error, got %v", res.TypeErrors)
	}
	if len(res.RewriteTypeErrors) != 1 {
		t.Fatalf("expected one new type error, got %v", res.RewriteTypeErrors)
	}
	if !strings.Contains(res.RewriteTypeErrors[0].Error(), "Matches") {
		t.Errorf("unexpected type error %v", res.RewriteTypeErrors[0])
	}
	if !strings.Contains(logs.String(), "type check after rewrite") {
		t.Errorf("expected the new error to be logged, got %s", logs.String())
	}
}

func TestProcessSourceSkipsOutputCheckWithoutResolver(t *testing.T) {
	dir := t.TempDir()
	tmplPath := writeSource(t, dir, "length.tmpl", `len("REGEXP")`)
	in := newTestInstrumentor(t, func(c *Config) { c.Template = tmplPath })
	res, err := in.ProcessSource(filepath.Join(dir, "main.go"), []byte(regexSource), "/tmp/regex.log")
	if err != nil {
		t.Fatalf("ProcessSource failed: %v", err)
	}
	if !res.Modified || res.RewriteTypeErrors != nil {
		t.Errorf("expected a rewrite without output check, got modified=%v errors=%v", res.Modified, res.RewriteTypeErrors)
	}
}
