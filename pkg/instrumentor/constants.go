package instrumentor

const (
	EnvTemplate = "REGEX_INSTRUMENTOR_TEMPLATE"
	EnvResolver = "REGEX_INSTRUMENTOR_RESOLVER"
	EnvPolicy   = "REGEX_INSTRUMENTOR_POLICY"

	BuiltinTemplatePrefix = "builtin:"
	DefaultTemplate       = BuiltinTemplatePrefix + "default"
	RegexlogTemplate      = BuiltinTemplatePrefix + "regexlog"

	GoFileSuffix   = ".go"
	TestFileSuffix = "_test.go"
)

// DefaultSkipDirs are never instrumented when walking a tree.
var DefaultSkipDirs = []string{"vendor", "testdata", "node_modules", ".git"}
