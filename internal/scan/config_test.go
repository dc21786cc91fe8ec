package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCatalog implements PluginCatalog for resolver tests.
type stubCatalog struct {
	static []string
	fast   []string
}

func (s *stubCatalog) StaticIdentifiers() []string { return s.static }
func (s *stubCatalog) FastIdentifiers() []string   { return s.fast }
func (s *stubCatalog) Has(id string) bool {
	for _, known := range s.static {
		if known == id {
			return true
		}
	}
	return false
}

func testCatalog() *stubCatalog {
	return &stubCatalog{
		static: []string{"todo", "filesize", "secrets"},
		fast:   []string{"todo", "filesize"},
	}
}

func TestResolveConfigQuickDefaults(t *testing.T) {
	cfg, err := ResolveConfig("quick", nil, testCatalog())
	require.NoError(t, err)

	assert.Equal(t, ModeQuick, cfg.Mode)
	assert.Equal(t, []string{"todo", "filesize"}, cfg.Tools, "quick mode defaults to fast plugins")
	assert.False(t, cfg.LLMEnabled)
	assert.Equal(t, ExecutionParallel, cfg.ExecutionStyle)
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
}

func TestResolveConfigDeepDefaults(t *testing.T) {
	cfg, err := ResolveConfig("deep", nil, testCatalog())
	require.NoError(t, err)

	assert.Equal(t, []string{"todo", "filesize", "secrets"}, cfg.Tools,
		"deep mode defaults to all static plugins")
	assert.True(t, cfg.LLMEnabled)
	assert.Equal(t, DefaultLLMBatchSize, cfg.LLMBatchSize)
}

func TestResolveConfigUnknownMode(t *testing.T) {
	_, err := ResolveConfig("exhaustive", nil, testCatalog())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "exhaustive")
}

func TestResolveConfigUnknownTool(t *testing.T) {
	_, err := ResolveConfig("quick", []string{"todo", "clippy"}, testCatalog())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "clippy", "error names the missing plugin")
}

func TestResolveConfigOverrideKeepsOrder(t *testing.T) {
	cfg, err := ResolveConfig("quick", []string{"secrets", "todo"}, testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"secrets", "todo"}, cfg.Tools)
}

func TestHashContent(t *testing.T) {
	a := HashContent([]byte("package main"))
	b := HashContent([]byte("package main"))
	c := HashContent([]byte("package main\n"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64, "hex sha256")
}

func TestNewRequestFillsHashesAndID(t *testing.T) {
	req := NewRequest([]SourceFile{
		{Path: "a.py", Content: []byte("print('hi')")},
		{Path: "b.py", ContentHash: "precomputed"},
	}, Config{Mode: ModeQuick})

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, HashContent([]byte("print('hi')")), req.Files[0].ContentHash)
	assert.Equal(t, "precomputed", req.Files[1].ContentHash)
}

func TestDetectLanguages(t *testing.T) {
	langs := DetectLanguages([]SourceFile{
		{Path: "src/app.py"},
		{Path: "lib/util.go"},
		{Path: "web/index.ts"},
		{Path: "README.md"},
		{Path: "other.py"},
	})
	assert.Equal(t, []string{"go", "python", "typescript"}, langs)
}
