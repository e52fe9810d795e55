package sage

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleSection struct {
	Timeout   time.Duration     `yaml:"timeout" toml:"timeout" env:"TIMEOUT" default:"30s"`
	Threshold float64           `yaml:"threshold" toml:"threshold" env:"THRESHOLD" default:"0.6"`
	Size      int               `yaml:"size" toml:"size" env:"SIZE" default:"20"`
	Words     []string          `yaml:"words" toml:"words" env:"WORDS" default:"[\"stop\",\"goodbye\"]"`
	Labels    map[string]string `yaml:"labels" toml:"labels" default:"{\"a\":\"b\"}"`
	Enabled   bool              `yaml:"enabled" toml:"enabled" env:"ENABLED" default:"true"`
	Name      string            `yaml:"name" toml:"name" env:"NAME"`
	Nested    struct {
		Mode string `yaml:"mode" toml:"mode" env:"MODE" default:"sync"`
	} `yaml:"nested" toml:"nested"`
}

func (s *sampleSection) Validate() error {
	if s.Size < 0 {
		return errors.New("size must not be negative")
	}
	return nil
}

func TestProcessConfigDefaults(t *testing.T) {
	var s sampleSection
	require.NoError(t, ProcessConfigDefaults(&s))

	assert.Equal(t, 30*time.Second, s.Timeout)
	assert.InDelta(t, 0.6, s.Threshold, 1e-9)
	assert.Equal(t, 20, s.Size)
	assert.Equal(t, []string{"stop", "goodbye"}, s.Words)
	assert.Equal(t, map[string]string{"a": "b"}, s.Labels)
	assert.True(t, s.Enabled)
	assert.Equal(t, "sync", s.Nested.Mode)
	assert.Empty(t, s.Name)

	s2 := sampleSection{Size: 3}
	require.NoError(t, ProcessConfigDefaults(&s2))
	assert.Equal(t, 3, s2.Size, "non-zero values are kept")
}

func TestProcessConfigDefaultsErrors(t *testing.T) {
	assert.ErrorIs(t, ProcessConfigDefaults(nil), ErrConfigNil)
	assert.ErrorIs(t, ProcessConfigDefaults(sampleSection{}), ErrConfigNotPointer)
	n := 3
	assert.ErrorIs(t, ProcessConfigDefaults(&n), ErrConfigNotStruct)

	var bad struct {
		D time.Duration `default:"soon"`
	}
	assert.Error(t, ProcessConfigDefaults(&bad))
}

func TestConfigLoaderLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sample:
  timeout: 10s
  size: 5
  nested:
    mode: async
`), 0o600))
	t.Setenv("SAGE_SAMPLE_SIZE", "8")
	t.Setenv("SAGE_SAMPLE_NAME", "from-env")

	loader, err := NewFileConfigLoader(path, filepath.Join(dir, ".env"), "SAGE")
	require.NoError(t, err)
	assert.Equal(t, path, loader.Path())

	var s sampleSection
	require.NoError(t, loader.Load("sample", &s))

	assert.Equal(t, 10*time.Second, s.Timeout, "file overrides default")
	assert.Equal(t, 8, s.Size, "env overrides file")
	assert.Equal(t, "from-env", s.Name)
	assert.Equal(t, "async", s.Nested.Mode)
	assert.InDelta(t, 0.6, s.Threshold, 1e-9, "default kept when nothing overrides")
}

func TestConfigLoaderValidation(t *testing.T) {
	t.Setenv("SAGE_SAMPLE_SIZE", "-1")
	loader, err := NewFileConfigLoader("", "", "SAGE")
	require.NoError(t, err)

	var s sampleSection
	err = loader.Load("sample", &s)
	assert.ErrorIs(t, err, ErrConfigValidationFailed)
}

func TestConfigLoaderRejectsUnknownExtension(t *testing.T) {
	_, err := NewFileConfigLoader("sage.ini", "", "SAGE")
	assert.Error(t, err)
}

func TestLifecycleConfigValidate(t *testing.T) {
	var c LifecycleConfig
	require.NoError(t, ProcessConfigDefaults(&c))
	assert.Equal(t, 5*time.Second, c.ShutdownTimeout)
	assert.NoError(t, c.Validate())

	c.Modules = []ModuleDescriptor{{Name: "voice"}, {Name: "voice"}}
	assert.Error(t, c.Validate())

	c.Modules = []ModuleDescriptor{{}}
	assert.Error(t, c.Validate())
}

func TestConfigWatcherNotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("conversation: {}\n"), 0o600))

	w := NewConfigWatcher(path, NopLogger())
	w.debounce = 10 * time.Millisecond
	var calls atomic.Int32
	w.OnChange(func() { calls.Add(1) })

	require.NoError(t, w.Start(t.Context()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600))
	require.NoError(t, os.WriteFile(path, []byte("conversation:\n  history_size: 5\n"), 0o600))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}
