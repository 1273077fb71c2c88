package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/example/ambiguity-runner/internal/engine"
	"github.com/example/ambiguity-runner/internal/logger"
	"github.com/example/ambiguity-runner/internal/outcome"
)

const (
	DefaultConfigPath = "ambiguity.config.yml"
	DefaultTimeout    = 10 * time.Second

	envInputs     = "AMBIGUITY_INPUTS"
	envEngine     = "AMBIGUITY_ENGINE"
	envTimeout    = "AMBIGUITY_TIMEOUT"
	envResultsDir = "AMBIGUITY_RESULTS_DIR"
	envLogLevel   = "AMBIGUITY_LOG_LEVEL"
)

// Loader merges configuration coming from files, environment variables, and CLI flags.
type Loader struct {
	ConfigPath string
}

// RuntimeConfig contains the fully merged settings for a run. It is built
// once and passed by value.
type RuntimeConfig struct {
	Inputs        []string
	Engine        []string
	SimpleTimeout time.Duration
	FullTimeout   time.Duration
	ResultsDir    string
	Exploit       engine.ExploitOptions
	LogLevel      string
}

// Overrides captures values coming from a config file, env vars or CLI flags.
type Overrides struct {
	Inputs []string
	Engine []string
	// Timeout sets both passes; SimpleTimeout and FullTimeout refine it.
	Timeout       *time.Duration
	SimpleTimeout *time.Duration
	FullTimeout   *time.Duration
	ResultsDir    string
	ConstructEDA  *bool
	TestEDA       *bool
	ConstructIDA  *bool
	LogLevel      string
}

// DefaultRuntimeConfig returns the baseline configuration when no overrides are provided.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Engine:        append([]string(nil), engine.DefaultCommand...),
		SimpleTimeout: DefaultTimeout,
		FullTimeout:   DefaultTimeout,
		ResultsDir:    "test_results",
		Exploit:       engine.ExploitOptions{ConstructEDA: true, TestEDA: true, ConstructIDA: true},
		LogLevel:      "info",
	}
}

// Load resolves the final runtime configuration.
func (l Loader) Load(override Overrides) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	path := l.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}

	if fileExists(path) {
		fileOv, err := loadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
		cfg.apply(fileOv)
	}

	envOv, err := overridesFromEnv()
	if err != nil {
		return cfg, err
	}
	cfg.apply(envOv)
	cfg.apply(override)

	inputs, err := ExpandInputs(cfg.Inputs)
	if err != nil {
		return cfg, err
	}
	cfg.Inputs = inputs

	return cfg, nil
}

// Validate ensures the config is complete and every input file is readable.
func (c RuntimeConfig) Validate() error {
	if len(c.Inputs) == 0 {
		return errors.New("no input files configured; pass file arguments or set " + envInputs)
	}

	for _, input := range c.Inputs {
		if err := checkReadable(input); err != nil {
			return fmt.Errorf("input %s: %w", input, err)
		}
	}

	if err := c.ValidateEnvironment(); err != nil {
		return err
	}

	return nil
}

// ValidateEnvironment checks everything except the input files.
func (c RuntimeConfig) ValidateEnvironment() error {
	if len(c.Engine) == 0 || strings.TrimSpace(c.Engine[0]) == "" {
		return errors.New("engine command cannot be empty")
	}

	if c.SimpleTimeout < 0 || c.FullTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative (simple %s, full %s)", c.SimpleTimeout, c.FullTimeout)
	}

	if c.ResultsDir == "" {
		return errors.New("results directory cannot be empty")
	}

	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	return nil
}

func (c *RuntimeConfig) apply(src Overrides) {
	if len(src.Inputs) > 0 {
		c.Inputs = cleanList(src.Inputs)
	}

	if len(src.Engine) > 0 {
		c.Engine = cleanList(src.Engine)
	}

	if src.Timeout != nil {
		c.SimpleTimeout = *src.Timeout
		c.FullTimeout = *src.Timeout
	}

	if src.SimpleTimeout != nil {
		c.SimpleTimeout = *src.SimpleTimeout
	}

	if src.FullTimeout != nil {
		c.FullTimeout = *src.FullTimeout
	}

	if src.ResultsDir != "" {
		c.ResultsDir = src.ResultsDir
	}

	if src.ConstructEDA != nil {
		c.Exploit.ConstructEDA = *src.ConstructEDA
	}

	if src.TestEDA != nil {
		c.Exploit.TestEDA = *src.TestEDA
	}

	if src.ConstructIDA != nil {
		c.Exploit.ConstructIDA = *src.ConstructIDA
	}

	if src.LogLevel != "" {
		c.LogLevel = src.LogLevel
	}
}

// fileConfig is the on-disk YAML layout.
type fileConfig struct {
	Inputs        stringList    `yaml:"inputs,omitempty"`
	Engine        commandLine   `yaml:"engine,omitempty"`
	Timeout       *timeoutValue `yaml:"timeout,omitempty"`
	SimpleTimeout *timeoutValue `yaml:"simpleTimeout,omitempty"`
	FullTimeout   *timeoutValue `yaml:"fullTimeout,omitempty"`
	ResultsDir    string        `yaml:"resultsDir,omitempty"`
	Exploit       *fileExploit  `yaml:"exploit,omitempty"`
	LogLevel      string        `yaml:"logLevel,omitempty"`
}

type fileExploit struct {
	ConstructEDA *bool `yaml:"constructEda,omitempty"`
	TestEDA      *bool `yaml:"testEda,omitempty"`
	ConstructIDA *bool `yaml:"constructIda,omitempty"`
}

func loadFromFile(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, err
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Overrides{}, err
	}

	over := Overrides{
		Inputs:        raw.Inputs,
		Engine:        raw.Engine,
		Timeout:       raw.Timeout.duration(),
		SimpleTimeout: raw.SimpleTimeout.duration(),
		FullTimeout:   raw.FullTimeout.duration(),
		ResultsDir:    raw.ResultsDir,
		LogLevel:      raw.LogLevel,
	}

	if raw.Exploit != nil {
		over.ConstructEDA = raw.Exploit.ConstructEDA
		over.TestEDA = raw.Exploit.TestEDA
		over.ConstructIDA = raw.Exploit.ConstructIDA
	}

	return over, nil
}

// StarterYAML renders a config file populated with the defaults.
func StarterYAML() ([]byte, error) {
	def := DefaultRuntimeConfig()
	timeout := timeoutValue(def.SimpleTimeout)
	return yaml.Marshal(fileConfig{
		Inputs:     stringList{"tests/small.txt"},
		Engine:     commandLine(def.Engine),
		Timeout:    &timeout,
		ResultsDir: def.ResultsDir,
		Exploit: &fileExploit{
			ConstructEDA: &def.Exploit.ConstructEDA,
			TestEDA:      &def.Exploit.TestEDA,
			ConstructIDA: &def.Exploit.ConstructIDA,
		},
		LogLevel: def.LogLevel,
	})
}

func overridesFromEnv() (Overrides, error) {
	ov := Overrides{}

	if value := os.Getenv(envInputs); value != "" {
		ov.Inputs = ParseList(value)
	}

	if value := os.Getenv(envEngine); value != "" {
		ov.Engine = strings.Fields(value)
	}

	if value := os.Getenv(envTimeout); value != "" {
		d, err := ParseTimeout(value)
		if err != nil {
			return ov, fmt.Errorf("%s: %w", envTimeout, err)
		}
		ov.Timeout = &d
	}

	if value := os.Getenv(envResultsDir); value != "" {
		ov.ResultsDir = value
	}

	if value := os.Getenv(envLogLevel); value != "" {
		ov.LogLevel = value
	}

	return ov, nil
}

// ParseTimeout accepts a Go duration ("90s", "2m") or a bare number of seconds.
func ParseTimeout(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("empty timeout")
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", value)
	}
	return d, nil
}

// ParseList turns comma or newline separated input into individual values.
func ParseList(input string) []string {
	return splitOnDelimiters(input, []rune{',', '\n', '\r'})
}

// ExpandInputs expands glob patterns. A pattern that matches nothing is kept
// as-is so validation reports the missing file.
func ExpandInputs(inputs []string) ([]string, error) {
	var out []string
	seen := map[string]struct{}{}
	add := func(p string) {
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, input := range inputs {
		if !strings.ContainsAny(input, "*?[{") {
			add(input)
			continue
		}
		matches, err := doublestar.FilepathGlob(input, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("input pattern %s: %w", input, err)
		}
		if len(matches) == 0 {
			add(input)
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}

// ReadRegexes reads an input file, one pattern per line, in order. Lines
// are kept verbatim, including blank ones; only terminators are removed.
func ReadRegexes(path string) ([]outcome.Record, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var records []outcome.Record
	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			records = append(records, outcome.Record{Ordinal: len(records) + 1, Pattern: line})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, readErr
		}
	}

	return records, nil
}

func splitOnDelimiters(input string, delims []rune) []string {
	if input == "" {
		return nil
	}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}

	separator := func(r rune) bool {
		for _, d := range delims {
			if r == d {
				return true
			}
		}
		return false
	}

	parts := strings.FieldsFunc(trimmed, separator)
	return cleanList(parts)
}

func cleanList(values []string) []string {
	var out []string
	for _, v := range values {
		candidate := strings.TrimSpace(v)
		if candidate != "" {
			out = append(out, candidate)
		}
	}
	return out
}

func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	return f.Close()
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// stringList enables YAML fields that can be specified as a scalar or sequence.
type stringList []string

func (t *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var out []string
		for _, node := range value.Content {
			out = append(out, strings.TrimSpace(node.Value))
		}
		*t = cleanList(out)
	case yaml.ScalarNode:
		*t = ParseList(value.Value)
	default:
		return fmt.Errorf("unsupported YAML type for inputs")
	}
	return nil
}

// commandLine accepts either "java -cp bin driver.Main" or a sequence of arguments.
type commandLine []string

func (c *commandLine) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var out []string
		for _, node := range value.Content {
			out = append(out, node.Value)
		}
		*c = cleanList(out)
	case yaml.ScalarNode:
		*c = strings.Fields(value.Value)
	default:
		return fmt.Errorf("unsupported YAML type for engine")
	}
	return nil
}

// timeoutValue accepts integer seconds or a duration string.
type timeoutValue time.Duration

func (t *timeoutValue) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported YAML type for timeout")
	}
	d, err := ParseTimeout(value.Value)
	if err != nil {
		return err
	}
	*t = timeoutValue(d)
	return nil
}

func (t timeoutValue) MarshalYAML() (interface{}, error) {
	return time.Duration(t).String(), nil
}

func (t *timeoutValue) duration() *time.Duration {
	if t == nil {
		return nil
	}
	d := time.Duration(*t)
	return &d
}
