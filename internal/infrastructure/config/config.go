package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Paths    PathsConfig            `mapstructure:"paths"`
	Database DatabaseConfig         `mapstructure:"database"`
	Models   ModelsConfig           `mapstructure:"models"`
	Agents   map[string]AgentConfig `mapstructure:"agents"`
	Context  ContextConfig          `mapstructure:"context"`
	Projects ProjectsConfig         `mapstructure:"projects"`
	Network  NetworkConfig          `mapstructure:"network"`
	Timer    TimerConfig            `mapstructure:"timer"`
	Tools    ToolsConfig            `mapstructure:"tools"`
	Input    InputConfig            `mapstructure:"input"`
	Logging  LoggingConfig          `mapstructure:"logging"`
}

// PathsConfig 路径配置 (全部经过 ~ 与环境变量展开)
type PathsConfig struct {
	DB           string   `mapstructure:"db"`
	AllowedRead  []string `mapstructure:"allowed_read"`
	AllowedWrite []string `mapstructure:"allowed_write"`
	Logs         string   `mapstructure:"logs"`
}

// DatabaseConfig 数据库配置
//
// Type sqlite uses paths.db as the DSN; postgres reads DSN directly.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// ModelsConfig 模型配置
type ModelsConfig struct {
	List       []ModelEntry    `mapstructure:"list"`
	Categories []ModelCategory `mapstructure:"categories"`
	Default    string          `mapstructure:"default"`
}

// ModelEntry 单个模型接入项
type ModelEntry struct {
	Name      string `mapstructure:"name"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	APIKeyEnv string `mapstructure:"api_key_env"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// ModelCategory 模型类别 → 模型名映射
type ModelCategory struct {
	Category string `mapstructure:"category"`
	Model    string `mapstructure:"model"`
}

// AgentConfig 单个 agent 类型的配置
type AgentConfig struct {
	AllowedTools        []string `mapstructure:"allowed_tools"`
	MaxIterations       int      `mapstructure:"max_iterations"`
	ApprovalRequiredFor []string `mapstructure:"approval_required_for"`
}

// ContextConfig 上下文层 token 预算
type ContextConfig struct {
	RecentBufferTokens int `mapstructure:"recent_buffer_tokens"`
	SummaryTokens      int `mapstructure:"summary_tokens"`
	BriefTokens        int `mapstructure:"brief_tokens"`
}

// ProjectsConfig 项目默认值
type ProjectsConfig struct {
	DefaultProjectID   string `mapstructure:"default_project_id"`
	DefaultProjectName string `mapstructure:"default_project_name"`
}

// NetworkConfig HTTP 前端配置
type NetworkConfig struct {
	Enabled          bool      `mapstructure:"enabled"`
	TCP              TCPConfig `mapstructure:"tcp"`
	UnixSocket       string    `mapstructure:"unix_socket"`
	RequestTimeoutS  int       `mapstructure:"request_timeout_s"`
	RequireAuth      bool      `mapstructure:"require_auth"`
	APIKey           string    `mapstructure:"api_key"`
	ModelName        string    `mapstructure:"model_name"`
	DefaultAgentType string    `mapstructure:"default_agent_type"`
}

// TCPConfig TCP 监听配置
type TCPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// TimerConfig 定时器适配器配置
type TimerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
}

// ToolsConfig 工具配置
type ToolsConfig struct {
	ShellAllowlist []string `mapstructure:"shell_allowlist"`
}

// InputConfig 大内容输入配置
type InputConfig struct {
	MaxFileSizeMB        int `mapstructure:"max_file_size_mb"`
	MaxTokensEstimate    int `mapstructure:"max_tokens_estimate"`
	LargeFileThresholdMB int `mapstructure:"large_file_threshold_mb"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load 加载配置
//
// 优先级 (低 → 高): 默认值 → ~/.config/germinal/config.yaml → ./config.yaml
// → 环境变量. 首次运行时用户配置从打包默认值生成.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Layer 1: 用户配置 (首次运行时播种)
	userDir := userConfigDir()
	if err := SeedUserConfig(userDir); err != nil {
		// Seeding is best-effort; a read-only home must not stop startup.
		fmt.Fprintf(os.Stderr, "warning: could not seed user config: %v\n", err)
	}
	v.AddConfigPath(userDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read user config: %w", err)
		}
	}

	// Layer 2: 项目本地配置 (开发用覆盖层)
	if _, err := os.Stat("config.yaml"); err == nil {
		v2 := viper.New()
		v2.SetConfigFile("config.yaml")
		if err := v2.ReadInConfig(); err == nil {
			_ = v.MergeConfigMap(v2.AllSettings())
		}
	}

	// 环境变量覆盖
	v.SetEnvPrefix("GERMINAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// ORCHESTRATOR_DB overrides the store path regardless of config layers.
	if db := os.Getenv("ORCHESTRATOR_DB"); db != "" {
		cfg.Paths.DB = db
	}

	expandPaths(&cfg)
	return &cfg, nil
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.db", "~/.local/germinal/orchestrator.db")
	v.SetDefault("paths.allowed_read", []string{"~/.local/germinal"})
	v.SetDefault("paths.allowed_write", []string{"~/.local/germinal"})
	v.SetDefault("paths.logs", "~/.local/germinal/logs")

	v.SetDefault("database.type", "sqlite")

	v.SetDefault("models.default", "local")

	v.SetDefault("agents.task_agent.allowed_tools", []string{"*"})
	v.SetDefault("agents.task_agent.max_iterations", 10)
	v.SetDefault("agents.task_agent.approval_required_for", []string{"high"})

	v.SetDefault("context.recent_buffer_tokens", 2000)
	v.SetDefault("context.summary_tokens", 1000)
	v.SetDefault("context.brief_tokens", 500)

	v.SetDefault("projects.default_project_id", "default")
	v.SetDefault("projects.default_project_name", "Default Project")

	v.SetDefault("network.enabled", false)
	v.SetDefault("network.tcp.host", "127.0.0.1")
	v.SetDefault("network.tcp.port", 8080)
	v.SetDefault("network.request_timeout_s", 300)
	v.SetDefault("network.require_auth", false)
	v.SetDefault("network.model_name", "orchestrator")
	v.SetDefault("network.default_agent_type", "task_agent")

	v.SetDefault("timer.enabled", true)
	v.SetDefault("timer.interval_seconds", 60)

	v.SetDefault("tools.shell_allowlist", []string{
		"ls", "cat", "head", "tail", "grep", "find", "wc",
		"echo", "pwd", "which", "file", "stat", "date",
	})

	v.SetDefault("input.max_file_size_mb", 50)
	v.SetDefault("input.max_tokens_estimate", 100000)
	v.SetDefault("input.large_file_threshold_mb", 1)

	v.SetDefault("logging.level", "info")
}

// DatabaseDSN 返回实际使用的数据库 DSN
func (c *Config) DatabaseDSN() string {
	if c.Database.Type == "postgres" {
		return c.Database.DSN
	}
	return c.Paths.DB
}

// AgentFor returns the agent config for agentType, falling back to a
// permissive default so new routing rules work before their agent section
// is written.
func (c *Config) AgentFor(agentType string) AgentConfig {
	if ac, ok := c.Agents[agentType]; ok {
		if ac.MaxIterations <= 0 {
			ac.MaxIterations = 10
		}
		if len(ac.AllowedTools) == 0 {
			ac.AllowedTools = []string{"*"}
		}
		return ac
	}
	return AgentConfig{
		AllowedTools:        []string{"*"},
		MaxIterations:       10,
		ApprovalRequiredFor: []string{"high"},
	}
}

// SelectModel resolves a routing model key to (wire model name, api key,
// max tokens).
//
// The key is first looked up in models.categories; otherwise it is treated
// as a model name from models.list. ORCHESTRATOR_MODEL overrides the
// resolved name when the key is "default", so the active model can change
// without editing config.yaml. The credential is read from the env var the
// model entry names.
func (c *Config) SelectModel(modelKey string) (model, apiKey string, maxTokens int, err error) {
	resolved := modelKey
	if modelKey == "default" {
		resolved = c.Models.Default
	}
	for _, cat := range c.Models.Categories {
		if cat.Category == modelKey {
			resolved = cat.Model
			break
		}
	}
	if modelKey == "default" {
		if override := os.Getenv("ORCHESTRATOR_MODEL"); override != "" {
			resolved = override
		}
	}

	for _, entry := range c.Models.List {
		if entry.Name == resolved {
			key := ""
			if entry.APIKeyEnv != "" {
				key = os.Getenv(entry.APIKeyEnv)
			}
			return entry.Model, key, entry.MaxTokens, nil
		}
	}
	names := make([]string, 0, len(c.Models.List))
	for _, entry := range c.Models.List {
		names = append(names, entry.Name)
	}
	return "", "", 0, fmt.Errorf("unknown model name %q (valid: %v)", resolved, names)
}

// EntryForModel 按线上模型名反查模型项 (用于 base_url 等)
func (c *Config) EntryForModel(model string) (ModelEntry, bool) {
	for _, entry := range c.Models.List {
		if entry.Model == model {
			return entry, true
		}
	}
	return ModelEntry{}, false
}

// expandPaths 展开 paths 段及其他文件路径
func expandPaths(cfg *Config) {
	cfg.Paths.DB = ExpandPath(cfg.Paths.DB)
	cfg.Paths.Logs = ExpandPath(cfg.Paths.Logs)
	for i, p := range cfg.Paths.AllowedRead {
		cfg.Paths.AllowedRead[i] = ExpandPath(p)
	}
	for i, p := range cfg.Paths.AllowedWrite {
		cfg.Paths.AllowedWrite[i] = ExpandPath(p)
	}
	if cfg.Network.UnixSocket != "" {
		cfg.Network.UnixSocket = ExpandPath(cfg.Network.UnixSocket)
	}
}

// ExpandPath 路径展开: 环境变量 → ~ → 绝对路径
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	expanded := os.ExpandEnv(path)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return expanded
	}
	return abs
}

func userConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "germinal")
}
