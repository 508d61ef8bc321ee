package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultConfigYAML is the packaged default written to the user config
// directory on first run. Kept as plain YAML so a user editing the seeded
// file sees the same shape the loader reads.
const defaultConfigYAML = `# Germinal orchestrator configuration.
# Paths support ~ and environment variable expansion.

paths:
  db: ~/.local/germinal/orchestrator.db
  allowed_read:
    - ~/.local/germinal
  allowed_write:
    - ~/.local/germinal
  logs: ~/.local/germinal/logs

database:
  type: sqlite

models:
  list:
    - name: local
      model: qwen2.5:14b
      base_url: http://localhost:11434/v1
    - name: claude
      model: claude-sonnet-4-5
      base_url: https://api.anthropic.com/v1
      api_key_env: ANTHROPIC_API_KEY
      max_tokens: 8192
  categories:
    - category: default
      model: local
  default: local

agents:
  task_agent:
    allowed_tools: ["*"]
    max_iterations: 10
    approval_required_for: [high]

context:
  recent_buffer_tokens: 2000
  summary_tokens: 1000
  brief_tokens: 500

projects:
  default_project_id: default
  default_project_name: Default Project

network:
  enabled: false
  tcp:
    host: 127.0.0.1
    port: 8080
  # unix_socket: ~/.local/germinal/orchestrator.sock
  request_timeout_s: 300
  require_auth: false
  api_key: ""
  model_name: orchestrator
  default_agent_type: task_agent

timer:
  enabled: true
  interval_seconds: 60

tools:
  shell_allowlist:
    - ls
    - cat
    - head
    - tail
    - grep
    - find
    - wc
    - echo
    - pwd
    - which
    - file
    - stat
    - date

input:
  max_file_size_mb: 50
  max_tokens_estimate: 100000
  large_file_threshold_mb: 1

logging:
  level: info
`

// SeedUserConfig writes the packaged default config into dir when no
// config.yaml exists there yet. Idempotent; never overwrites.
func SeedUserConfig(dir string) error {
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
