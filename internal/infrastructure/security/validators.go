package security

import (
	"regexp"

	"go.uber.org/zap"
)

// Tool outputs pass through a validator pipeline before they are fed back to
// the model. Validators may rewrite the result (masking) or just observe and
// log (injection detection). They must never fail the tool call: a validator
// error skips that validator and the pipeline continues.

// OutputValidator 工具输出校验器
type OutputValidator interface {
	// Validate 检查并可能改写工具结果
	Validate(result map[string]interface{}) map[string]interface{}

	// Name 校验器名称 (日志与配置用)
	Name() string
}

// maskRule 单条脱敏规则
type maskRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// SensitiveDataMasker masks credential-shaped strings in tool outputs:
// API keys, bearer tokens, generic secrets, and private key blocks.
type SensitiveDataMasker struct {
	rules  []maskRule
	logger *zap.Logger
}

// NewSensitiveDataMasker 创建脱敏器
func NewSensitiveDataMasker(logger *zap.Logger) *SensitiveDataMasker {
	return &SensitiveDataMasker{
		logger: logger,
		rules: []maskRule{
			{regexp.MustCompile(`(?i)\b(sk-[a-zA-Z0-9_-]{10,})\b`), "[API_KEY_MASKED]"},
			{regexp.MustCompile(`(?i)\b(pk_[a-zA-Z0-9_-]{10,})\b`), "[API_KEY_MASKED]"},
			{regexp.MustCompile(`(?i)\b(Bearer\s+[a-zA-Z0-9_.-]{10,})\b`), "[BEARER_TOKEN_MASKED]"},
			{regexp.MustCompile(`(?i)\b(Authorization:\s*[a-zA-Z0-9_.-]{10,})\b`), "[AUTH_HEADER_MASKED]"},
			{regexp.MustCompile(`(?i)\b(secret[_-][a-zA-Z0-9_-]{5,})\b`), "[SECRET_MASKED]"},
			{regexp.MustCompile(`(?i)\b(token[_-][a-zA-Z0-9_-]{5,})\b`), "[TOKEN_MASKED]"},
			{regexp.MustCompile(`(?i)\b(password[_-][a-zA-Z0-9_-]{5,})\b`), "[PASSWORD_MASKED]"},
			{regexp.MustCompile(`(?is)-----BEGIN\s+(?:RSA\s+)?PRIVATE\s+KEY-----.*?-----END\s+(?:RSA\s+)?PRIVATE\s+KEY-----`), "[PRIVATE_KEY_MASKED]"},
		},
	}
}

// Name 实现 OutputValidator
func (m *SensitiveDataMasker) Name() string { return "sensitive_data_masker" }

// Validate 实现 OutputValidator
func (m *SensitiveDataMasker) Validate(result map[string]interface{}) map[string]interface{} {
	masked := m.maskValue(result).(map[string]interface{})
	return masked
}

func (m *SensitiveDataMasker) maskValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = m.maskValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, inner := range v {
			out[i] = m.maskValue(inner)
		}
		return out
	case string:
		masked := v
		for _, rule := range m.rules {
			masked = rule.pattern.ReplaceAllString(masked, rule.replacement)
		}
		if masked != v {
			m.logger.Warn("Sensitive data masked in tool output")
		}
		return masked
	default:
		return value
	}
}

// PromptInjectionDetector flags tool outputs that look like prompt
// injection attempts. Detection is log-only: pattern matching is too coarse
// to block on, but the warning gives operators a trail to audit.
type PromptInjectionDetector struct {
	patterns []*regexp.Regexp
	logger   *zap.Logger
}

// NewPromptInjectionDetector 创建注入检测器
func NewPromptInjectionDetector(logger *zap.Logger) *PromptInjectionDetector {
	return &PromptInjectionDetector{
		logger: logger,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(system\s+prompt|you\s+are\s+now|ignore\s+previous|forget\s+your)`),
			regexp.MustCompile(`(?i)(act\s+as|role\s*play|pretend\s+to\s+be)`),
			regexp.MustCompile(`(?i)(override|disregard|ignore.*instruction)`),
			regexp.MustCompile(`(?i)(execute.*command|run.*script|delete.*file|format.*disk)`),
		},
	}
}

// Name 实现 OutputValidator
func (d *PromptInjectionDetector) Name() string { return "prompt_injection_detector" }

// Validate 实现 OutputValidator
func (d *PromptInjectionDetector) Validate(result map[string]interface{}) map[string]interface{} {
	text := flattenText(result)
	for _, pattern := range d.patterns {
		if pattern.MatchString(text) {
			d.logger.Warn("Potential prompt injection in tool output",
				zap.String("pattern", pattern.String()),
			)
		}
	}
	return result
}

func flattenText(value interface{}) string {
	switch v := value.(type) {
	case map[string]interface{}:
		out := ""
		for _, inner := range v {
			out += flattenText(inner) + " "
		}
		return out
	case []interface{}:
		out := ""
		for _, inner := range v {
			out += flattenText(inner) + " "
		}
		return out
	case string:
		return v
	default:
		return ""
	}
}

// Pipeline 按序应用多个校验器
type Pipeline struct {
	validators []OutputValidator
	logger     *zap.Logger
}

// NewPipeline 创建校验管道
func NewPipeline(logger *zap.Logger, validators ...OutputValidator) *Pipeline {
	return &Pipeline{validators: validators, logger: logger}
}

// DefaultPipeline 默认管道: 脱敏 + 注入检测
func DefaultPipeline(logger *zap.Logger) *Pipeline {
	return NewPipeline(logger,
		NewSensitiveDataMasker(logger),
		NewPromptInjectionDetector(logger),
	)
}

// Validate 依次运行所有校验器
func (p *Pipeline) Validate(result map[string]interface{}) map[string]interface{} {
	validated := result
	for _, v := range p.validators {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("Validator panicked — skipping",
						zap.String("validator", v.Name()),
						zap.Any("panic", r),
					)
				}
			}()
			validated = v.Validate(validated)
		}()
	}
	return validated
}
