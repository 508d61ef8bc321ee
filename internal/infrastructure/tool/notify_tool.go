package tool

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	domaintool "github.com/germinal-ai/germinal/internal/domain/tool"
)

// NewNotifyUserTool 创建 notify_user 工具
//
// The terminal is the notification transport; replacing it (desktop
// notifications, push) only changes this factory.
func NewNotifyUserTool(out io.Writer, logger *zap.Logger) *domaintool.Tool {
	if out == nil {
		out = os.Stdout
	}
	return domaintool.MustNew(
		"notify_user",
		"Send a short notification message to the user's terminal.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"minLength":   1,
					"description": "Message to show the user.",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Optional short title.",
				},
			},
			"required":             []string{"message"},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			message, _ := params["message"].(string)
			title, _ := params["title"].(string)

			if title != "" {
				fmt.Fprintf(out, "\n[NOTIFY] %s — %s\n", title, message)
			} else {
				fmt.Fprintf(out, "\n[NOTIFY] %s\n", message)
			}
			logger.Info("User notified", zap.String("message", message))
			return map[string]interface{}{"delivered": true}, nil
		},
	)
}
