package tool

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"strings"

	domaintool "github.com/germinal-ai/germinal/internal/domain/tool"
	"github.com/germinal-ai/germinal/internal/infrastructure/sandbox"
)

// NewShowOSTool 创建 show_os 工具
func NewShowOSTool() *domaintool.Tool {
	return domaintool.MustNew(
		"show_os",
		"Show operating system and runtime information for the host.",
		noParamsSchema(),
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			hostname, _ := os.Hostname()
			wd, _ := os.Getwd()
			return map[string]interface{}{
				"os":       runtime.GOOS,
				"arch":     runtime.GOARCH,
				"hostname": hostname,
				"runtime":  runtime.Version(),
				"cwd":      wd,
			}, nil
		},
	)
}

// NewShowHardwareTool 创建 show_hardware 工具
//
// Memory figures come from /proc/meminfo and are best-effort; on hosts
// without procfs only the CPU count is reported.
func NewShowHardwareTool() *domaintool.Tool {
	return domaintool.MustNew(
		"show_hardware",
		"Show CPU count and memory totals for the host.",
		noParamsSchema(),
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			result := map[string]interface{}{
				"cpu_count": runtime.NumCPU(),
			}
			if memTotal, memFree, ok := readMeminfo(); ok {
				result["memory_total_kb"] = memTotal
				result["memory_available_kb"] = memFree
			}
			return result, nil
		},
	)
}

// NewShowPSTool 创建 show_ps 工具
func NewShowPSTool(runner *sandbox.CommandRunner) *domaintool.Tool {
	return domaintool.MustNew(
		"show_ps",
		"Show the busiest processes on the host, sorted by CPU usage.",
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     50,
					"description": "Number of processes to show. Default 10.",
				},
			},
			"additionalProperties": false,
		},
		domaintool.RiskLow,
		func(params map[string]interface{}) (map[string]interface{}, error) {
			limit := 10
			if n, ok := params["limit"].(float64); ok {
				limit = int(n)
			}
			result, err := runner.Run(context.Background(), []string{"ps", "-eo", "pid,comm,%cpu,%mem", "--sort=-%cpu"})
			if err != nil {
				return nil, err
			}
			lines := strings.Split(strings.TrimRight(result.Stdout, "\n"), "\n")
			if len(lines) > limit+1 { // header + limit rows
				lines = lines[:limit+1]
			}
			return map[string]interface{}{
				"processes": strings.Join(lines, "\n"),
				"count":     len(lines) - 1,
			}, nil
		},
	)
}

func readMeminfo() (total, available int64, ok bool) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		var target *int64
		switch fields[0] {
		case "MemTotal:":
			target = &total
		case "MemAvailable:":
			target = &available
		default:
			continue
		}
		var n int64
		for _, c := range fields[1] {
			if c < '0' || c > '9' {
				break
			}
			n = n*10 + int64(c-'0')
		}
		*target = n
	}
	return total, available, total > 0
}
