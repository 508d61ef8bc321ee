package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/germinal-ai/germinal/internal/domain/entity"
	"github.com/germinal-ai/germinal/internal/domain/service"
)

// Invoker 驱动一次交互式调用
type Invoker interface {
	RunTask(ctx context.Context, task string) (*service.InvokeResult, error)
}

// REPL drives the agent from stdin/stdout. No adapters or queue are
// involved — the user is the event source. Logging goes to stderr so stdout
// carries only the agent's response and pipes stay clean.
type REPL struct {
	invoker  Invoker
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	renderer *glamour.TermRenderer
}

// New 创建 REPL
func New(invoker Invoker) *REPL {
	r := &REPL{
		invoker: invoker,
		in:      os.Stdin,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
	// Markdown rendering only when a human is watching; piped output stays
	// plain text.
	if fileIsTerminal(os.Stdout) {
		r.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
	}
	return r
}

// Run 交互循环: 读取一行, 调用, 打印, 直到 EOF
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.errOut, "Germinal interactive mode. Type your prompt and press Enter. Ctrl-D to exit.")

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.errOut, " > ")
		if !scanner.Scan() {
			fmt.Fprintln(r.errOut)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := r.invokeAndPrint(ctx, line); err != nil {
			fmt.Fprintf(r.errOut, "error: %v\n", err)
		}
	}
}

// RunOnce 单次模式: 调用一次并打印; 失败返回错误 (调用方以退出码 1 结束)
func (r *REPL) RunOnce(ctx context.Context, task string) error {
	if err := r.invokeAndPrint(ctx, task); err != nil {
		fmt.Fprintf(r.errOut, "error: %v\n", err)
		return err
	}
	return nil
}

func (r *REPL) invokeAndPrint(ctx context.Context, task string) error {
	result, err := r.invoker.RunTask(ctx, task)
	if err != nil {
		return err
	}
	if result.Status == entity.InvocationFailed {
		return fmt.Errorf("%s", result.Response)
	}
	fmt.Fprintln(r.out, r.render(result.Response))
	return nil
}

func (r *REPL) render(text string) string {
	if r.renderer == nil {
		return text
	}
	out, err := r.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}

func fileIsTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
