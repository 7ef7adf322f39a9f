package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/fsassist/application"
)

// renderOptions controls how answers are printed.
type renderOptions struct {
	plain bool
	width int
}

// newRenderer returns a markdown renderer, or nil for plain output.
func newRenderer(opts renderOptions) *glamour.TermRenderer {
	if opts.plain {
		return nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(opts.width),
	)
	if err != nil {
		return nil
	}
	return renderer
}

func render(r *glamour.TermRenderer, text string) string {
	if r == nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// shutdownAssistant releases backends with a bounded grace period.
func (a *App) shutdownAssistant(assistant *application.Assistant) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := assistant.Shutdown(ctx); err != nil {
		_, _ = fmt.Fprintf(a.stderr, "shutdown: %v\n", err)
	}
}

// newAskCmd creates the one-shot ask command.
func (a *App) newAskCmd() *cobra.Command {
	opts := renderOptions{width: 80}

	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Answer a single request and exit",
		Long: `Answer one request using the configured backends and exit.

Examples:
  fsassist ask "list the files in Documents"
  fsassist ask --plain "find every invoice in my Downloads folder"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assistant, err := a.startAssistant(cmd.Context())
			if err != nil {
				return err
			}
			defer a.shutdownAssistant(assistant)

			answer, err := assistant.Handle(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, _ = io.WriteString(a.stdout, render(newRenderer(opts), answer))
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Print answers without markdown rendering")
	cmd.Flags().IntVar(&opts.width, "width", 80, "Word wrap width for rendered answers")
	return cmd
}

// newChatCmd creates the interactive chat command.
func (a *App) newChatCmd() *cobra.Command {
	opts := renderOptions{width: 80}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Long: `Start an interactive session. Type a request and press enter.

Commands:
  /tools   list the operations the assistant can use
  /help    show this help
  /quit    shut down all backends and exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			assistant, err := a.startAssistant(cmd.Context())
			if err != nil {
				return err
			}
			defer a.shutdownAssistant(assistant)

			return a.chat(cmd.Context(), assistant, newRenderer(opts))
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Print answers without markdown rendering")
	cmd.Flags().IntVar(&opts.width, "width", 80, "Word wrap width for rendered answers")
	return cmd
}

type reply struct {
	answer string
	err    error
}

// chat runs the REPL. Input is read on one goroutine and requests are
// answered on another. Prompts typed during a request are queued.
func (a *App) chat(ctx context.Context, assistant *application.Assistant, renderer *glamour.TermRenderer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := readLines(ctx, a.stdin)
	prompts := make(chan string)
	replies := make(chan reply)

	go func() {
		defer close(replies)
		for p := range prompts {
			answer, err := assistant.Handle(ctx, p)
			replies <- reply{answer: answer, err: err}
		}
	}()

	_, _ = fmt.Fprintf(a.stdout, "fsassist %s. %d operations available. Type /help for commands.\n",
		Version, len(assistant.Tools()))

	var (
		queue []string
		busy  bool
	)
	next := func() {
		if busy || len(queue) == 0 {
			return
		}
		busy = true
		p := queue[0]
		queue = queue[1:]
		prompts <- p
	}

loop:
	for {
		if lines == nil && !busy && len(queue) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			break loop

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/quit" || line == "/exit":
				break loop
			case line == "/help":
				_, _ = fmt.Fprintln(a.stdout, "Commands: /tools, /help, /quit")
			case line == "/tools":
				for _, d := range assistant.Tools() {
					_, _ = fmt.Fprintf(a.stdout, "  %-20s %s\n", d.Name, d.Description)
				}
			case strings.HasPrefix(line, "/"):
				_, _ = fmt.Fprintf(a.stdout, "unknown command %s\n", line)
			default:
				queue = append(queue, line)
				next()
			}

		case r := <-replies:
			busy = false
			if r.err != nil {
				_, _ = fmt.Fprintf(a.stderr, "error: %v\n", r.err)
			} else {
				_, _ = io.WriteString(a.stdout, render(renderer, r.answer))
			}
			next()
		}
	}

	cancel()
	close(prompts)
	for range replies {
	}
	_, _ = fmt.Fprintln(a.stdout, "bye")
	return nil
}

// readLines scans r on its own goroutine. The channel closes at EOF or
// when ctx ends.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
