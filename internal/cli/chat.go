package cli

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/atlas-agent/atlas/internal/engine"
	"github.com/atlas-agent/atlas/internal/session"
)

const chatHelp = `Commands:
  /image <path> [text]  send an image with optional text
  /quit                 leave the chat`

func (a *app) chatCmd() *cobra.Command {
	var stream bool
	var maxIterations int
	var images []string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the agent",
		Long:  "With a message, runs a single turn and exits. Without one, starts an interactive session.\n\n" + chatHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			c := &chatter{
				session:       s,
				out:           cmd.OutOrStdout(),
				stream:        stream || a.jsonOutput(),
				json:          a.jsonOutput(),
				maxIterations: maxIterations,
				renderer:      newRenderer(100),
				printJSON:     func(v any) error { return a.printJSON(cmd, v) },
			}

			if len(args) > 0 || len(images) > 0 {
				in := engine.Input{Text: strings.Join(args, " ")}
				for _, path := range images {
					url, err := imageDataURL(path)
					if err != nil {
						return err
					}
					in.Images = append(in.Images, url)
				}
				return c.turn(cmd.Context(), in)
			}
			return c.repl(cmd.Context(), cmd.InOrStdin())
		},
	}

	cmd.Flags().BoolVar(&stream, "stream", false, "Print text as it arrives instead of rendering the final reply")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Model round budget for each turn (default: agent.max_turns)")
	cmd.Flags().StringSliceVar(&images, "image", nil, "Image file to attach (repeatable)")
	return cmd
}

type chatter struct {
	session       *session.Session
	out           io.Writer
	stream        bool
	json          bool
	maxIterations int
	renderer      *glamour.TermRenderer
	printJSON     func(any) error
}

func (c *chatter) repl(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(c.out, summaryStyle.Render("Type /quit to leave, Ctrl-C stops a reply."))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(c.out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		input, quit, err := c.parseLine(line)
		if quit {
			return nil
		}
		if err != nil {
			fmt.Fprintln(c.out, errorStyle.Render(err.Error()))
			continue
		}
		if input == nil {
			continue
		}

		if err := c.turn(ctx, *input); err != nil {
			if errors.Is(err, session.ErrClosed) || ctx.Err() != nil {
				return err
			}
			fmt.Fprintln(c.out, errorStyle.Render("error: "+err.Error()))
		}
	}
}

// parseLine turns one REPL line into a turn input. A nil input with a nil
// error means the line was handled locally.
func (c *chatter) parseLine(line string) (*engine.Input, bool, error) {
	if !strings.HasPrefix(line, "/") {
		return &engine.Input{Text: line}, false, nil
	}

	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return nil, true, nil
	case "/help":
		fmt.Fprintln(c.out, chatHelp)
		return nil, false, nil
	case "/image":
		path, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
		if path == "" {
			return nil, false, errors.New("usage: /image <path> [text]")
		}
		url, err := imageDataURL(path)
		if err != nil {
			return nil, false, err
		}
		return &engine.Input{Text: strings.TrimSpace(text), Images: []string{url}}, false, nil
	default:
		return nil, false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
}

// turn runs one turn. Ctrl-C while it runs stops the turn instead of the
// process.
func (c *chatter) turn(ctx context.Context, in engine.Input) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if in.MaxIterations == 0 {
		in.MaxIterations = c.maxIterations
	}

	var partial strings.Builder
	outcome, err := c.session.Run(ctx, in, engine.ObserverFunc(func(ev engine.Event) {
		c.onEvent(ev, &partial)
	}))
	if err != nil {
		if !c.stream && partial.Len() > 0 {
			fmt.Fprintln(c.out, partial.String())
		}
		return err
	}

	if c.json {
		return nil
	}
	if !c.stream && outcome.Text != "" {
		fmt.Fprint(c.out, renderMarkdown(c.renderer, outcome.Text))
	}
	if c.stream {
		fmt.Fprintln(c.out)
	}
	if outcome.Reason != engine.ReasonCompleted {
		fmt.Fprintln(c.out, warnStyle.Render(fmt.Sprintf("[%s after %d model rounds]", outcome.Reason, outcome.Iterations)))
	}
	return nil
}

func (c *chatter) onEvent(ev engine.Event, partial *strings.Builder) {
	if c.json {
		if ev.Type != engine.EventState {
			_ = c.printJSON(ev)
		}
		return
	}

	switch ev.Type {
	case engine.EventTextDelta:
		if c.stream {
			fmt.Fprint(c.out, ev.Text)
		} else {
			partial.WriteString(ev.Text)
		}
	case engine.EventToolCall:
		fmt.Fprintln(c.out, toolStyle.Render("→ "+ev.ToolCall.Name))
	case engine.EventToolResult:
		mark := "✓"
		if ev.Failed {
			mark = "✗"
		}
		fmt.Fprintln(c.out, toolStyle.Render(mark+" "+ev.ToolCall.Name))
	case engine.EventRetry:
		fmt.Fprintln(c.out, warnStyle.Render("stream interrupted, retrying"))
	}
}

func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}

	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%s is not a recognised image type", path)
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
