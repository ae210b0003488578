package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrator/internal/playback"
)

var (
	fromClipboard bool
	sayOffset     time.Duration

	sayCmd = &cobra.Command{
		Use:   "say [TEXT]",
		Short: "Speak text once and exit",
		Long: paragraph(fmt.Sprintf("\n%s from the arguments, standard input or the clipboard, then exit when it is done.",
			keyword("Speak text"))),
		Example: paragraph("narrator say \"Hello there\"\necho hello | narrator say\nnarrator say --clipboard --offset 1500ms"),
		RunE:    runSay,
	}
)

func init() {
	sayCmd.Flags().BoolVarP(&fromClipboard, "clipboard", "c", false, "speak the clipboard contents")
	sayCmd.Flags().DurationVar(&sayOffset, "offset", 0, "start this far into the text")
}

func runSay(cmd *cobra.Command, args []string) error {
	text, err := sayText(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	if err := rt.engine.Load(text); err != nil {
		return err
	}
	if err := rt.engine.SetOffset(sayOffset); err != nil {
		return err
	}
	_, err = playToEnd(ctx, rt.engine)
	return err
}

// sayText picks the text from the clipboard, the arguments or stdin.
func sayText(args []string) (string, error) {
	var text string
	switch {
	case fromClipboard:
		s, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("unable to read clipboard: %w", err)
		}
		text = s
	case len(args) > 0:
		text = strings.Join(args, " ")
	default:
		if yes, err := stdinIsPipe(); err != nil {
			return "", err
		} else if !yes {
			return "", errors.New("nothing to say: pass TEXT, pipe it in or use --clipboard")
		}
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		text = string(b)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("nothing to say: text is empty")
	}
	return text, nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// playToEnd plays the loaded request and blocks until it completes, fails
// or ctx ends. On cancellation it returns the offset reached before
// stopping.
func playToEnd(ctx context.Context, e *playback.Engine) (time.Duration, error) {
	events, unsubscribe := e.Subscribe(16)
	defer unsubscribe()

	if err := e.Play(); err != nil {
		return 0, err
	}

	for {
		select {
		case <-ctx.Done():
			offset := e.Offset()
			e.Stop()
			log.Info("Interrupted", "offset", offset)
			return offset, nil
		case ev, ok := <-events:
			if !ok {
				return 0, nil
			}
			switch ev.Kind {
			case playback.EventCompleted:
				return 0, nil
			case playback.EventError:
				return 0, ev.Err
			}
		}
	}
}
