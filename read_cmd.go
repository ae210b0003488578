package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/narrator/internal/state"
	"github.com/dgnsrekt/narrator/internal/tui"
)

var (
	watchFile bool
	chapter   int
	noResume  bool

	readCmd = &cobra.Command{
		Use:   "read FILE",
		Short: "Narrate a text file in the terminal reader",
		Long: paragraph(fmt.Sprintf("\n%s with the current sentence highlighted. Space pauses and resumes, p plays, s stops and q quits. The position is saved and picked up next time.",
			keyword("Narrate a text file"))),
		Example: paragraph("narrator read notes.txt\nnarrator read --watch draft.txt\nnarrator read --chapter 3 chapter-03.txt"),
		Args:    cobra.ExactArgs(1),
		RunE:    runRead,
	}
)

func init() {
	readCmd.Flags().BoolVarP(&watchFile, "watch", "w", false, "reload when the file changes")
	readCmd.Flags().IntVar(&chapter, "chapter", 0, "chapter index stored with the saved position")
	readCmd.Flags().BoolVar(&noResume, "no-resume", false, "start from the beginning")
}

func runRead(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("unable to get absolute path: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to open file: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return fmt.Errorf("%s is empty", args[0])
	}

	store := state.NewStore(cfg.State.Path)
	store.Logger = log.Default()
	saved := store.Load()
	resume := saved.Offset()
	if noResume || !saved.Matches(path, chapter) {
		resume = 0
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	if !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec
		return readHeadless(ctx, rt, store, path, text, resume)
	}

	m := tui.New(rt.engine, store, tui.Config{
		Path:      path,
		Chapter:   chapter,
		Text:      text,
		Resume:    resume,
		AutoPlay:  true,
		Watch:     watchFile,
		MsPerChar: cfg.Reader.MsPerChar,
		Speed:     cfg.Synth.Speed,
		Refresh:   cfg.Reader.Refresh,
	}, log.Default())
	return tui.Run(ctx, m)
}

// readHeadless plays the file to the end without a terminal, saving the
// position when interrupted.
func readHeadless(ctx context.Context, rt *runtime, store *state.Store, path, text string, resume time.Duration) error {
	if err := rt.engine.Load(text); err != nil {
		return err
	}
	if err := rt.engine.SetOffset(resume); err != nil {
		return err
	}
	log.Info("Reading headless", "path", path, "offset", resume)

	offset, err := playToEnd(ctx, rt.engine)
	if err != nil {
		return err
	}
	return store.Save(state.State{
		BookPath:     path,
		ChapterIndex: chapter,
		OffsetMs:     offset.Milliseconds(),
	})
}
