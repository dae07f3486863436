package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"bugtriage/pkg/logx"
)

const replPrompt = "triage> "

// lineReader yields one input line at a time and is where REPL output goes.
type lineReader interface {
	io.Writer
	ReadLine() (string, error)
}

// scanReader reads lines from a pipe or file.
type scanReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func (s *scanReader) ReadLine() (string, error) {
	fmt.Fprint(s.out, replPrompt)
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scanReader) Write(p []byte) (int, error) {
	return s.out.Write(p) //nolint:wrapcheck // passthrough
}

// newLineReader returns a line editor with history when stdin is a terminal and a plain
// scanner otherwise. restore undoes any terminal mode change.
func newLineReader(env *cliEnv) (lineReader, func(), error) {
	f, ok := env.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return &scanReader{scanner: bufio.NewScanner(env.stdin), out: env.stdout}, func() {}, nil
	}

	fd := int(f.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set terminal to raw mode: %w", err)
	}
	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{f, env.stdout}, replPrompt)
	if w, h, err := term.GetSize(fd); err == nil {
		_ = t.SetSize(w, h)
	}
	prevLog := logx.SetOutput(t)
	restore := func() {
		logx.SetOutput(prevLog)
		_ = term.Restore(fd, oldState)
	}
	return t, restore, nil
}

// repl triages each line until EOF, "exit" or cancellation.
func repl(ctx context.Context, a *app, lines lineReader) error {
	fmt.Fprintln(lines, "Describe a bug per line. Type exit or press Ctrl-D to quit.")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := lines.ReadLine()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(lines)
			return nil
		}
		if err != nil {
			return err //nolint:wrapcheck // already wrapped or from the terminal
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		trace, err := a.orch.RunWithTrace(ctx, line)
		if trace != nil {
			printTrace(lines, trace)
			printUsageLine(lines, a.usage, trace.RunID)
		}
		if err != nil {
			fmt.Fprintf(lines, "❌ %v\n", err)
		}
		fmt.Fprintln(lines)
	}
}
