package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrPromptCancelled is returned when input ends before an answer is given.
var ErrPromptCancelled = errors.New("prompt cancelled")

// PromptResult contains the result of a yes/no prompt.
type PromptResult struct {
	// Accepted is true if the user typed "y" or "yes".
	Accepted bool
	// Cancelled is true if reading input failed.
	Cancelled bool
}

// lineReader wraps r so consecutive prompts share one buffer. Terminals are
// returned unchanged so PromptSecret can disable echo.
func lineReader(r io.Reader) io.Reader {
	switch v := r.(type) {
	case *bufio.Reader:
		return v
	case *os.File:
		if isTerminal(v) {
			return v
		}
	}
	return bufio.NewReader(r)
}

// readLine reads one line without consuming input past it.
func readLine(r io.Reader) (string, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	line, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question. It defaults to "No" when the user presses
// Enter without input or input ends.
func Confirm(writer io.Writer, reader io.Reader, question string) PromptResult {
	fmt.Fprintf(writer, "? %s [y/N] ", question)

	input, err := readLine(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return PromptResult{Accepted: false}
		}
		return PromptResult{Cancelled: true}
	}

	switch strings.ToLower(input) {
	case "y", "yes":
		return PromptResult{Accepted: true}
	default:
		return PromptResult{Accepted: false}
	}
}

// PromptSecret asks for a secret. When reader is a terminal the input is not
// echoed; otherwise one line is read, which lets keys be piped in.
func PromptSecret(writer io.Writer, reader io.Reader, label string) (string, error) {
	fmt.Fprintf(writer, "%s: ", label)

	if f, ok := reader.(*os.File); ok && isTerminal(f) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(writer)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	secret, err := readLine(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrPromptCancelled
		}
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return secret, nil
}
