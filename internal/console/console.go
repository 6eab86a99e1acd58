// Package console runs an interactive generation session on a terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"sdsdg/internal/assistant"
	"sdsdg/internal/generator"
)

// DataGenerator is the part of the assistant a console session drives.
type DataGenerator interface {
	GenerateData(ctx context.Context, sess *assistant.Session, conn, text string, counts map[string]int, opts ...assistant.DataOption) (*generator.Result, error)
}

// Prompt is a question with an optional set of accepted answers.
type Prompt struct {
	Question string
	Options  []string
}

// Console reads answers from in and writes to out.
type Console struct {
	reader *bufio.Reader
	out    io.Writer
}

// New creates a console over in and out.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{reader: bufio.NewReader(in), out: out}
}

// Ask prints the question and returns the trimmed answer. Answers are
// lowercased and checked when the prompt has options. io.EOF ends input.
func (c *Console) Ask(p Prompt) (string, error) {
	fmt.Fprint(c.out, p.Question)
	line, err := c.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	answer := strings.TrimSpace(line)
	if len(p.Options) == 0 {
		return answer, nil
	}
	answer = strings.ToLower(answer)
	if !slices.Contains(p.Options, answer) {
		return "", fmt.Errorf("invalid option: %s", answer)
	}
	return answer, nil
}

// Confirm asks a yes/no question, repeating it until the answer is valid.
func (c *Console) Confirm(question string) (bool, error) {
	for {
		answer, err := c.Ask(Prompt{Question: question + " (y/n): ", Options: []string{"y", "n", "yes", "no"}})
		if err == nil {
			return answer == "y" || answer == "yes", nil
		}
		if errors.Is(err, io.EOF) {
			return false, err
		}
		fmt.Fprintln(c.out, err)
	}
}

// Handler receives every result the user chose to keep.
type Handler func(*generator.Result, error) error

// Chat reads one request per line and generates data for conn in sess until
// input ends, the user types :quit or ctx is done. Lines starting with a colon
// are commands: :history lists earlier runs, :show KEY prints one run.
func (c *Console) Chat(ctx context.Context, gen DataGenerator, sess *assistant.Session, conn string, keep Handler) error {
	fmt.Fprintf(c.out, "Session %s on %s. Type a request, :history, :show genN or :quit.\n", sess.ID, conn)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := c.Ask(Prompt{Question: "> "})
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case line == "":
			continue
		case line == ":quit" || line == ":q":
			return nil
		case line == ":history":
			c.printHistory(sess)
			continue
		case strings.HasPrefix(line, ":show"):
			c.printEntry(sess, strings.TrimSpace(strings.TrimPrefix(line, ":show")))
			continue
		case strings.HasPrefix(line, ":"):
			fmt.Fprintf(c.out, "unknown command %s\n", line)
			continue
		}

		res, genErr := gen.GenerateData(ctx, sess, conn, line, nil)
		if res == nil {
			fmt.Fprintf(c.out, "error: %v\n", genErr)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		c.printResult(res)
		if genErr != nil {
			fmt.Fprintf(c.out, "warning: %v\n", genErr)
		}

		ok, err := c.Confirm("Save these records?")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ok && keep != nil {
			if err := keep(res, genErr); err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

func (c *Console) printResult(res *generator.Result) {
	for _, name := range res.Order {
		tr := res.Tables[name]
		fmt.Fprintf(c.out, "  %-28s %-9s %d/%d\n", name, tr.Status, len(tr.Records), tr.Requested)
	}
}

func (c *Console) printHistory(sess *assistant.Session) {
	history := sess.History()
	if len(history) == 0 {
		fmt.Fprintln(c.out, "no runs yet")
		return
	}
	for _, e := range history {
		fmt.Fprintf(c.out, "%s  %s  %s\n", e.Key, e.At.Format("15:04:05"), e.Prompt)
	}
}

func (c *Console) printEntry(sess *assistant.Session, key string) {
	e, ok := sess.Entry(key)
	if !ok {
		fmt.Fprintf(c.out, "no run %q\n", key)
		return
	}
	fmt.Fprintf(c.out, "%s: %s\n", e.Key, e.Prompt)
	c.printResult(e.Result)
}
