// Package terminal is the line-oriented chat front end.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"cabot/internal/session"
)

const (
	banner  = "CA Bot is ready! Type 'exit' to quit, 'clear' to forget the conversation.\n"
	goodbye = "Exiting chat..."
	hint    = "Please check your OpenAI API key and Qdrant connection and try again."
)

// REPL reads one question per line and prints the answer.
type REPL struct {
	asker   session.Asker
	session *session.Session
	in      *bufio.Scanner
	out     io.Writer
}

func NewREPL(asker session.Asker, sess *session.Session, in io.Reader, out io.Writer) *REPL {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &REPL{asker: asker, session: sess, in: sc, out: out}
}

// Run loops until exit/quit, end of input or ctx cancellation.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, banner)
	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, goodbye)
			return r.in.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(r.in.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(r.out, goodbye)
			return nil
		case "clear":
			r.session.Clear()
			fmt.Fprintln(r.out, "Conversation cleared.")
			continue
		}

		turn := r.session.Ask(ctx, r.asker, line)
		if turn.Failed() {
			fmt.Fprintln(r.out, turn.Reply)
			fmt.Fprintln(r.out, hint)
			fmt.Fprintln(r.out)
			continue
		}
		fmt.Fprintf(r.out, "\nCA Bot: %s\n\n", turn.Reply)
	}
}
