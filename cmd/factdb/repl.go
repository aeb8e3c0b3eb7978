package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/protocol"
	"github.com/wbrown/janus-reactive/datalog/query"
)

// replPeer is the subscriber id the shell uses.
const replPeer = "repl"

var completer = readline.NewPrefixCompleter(
	readline.PcItem("set"),
	readline.PcItem("unset"),
	readline.PcItem("query"),
	readline.PcItem("subscribe"),
	readline.PcItem("unsubscribe"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

const replHelp = `Commands:
  set <e> <a> <v>          add a fact (or: set ["e","a","v"])
  unset <e> <a> <v>        remove a fact
  query <json>             evaluate a query
  subscribe <json>         print updates to a query as facts change
  unsubscribe <json>       stop updates to a query
  help                     show this help
  exit                     leave the shell

Values are parsed as JSON when possible (42, true, "two words"), otherwise
taken as bare strings.`

func newREPLCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "factdb> ",
				HistoryFile:     ".factdb_history",
				AutoComplete:    completer,
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",

				HistorySearchFold: true,
			})
			if err != nil {
				return err
			}
			defer rl.Close()

			sh, err := newShell(a, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return sh.loop(cmd.Context(), rl)
		},
	}
}

// shell executes REPL lines. It is connected to the hub as a peer, so
// subscription updates arrive the same way they would for a remote client.
type shell struct {
	app *app
	out io.Writer
	mu  sync.Mutex // guards out between the shell and hub deliveries
}

func newShell(a *app, out io.Writer) (*shell, error) {
	sh := &shell{app: a, out: out}
	if err := a.hub.Connect(sh); err != nil {
		return nil, err
	}
	return sh, nil
}

func (sh *shell) ID() string { return replPeer }

// Send prints an update delivered by the hub.
func (sh *shell) Send(data []byte) error {
	m, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	msgs := []protocol.Message{m}
	if b, ok := m.(protocol.BatchMessage); ok {
		msgs = b.Messages
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	for _, m := range msgs {
		tm, ok := m.(protocol.TransactionMessage)
		if !ok {
			continue
		}
		for _, f := range tm.Transaction.Sets {
			fmt.Fprintln(sh.out, color.GreenString("+"), f)
		}
		for _, f := range tm.Transaction.Unsets {
			fmt.Fprintln(sh.out, color.RedString("-"), f)
		}
	}
	return nil
}

func (sh *shell) printf(format string, args ...interface{}) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fmt.Fprintf(sh.out, format, args...)
}

func (sh *shell) loop(ctx context.Context, rl *readline.Instance) error {
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return sh.app.hub.Disconnect(ctx, replPeer)
		}
		if err != nil {
			return err
		}

		if err := sh.exec(ctx, line); err != nil {
			if errors.Is(err, io.EOF) {
				return sh.app.hub.Disconnect(ctx, replPeer)
			}
			sh.printf("%s %v\n", color.RedString("error:"), err)
		}
	}
}

// exec runs one line. exit returns io.EOF.
func (sh *shell) exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, rest := line, ""
	if ws := strings.IndexAny(line, " \t"); ws > 0 {
		cmd, rest = line[:ws], strings.TrimSpace(line[ws:])
	}

	switch cmd {
	case "set", "unset":
		f, err := parseFact(rest)
		if err != nil {
			return err
		}
		tx := datalog.Transaction{Sets: []datalog.Fact{f}}
		if cmd == "unset" {
			tx = datalog.Transaction{Unsets: []datalog.Fact{f}}
		}
		if err := sh.app.hub.Handle(ctx, replPeer, protocol.TransactionMessage{Transaction: tx}); err != nil {
			return err
		}
		return sh.flush(ctx)

	case "query":
		q, err := query.ParseQuery([]byte(rest))
		if err != nil {
			return err
		}
		start := time.Now()
		res, err := sh.app.engine.Query(ctx, q)
		if err != nil {
			return err
		}
		sh.mu.Lock()
		defer sh.mu.Unlock()
		return writeResult(sh.out, "text", q, res, time.Since(start))

	case "subscribe", "unsubscribe":
		q, err := query.ParseQuery([]byte(rest))
		if err != nil {
			return err
		}
		var m protocol.Message = protocol.SubscribeMessage{Query: q}
		if cmd == "unsubscribe" {
			m = protocol.UnsubscribeMessage{Query: q}
		}
		if err := sh.app.hub.Handle(ctx, replPeer, m); err != nil {
			return err
		}
		return sh.flush(ctx)

	case "help":
		sh.printf("%s\n", replHelp)
		return nil

	case "exit", "quit":
		return io.EOF

	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func (sh *shell) flush(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sh.app.hub.Flush(ctx)
}

// parseFact reads either a JSON array or three whitespace separated values.
func parseFact(s string) (datalog.Fact, error) {
	if strings.HasPrefix(s, "[") {
		var f datalog.Fact
		if err := json.Unmarshal([]byte(s), &f); err != nil {
			return datalog.Fact{}, err
		}
		return f, nil
	}

	parts, err := splitArgs(s)
	if err != nil {
		return datalog.Fact{}, err
	}
	if len(parts) != 3 {
		return datalog.Fact{}, fmt.Errorf("expected <entity> <attribute> <value>, got %d values", len(parts))
	}
	return datalog.NewFact(parseValue(parts[0]), parseValue(parts[1]), parseValue(parts[2]))
}

// splitArgs splits on whitespace, keeping double-quoted runs together
// (quotes included).
func splitArgs(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case !quoted && (r == ' ' || r == '\t'):
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote")
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args, nil
}

func parseValue(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		switch v.(type) {
		case string, float64, bool:
			return v
		}
	}
	return s
}
