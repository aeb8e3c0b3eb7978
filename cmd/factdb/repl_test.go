package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-reactive/datalog"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	opts := &rootOptions{Format: "text"}
	a, err := opts.open(io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	var out bytes.Buffer
	sh, err := newShell(a, &out)
	require.NoError(t, err)
	return sh, &out
}

func TestShellSubscribePrintsUpdates(t *testing.T) {
	ctx := context.Background()
	sh, out := newTestShell(t)

	require.NoError(t, sh.exec(ctx, `set t1 type todo`))
	require.NoError(t, sh.exec(ctx, `subscribe {"statements": [["?id","type","todo"]]}`))
	assert.Contains(t, out.String(), `+ ["t1" "type" "todo"]`)

	out.Reset()
	require.NoError(t, sh.exec(ctx, `set t2 type todo`))
	assert.Contains(t, out.String(), `+ ["t2" "type" "todo"]`)

	out.Reset()
	require.NoError(t, sh.exec(ctx, `unset t1 type todo`))
	assert.Contains(t, out.String(), `- ["t1" "type" "todo"]`)

	out.Reset()
	require.NoError(t, sh.exec(ctx, `unsubscribe {"statements": [["?id","type","todo"]]}`))
	require.NoError(t, sh.exec(ctx, `set t3 type todo`))
	assert.Empty(t, out.String())
}

func TestShellQuery(t *testing.T) {
	ctx := context.Background()
	sh, out := newTestShell(t)

	require.NoError(t, sh.exec(ctx, `set ["t1", "title", "Walk the dog"]`))
	require.NoError(t, sh.exec(ctx, `set t1 order 2`))
	out.Reset()

	require.NoError(t, sh.exec(ctx, `query {"statements": [["?id","title","?t"],["?id","order","?o"]]}`))
	assert.Contains(t, out.String(), "Walk the dog")
	assert.Contains(t, out.String(), "| t1 ")
}

func TestShellCommands(t *testing.T) {
	ctx := context.Background()
	sh, out := newTestShell(t)

	require.NoError(t, sh.exec(ctx, "help"))
	assert.Contains(t, out.String(), "subscribe <json>")

	require.NoError(t, sh.exec(ctx, "   "))
	assert.ErrorIs(t, sh.exec(ctx, "exit"), io.EOF)
	assert.Error(t, sh.exec(ctx, "drop table"))
	assert.Error(t, sh.exec(ctx, "set only two"))
	assert.Error(t, sh.exec(ctx, `query {"statements": `))
}

func TestParseFact(t *testing.T) {
	tests := []struct {
		input string
		want  datalog.Fact
	}{
		{`t1 done true`, datalog.MustFact("t1", "done", true)},
		{`t1 order 2.5`, datalog.MustFact("t1", "order", 2.5)},
		{`t1 title "two words"`, datalog.MustFact("t1", "title", "two words")},
		{`t1 title "say \"hi\""`, datalog.MustFact("t1", "title", `say "hi"`)},
		{`t1 code "42"`, datalog.MustFact("t1", "code", "42")},
		{`["t1", "tags", false]`, datalog.MustFact("t1", "tags", false)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseFact(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseFact(`t1 title "open`)
	assert.Error(t, err)
}
