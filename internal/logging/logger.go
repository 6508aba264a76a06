// Package logging builds the slog loggers shared by the runtime, the CLI and the servers.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// New returns a text logger on stderr, so stdout stays free for command
// output and the MCP stdio transport.
func New(level slog.Level) *slog.Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter returns a text logger writing to w.
//
// Error attributes are logged under "err". Domain errors are expanded into a
// group carrying their kind, e.g. err.kind=WRITE_VIOLATION err.msg="...".
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	}))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	if a.Key != "err" || a.Value.Kind() != slog.KindAny {
		return a
	}
	err, ok := a.Value.Any().(error)
	if !ok || err == nil {
		return a
	}
	kind, _ := domain.ErrorDocument(err)["kind"].(string)
	if kind == domain.KindInternal {
		return slog.String(a.Key, err.Error())
	}
	return slog.Group(a.Key, slog.String("kind", kind), slog.String("msg", err.Error()))
}
