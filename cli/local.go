package cli

import (
	"bufio"
	"io"

	"github.com/pkg/errors"

	"hulld/config"
	"hulld/out"
	"hulld/session"
)

// RunLocal feeds lines from r through a single coordinator over a fresh
// store, one response per non-empty line, until end of input. It is the
// non-networked mode: same grammar, no busy rejections possible.
func RunLocal(r io.Reader, w io.Writer, cfg config.Config, logger *out.Logger) error {
	coord := session.New("local", newStore(cfg, logger), session.ParsePolicy(cfg.Policy), logger.Errorf)
	defer coord.Close()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out.ReplyNL(w, coord.HandleLine(scanner.Text()))
	}
	return errors.Wrap(scanner.Err(), "read input")
}
