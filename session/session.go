// Package session holds the per-connection state machine that classifies
// each incoming line: a point contribution to an upload this connection
// owns, a busy rejection while another connection uploads, or a command
// dispatched to the shared graph store.
package session

import (
	"strconv"
	"strings"

	"hulld/command"
	"hulld/graph"
)

// Policy decides what non-owner connections may do while an upload is
// active. The policy is fixed per process, never varied per command.
type Policy int

const (
	// PolicyStrict rejects every command from non-owners with BUSY,
	// including the read-only CH query.
	PolicyStrict Policy = iota
	// PolicyShared lets non-owners keep mutating and querying individual
	// points; only Newgraph and raw point lines are rejected.
	PolicyShared
)

// ParsePolicy maps a configuration name onto a Policy. Anything that is
// not "shared" means strict.
func ParsePolicy(name string) Policy {
	if name == "shared" {
		return PolicyShared
	}
	return PolicyStrict
}

// protocol responses
const (
	respOK          = "OK"
	respLoaded      = "GRAPH_LOADED"
	respBusy        = "BUSY"
	respBadNumber   = "ERROR: Invalid number."
	respBadPointFmt = "ERROR: Invalid point format."
	respBadPointVal = "ERROR: Invalid point values."
	respBadFmt      = "ERROR: Invalid format."
	respBadVal      = "ERROR: Invalid values."
	respUnknown     = "ERROR: Unknown command."
	respInternal    = "ERROR: internal error."
)

// Coordinator drives the protocol for a single connection. It is not safe
// for concurrent use; each connection feeds it lines in arrival order.
type Coordinator struct {
	id     string
	store  *graph.Store
	policy Policy
	errorf func(format string, args ...interface{})
}

// New returns a coordinator for one connection. The id must be unique
// across live connections, it doubles as the upload ownership key. errorf
// receives internal (programming) errors and may be nil.
func New(id string, store *graph.Store, policy Policy, errorf func(format string, args ...interface{})) *Coordinator {
	if errorf == nil {
		errorf = func(string, ...interface{}) {}
	}
	return &Coordinator{id: id, store: store, policy: policy, errorf: errorf}
}

// ID returns the connection identity this coordinator speaks for.
func (c *Coordinator) ID() string {
	return c.id
}

// HandleLine processes one raw input line and returns the response,
// without a line terminator. The empty string means no response at all,
// which happens only for whitespace-only lines.
func (c *Coordinator) HandleLine(raw string) string {
	line := strings.TrimSpace(raw)
	if line == "" {
		return ""
	}

	owner, active := c.store.UploadOwner()
	if active && owner == c.id {
		// mid-upload the owner can only send points, never keywords
		return c.contribute(line)
	}
	if active && c.policy == PolicyStrict {
		return respBusy
	}
	return c.dispatch(line, active)
}

// Close releases any upload ownership held by this connection, leaving
// the point set at its prior value. Unconditional on teardown and safe to
// call more than once.
func (c *Coordinator) Close() {
	c.store.AbandonUpload(c.id)
}

func (c *Coordinator) contribute(line string) string {
	p, err := command.ParsePoint(line)
	switch err {
	case nil:
	case command.ErrPointFormat:
		return respBadPointFmt
	default:
		return respBadPointVal
	}

	done, err := c.store.ContributePoint(c.id, p)
	if err != nil {
		// unreachable while the ownership gate above holds; keep the
		// one-response-per-line contract anyway
		c.errorf("client %s: contribute: %v", c.id, err)
		return respInternal
	}
	if done {
		return respLoaded
	}
	return respOK
}

// dispatch runs a parsed command against the store. uploadActive is true
// only under PolicyShared, where some commands still get a busy rejection.
func (c *Coordinator) dispatch(line string, uploadActive bool) string {
	cmd := command.Parse(line)
	switch cmd.Kind {
	case command.Newgraph:
		if uploadActive {
			return respBusy
		}
		if cmd.Err != nil {
			return respBadNumber
		}
		switch err := c.store.BeginUpload(c.id, cmd.N); err {
		case nil:
			return respOK
		case graph.ErrBusy:
			// lost the race to another connection's Newgraph
			return respBusy
		default:
			c.errorf("client %s: begin upload: %v", c.id, err)
			return respInternal
		}

	case command.Newpoint:
		if resp := pointErrResponse(cmd.Err); resp != "" {
			return resp
		}
		c.store.AddPoint(cmd.P)
		return respOK

	case command.Removepoint:
		if resp := pointErrResponse(cmd.Err); resp != "" {
			return resp
		}
		// removing an absent point is still OK
		c.store.RemovePoint(cmd.P)
		return respOK

	case command.Hull:
		return strconv.FormatFloat(c.store.HullArea(), 'g', -1, 64)
	}

	if uploadActive {
		// under the shared policy a raw point line from a non-owner is a
		// blocked contribution, not an unknown command
		if _, err := command.ParsePoint(line); err == nil {
			return respBusy
		}
	}
	return respUnknown
}

func pointErrResponse(err error) string {
	switch err {
	case nil:
		return ""
	case command.ErrPointFormat:
		return respBadFmt
	default:
		return respBadVal
	}
}
