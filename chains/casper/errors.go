package casper

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/knotx-labs/knotx-relayer/core"
)

func errShortList(n int) error {
	return core.Mark(errors.Newf("list is %d bytes, shorter than its length prefix", n), core.ErrMalformedWireRecord)
}

func errListLength(declared uint32, actual int) error {
	return core.Mark(
		errors.Newf("list declares %d bytes, %d follow", declared, actual),
		core.ErrMalformedWireRecord,
	)
}

// RPCError is an error object returned by a Casper node.
type RPCError struct {
	Code    int64
	Message string
	Data    string
}

func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
