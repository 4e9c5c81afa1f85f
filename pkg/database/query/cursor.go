package query

import (
	"encoding/binary"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const cursorSize = 8

// Cursor is an opaque position within a paged result set. Cursors encode the
// record id of the last item returned.
type Cursor []byte

var (
	EmptyCursor Cursor = Cursor([]byte{})
)

func ToCursor(val uint64) Cursor {
	b := make([]byte, cursorSize)
	binary.BigEndian.PutUint64(b, val)
	return b
}

// CursorFromBase58 parses a cursor previously produced by ToBase58
func CursorFromBase58(val string) (Cursor, error) {
	decoded, err := base58.Decode(val)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base58 cursor")
	}
	if len(decoded) != cursorSize {
		return nil, errors.Errorf("invalid cursor length: %d", len(decoded))
	}
	return decoded, nil
}

func (c Cursor) ToUint64() uint64 {
	return binary.BigEndian.Uint64(c)
}

func (c Cursor) ToBase58() string {
	return base58.Encode(c)
}
