package decode

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// RBDID is the decoded rbd_id.<name> object: it holds nothing but the
// internal block-name prefix used to locate the image's rbd_data.<id>
// sibling directory.
type RBDID struct {
	InternalID string
}

// DecodeRBDID decodes an rbd_id object's concatenated body: a single u32
// length-prefixed string.
func DecodeRBDID(c cursor.Cursor) (*RBDID, error) {
	id, err := cursor.String(c)
	if err != nil {
		return nil, errors.Wrap(err, "rbd_id")
	}
	return &RBDID{InternalID: id}, nil
}

func (r *RBDID) Report() string {
	return fmt.Sprintf("rbd_id internal_id=%s\n", r.InternalID)
}

// DataDirName returns the sibling directory name this rbd_id object's
// data objects are stored under.
func (r *RBDID) DataDirName() string {
	return "rbd_data." + r.InternalID
}
