package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Criteria selects which of a wallet's records a filter returns.
type Criteria struct {
	Address string
	// Start and End bound the window inclusively; a zero value leaves that side open.
	Start time.Time
	End   time.Time

	IncludeInternal bool
	IncludeERC20    bool
	IncludeERC721   bool
	IncludeERC1155  bool

	// at most one of these may be set
	IncomingOnly bool
	OutgoingOnly bool

	Ignore *IgnoreList
}

// Validate reports whether the criteria can be used for filtering.
func (c Criteria) Validate() error {
	if !common.IsHexAddress(c.Address) {
		return fmt.Errorf("invalid wallet address: '%s'", c.Address)
	}

	if c.IncomingOnly && c.OutgoingOnly {
		return errors.New("incoming-only and outgoing-only are mutually exclusive")
	}

	if !c.Start.IsZero() && !c.End.IsZero() && c.Start.After(c.End) {
		return fmt.Errorf("start %s is after end %s", c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339))
	}

	return nil
}

func (c Criteria) inWindow(t time.Time) bool {
	if !c.Start.IsZero() && t.Before(c.Start) {
		return false
	}

	if !c.End.IsZero() && t.After(c.End) {
		return false
	}

	return true
}

// keeps reports whether a record passes the window, direction and ignore filters.
func (c Criteria) keeps(hash string, from string, to string, at time.Time) bool {
	if !c.inWindow(at) || c.Ignore.Contains(hash) {
		return false
	}

	direction := ResolveDirection(c.Address, from, to)
	switch {
	case c.IncomingOnly:
		return direction == DirectionIncoming || direction == DirectionSelf
	case c.OutgoingOnly:
		return direction == DirectionOutgoing || direction == DirectionSelf
	default:
		return true
	}
}
