package transaction

import "strings"

// Direction describes how a record relates to the wallet being filtered.
type Direction string

const (
	DirectionIncoming  Direction = "in"
	DirectionOutgoing  Direction = "out"
	DirectionSelf      Direction = "self"
	DirectionUnrelated Direction = "unrelated"
)

// ResolveDirection reports whether a movement from one address to another is
// incoming or outgoing for the given wallet. Addresses are compared case-insensitively.
func ResolveDirection(wallet string, from string, to string) Direction {
	isFrom := strings.EqualFold(from, wallet)
	isTo := strings.EqualFold(to, wallet)

	switch {
	case isFrom && isTo:
		return DirectionSelf
	case isFrom:
		return DirectionOutgoing
	case isTo:
		return DirectionIncoming
	default:
		return DirectionUnrelated
	}
}
