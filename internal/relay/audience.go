package relay

import (
	"github.com/omochice/proximity-relay/internal/geo"
)

// TalkRadiusKm is how far a transmission carries outside of rooms.
const TalkRadiusKm = 10.0

// Reevaluate recomputes which peers can hear c and replaces the cached
// audience with the result.
//
// In a room, the audience is every peer in the same room. Otherwise it is
// every peer on the same frequency within TalkRadiusKm. c itself is never
// included. The scan is linear in len(peers).
func (c *Connection) Reevaluate(peers []*Connection) []uint64 {
	var audience []uint64

	if room, ok := c.Room(); ok {
		for _, peer := range peers {
			if peer.ID == c.ID {
				continue
			}
			if other, ok := peer.Room(); ok && other == room {
				audience = append(audience, peer.ID)
			}
		}
	} else {
		frequency := c.Frequency()
		position := c.Position()

		for _, peer := range peers {
			if peer.ID == c.ID {
				continue
			}
			if peer.Frequency() != frequency {
				continue
			}
			if geo.Within(position, peer.Position(), TalkRadiusKm) {
				audience = append(audience, peer.ID)
			}
		}
	}

	c.audience.Store(audience)
	return audience
}
