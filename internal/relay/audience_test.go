package relay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omochice/proximity-relay/internal/geo"
	"github.com/omochice/proximity-relay/internal/relay"
)

// about 0.009 degrees of latitude per kilometre
const degreesPerKm = 1.0 / 111.195

func at(km float64) geo.Position {
	return geo.Position{Latitude: km * degreesPerKm}
}

func TestReevaluate_Proximity(t *testing.T) {
	tests := []struct {
		name      string
		frequency uint8
		distance  float64
		want      bool
	}{
		{name: "same frequency nearby", frequency: 1, distance: 5, want: true},
		{name: "same frequency far away", frequency: 1, distance: 15, want: false},
		{name: "different frequency nearby", frequency: 2, distance: 5, want: false},
		{name: "same position", frequency: 1, distance: 0, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			self := newConnection(1)
			self.SetFrequency(1)

			peer := newConnection(2)
			peer.SetFrequency(tt.frequency)
			peer.SetPosition(at(tt.distance))

			got := self.Reevaluate([]*relay.Connection{self, peer})
			if tt.want {
				assert.Equal(t, []uint64{2}, got)
			} else {
				assert.Empty(t, got)
			}
			assert.Equal(t, got, self.Audience())
		})
	}
}

func TestReevaluate_Room(t *testing.T) {
	self := newConnection(1)
	self.SetRoom(9)
	self.SetFrequency(1)

	sameRoomFar := newConnection(2)
	sameRoomFar.SetRoom(9)
	sameRoomFar.SetFrequency(3)
	sameRoomFar.SetPosition(geo.Position{Latitude: 48.85, Longitude: 2.35})

	otherRoom := newConnection(3)
	otherRoom.SetRoom(4)

	// Near and on the same frequency, but not in a room.
	nearby := newConnection(4)
	nearby.SetFrequency(1)

	got := self.Reevaluate([]*relay.Connection{self, sameRoomFar, otherRoom, nearby})
	assert.Equal(t, []uint64{2}, got)
}

func TestReevaluate_PeerRoomIgnoredOutsideRooms(t *testing.T) {
	self := newConnection(1)

	inRoom := newConnection(2)
	inRoom.SetRoom(1)

	got := self.Reevaluate([]*relay.Connection{self, inRoom})
	assert.Equal(t, []uint64{2}, got, "peer in a room is still reachable by frequency and distance")
}

func TestReevaluate_ReplacesAudience(t *testing.T) {
	self := newConnection(1)
	peer := newConnection(2)

	assert.Equal(t, []uint64{2}, self.Reevaluate([]*relay.Connection{self, peer}))

	peer.SetFrequency(8)
	assert.Empty(t, self.Reevaluate([]*relay.Connection{self, peer}))
	assert.Empty(t, self.Audience())
}

func TestReevaluate_ExcludesSelf(t *testing.T) {
	self := newConnection(1)
	assert.Empty(t, self.Reevaluate([]*relay.Connection{self}))
}
