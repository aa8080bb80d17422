package game_test

import (
	"testing"

	"github.com/milenrab97/battleships/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateFleet 測試艦隊驗證
func TestValidateFleet(t *testing.T) {
	tests := []struct {
		name      string
		fleet     func() []game.ShipPlacement
		wantError string
	}{
		{
			name:  "legal horizontal fleet",
			fleet: standardFleet,
		},
		{
			name:  "legal vertical fleet",
			fleet: verticalFleet,
		},
		{
			name: "missing ship",
			fleet: func() []game.ShipPlacement {
				return standardFleet()[:4]
			},
			wantError: "must place exactly 5 ships",
		},
		{
			name: "too many ships",
			fleet: func() []game.ShipPlacement {
				f := standardFleet()
				return append(f, f[0])
			},
			wantError: "must place exactly 5 ships",
		},
		{
			name: "duplicate type replaces another",
			fleet: func() []game.ShipPlacement {
				f := standardFleet()
				f[4].ShipType = game.Cruiser
				return f
			},
			wantError: "duplicate ship: Cruiser",
		},
		{
			name: "unknown ship type",
			fleet: func() []game.ShipPlacement {
				f := standardFleet()
				f[0].ShipType = "rowboat"
				return f
			},
			wantError: "invalid ship type",
		},
		{
			name: "invalid orientation",
			fleet: func() []game.ShipPlacement {
				f := standardFleet()
				f[2].Orientation = "diagonal"
				return f
			},
			wantError: "invalid orientation for Battleship",
		},
		{
			name: "extends past right edge",
			fleet: func() []game.ShipPlacement {
				f := standardFleet()
				f[1].Start = game.Coordinate{Row: 2, Col: 6}
				return f
			},
			wantError: "Carrier extends outside the grid",
		},
		{
			name: "extends past bottom edge",
			fleet: func() []game.ShipPlacement {
				f := verticalFleet()
				f[0].Start = game.Coordinate{Row: 6, Col: 9}
				return f
			},
			wantError: "Carrier extends outside the grid",
		},
		{
			name: "negative start",
			fleet: func() []game.ShipPlacement {
				f := standardFleet()
				f[3].Start = game.Coordinate{Row: -1, Col: 0}
				return f
			},
			wantError: "Cruiser extends outside the grid",
		},
		{
			name: "overlapping ships",
			fleet: func() []game.ShipPlacement {
				f := standardFleet()
				f[1] = game.ShipPlacement{ShipType: game.Carrier, Start: game.Coordinate{Row: 0, Col: 1}, Orientation: game.Vertical}
				return f
			},
			wantError: "Carrier overlaps with Destroyer at (0,1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := game.ValidateFleet(tt.fleet())
			if tt.wantError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, game.ErrInvalidFleet)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

// TestValidateFleet_OrderInsensitive 通過與否與艦隊順序無關
func TestValidateFleet_OrderInsensitive(t *testing.T) {
	overlapping := standardFleet()
	overlapping[1] = game.ShipPlacement{ShipType: game.Carrier, Start: game.Coordinate{Row: 0, Col: 1}, Orientation: game.Vertical}

	for _, fleet := range [][]game.ShipPlacement{standardFleet(), verticalFleet(), overlapping} {
		want := game.ValidateFleet(fleet) == nil

		reversed := make([]game.ShipPlacement, len(fleet))
		for i, p := range fleet {
			reversed[len(fleet)-1-i] = p
		}
		assert.Equal(t, want, game.ValidateFleet(reversed) == nil)
	}
}
