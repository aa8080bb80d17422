package game

import (
	apperrors "github.com/milenrab97/battleships/pkg/errors"
)

// ErrInvalidFleet 艦隊佈署不合法（以錯誤碼比對，訊息指出違規的船與規則）
var ErrInvalidFleet = apperrors.New(apperrors.ErrCodeInvalidFleet, "invalid fleet")

// ValidateFleet 檢查一支完整艦隊的佈署
//
// 依序檢查，遇到第一個錯誤即返回：
//  1. 每個艦種恰好一艘（數量、重複、缺漏）
//  2. 方向合法
//  3. 所有佔用格在棋盤內
//  4. 艦船之間不重疊（依艦隊順序累積已佔用格）
//
// 純函數，無副作用；通過與否與佈署順序無關，錯誤訊息可能反映遇到的順序。
func ValidateFleet(fleet []ShipPlacement) error {
	if len(fleet) != FleetSize() {
		return apperrors.Newf(apperrors.ErrCodeInvalidFleet, "must place exactly %d ships, got %d", FleetSize(), len(fleet))
	}

	seen := make(map[ShipType]bool, len(fleet))
	for _, p := range fleet {
		if !p.ShipType.Valid() {
			return apperrors.Newf(apperrors.ErrCodeInvalidFleet, "invalid ship type: %q", p.ShipType)
		}
		if seen[p.ShipType] {
			return apperrors.Newf(apperrors.ErrCodeInvalidFleet, "duplicate ship: %s", p.ShipType.Name())
		}
		seen[p.ShipType] = true
	}
	for _, t := range ShipTypes() {
		if !seen[t] {
			return apperrors.Newf(apperrors.ErrCodeInvalidFleet, "missing ship: %s", t.Name())
		}
	}

	for _, p := range fleet {
		if !p.Orientation.Valid() {
			return apperrors.Newf(apperrors.ErrCodeInvalidFleet, "invalid orientation for %s: %q", p.ShipType.Name(), p.Orientation)
		}
	}

	for _, p := range fleet {
		for _, c := range p.Cells() {
			if !c.InBounds() {
				return apperrors.Newf(apperrors.ErrCodeInvalidFleet, "%s extends outside the grid", p.ShipType.Name())
			}
		}
	}

	occupied := make(map[Coordinate]ShipType, 17)
	for _, p := range fleet {
		for _, c := range p.Cells() {
			if other, taken := occupied[c]; taken {
				return apperrors.Newf(apperrors.ErrCodeInvalidFleet, "%s overlaps with %s at %s", p.ShipType.Name(), other.Name(), c)
			}
			occupied[c] = p.ShipType
		}
	}

	return nil
}
