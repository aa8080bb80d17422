package game

import (
	apperrors "github.com/milenrab97/battleships/pkg/errors"
)

// 系統設計問題：
//   如何在伺服器端權威地保存一方的棋盤，並分別對擁有者與對手提供不同視圖？
//
// 核心挑戰：
//   1. 隱藏資訊：對手只能看到已命中的格子，未被擊中的船必須顯示為空
//   2. 單調性：格子一旦被擊中就永遠是擊中狀態
//   3. 擊沉判定：每艘船的命中數達到長度時擊沉，且只報告一次
//
// 設計方案：
//   ✅ 每格只存 {佔用艦種, 是否被擊中}，視圖在讀取時即時推導
//   ✅ 每艘船獨立命中計數，O(1) 判定擊沉
//   ✅ 不快取視圖：100 格的推導成本可忽略，快取反而要維護一致性

// ErrBoardAlreadyPlaced 同一個棋盤第二次佈署（呼叫方違反契約）
var ErrBoardAlreadyPlaced = apperrors.New(apperrors.ErrCodeNotApplicable, "board already has ships placed")

// ErrCoordinateOutOfBounds 座標超出棋盤
var ErrCoordinateOutOfBounds = apperrors.New(apperrors.ErrCodeOutOfBounds, "coordinate out of bounds")

type cell struct {
	ship ShipType // 空字串表示無船
	hit  bool
}

// Board 單一玩家的棋盤
//
// 不含任何房間或回合知識，也不做並發控制：由擁有它的 Room 序列化所有存取。
type Board struct {
	grid       [GridSize][GridSize]cell
	placements map[ShipType]ShipPlacement
	order      []ShipType
	hits       map[ShipType]int
	placed     bool
}

// NewBoard 創建空棋盤
func NewBoard() *Board {
	return &Board{
		placements: make(map[ShipType]ShipPlacement),
		hits:       make(map[ShipType]int),
	}
}

// PlaceShips 佈署艦隊
//
// 信任呼叫方已通過 ValidateFleet，但仍獨立追蹤佔用：
// 越界或重疊時整批拒絕，不會留下部分佈署。
// 第二次呼叫返回 ErrBoardAlreadyPlaced。
func (b *Board) PlaceShips(fleet []ShipPlacement) error {
	if b.placed {
		return ErrBoardAlreadyPlaced
	}

	claimed := make(map[Coordinate]bool)
	for _, p := range fleet {
		for _, c := range p.Cells() {
			if !c.InBounds() || claimed[c] {
				return apperrors.Newf(apperrors.ErrCodeInvalidFleet, "%s cannot occupy %s", p.ShipType.Name(), c)
			}
			claimed[c] = true
		}
	}

	for _, p := range fleet {
		for _, c := range p.Cells() {
			b.grid[c.Row][c.Col].ship = p.ShipType
		}
		b.placements[p.ShipType] = p
		b.order = append(b.order, p.ShipType)
		b.hits[p.ShipType] = 0
	}
	b.placed = true

	return nil
}

// ReceiveShot 承受一次射擊
//
// 重複射擊的檢查屬於 Room（透過 IsAlreadyShot）；這裡不拒絕，
// 但已擊中的格子不會再累計命中，所以擊沉只會報告一次。
func (b *Board) ReceiveShot(c Coordinate) (ShotResult, error) {
	if !c.InBounds() {
		return ShotResult{}, ErrCoordinateOutOfBounds
	}

	target := &b.grid[c.Row][c.Col]
	repeat := target.hit
	target.hit = true

	if target.ship == "" {
		return ShotResult{Coordinate: c, Result: ShotMiss}, nil
	}
	if repeat {
		return ShotResult{Coordinate: c, Result: ShotHit}, nil
	}

	ship := target.ship
	b.hits[ship]++
	if b.hits[ship] < ship.Size() {
		return ShotResult{Coordinate: c, Result: ShotHit}, nil
	}

	placement := b.placements[ship]
	return ShotResult{
		Coordinate:        c,
		Result:            ShotSunk,
		SunkShip:          ship,
		SunkShipPlacement: &placement,
	}, nil
}

// IsAlreadyShot 該格是否已被射擊過（越界返回 false）
func (b *Board) IsAlreadyShot(c Coordinate) bool {
	if !c.InBounds() {
		return false
	}
	return b.grid[c.Row][c.Col].hit
}

// AllShipsSunk 是否全部擊沉
//
// 沒有任何船的棋盤返回 false（這種棋盤不應進入交戰）。
func (b *Board) AllShipsSunk() bool {
	if len(b.order) == 0 {
		return false
	}
	for _, ship := range b.order {
		if b.hits[ship] < ship.Size() {
			return false
		}
	}
	return true
}

// SunkShips 已擊沉的艦種（依佈署順序）
func (b *Board) SunkShips() []ShipType {
	sunk := make([]ShipType, 0, len(b.order))
	for _, ship := range b.order {
		if b.isSunk(ship) {
			sunk = append(sunk, ship)
		}
	}
	return sunk
}

// Placements 返回艦隊佈署副本（結算時揭露用）
func (b *Board) Placements() []ShipPlacement {
	out := make([]ShipPlacement, 0, len(b.order))
	for _, ship := range b.order {
		out = append(out, b.placements[ship])
	}
	return out
}

// PublicView 對手視圖：未被擊中的船格顯示為 empty
func (b *Board) PublicView() [][]CellState {
	return b.project(false)
}

// OwnerView 擁有者視圖：顯示自己的船
func (b *Board) OwnerView() [][]CellState {
	return b.project(true)
}

// project 每次讀取都重新推導，O(GridSize²)
func (b *Board) project(revealShips bool) [][]CellState {
	view := make([][]CellState, GridSize)
	for r := 0; r < GridSize; r++ {
		view[r] = make([]CellState, GridSize)
		for c := 0; c < GridSize; c++ {
			view[r][c] = b.cellState(b.grid[r][c], revealShips)
		}
	}
	return view
}

func (b *Board) cellState(c cell, revealShips bool) CellState {
	switch {
	case !c.hit && c.ship == "":
		return CellEmpty
	case !c.hit:
		if revealShips {
			return CellShip
		}
		return CellEmpty
	case c.ship == "":
		return CellMiss
	case b.isSunk(c.ship):
		return CellSunk
	default:
		return CellHit
	}
}

func (b *Board) isSunk(ship ShipType) bool {
	return b.hits[ship] >= ship.Size()
}
