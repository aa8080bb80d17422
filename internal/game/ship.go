package game

import "fmt"

// GridSize 棋盤邊長
const GridSize = 10

// ShipType 艦種
type ShipType string

const (
	Carrier    ShipType = "carrier"
	Battleship ShipType = "battleship"
	Cruiser    ShipType = "cruiser"
	Submarine  ShipType = "submarine"
	Destroyer  ShipType = "destroyer"
)

type shipSpec struct {
	name string
	size int
}

// 艦種表是不可變的全域配置
var shipSpecs = map[ShipType]shipSpec{
	Carrier:    {name: "Carrier", size: 5},
	Battleship: {name: "Battleship", size: 4},
	Cruiser:    {name: "Cruiser", size: 3},
	Submarine:  {name: "Submarine", size: 3},
	Destroyer:  {name: "Destroyer", size: 2},
}

// shipOrder 艦隊必須包含的艦種（固定順序）
var shipOrder = [...]ShipType{Carrier, Battleship, Cruiser, Submarine, Destroyer}

// ShipTypes 返回所有艦種
func ShipTypes() []ShipType {
	return shipOrder[:]
}

// FleetSize 一支完整艦隊的艦船數
func FleetSize() int {
	return len(shipOrder)
}

// Valid 是否為已知艦種
func (t ShipType) Valid() bool {
	_, ok := shipSpecs[t]
	return ok
}

// Size 艦船長度，未知艦種返回 0
func (t ShipType) Size() int {
	return shipSpecs[t].size
}

// Name 顯示名稱
func (t ShipType) Name() string {
	if spec, ok := shipSpecs[t]; ok {
		return spec.name
	}
	return string(t)
}

// Orientation 艦船方向
type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

// Valid 是否為合法方向
func (o Orientation) Valid() bool {
	return o == Horizontal || o == Vertical
}

// Coordinate 棋盤座標
type Coordinate struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// InBounds 座標是否落在 [0, GridSize) 內
func (c Coordinate) InBounds() bool {
	return c.Row >= 0 && c.Row < GridSize && c.Col >= 0 && c.Col < GridSize
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// ShipPlacement 一艘船的佈署
type ShipPlacement struct {
	ShipType    ShipType    `json:"ship_type"`
	Start       Coordinate  `json:"start"`
	Orientation Orientation `json:"orientation"`
}

// Cells 計算佔用的格子
//
// 水平方向沿列延伸（col 遞增），垂直方向沿行延伸（row 遞增）。
// 不檢查邊界，由 ValidateFleet 負責。
func (p ShipPlacement) Cells() []Coordinate {
	size := p.ShipType.Size()
	cells := make([]Coordinate, 0, size)
	for i := 0; i < size; i++ {
		c := p.Start
		if p.Orientation == Vertical {
			c.Row += i
		} else {
			c.Col += i
		}
		cells = append(cells, c)
	}
	return cells
}

// CellState 棋盤投影中的格子狀態
type CellState string

const (
	CellEmpty CellState = "empty"
	CellShip  CellState = "ship"
	CellHit   CellState = "hit"
	CellMiss  CellState = "miss"
	CellSunk  CellState = "sunk"
)

// ShotOutcome 射擊結果類型
type ShotOutcome string

const (
	ShotMiss ShotOutcome = "miss"
	ShotHit  ShotOutcome = "hit"
	ShotSunk ShotOutcome = "sunk"
)

// ShotResult 射擊結果
//
// 擊沉時附帶艦種與其佈署，供雙方顯示整艘船。
type ShotResult struct {
	Coordinate        Coordinate     `json:"coordinate"`
	Result            ShotOutcome    `json:"result"`
	SunkShip          ShipType       `json:"sunk_ship,omitempty"`
	SunkShipPlacement *ShipPlacement `json:"sunk_ship_placement,omitempty"`
}

// Phase 房間階段
type Phase string

const (
	PhaseLobby     Phase = "LOBBY"
	PhasePlacement Phase = "PLACEMENT"
	PhaseBattle    Phase = "BATTLE"
	PhaseFinished  Phase = "FINISHED"
)

// Active 遊戲是否進行中（佈署或交戰）
func (p Phase) Active() bool {
	return p == PhasePlacement || p == PhaseBattle
}
