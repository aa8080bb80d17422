// Package game 實現海戰棋的權威遊戲狀態
//
// 包含三個部分：
//
// 棋盤（Board）
//
// 單一玩家的 10x10 格子，記錄艦船佔位與被擊中的格子：
//   - ReceiveShot 回傳 miss / hit / sunk，擊沉時附帶艦船位置
//   - OwnerView 顯示自己的艦船，PublicView 隱藏未被擊中的艦船
//   - 視圖每次讀取時重新計算，不做快取
//
// 佈陣驗證（ValidateFleet）
//
// 純函數，依序檢查艦種齊全、方向、邊界、重疊，遇到第一個錯誤即返回。
//
// 房間狀態機（Room）
//
//	LOBBY → PLACEMENT → BATTLE → FINISHED → (再來一局) LOBBY
//
// Room 不加鎖，由 lobby 套件的房間 actor 獨佔並序列化所有操作。
// 斷線計時器只以 generation 計數表示，真正的排程在 actor 端。
//
// 使用範例：
//
//	room := game.NewRoom("ABC234", "p1", "Alice")
//	_ = room.AddPlayer("p2", "Bob")
//	room.SetReady("p1", true)
//	started, _ := room.SetReady("p2", true) // started == true，進入 PLACEMENT
package game
