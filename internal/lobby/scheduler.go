package lobby

import (
	"container/list"
	"sync"
	"time"
)

// Timer 可取消的延遲任務
type Timer interface {
	// Stop 取消任務；任務已觸發或已取消時返回 false
	Stop() bool
}

// Scheduler 延遲任務調度
//
// 斷線寬限期就是一個 Scheduler 任務。測試注入手動推進的實作。
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

const (
	// DefaultWheelSlots 槽位數量（100ms × 600 = 一圈 60 秒）
	DefaultWheelSlots = 600

	// DefaultWheelTick 指針轉動間隔
	DefaultWheelTick = 100 * time.Millisecond
)

// TimingWheel 時間輪
//
// 算法說明：
//   圓形槽位數組，指針每個 tick 轉動一格
//
//   Slot 0   →  [grace(alice)]
//   Slot 1   →  []
//   Slot 2   →  [grace(bob)]
//   ...
//            ↑ 當前指針
//
// 插入任務：O(1)
//   ticks = ceil(delay / tick)
//   slot  = (currentSlot + ticks) % slots
//   round = (ticks - 1) / slots
//
// 取消任務：O(1)，直接從槽位鏈表移除
//
// 寬限期以秒計，100ms 的精度足夠；數千個並存的斷線計時器
// 只佔用一個 goroutine 與一個 ticker。
type TimingWheel struct {
	slots       []*list.List
	currentSlot int
	tick        time.Duration
	mu          sync.Mutex

	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

type wheelTask struct {
	wheel *TimingWheel
	slot  int
	round int
	fn    func()
	elem  *list.Element // nil 表示已觸發或已取消
}

// NewTimingWheel 創建時間輪；參數非正數時使用預設值
func NewTimingWheel(tick time.Duration, slots int) *TimingWheel {
	if tick <= 0 {
		tick = DefaultWheelTick
	}
	if slots <= 0 {
		slots = DefaultWheelSlots
	}

	tw := &TimingWheel{
		slots:  make([]*list.List, slots),
		tick:   tick,
		stopCh: make(chan struct{}),
	}
	for i := range tw.slots {
		tw.slots[i] = list.New()
	}
	return tw
}

// AfterFunc 在 d 之後執行 f（實現 Scheduler）
//
// f 在時間輪的 goroutine 中依序執行，必須快速返回。
func (tw *TimingWheel) AfterFunc(d time.Duration, f func()) Timer {
	ticks := int((d + tw.tick - 1) / tw.tick)
	if ticks < 1 {
		ticks = 1
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	slot := (tw.currentSlot + ticks) % len(tw.slots)
	task := &wheelTask{
		wheel: tw,
		slot:  slot,
		round: (ticks - 1) / len(tw.slots),
		fn:    f,
	}
	task.elem = tw.slots[slot].PushBack(task)
	return task
}

// Stop 實現 Timer
func (t *wheelTask) Stop() bool {
	tw := t.wheel
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if t.elem == nil {
		return false
	}
	tw.slots[t.slot].Remove(t.elem)
	t.elem = nil
	return true
}

// Start 啟動時間輪
func (tw *TimingWheel) Start() {
	tw.startOnce.Do(func() {
		tw.wg.Add(1)
		go tw.run()
	})
}

func (tw *TimingWheel) run() {
	defer tw.wg.Done()

	ticker := time.NewTicker(tw.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tw.advance()
		case <-tw.stopCh:
			return
		}
	}
}

// advance 指針轉動一格，觸發到期任務
//
// 1. 指針前進
// 2. round == 0 的任務取出，其餘 round 遞減
// 3. 在鎖外依序執行（回調可能再次呼叫 AfterFunc / Stop）
func (tw *TimingWheel) advance() {
	tw.mu.Lock()

	tw.currentSlot = (tw.currentSlot + 1) % len(tw.slots)
	slot := tw.slots[tw.currentSlot]

	var due []func()
	var next *list.Element
	for e := slot.Front(); e != nil; e = next {
		next = e.Next()
		task := e.Value.(*wheelTask)

		if task.round > 0 {
			task.round--
			continue
		}
		slot.Remove(e)
		task.elem = nil
		due = append(due, task.fn)
	}

	tw.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

// Stop 停止時間輪；未觸發的任務不再執行
func (tw *TimingWheel) Stop() {
	tw.stopOnce.Do(func() {
		close(tw.stopCh)
	})
	tw.wg.Wait()
}

// Size 返回時間輪中的任務總數
func (tw *TimingWheel) Size() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	count := 0
	for _, slot := range tw.slots {
		count += slot.Len()
	}
	return count
}
