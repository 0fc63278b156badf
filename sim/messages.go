package sim

// NoInputProcessed 表示服务端尚未处理过该实体的任何输入（序列号从 0 开始）
const NoInputProcessed int64 = -1

// ClientInput 客户端 → 服务端：一次移动输入
// PressTime 的绝对值为距上次采样经过的秒数，符号为方向
type ClientInput struct {
	EntityID  int     `json:"entity_id"`
	PressTime float64 `json:"press_time"`
	SeqNum    int64   `json:"seq_num"`
}

// EntityState 服务端 → 客户端：单个实体的权威快照
type EntityState struct {
	EntityID           int     `json:"entity_id"`
	Position           float64 `json:"position"`
	LastProcessedInput int64   `json:"last_processed_input"`
}

// WorldState 一次广播的全部实体状态
type WorldState []EntityState

// Clone 返回独立副本，发送给每个客户端的切片互不共享
func (w WorldState) Clone() WorldState {
	out := make(WorldState, len(w))
	copy(out, w)
	return out
}

// Direction 移动方向
type Direction int

const (
	DirNone Direction = iota
	DirLeft
	DirRight
)

// ParseDirection 解析 "left" / "right"
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "left":
		return DirLeft, true
	case "right":
		return DirRight, true
	default:
		return DirNone, false
	}
}

func (d Direction) String() string {
	switch d {
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	default:
		return "none"
	}
}
