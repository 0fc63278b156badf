package sim

import "sort"

// DefaultSpeed 每秒按键移动的距离
const DefaultSpeed = 2.0

// Entity 可被输入推进的模拟对象；服务端持有权威副本，每个客户端持有自己的镜像
type Entity struct {
	ID       int     `json:"id"`
	Position float64 `json:"position"`
	Speed    float64 `json:"speed"`
}

// NewEntity 创建默认速度的实体
func NewEntity(id int, position float64) *Entity {
	return &Entity{ID: id, Position: position, Speed: DefaultSpeed}
}

// ApplyInput 按 press_time（带方向的秒数）推进位置
func (e *Entity) ApplyInput(in ClientInput) {
	e.Position += in.PressTime * e.Speed
}

// Renderer 渲染面：每个 Tick 调用一次，传入当前可见实体
type Renderer interface {
	Render(entities []Entity)
}

// RendererFunc 适配普通函数为 Renderer
type RendererFunc func(entities []Entity)

func (f RendererFunc) Render(entities []Entity) { f(entities) }

type nopRenderer struct{}

func (nopRenderer) Render([]Entity) {}

// sortedEntities 按 id 升序返回实体值拷贝，调用方可自由持有
func sortedEntities(m map[int]*Entity) []Entity {
	out := make([]Entity, 0, len(m))
	for _, e := range m {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
