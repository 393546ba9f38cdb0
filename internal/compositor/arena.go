package compositor

import "sync"

// Buffer is a reusable 2-D scratch magnitude buffer, column-major
// (the teacher's tile.rgbapool.go held row-major RGBA; here each pixel is
// one quantized 8-bit magnitude sample, Pix[col*H+bin]).
type Buffer struct {
	W, H int
	Pix  []uint8
}

// bufferPoolKey identifies a pool by buffer dimensions.
type bufferPoolKey struct {
	w, h int
}

// Arena is a dimension-keyed pool of scratch Buffers, adapted from the
// teacher's rgbaPools sync.Map of *image.RGBA (tile/rgbapool.go) to the
// compositor's magnitude-buffer element type.
type Arena struct {
	pools sync.Map // bufferPoolKey -> *sync.Pool of *Buffer
}

// NewArena creates an empty buffer arena.
func NewArena() *Arena {
	return &Arena{}
}

// Get returns a zeroed Buffer sized w×h, reusing a pooled allocation when
// one of this size is available.
func (a *Arena) Get(w, h int) *Buffer {
	key := bufferPoolKey{w, h}
	if p, ok := a.pools.Load(key); ok {
		if v := p.(*sync.Pool).Get(); v != nil {
			buf := v.(*Buffer)
			clear(buf.Pix)
			return buf
		}
	}
	return &Buffer{W: w, H: h, Pix: make([]uint8, w*h)}
}

// Put returns buf to the arena for reuse. Nil buffers are ignored.
func (a *Arena) Put(buf *Buffer) {
	if buf == nil {
		return
	}
	key := bufferPoolKey{buf.W, buf.H}
	p, _ := a.pools.LoadOrStore(key, &sync.Pool{})
	p.(*sync.Pool).Put(buf)
}
