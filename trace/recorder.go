package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Recorder 把每条记录写成一行 JSON，按小时切分为 zstd 压缩文件
// 文件名：<dir>/<prefix>-2006-01-02-15.jsonl.zst
type Recorder struct {
	dir    string
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewRecorder(dir, prefix string) *Recorder {
	return &Recorder{dir: dir, prefix: prefix, now: time.Now}
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Recorder) Write(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	hour := r.now().UTC().Format("2006-01-02-15")
	if hour != r.curHour || r.w == nil {
		if err := r.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := r.w.Write(b); err != nil {
		return err
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return err
	}
	return r.w.Flush()
}

// PathForHour 给定小时对应的文件路径
func (r *Recorder) PathForHour(hour string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s-%s.jsonl.zst", r.prefix, hour))
}

func (r *Recorder) rotateLocked(hour string) error {
	if err := r.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.PathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	r.curHour = hour
	r.f = f
	r.enc = enc
	r.w = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

func (r *Recorder) closeLocked() error {
	if r.f == nil {
		return nil
	}
	var firstErr error
	if r.w != nil {
		if err := r.w.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.enc != nil {
		if err := r.enc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	r.f, r.enc, r.w = nil, nil, nil
	r.curHour = ""
	return firstErr
}
