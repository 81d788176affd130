package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrRefreshInProgress 表示已有一次 Refresh 正在构建快照，重叠的调用被拒绝。
var ErrRefreshInProgress = errors.New("cache refresh already in progress")

// Match 描述一次查找命中的类型。
type Match int

const (
	MatchNone Match = iota
	MatchEntry
	MatchFallback
)

func (m Match) String() string {
	switch m {
	case MatchEntry:
		return "entry"
	case MatchFallback:
		return "fallback"
	default:
		return "none"
	}
}

// Snapshot 是目录树的一份完整、自洽的内存副本，发布后只读。
type Snapshot struct {
	entries    map[string]*File
	fallback   *File
	generation uint64
	loadedAt   time.Time
	bytes      int64
}

// Lookup 以绝对路径精确查找；未命中且允许回退时返回 fallback 文件。
func (s *Snapshot) Lookup(key string, fallback bool) (*File, Match) {
	if file, ok := s.entries[filepath.Clean(key)]; ok {
		return file, MatchEntry
	}
	if fallback && s.fallback != nil {
		return s.fallback, MatchFallback
	}
	return nil, MatchNone
}

// Fallback 返回本代快照的回退文件。
func (s *Snapshot) Fallback() *File { return s.fallback }

// Len 返回缓存条目数量（不单独计入 fallback）。
func (s *Snapshot) Len() int { return len(s.entries) }

// Bytes 返回所有条目存储字节数之和。
func (s *Snapshot) Bytes() int64 { return s.bytes }

// Generation 从 1 开始，每次成功 Refresh 加一。
func (s *Snapshot) Generation() uint64 { return s.generation }

// LoadedAt 返回快照构建完成的时间。
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Store 持有当前可见的快照。读路径只做一次原子指针读取，
// Refresh 在旁路构建新快照后整体替换，旧快照在无人引用后由 GC 回收。
type Store struct {
	opts      Options
	log       logrus.FieldLogger
	current   atomic.Pointer[Snapshot]
	refreshMu sync.Mutex
	now       func() time.Time
}

// Stats 汇总当前快照信息，供诊断接口与日志使用。
type Stats struct {
	RootDir      string    `json:"root_dir"`
	FallbackPath string    `json:"fallback_path"`
	Entries      int       `json:"entries"`
	Bytes        int64     `json:"bytes"`
	Generation   uint64    `json:"generation"`
	LoadedAt     time.Time `json:"loaded_at"`
}

// Load 构建初始快照。fallback 文件不可读或根目录无法遍历时直接返回错误，不产生部分结果。
func Load(ctx context.Context, opts Options) (*Store, error) {
	if opts.RootDir == "" {
		return nil, errors.New("root dir required")
	}
	if opts.FallbackPath == "" {
		return nil, errors.New("fallback path required")
	}

	root, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root dir: %w", err)
	}
	fallback, err := filepath.Abs(opts.FallbackPath)
	if err != nil {
		return nil, fmt.Errorf("resolve fallback path: %w", err)
	}
	opts.RootDir = root
	opts.FallbackPath = fallback

	s := &Store{
		opts: opts,
		log:  opts.logger(),
		now:  time.Now,
	}
	snap, err := s.build(ctx, 1)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return s, nil
}

// Snapshot 返回当前可见的快照。单个请求应只取一次并在整个生命周期内使用它。
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Lookup 在当前快照上查找。
func (s *Store) Lookup(key string, fallback bool) (*File, Match) {
	return s.Snapshot().Lookup(key, fallback)
}

// Len 返回当前快照条目数。
func (s *Store) Len() int {
	return s.Snapshot().Len()
}

// RootDir 返回加载时解析后的绝对根目录。
func (s *Store) RootDir() string {
	return s.opts.RootDir
}

// Stats 返回当前快照的统计信息。
func (s *Store) Stats() Stats {
	snap := s.Snapshot()
	return Stats{
		RootDir:      s.opts.RootDir,
		FallbackPath: s.opts.FallbackPath,
		Entries:      snap.Len(),
		Bytes:        snap.Bytes(),
		Generation:   snap.Generation(),
		LoadedAt:     snap.LoadedAt(),
	}
}

// Refresh 先重新读取 fallback 文件，成功后再完整扫描目录树，最后一次性替换当前快照。
// 任一步失败都不会修改当前快照；同时只允许一个 Refresh 运行。
func (s *Store) Refresh(ctx context.Context) (int, error) {
	if !s.refreshMu.TryLock() {
		return 0, ErrRefreshInProgress
	}
	defer s.refreshMu.Unlock()

	prev := s.current.Load()
	next, err := s.build(ctx, prev.generation+1)
	if err != nil {
		return 0, err
	}
	s.current.Store(next)
	return next.Len(), nil
}

func (s *Store) build(ctx context.Context, generation uint64) (*Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	fallback, err := loadFile(s.opts.FallbackPath, s.opts)
	if err != nil {
		return nil, fmt.Errorf("load fallback file: %w", err)
	}

	w := &walker{
		ctx:      ctx,
		opts:     s.opts,
		log:      s.log,
		entries:  make(map[string]*File),
		fallback: fallback,
		active:   make(map[string]struct{}),
	}
	if err := w.walkRoot(s.opts.RootDir); err != nil {
		return nil, fmt.Errorf("scan root dir: %w", err)
	}

	var total int64
	for _, file := range w.entries {
		total += int64(file.Size())
	}

	s.log.WithFields(logrus.Fields{
		"action":     "cache_build",
		"root":       s.opts.RootDir,
		"entries":    len(w.entries),
		"bytes":      total,
		"skipped":    w.skipped,
		"generation": generation,
	}).Debug("cache snapshot built")

	return &Snapshot{
		entries:    w.entries,
		fallback:   fallback,
		generation: generation,
		loadedAt:   s.now(),
		bytes:      total,
	}, nil
}
