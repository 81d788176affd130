// Package pidfile keeps the list of running lightstatic processes in a shared
// PID file so that a later invocation can send them "stop" or "refresh".
// Every serving process appends its PID on start and removes it on exit; the
// file disappears once the last PID is gone.
package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// FileName 是 PID 文件名，所有实例共享同一个文件。
const FileName = "lightstatic.pid"

// ErrNoPidFile 表示 PID 文件不存在，即当前没有运行中的实例。
var ErrNoPidFile = errors.New("pid file not found, no lightstatic process is running")

// Actions 映射 --signal 取值到系统信号。
var Actions = map[string]syscall.Signal{
	"stop":    syscall.SIGTERM,
	"refresh": syscall.SIGHUP,
}

// File 是某个目录下的 PID 文件，同一进程内的并发修改通过 mu 串行化。
type File struct {
	path string
	mu   sync.Mutex
	// sender 便于测试替换真实的进程信号发送。
	sender func(pid int, sig syscall.Signal) error
}

// New 返回 dir 下的 PID 文件；dir 为空时使用系统临时目录。
func New(dir string) *File {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	return &File{
		path:   filepath.Join(dir, FileName),
		sender: sendSignal,
	}
}

// Path 返回 PID 文件的完整路径。
func (f *File) Path() string { return f.path }

// Write 追加当前进程 PID。
func (f *File) Write() error {
	return f.Append(os.Getpid())
}

// Append 追加一个 PID。
func (f *File) Append(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	pids, err := f.read()
	if err != nil && !errors.Is(err, ErrNoPidFile) {
		return err
	}
	for _, existing := range pids {
		if existing == pid {
			return nil
		}
	}
	return f.store(append(pids, pid))
}

// Remove 从文件中删除当前进程 PID。
func (f *File) Remove() error {
	return f.Drop(os.Getpid())
}

// Drop 删除指定 PID，文件为空时一并删除文件。
func (f *File) Drop(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	pids, err := f.read()
	if err != nil {
		if errors.Is(err, ErrNoPidFile) {
			return nil
		}
		return err
	}
	kept := pids[:0]
	for _, existing := range pids {
		if existing != pid {
			kept = append(kept, existing)
		}
	}
	return f.store(kept)
}

// PIDs 返回文件中记录的全部 PID。
func (f *File) PIDs() ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// Result 记录一次信号发送的结果。
type Result struct {
	PID int
	Err error
}

// Signal 向文件中所有 PID 发送 action 对应的信号。发送失败的 PID 和已停止的 PID 会从文件中移除。
func (f *File) Signal(action string) ([]Result, error) {
	sig, ok := Actions[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return nil, fmt.Errorf(`unsupported signal action %q, expect "stop" or "refresh"`, action)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	pids, err := f.read()
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(pids))
	kept := make([]int, 0, len(pids))
	for _, pid := range pids {
		sendErr := f.sender(pid, sig)
		results = append(results, Result{PID: pid, Err: sendErr})
		if sendErr == nil && sig != syscall.SIGTERM {
			kept = append(kept, pid)
		}
	}
	if err := f.store(kept); err != nil {
		return results, err
	}
	return results, nil
}

func (f *File) read() ([]int, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoPidFile
		}
		return nil, err
	}

	var pids []int
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

func (f *File) store(pids []int) error {
	if len(pids) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove pid file: %w", err)
		}
		return nil
	}

	lines := make([]string, len(pids))
	for i, pid := range pids {
		lines[i] = strconv.Itoa(pid)
	}
	if err := os.WriteFile(f.path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

func sendSignal(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}
