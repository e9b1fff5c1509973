// Package tableconf 实现表配置的持久化存储：所有 TableConfig 保存在一个
// JSON 文档里，进程内缓存，写操作整体落盘。适用于单进程低并发的管理场景，
// 并发写以最后完成落盘者为准，调用方不能依赖多写者原子性。
package tableconf

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hatlonely/dyntab/schema"
	"github.com/pkg/errors"
)

// ErrNotFound 表配置不存在
var ErrNotFound = errors.New("table config not found")

// StoreOptions Store 的配置
type StoreOptions struct {
	// FilePath 配置文档路径
	FilePath string `cfg:"filePath" validate:"required"`
}

// Store 表配置存储，带进程内缓存
type Store struct {
	filePath string

	mu      sync.RWMutex
	doc     *schema.Document
	watcher *fsnotify.Watcher
	once    sync.Once
}

func NewStoreWithOptions(options *StoreOptions) (*Store, error) {
	if options == nil || options.FilePath == "" {
		return nil, errors.New("file path is required")
	}

	absPath, err := filepath.Abs(options.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "invalid file path")
	}

	return &Store{filePath: absPath}, nil
}

// Load 返回完整配置文档的快照。首次调用读盘并填充缓存，之后直接服务缓存，
// 直到 Invalidate。文件不存在按首次运行处理返回空文档，文件存在但
// 解析失败则报错而不是吞掉。返回的 Tables 是锁内拷贝，调用方可以在锁外
// 遍历和序列化，不会和并发的 Set/Delete 撞上。
func (s *Store) Load() (*schema.Document, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := schema.NewDocument()
	for name, cfg := range doc.Tables {
		snapshot.Tables[name] = cfg
	}
	return snapshot, nil
}

// load 确保缓存已填充并返回内部文档。返回的 Tables 与写操作共享，
// 调用方读取时必须自行持锁。
func (s *Store) load() (*schema.Document, error) {
	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()
	if doc != nil {
		return doc, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s.doc, nil
}

// loadLocked 调用方必须持有写锁
func (s *Store) loadLocked() error {
	if s.doc != nil {
		return nil
	}
	doc, err := s.read()
	if err != nil {
		return err
	}
	s.doc = doc
	return nil
}

func (s *Store) read() (*schema.Document, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return schema.NewDocument(), nil
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}

	doc := schema.NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	if doc.Tables == nil {
		doc.Tables = map[string]*schema.TableConfig{}
	}
	return doc, nil
}

// Get 返回指定表的配置
func (s *Store) Get(name string) (*schema.TableConfig, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := doc.Tables[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "table %s", name)
	}
	return cfg, nil
}

// Set 校验并写入表配置，整个文档落盘。落盘失败时恢复缓存里的原条目，
// 保证缓存和磁盘不会静默分叉。
func (s *Store) Set(name string, cfg *schema.TableConfig) error {
	if !schema.ValidIdent(name) {
		return errors.Errorf("invalid table name: %s", name)
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrapf(err, "invalid config for table %s", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}

	prev, existed := s.doc.Tables[name]
	s.doc.Tables[name] = cfg
	if err := s.persist(); err != nil {
		if existed {
			s.doc.Tables[name] = prev
		} else {
			delete(s.doc.Tables, name)
		}
		return err
	}
	return nil
}

// Delete 移除表配置并落盘，不存在时报 ErrNotFound
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}

	prev, ok := s.doc.Tables[name]
	if !ok {
		return errors.Wrapf(ErrNotFound, "table %s", name)
	}
	delete(s.doc.Tables, name)
	if err := s.persist(); err != nil {
		s.doc.Tables[name] = prev
		return err
	}
	return nil
}

// persist 调用方必须持有写锁
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config document")
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

// Invalidate 失效缓存，下次 Load 重新读盘
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = nil
}

// Watch 监听配置文件的外部修改，发生写入时失效缓存。只初始化一次。
func (s *Store) Watch() error {
	var initErr error
	s.once.Do(func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			initErr = errors.Wrap(err, "failed to create file watcher")
			return
		}
		s.mu.Lock()
		s.watcher = watcher
		s.mu.Unlock()

		go func() {
			for {
				select {
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&fsnotify.Write == fsnotify.Write && event.Name == s.filePath {
						s.Invalidate()
					}
				case _, ok := <-watcher.Errors:
					if !ok {
						return
					}
				}
			}
		}()

		if err := watcher.Add(filepath.Dir(s.filePath)); err != nil {
			initErr = errors.Wrap(err, "failed to add directory to watcher")
		}
	})
	return initErr
}

// Close 释放监听资源
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
