package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrStorageIO is the sentinel wrapped by every storage-manager failure,
// matching the errors.Is convention camera/errors.go uses for the
// capture engine's own sentinels.
var ErrStorageIO = errors.New("storage: I/O error")

const storageCheckInterval = 30 * time.Second

// StorageManager enforces config.StorageCapGB against config.VideosDir.
// Each Camera writes its recordings under a per-camera-ID subdirectory
// of that root (<VideosDir>/<camera.ID>/video_*.mjpeg), so the manager
// walks one level of subdirectories rather than assuming a flat file
// list; several cameras share one cap without coordinating filenames.
type StorageManager struct {
	videosRoot   string
	storageCapGB int
	log          *Logger

	ticker      *time.Ticker
	done        chan struct{}
	lastUsed    int64
	lastChecked time.Time
}

// NewStorageManager creates videosRoot if needed and starts the
// background cleanup loop. log may be nil in tests that don't care
// about cleanup output.
func NewStorageManager(videosRoot string, storageCapGB int, log *Logger) (*StorageManager, error) {
	if err := os.MkdirAll(videosRoot, 0755); err != nil {
		return nil, fmt.Errorf("create videos root %s: %w", videosRoot, ErrStorageIO)
	}

	sm := &StorageManager{
		videosRoot:   videosRoot,
		storageCapGB: storageCapGB,
		log:          log,
		ticker:       time.NewTicker(storageCheckInterval),
		done:         make(chan struct{}),
	}
	go sm.cleanupLoop()
	return sm, nil
}

func (sm *StorageManager) cleanupLoop() {
	for {
		select {
		case <-sm.done:
			return
		case <-sm.ticker.C:
			if err := sm.enforceStorageCap(); err != nil && sm.log != nil {
				sm.log.Printf("storage cleanup: %v", err)
			}
		}
	}
}

type videoFileInfo struct {
	path    string
	modTime time.Time
	size    int64
}

// cameraVideoFiles walks videosRoot's per-camera subdirectories and
// returns every recognized video file beneath them, plus their total
// size. Directories starting with '.' (e.g. a packager's temp export
// dirs) are skipped.
func (sm *StorageManager) cameraVideoFiles() ([]videoFileInfo, int64, error) {
	entries, err := os.ReadDir(sm.videosRoot)
	if err != nil {
		return nil, 0, fmt.Errorf("read videos root: %w", ErrStorageIO)
	}

	var files []videoFileInfo
	var total int64
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		camDir := filepath.Join(sm.videosRoot, entry.Name())
		camEntries, err := os.ReadDir(camDir)
		if err != nil {
			continue
		}
		for _, fe := range camEntries {
			if fe.IsDir() || !isVideoFile(fe.Name()) {
				continue
			}
			info, err := fe.Info()
			if err != nil {
				continue
			}
			files = append(files, videoFileInfo{
				path:    filepath.Join(camDir, fe.Name()),
				modTime: info.ModTime(),
				size:    info.Size(),
			})
			total += info.Size()
		}
	}
	return files, total, nil
}

// enforceStorageCap deletes the oldest recordings, across all cameras,
// until total usage is back under storageCapGB.
func (sm *StorageManager) enforceStorageCap() error {
	files, total, err := sm.cameraVideoFiles()
	if err != nil {
		return err
	}
	sm.lastUsed = total
	sm.lastChecked = time.Now()

	capBytes := int64(sm.storageCapGB) * BytesPerGB
	if total <= capBytes {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	deleted := 0
	for _, f := range files {
		if total <= capBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			continue
		}
		deleted++
		total -= f.size
		sm.lastUsed = total
		if sm.log != nil {
			sm.log.Debugf("deleted old recording %s (%.2f MB, modified %s)",
				filepath.Base(f.path), float64(f.size)/BytesPerMB, f.modTime.Format("2006-01-02 15:04:05"))
		}
	}
	if deleted > 0 && sm.log != nil {
		sm.log.Printf("storage cleanup: removed %d recording(s), now using %.2f / %d GB",
			deleted, float64(total)/BytesPerGB, sm.storageCapGB)
	}
	return nil
}

// GetStorageStats returns (used, cap) in bytes, serving a cached value
// when the last check was under 5s ago to keep frequent status polling
// from re-walking the tree every call.
func (sm *StorageManager) GetStorageStats() (used int64, cap int64, err error) {
	capBytes := int64(sm.storageCapGB) * BytesPerGB
	if time.Since(sm.lastChecked) < 5*time.Second && sm.lastUsed > 0 {
		return sm.lastUsed, capBytes, nil
	}

	_, total, err := sm.cameraVideoFiles()
	if err != nil {
		return 0, 0, err
	}
	sm.lastUsed = total
	sm.lastChecked = time.Now()
	return total, capBytes, nil
}

// Stop halts the cleanup loop. Idempotent within one process lifetime.
func (sm *StorageManager) Stop() {
	sm.ticker.Stop()
	select {
	case <-sm.done:
	default:
		close(sm.done)
	}
}

func isVideoFile(name string) bool {
	return IsMJPEGFile(name)
}
