package wal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"sync"
)

// FileModePrivate rw------- 只有擁有者可讀寫，帳本資料使用此權限
const FileModePrivate fs.FileMode = 0600

// ErrFailed 寫入失敗且無法還原檔案內容，之後的寫入都會被拒絕
var ErrFailed = errors.New("wal failed")

// tailChunk 開檔時由檔尾往前尋找最後一個換行的讀取單位
const tailChunk = 4096

// file WAL 需要的檔案操作，*os.File 即滿足
type file interface {
	io.Reader
	io.Seeker
	io.ReaderAt
	io.WriterAt
	io.Closer
	Sync() error
	Truncate(size int64) error
	Stat() (fs.FileInfo, error)
}

// WAL 以 JSON Lines 格式寫入的日誌檔，每筆寫入後 fsync
// size 為最後一筆完整紀錄的結尾，寫入一律從 size 開始，失敗時截回 size
type WAL struct {
	file file
	mu   sync.Mutex
	size int64
	err  error
}

// NewWAL 開啟或建立一個 WAL 檔案
// 檔尾若有未以換行結束的殘缺紀錄，開檔時即截斷
//
// 參數:
//
//	path: WAL 檔案路徑
//
// 回傳:
//
//	*WAL: 可寫入的 WAL
//	error: 開檔或截斷失敗
func NewWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, fmt.Errorf("failed to open wal %s: %w", path, err)
	}
	w, err := newWAL(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open wal %s: %w", path, err)
	}
	return w, nil
}

func newWAL(f file) (*WAL, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	end, err := lastRecordEnd(f, info.Size())
	if err != nil {
		return nil, err
	}
	if end != info.Size() {
		log.Printf("wal: truncating torn record at offset %d", end)
		if err := f.Truncate(end); err != nil {
			return nil, err
		}
	}
	return &WAL{file: f, size: end}, nil
}

// lastRecordEnd 回傳最後一個換行之後的位移，沒有換行時為 0
func lastRecordEnd(f io.ReaderAt, size int64) (int64, error) {
	buf := make([]byte, tailChunk)
	for end := size; end > 0; {
		start := max(end-tailChunk, 0)
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// Write 寫入一筆資料並刷入硬碟，回傳 nil 後資料即為持久化
// 寫入或 fsync 失敗時截回寫入前的長度，重啟後不會讀到這筆紀錄
func (w *WAL) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode wal record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}

	// 其他程序追加的殘缺內容不能留在兩筆紀錄之間
	info, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat wal: %w", err)
	}
	if info.Size() != w.size {
		if err := w.file.Truncate(w.size); err != nil {
			return fmt.Errorf("failed to truncate wal: %w", err)
		}
	}

	n, err := w.file.WriteAt(data, w.size)
	if err == nil {
		err = w.file.Sync()
	}
	if err != nil {
		w.rollback()
		return fmt.Errorf("failed to write wal record: %w", err)
	}
	w.size += int64(n)
	return nil
}

// rollback 截回最後一筆完整紀錄，截斷失敗時 WAL 進入失敗狀態
func (w *WAL) rollback() {
	err := w.file.Truncate(w.size)
	if err == nil {
		err = w.file.Sync()
	}
	if err != nil {
		log.Printf("wal: rollback to offset %d failed: %v", w.size, err)
		w.err = fmt.Errorf("%w: %v", ErrFailed, err)
	}
}

// Close 關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ReadAll 依寫入順序讀取所有資料
// callback 逐筆接收原始 JSON，避免一次將所有資料載入記憶體
// 寫到一半的檔尾已在開檔時截斷，此處遇到無法解析的內容一律視為損毀
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(io.LimitReader(w.file, w.size))
	var lastGood int64
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("wal corrupted at offset %d: %w", lastGood, err)
		}
		if err := callback(raw); err != nil {
			return err
		}
		lastGood = decoder.InputOffset()
	}
}
