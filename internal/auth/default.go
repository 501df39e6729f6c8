package auth

import (
	"errors"
	"sync"
)

// ErrNotInitialized はInitDefault前にDefaultが呼ばれたことを示す。
var ErrNotInitialized = errors.New("auth: default verifier is not initialized")

// ErrAlreadyInitialized はInitDefaultが2回呼ばれたことを示す。
var ErrAlreadyInitialized = errors.New("auth: default verifier is already initialized")

// Closer はShutdownDefaultで解放が必要なverifierが実装する。
type Closer interface {
	Close()
}

var (
	defaultMu       sync.RWMutex
	defaultVerifier IdentityVerifier
	defaultCloser   Closer
)

// InitDefault はプロセス全体で共有するverifierを登録する。
// 起動時に1回だけ呼び出す。ShutdownDefaultの後は再登録できる。
func InitDefault(verifier IdentityVerifier, c Closer) error {
	if verifier == nil {
		return errors.New("auth: verifier must not be nil")
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultVerifier != nil {
		return ErrAlreadyInitialized
	}
	defaultVerifier = verifier
	defaultCloser = c
	return nil
}

// Default は登録済みのverifierを返す。
func Default() (IdentityVerifier, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()

	if defaultVerifier == nil {
		return nil, ErrNotInitialized
	}
	return defaultVerifier, nil
}

// ShutdownDefault は登録済みのverifierを解放する。未登録の場合は何もしない。
func ShutdownDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultCloser != nil {
		defaultCloser.Close()
	}
	defaultVerifier = nil
	defaultCloser = nil
}
