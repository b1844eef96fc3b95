package store

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrClosed        = errors.New("store closed")
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Store is the property store contract the notification engine consumes.
//
// Implementations must be safe for concurrent use. Writes are synchronous.
type Store interface {
	// Get returns the raw value for key and whether it exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	// SetMany upserts all pairs. Drivers apply it atomically when they can.
	SetMany(props map[string]string) error
	// RemovePrefix deletes prefix itself and every key below it.
	RemovePrefix(prefix string) error
	// Keys lists keys below prefix in sorted order. With exactLevel only
	// direct children ("prefix.x", not "prefix.x.y") are returned.
	Keys(prefix string, exactLevel bool) ([]string, error)
	Close() error
}

// Config configures the store.
//
// If Driver is empty, the memory driver is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// GetString returns the value for key or "" when absent or unreadable.
func GetString(s Store, key string) (string, bool) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return "", false
	}
	return v, true
}

func GetBool(s Store, key string, def bool) bool {
	v, ok := GetString(s, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func GetLong(s Store, key string, def int64) int64 {
	v, ok := GetString(s, key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return def
	}
	return n
}

func GetInt(s Store, key string, def int) int {
	return int(GetLong(s, key, int64(def)))
}

// Has reports whether key exists, independent of its value.
func Has(s Store, key string) bool {
	_, ok := GetString(s, key)
	return ok
}

// matchKey implements the prefix/exactLevel selection shared by drivers.
func matchKey(key, prefix string, exactLevel bool) bool {
	if prefix == "" {
		return !exactLevel || !strings.Contains(key, ".")
	}
	if !strings.HasPrefix(key, prefix+".") {
		return false
	}
	if !exactLevel {
		return true
	}
	return !strings.Contains(key[len(prefix)+1:], ".")
}

// underPrefix reports whether key is prefix itself or a descendant of it.
func underPrefix(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+".")
}

func sortedKeys(m map[string]string, prefix string, exactLevel bool) []string {
	out := make([]string, 0, 8)
	for k := range m {
		if matchKey(k, prefix, exactLevel) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
