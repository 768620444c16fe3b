// Package regexlog is linked into instrumented programs. Every rewritten
// pattern argument is passed through Record, which appends one JSON line per
// distinct (file, pattern) to the log and returns the pattern unchanged.
package regexlog

import (
	"os"
	"strconv"
	"sync"
	"unicode/utf8"
)

var (
	mu    sync.Mutex
	files = make(map[string]*os.File)
	seen  = make(map[string]struct{})
	// failed remembers log paths that could not be opened.
	failed = make(map[string]struct{})
)

// Record logs pattern and returns it. It never fails the caller: I/O errors
// drop the record.
func Record[P ~string | ~[]byte](logPath, sourceFile, flags string, pattern P) P {
	if logPath == "" || os.Getenv(ENV_DISABLE) == "true" {
		return pattern
	}
	write(logPath, sourceFile, flags, string(pattern))
	return pattern
}

func write(logPath, sourceFile, flags, pattern string) {
	key := logPath + "\x00" + sourceFile + "\x00" + pattern

	mu.Lock()
	defer mu.Unlock()

	if _, dup := seen[key]; dup {
		return
	}
	if len(seen) < getEnvInt(ENV_MAX_SEEN_ENTRIES, defaultMaxSeenEntries) {
		seen[key] = struct{}{}
	}

	f := openLocked(logPath)
	if f == nil {
		return
	}

	buf := make([]byte, 0, logBufferInitialSize)
	buf = append(buf, "{\"file\":\""...)
	buf = appendEscaped(buf, sourceFile)
	buf = append(buf, "\",\"pattern\":\""...)
	buf = appendEscaped(buf, pattern)
	buf = append(buf, "\",\"flags\":\""...)
	buf = appendEscaped(buf, flags)
	buf = append(buf, "\"}\n"...)

	_, _ = f.Write(buf)
}

func openLocked(logPath string) *os.File {
	if f, ok := files[logPath]; ok {
		return f
	}
	if _, ok := failed[logPath]; ok {
		return nil
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFileMode)
	if err != nil {
		failed[logPath] = struct{}{}
		return nil
	}
	files[logPath] = f
	return f
}

// Close flushes and closes every open log and forgets what was seen.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	var firstErr error
	for path, f := range files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(files, path)
	}
	seen = make(map[string]struct{})
	failed = make(map[string]struct{})
	return firstErr
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i > 0 {
			return i
		}
	}
	return defaultValue
}

// appendEscaped writes s as the body of a JSON string. JSON cannot carry
// bytes that are not UTF-8, so each invalid byte is written as \ufffd, the
// same replacement encoding/json makes; such patterns are logged lossily.
func appendEscaped(dst []byte, s string) []byte {
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			switch {
			case r == utf8.RuneError && size == 1:
				dst = append(dst, `\ufffd`...)
			case r == '\u2028' || r == '\u2029':
				dst = append(dst, `\u202`...)
				dst = append(dst, "0123456789abcdef"[r&0xf])
			default:
				dst = append(dst, s[i:i+size]...)
			}
			i += size
			continue
		}
		switch {
		case c == '"' || c == '\\':
			dst = append(dst, '\\', c)
		case c == '\n':
			dst = append(dst, '\\', 'n')
		case c == '\t':
			dst = append(dst, '\\', 't')
		case c == '\r':
			dst = append(dst, '\\', 'r')
		case c < 0x20:
			dst = append(dst, '\\', 'u', '0', '0',
				"0123456789abcdef"[c>>4],
				"0123456789abcdef"[c&0xf])
		default:
			dst = append(dst, c)
		}
		i++
	}
	return dst
}
