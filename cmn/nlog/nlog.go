// Package nlog is this repository's logger: unbuffered, leveled, timestamped,
// with optional file output and rotation. It exists because the teacher repo
// rolls its own logger rather than importing one (see SPEC_FULL.md §2.1);
// every package here logs through nlog instead of the standard "log" package.
package nlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

func (s severity) String() string {
	switch s {
	case sevWarn:
		return "W"
	case sevErr:
		return "E"
	default:
		return "I"
	}
}

// MaxSize is the rotation threshold for a single log file, in bytes.
var MaxSize int64 = 4 * 1024 * 1024

var (
	mu           sync.Mutex
	logDir       string
	role         string
	title        string
	toStderr     bool
	alsoToStderr bool
	files        [3]*rotFile // one per severity
)

type rotFile struct {
	f     *os.File
	path  string
	size  int64
	sev   severity
}

func (rf *rotFile) Write(p []byte) (int, error) { return rf.f.Write(p) }

// SetLogDirRole sets the directory log files are written under and the
// process role used in generated file names (e.g. "target", "proxy").
func SetLogDirRole(dir, r string) {
	mu.Lock()
	defer mu.Unlock()
	logDir, role = dir, r
}

// SetTitle sets a process title echoed into the header of each new file.
func SetTitle(s string) {
	mu.Lock()
	defer mu.Unlock()
	title = s
}

// SetToStderr controls whether log output also (or only) goes to stderr;
// useful for tests and short-lived CLI tools where no log directory exists.
func SetToStderr(only, also bool) {
	mu.Lock()
	defer mu.Unlock()
	toStderr, alsoToStderr = only, also
}

func sname(sev severity) string {
	if role == "" {
		return fmt.Sprintf("xapiand.%s", sev)
	}
	return fmt.Sprintf("xapiand-%s.%s", role, sev)
}

func InfoLogName() string { return sname(sevInfo) }
func ErrLogName() string  { return sname(sevErr) }

func writer(sev severity) io.Writer {
	if toStderr || logDir == "" {
		return os.Stderr
	}
	rf := files[sev]
	if rf == nil || rf.size >= MaxSize {
		if rf != nil {
			rf.f.Close()
		}
		name := fmt.Sprintf("%s.%s.log", sname(sev), time.Now().Format("20060102-150405"))
		path := filepath.Join(logDir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stderr
		}
		if title != "" {
			fmt.Fprintf(f, "# %s\n", title)
		}
		rf = &rotFile{f: f, path: path, sev: sev}
		files[sev] = rf
	}
	return rf
}

func log(sev severity, depth int, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	var line string
	if format == "" {
		line = fmt.Sprintln(args...)
	} else {
		line = fmt.Sprintf(format, args...) + "\n"
	}
	stamped := fmt.Sprintf("%s %s %s", time.Now().Format("0102 15:04:05.000000"), sev, line)

	w := writer(sev)
	n, _ := io.WriteString(w, stamped)
	if rf, ok := w.(*rotFile); ok {
		rf.size += int64(n)
	}
	if alsoToStderr && w != io.Writer(os.Stderr) {
		io.WriteString(os.Stderr, stamped)
	}
	_ = depth
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// Flush forces all buffered/open log files to sync; if exit, files are
// also closed, mirroring teacher nlog.Flush's shutdown-time behavior.
func Flush(exit ...bool) {
	mu.Lock()
	defer mu.Unlock()
	ex := len(exit) > 0 && exit[0]
	for _, rf := range files {
		if rf == nil {
			continue
		}
		rf.f.Sync()
		if ex {
			rf.f.Close()
		}
	}
}
