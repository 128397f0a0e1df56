package usync

import (
	"strings"

	"github.com/tredeske/sftp/ulog"
)

//
// Ignore any panics.  Prefer IgnorePanicIn instead.
//
// Use: defer usync.IgnorePanic()
//
func IgnorePanic() {
	recover()
}

//
// Return true if recovered is a panic due to sending on or closing an
// already-closed chan.  If recovered is some other panic, re-panic.
//
// Use:
//
//	defer func() {
//		if !usync.IgnoreClosedChanPanic(recover()) {
//			// ...
//		}
//	}()
func IgnoreClosedChanPanic(recovered any) (ignored bool) {
	if nil != recovered {
		if e, ok := recovered.(error); !ok ||
			-1 == strings.Index(e.Error(), "closed channel") {
			panic(recovered)
		}
		ignored = true
	}
	return
}

//
// Use directly with defer to ignore a panic from sending on or closing a
// chan that might already be closed.
//
// Note: no outer func! This cannot be used within a func.
//
//	defer usync.BareIgnoreClosedChanPanic()
func BareIgnoreClosedChanPanic() {
	IgnoreClosedChanPanic(recover())
}

//
// Ignore any panics in activity().
//
func IgnorePanicIn(activity func()) {
	defer func() { recover() }()
	activity()
}

//
// Capture any panics in activity().
//
func CapturePanicIn(activity func()) (captured interface{}) {
	defer func() { captured = recover() }()
	activity()
	return
}

//
// Log any panics.
//
// Use: defer usync.LogPanic("msg")
//
func LogPanic(msg string) {
	if it := recover(); it != nil {
		if 0 != len(msg) {
			ulog.Printf("PANIC: %s: %s", msg, it)
		} else {
			ulog.Printf("PANIC: %s", it)
		}
	}
}

//
// Log any panics in activity().
//
func LogPanicIn(msg string, activity func()) {
	defer func() {
		if it := recover(); it != nil {
			if 0 != len(msg) {
				ulog.Printf("PANIC: %s: %s", msg, it)
			} else {
				ulog.Printf("PANIC: %s", it)
			}
		}
	}()
	activity()
}

//
// Log any panics and exit the program.
//
// Use: defer usync.FatalPanic("msg")
//
func FatalPanic(msg string) {
	if it := recover(); it != nil {
		if 0 != len(msg) {
			ulog.Fatalf("PANIC: %s: %s", msg, it)
		} else {
			ulog.Fatalf("PANIC: %s", it)
		}
	}
}
