package taskmgr

// Executable is a unit of work exposing an Exec capability.
type Executable interface {
	// Exec runs the work to completion on the scheduling goroutine.
	Exec()
}

// ExecFunc is a function type that implements the Executable interface.
type ExecFunc func()

// Exec implements the Executable interface for ExecFunc.
func (f ExecFunc) Exec() {
	f()
}

type callbackKind uint8

const (
	kindNone callbackKind = iota
	kindFunc
	kindExec
	kindEvent
)

func (k callbackKind) String() string {
	switch k {
	case kindFunc:
		return "func"
	case kindExec:
		return "exec"
	case kindEvent:
		return "event"
	default:
		return "none"
	}
}

// Callback is the work attached to a task slot: a plain function, an
// Executable, or an Event. The zero Callback is invalid.
type Callback struct {
	fn    func()
	exec  Executable
	event Event
	kind  callbackKind
}

// Func wraps a plain function.
func Func(fn func()) Callback {
	if fn == nil {
		return Callback{}
	}
	return Callback{kind: kindFunc, fn: fn}
}

// Exec wraps an Executable.
func Exec(e Executable) Callback {
	if e == nil {
		return Callback{}
	}
	return Callback{kind: kindExec, exec: e}
}

func eventCallback(ev Event) Callback {
	return Callback{kind: kindEvent, event: ev}
}

// Valid reports whether the callback carries any work.
func (c Callback) Valid() bool {
	return c.kind != kindNone
}

// run dispatches plain and Executable callbacks. Events are polled by
// Manager.invoke instead.
func (c Callback) run() {
	switch c.kind {
	case kindFunc:
		c.fn()
	case kindExec:
		c.exec.Exec()
	}
}
