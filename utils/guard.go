package utils

// Guard runs a cleanup only when a function that acquires a resource fails before handing the
// resource off. Usage:
//
//	guard := NewGuard(func() { stream.Close() })
//	defer guard.OnFail()
//	if err != nil { return err }
//	guard.Success()
//	return nil
type Guard struct {
	OnFail  func()
	success bool
}

// NewGuard returns a NewGuard.
func NewGuard(onFailCleanup func()) *Guard {
	ret := &Guard{}
	ret.OnFail = func() {
		if !ret.success {
			onFailCleanup()
		}
	}
	return ret
}

// Success declares the function succeeded and the "failure" cleanup code does not need to be
// executed.
func (guard *Guard) Success() {
	guard.success = true
}
