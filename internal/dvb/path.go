package dvb

import "fmt"

// FrontendPath returns the device node for an adapter/frontend pair.
func FrontendPath(adapter, frontend int) string {
	return fmt.Sprintf("/dev/dvb/adapter%d/frontend%d", adapter, frontend)
}
