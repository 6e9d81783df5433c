package frameserver

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvVar names the environment variable that tells a child which inherited
// descriptors hold its segment and semaphores.
const EnvVar = "EVENTQ_FSRV"

// descriptors are the child's descriptor numbers for the shared segment and
// the semaphores guarding ring 0 and ring 1.
type descriptors struct {
	segment int
	in      int
	out     int
}

func (d descriptors) String() string {
	return fmt.Sprintf("%d,%d,%d", d.segment, d.in, d.out)
}

// descriptorsAt returns the numbering for three files appended to
// exec.Cmd.ExtraFiles after n existing ones.
func descriptorsAt(n int) descriptors {
	base := 3 + n
	return descriptors{segment: base, in: base + 1, out: base + 2}
}

func parseDescriptors(s string) (descriptors, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return descriptors{}, fmt.Errorf("%w: %q", ErrDescriptors, s)
	}
	var fds [3]int
	for i, p := range parts {
		fd, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || fd < 3 {
			return descriptors{}, fmt.Errorf("%w: %q", ErrDescriptors, s)
		}
		fds[i] = fd
	}
	return descriptors{segment: fds[0], in: fds[1], out: fds[2]}, nil
}
