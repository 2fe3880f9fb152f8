package naming

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidName is returned by ParseURL when the input is not a
// well-formed resource URL of one of the three supported schemes.
var ErrInvalidName = errors.New("naming: invalid resource name")

// URL renders r in its canonical string form:
//
//	file:///<path>
//	stream://<local_socket>::<peer_socket>
//	process://<pid>;<start>;<exe>
func (r Resource) URL() string {
	switch r.Kind {
	case KindFile:
		return "file://" + ensureLeadingSlash(r.File.Path)
	case KindStream:
		return fmt.Sprintf("stream://%s::%s", r.Stream.LocalSocket, r.Stream.PeerSocket)
	case KindProcess:
		return fmt.Sprintf("process://%d;%d;%s", r.Process.PID, r.Process.StartTime, r.Process.ExePath)
	default:
		return ""
	}
}

func ensureLeadingSlash(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}

// ParseURL parses the canonical resource URL forms accepted by the O2M and
// CLI-facing surfaces back into a Resource. It fails with ErrInvalidName on
// an unrecognised scheme or a malformed body.
func ParseURL(raw string) (Resource, error) {
	switch {
	case strings.HasPrefix(raw, "file://"):
		path := strings.TrimPrefix(raw, "file://")
		if path == "" {
			return Resource{}, errors.Wrapf(ErrInvalidName, "empty file path in %q", raw)
		}
		return NewFile(path), nil

	case strings.HasPrefix(raw, "stream://"):
		body := strings.TrimPrefix(raw, "stream://")
		parts := strings.SplitN(body, "::", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return Resource{}, errors.Wrapf(ErrInvalidName, "malformed stream sockets in %q", raw)
		}
		return NewStream(parts[0], parts[1]), nil

	case strings.HasPrefix(raw, "process://"):
		body := strings.TrimPrefix(raw, "process://")
		parts := strings.SplitN(body, ";", 3)
		if len(parts) != 3 {
			return Resource{}, errors.Wrapf(ErrInvalidName, "malformed process tuple in %q", raw)
		}
		pid, err := strconv.ParseInt(parts[0], 10, 32)
		if err != nil {
			return Resource{}, errors.Wrapf(ErrInvalidName, "invalid pid in %q", raw)
		}
		start, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return Resource{}, errors.Wrapf(ErrInvalidName, "invalid start time in %q", raw)
		}
		return NewProcess(int32(pid), start, parts[2]), nil

	default:
		return Resource{}, errors.Wrapf(ErrInvalidName, "unrecognised scheme in %q", raw)
	}
}
