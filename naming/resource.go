// Package naming defines the canonical identification scheme for resources
// tracked by the traceability engine: processes, files, and network stream
// endpoints.
package naming

import "fmt"

// Kind discriminates the variant held by a Resource.
type Kind uint8

const (
	// KindNone is the zero value and never denotes a real resource.
	KindNone Kind = iota
	KindProcess
	KindFile
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindProcess:
		return "process"
	case KindFile:
		return "file"
	case KindStream:
		return "stream"
	default:
		return "none"
	}
}

// Process identifies a running local process. StartTime disambiguates
// recycled PIDs: two Process values are equal iff PID, StartTime and
// ExePath all match.
type Process struct {
	PID       int32
	StartTime uint64
	ExePath   string
}

// File identifies a filesystem object by its absolute, canonicalised path.
type File struct {
	Path string
}

// Stream identifies one directional endpoint of a network connection. The
// pair (Local, Peer) is ordered; the reciprocal endpoint on the peer node is
// (Peer, Local).
type Stream struct {
	LocalSocket string
	PeerSocket  string
}

// Resource is a tagged variant identifying one traceable entity: a Process,
// a File, or a Stream endpoint. Resource is comparable and safe to use as a
// map key; only the fields matching Kind are meaningful.
type Resource struct {
	Kind    Kind
	Process Process
	File    File
	Stream  Stream
}

// NewProcess returns a Resource identifying a running process.
func NewProcess(pid int32, startTime uint64, exePath string) Resource {
	return Resource{Kind: KindProcess, Process: Process{PID: pid, StartTime: startTime, ExePath: exePath}}
}

// NewFile returns a Resource identifying a file at an absolute path.
func NewFile(path string) Resource {
	return Resource{Kind: KindFile, File: File{Path: path}}
}

// NewStream returns a Resource identifying one directional stream endpoint.
func NewStream(localSocket, peerSocket string) Resource {
	return Resource{Kind: KindStream, Stream: Stream{LocalSocket: localSocket, PeerSocket: peerSocket}}
}

// IsFile reports whether r is a File resource.
func (r Resource) IsFile() bool { return r.Kind == KindFile }

// IsStream reports whether r is a Stream resource.
func (r Resource) IsStream() bool { return r.Kind == KindStream }

// IsProcess reports whether r is a Process resource.
func (r Resource) IsProcess() bool { return r.Kind == KindProcess }

// Reciprocal returns the opposite endpoint of a Stream resource, i.e. the
// identifier the peer node would use for the same connection. It panics if r
// is not a Stream; callers must guard with IsStream.
func (r Resource) Reciprocal() Resource {
	if r.Kind != KindStream {
		panic("naming: Reciprocal called on non-stream Resource")
	}
	return NewStream(r.Stream.PeerSocket, r.Stream.LocalSocket)
}

// String returns a human-readable representation, used for logging and
// error messages. It is not the canonical URL form; use URL for that.
func (r Resource) String() string {
	switch r.Kind {
	case KindProcess:
		return fmt.Sprintf("Process{pid=%d, start=%d, exe=%q}", r.Process.PID, r.Process.StartTime, r.Process.ExePath)
	case KindFile:
		return fmt.Sprintf("File{%s}", r.File.Path)
	case KindStream:
		return fmt.Sprintf("Stream{%s -> %s}", r.Stream.LocalSocket, r.Stream.PeerSocket)
	default:
		return "None"
	}
}

// LocalizedResource is a Resource qualified by the node that created it.
// Provenance sets are sets of LocalizedResource.
type LocalizedResource struct {
	Node     string
	Resource Resource
}

func (lr LocalizedResource) String() string {
	return fmt.Sprintf("%s@%s", lr.Resource, lr.Node)
}
