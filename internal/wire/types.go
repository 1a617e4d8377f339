// Package wire holds the data model and on-the-wire formats shared by
// every task in the network core: LocalFile/RemoteFile/DownloadStatus,
// the AdvertisementPacket JSON framing, and the tar archive transfer
// format.
package wire

import "net/netip"

// LocalFile is a share offered by this host.
type LocalFile struct {
	// Path is the absolute filesystem path to the shared file or directory.
	Path string
	// Name is the terminal path component and the share's public identifier.
	// Unique within one host's set of LocalFiles (enforced on insertion by
	// internal/files.Files.AddLocalFile).
	Name string
}

// RemoteFile is a single share advertised by a peer. Addr is the peer's
// transfer endpoint (host + the well-known service port, not the
// ephemeral port the advertisement was sent from). netip.AddrPort is
// comparable, so RemoteFile itself is comparable and usable directly as
// a map key.
type RemoteFile struct {
	Addr netip.AddrPort
	File string
}

// StatusKind is the tag of a DownloadStatus.
type StatusKind int

const (
	// StatusRunning means a download session is in flight.
	StatusRunning StatusKind = iota
	// StatusCompleted means the archive was unpacked successfully.
	StatusCompleted
	// StatusFailed means the session aborted; Reason explains why.
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DownloadStatus is the tagged Running|Completed|Failed(reason) variant
// keyed by RemoteFile in internal/files.Files.
type DownloadStatus struct {
	Kind   StatusKind
	Reason string // only meaningful when Kind == StatusFailed
}

// Running reports a download session that has just started.
func Running() DownloadStatus { return DownloadStatus{Kind: StatusRunning} }

// Completed reports a download session that finished successfully.
func Completed() DownloadStatus { return DownloadStatus{Kind: StatusCompleted} }

// Failed reports a download session that aborted for the given reason.
func Failed(reason string) DownloadStatus {
	return DownloadStatus{Kind: StatusFailed, Reason: reason}
}

// AdvertisementPacket is the JSON payload of a single advertisement
// datagram: {"files": [name, ...]}. Unknown fields are ignored on
// receive by virtue of encoding/json's default decode behavior.
type AdvertisementPacket struct {
	Files []string `json:"files"`
}
