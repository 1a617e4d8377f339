// Package files implements the process-wide observable registry: the
// thread-safe glue state shared by the advertiser, receiver, file
// server, downloader, and the presentation layer. Each task is handed the
// registry through a small interface of the methods it needs; it reads
// through channel endpoints obtained from Subscribe* at startup and
// publishes through Set*/Add* calls. The registry never calls back into a
// task.
package files

import (
	"sync"

	"github.com/jsamse/shary/internal/broadcast"
	"github.com/jsamse/shary/internal/latest"
	"github.com/jsamse/shary/internal/logger"
	"github.com/jsamse/shary/internal/wire"
)

// DownloadRequest is one pending (RemoteFile, destination) pair published
// on the downloads channel.
type DownloadRequest struct {
	Remote wire.RemoteFile
	Dest   string
}

// Files is the shared registry. The zero value is not usable; create one
// with New.
type Files struct {
	log logger.Logger

	localMu sync.Mutex
	local   []wire.LocalFile
	localV  *latest.Value[[]wire.LocalFile]

	remoteV *latest.Value[[]wire.RemoteFile]

	downloads *broadcast.Queue[DownloadRequest]

	statusMu sync.Mutex
	status   map[wire.RemoteFile]wire.DownloadStatus
	statusV  *latest.Value[map[wire.RemoteFile]wire.DownloadStatus]

	uploadRateV   *latest.Value[float64]
	downloadRateV *latest.Value[float64]
}

// New creates an empty registry. One instance is created at process
// start and lives until exit.
func New() *Files {
	f := &Files{
		log:           logger.New("files"),
		localV:        latest.NewValue[[]wire.LocalFile](nil),
		remoteV:       latest.NewValue[[]wire.RemoteFile](nil),
		status:        make(map[wire.RemoteFile]wire.DownloadStatus),
		uploadRateV:   latest.NewValue(0.0),
		downloadRateV: latest.NewValue(0.0),
	}
	f.statusV = latest.NewValue(copyStatusMap(f.status))
	f.downloads = broadcast.NewQueue[DownloadRequest](func(dropped uint64) {
		f.log.Warningf("dropped download request (downloader lagging), total dropped=%d", dropped)
	})
	return f
}

// AddLocalFile inserts a share iff no existing entry has the same Name.
// Returns whether the insertion happened; publishes a new snapshot only
// then.
func (f *Files) AddLocalFile(lf wire.LocalFile) bool {
	f.localMu.Lock()
	for _, existing := range f.local {
		if existing.Name == lf.Name {
			f.localMu.Unlock()
			return false
		}
	}
	f.local = append(f.local, lf)
	snapshot := cloneLocal(f.local)
	f.localMu.Unlock()

	f.localV.Set(snapshot)
	return true
}

// RemoveLocalFile removes the first entry equal to lf (both Path and
// Name), publishing a new snapshot only if something was actually
// removed.
func (f *Files) RemoveLocalFile(lf wire.LocalFile) bool {
	f.localMu.Lock()
	idx := -1
	for i, existing := range f.local {
		if existing == lf {
			idx = i
			break
		}
	}
	if idx == -1 {
		f.localMu.Unlock()
		return false
	}
	f.local = append(f.local[:idx], f.local[idx+1:]...)
	snapshot := cloneLocal(f.local)
	f.localMu.Unlock()

	f.localV.Set(snapshot)
	return true
}

// SubscribeLocalFiles returns a latest-value subscription to the ordered
// list of LocalFiles, plus a cancel function.
func (f *Files) SubscribeLocalFiles() (<-chan []wire.LocalFile, func()) {
	return f.localV.Subscribe()
}

// SubscribeRemoteFiles returns a latest-value subscription to the
// consolidated list of RemoteFiles, plus a cancel function.
func (f *Files) SubscribeRemoteFiles() (<-chan []wire.RemoteFile, func()) {
	return f.remoteV.Subscribe()
}

// SetRemoteFiles is called by the receiver to publish a new consolidated
// remote-file list. It always publishes, trusting the receiver to only
// call it on a real change.
func (f *Files) SetRemoteFiles(remote []wire.RemoteFile) {
	f.remoteV.Set(remote)
}

// AddDownload publishes a download request. If no downloader is
// attached, the publication is silently dropped.
func (f *Files) AddDownload(remote wire.RemoteFile, dest string) {
	f.downloads.Publish(DownloadRequest{Remote: remote, Dest: dest})
}

// SubscribeDownloads attaches the single download consumer. Calling this
// more than once concurrently is a programmer error; only one downloader
// task is ever expected to attach.
func (f *Files) SubscribeDownloads() (<-chan DownloadRequest, func()) {
	return f.downloads.Subscribe()
}

// SetDownloadStatus upserts (status != nil) or removes (status == nil)
// the status for remote, publishing the full map on every call.
func (f *Files) SetDownloadStatus(remote wire.RemoteFile, status *wire.DownloadStatus) {
	f.statusMu.Lock()
	if status == nil {
		delete(f.status, remote)
	} else {
		f.status[remote] = *status
	}
	snapshot := copyStatusMap(f.status)
	f.statusMu.Unlock()

	f.statusV.Set(snapshot)
}

// GetDownloadStatus is a point lookup against the latest status snapshot.
func (f *Files) GetDownloadStatus(remote wire.RemoteFile) (wire.DownloadStatus, bool) {
	status := f.statusV.Get()
	s, ok := status[remote]
	return s, ok
}

// SubscribeDownloadStatus returns a latest-value subscription to the full
// RemoteFile -> DownloadStatus map, plus a cancel function.
func (f *Files) SubscribeDownloadStatus() (<-chan map[wire.RemoteFile]wire.DownloadStatus, func()) {
	return f.statusV.Subscribe()
}

// SetUploadRate publishes the file server's current outbound transfer
// rate in bytes per second.
func (f *Files) SetUploadRate(bytesPerSecond float64) {
	f.uploadRateV.Set(bytesPerSecond)
}

// UploadRate returns the most recently published upload rate.
func (f *Files) UploadRate() float64 {
	return f.uploadRateV.Get()
}

// SubscribeUploadRate returns a latest-value subscription to the upload
// rate, plus a cancel function.
func (f *Files) SubscribeUploadRate() (<-chan float64, func()) {
	return f.uploadRateV.Subscribe()
}

// SetDownloadRate publishes the downloader's current inbound transfer
// rate in bytes per second.
func (f *Files) SetDownloadRate(bytesPerSecond float64) {
	f.downloadRateV.Set(bytesPerSecond)
}

// DownloadRate returns the most recently published download rate.
func (f *Files) DownloadRate() float64 {
	return f.downloadRateV.Get()
}

// SubscribeDownloadRate returns a latest-value subscription to the
// download rate, plus a cancel function.
func (f *Files) SubscribeDownloadRate() (<-chan float64, func()) {
	return f.downloadRateV.Subscribe()
}

func cloneLocal(in []wire.LocalFile) []wire.LocalFile {
	out := make([]wire.LocalFile, len(in))
	copy(out, in)
	return out
}

func copyStatusMap(in map[wire.RemoteFile]wire.DownloadStatus) map[wire.RemoteFile]wire.DownloadStatus {
	out := make(map[wire.RemoteFile]wire.DownloadStatus, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
