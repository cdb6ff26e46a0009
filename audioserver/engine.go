package audioserver

// CaptureConfig selects what the capture engine records. The core passes it
// through untouched; interpretation belongs to the engine.
type CaptureConfig struct {
	// EndpointID names the loopback endpoint or device to capture.
	EndpointID string
}

// AudioSink receives captured audio frames from the capture engine. The
// server implements AudioSink; the engine holds it as a non-owning handle and
// may call it from its own capture thread.
type AudioSink interface {
	// BroadcastAudioData publishes one run of captured audio bytes.
	// blockAlign is the byte size of one indivisible sample group.
	BroadcastAudioData(data []byte, blockAlign int)
}

// CaptureEngine is the server-side audio collaborator contract: the subsystem
// that records system loopback audio and owns the format descriptor.
type CaptureEngine interface {
	// StartLoopbackRecording begins emitting audio frames by calling
	// sink.BroadcastAudioData. It returns an error if capture cannot start.
	StartLoopbackRecording(sink AudioSink, cfg CaptureConfig) error

	// Stop ceases emission. It is idempotent.
	Stop()

	// GetFormatBinary returns the serialized audio format descriptor
	// shipped to clients in the GET_FORMAT response.
	GetFormatBinary() ([]byte, error)
}
