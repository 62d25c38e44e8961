package capture

import "errors"

var (
	// ErrTooShort is returned by End when the gesture was shorter than the
	// minimum hold. Nothing is recorded and the user is not told.
	ErrTooShort = errors.New("recording shorter than minimum hold")

	// ErrStaleAcquisition is returned when a stream resolved after a newer
	// acquisition or a cancel. The late stream has already been stopped.
	ErrStaleAcquisition = errors.New("stale microphone acquisition")

	// ErrNoActiveSession is returned by End without a live session.
	ErrNoActiveSession = errors.New("no active capture session")

	// ErrSessionActive is returned by Begin while a session is live.
	ErrSessionActive = errors.New("capture session already active")

	// ErrNotArmed is returned by Begin before permission was granted.
	ErrNotArmed = errors.New("microphone permission not granted")

	// ErrPermissionDenied is returned by a Microphone when access is refused.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrNoDevice is returned by a Microphone when no capture device exists.
	ErrNoDevice = errors.New("no capture device")

	// ErrWAVSizeMismatch marks a WAV blob whose size disagrees with its
	// sample count. Such a blob is never sent.
	ErrWAVSizeMismatch = errors.New("wav blob size mismatch")

	// ErrEncoderFailed is returned when a container encoder produced no data.
	ErrEncoderFailed = errors.New("encoder failed")

	// ErrUnsupportedType is returned for a container the encoder lacks.
	ErrUnsupportedType = errors.New("unsupported recording type")
)
