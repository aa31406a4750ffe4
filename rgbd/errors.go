package rgbd

import "errors"

var (
	ErrClosed                  = errors.New("session is closed")
	ErrNotReady                = errors.New("no frames received before startup timeout")
	ErrShortBuffer             = errors.New("destination buffer is too small")
	ErrStreamDisabled          = errors.New("stream is disabled")
	ErrInvalidParams           = errors.New("invalid session parameters")
	ErrNoDevice                = errors.New("no device found")
	ErrUnsupportedMode         = errors.New("unsupported stream mode")
	ErrUnsupportedRegistration = errors.New("unsupported registration direction")
	ErrInterrupted             = errors.New("wait interrupted")
	ErrNoFrame                 = errors.New("no frame available on stream")
	ErrFrameSize               = errors.New("frame size does not match stream geometry")
)
