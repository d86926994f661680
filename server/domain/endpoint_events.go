package domain

type endpointEventKind uint8

const (
	// unknown
	unknown endpointEventKind = iota

	// I/O
	evPong       // pong を受信した
	evReadError  // 読み込み失敗
	evWriteError // 書き込み失敗

	// ctrl
	evClose // セッション終了
	evIdle  // アイドル検知
)

func (k endpointEventKind) String() string {
	switch k {
	case evPong:
		return "pong"
	case evReadError:
		return "read_error"
	case evWriteError:
		return "write_error"
	case evClose:
		return "close"
	case evIdle:
		return "idle"
	default:
		return "unknown"
	}
}

type endpointEvent struct {
	kind endpointEventKind
	err  error
}
