package domain

// StillImage is a single compressed frame extracted from the live stream
// for analysis.
type StillImage struct {
	MIMEType string
	Data     []byte
}

// Media is the assembled binary output of one recording cycle.
type Media struct {
	MIMEType string
	Data     []byte
}

// RecordedSession is an immutable, persisted bundle of recorded media and
// the chat transcript captured while recording. Chat is a snapshot taken
// when the recording stopped, never a live reference.
type RecordedSession struct {
	ID       int64
	Date     string
	MIMEType string
	Media    []byte
	Chat     []ChatMessage
}
