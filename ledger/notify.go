package ledger

// Sink receives notifications after the transition that raised them has
// been committed. Delivery (toast, OS notification, log) is the sink's job.
type Sink interface {
	Emit(text string, kind NotificationType)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(text string, kind NotificationType)

func (f SinkFunc) Emit(text string, kind NotificationType) { f(text, kind) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(string, NotificationType) {})
