package mailer

// Sender delivers a single email through a concrete transport. The retry
// core never talks to a transport directly; it only sees closures built on
// top of a Sender.
type Sender interface {
	Send(to, subject, body string) error
	// Name identifies the transport on failure records, e.g. "smtp".
	Name() string
}
