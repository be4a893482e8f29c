// Package channel provides the registry that serializes access to a
// conversation channel.
//
// A channel is a client-chosen identifier naming one logical conversation.
// At most one live connection may hold a channel at a time; the connection
// that holds it is the only writer of that channel's session record.
//
// Connection handlers use Claim and defer the returned release so the
// channel is freed on every exit path:
//
//	release, err := registry.Claim(ch)
//	if err != nil {
//		// reject with err.Error() as the close reason
//	}
//	defer release()
package channel
