package rtc

import (
	"github.com/pion/webrtc/v4"
)

// dataConn is a data connection backed by one data channel labelled with
// the connection id.
type dataConn struct {
	*connection

	dc     *webrtc.DataChannel
	opened bool
	onOpen func()
	onData func([]byte)
}

func newDataConn(c *connection) *dataConn {
	return &dataConn{connection: c}
}

// OnOpen sets the open handler; it runs at once if the channel is open.
func (d *dataConn) OnOpen(fn func()) {
	d.mu.Lock()
	d.onOpen = fn
	opened := d.opened
	d.mu.Unlock()

	if opened && fn != nil {
		fn()
	}
}

func (d *dataConn) OnData(fn func([]byte)) {
	d.mu.Lock()
	d.onData = fn
	d.mu.Unlock()
}

func (d *dataConn) Send(payload []byte) error {
	d.mu.Lock()
	dc := d.dc
	d.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotOpen
	}
	return dc.Send(payload)
}

func (d *dataConn) attach(dc *webrtc.DataChannel) {
	d.mu.Lock()
	d.dc = dc
	d.mu.Unlock()

	dc.OnOpen(func() {
		d.logger.Info().Str("label", dc.Label()).Msg("data channel open")
		d.mu.Lock()
		d.opened = true
		cb := d.onOpen
		d.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		d.mu.Lock()
		cb := d.onData
		d.mu.Unlock()
		if cb != nil {
			cb(msg.Data)
		}
	})
	dc.OnError(d.fail)
	dc.OnClose(func() { go d.shutdown(false) })
}
