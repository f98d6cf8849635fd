package subclass

import (
	"errors"

	"github.com/ardnew/softusb/bbb"
)

// Poll implements the outer poll-loop contract shared by the SCSI and
// UFI drivers: pump the transport once in both directions, then — if a
// command has been parsed and no status is latched yet — parse its
// command block with parse and invoke callback. After the callback
// returns, Write is driven again; ErrFullPacketExpected sends the loop
// back into the callback so more data can be supplied, any other
// non-progress outcome drives Read once and returns.
func Poll[Kind any, Class any](
	transport *bbb.BulkOnly,
	class Class,
	parse func(cb []byte) Kind,
	callback func(Command[Kind, Class]),
) error {
	if err := transport.Read(); err != nil && !IgnoreProgress(err) {
		return err
	}
	if err := transport.Write(); err != nil && !IgnoreProgress(err) {
		return err
	}

	cbw, ok := transport.GetCommand()
	if !ok || transport.HasStatus() {
		return nil
	}

	lun := cbw.LUN
	kind := parse(cbw.Bytes())

	for {
		callback(New(class, kind, lun, transport))

		err := transport.Write()
		if errors.Is(err, bbb.ErrFullPacketExpected) {
			continue
		}
		if err != nil && !IgnoreProgress(err) {
			return err
		}

		if rerr := transport.Read(); rerr != nil && !IgnoreProgress(rerr) {
			return rerr
		}
		break
	}

	return nil
}
