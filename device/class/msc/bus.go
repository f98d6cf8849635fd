package msc

import "github.com/ardnew/softusb/device"

// endpointBus adapts a pair of bulk endpoints on a device.Stack into the
// non-blocking bbb.Bus collaborator the transport drives. Every method
// must return immediately; Stack.TryRead/TryWrite already translate a
// would-block outcome from the HAL into pkg.ErrNAK.
type endpointBus struct {
	stack *device.Stack
	in    *device.Endpoint
	out   *device.Endpoint
}

func (b *endpointBus) ReadPacket(buf []byte) (int, error) {
	return b.stack.TryRead(b.out, buf)
}

func (b *endpointBus) WritePacket(buf []byte) (int, error) {
	return b.stack.TryWrite(b.in, buf)
}

func (b *endpointBus) MaxPacketSize() uint16 {
	return b.out.MaxPacketSize
}

func (b *endpointBus) StallIn()    { _ = b.stack.StallEndpoint(b.in) }
func (b *endpointBus) StallOut()   { _ = b.stack.StallEndpoint(b.out) }
func (b *endpointBus) UnstallIn()  { _ = b.stack.UnstallEndpoint(b.in) }
func (b *endpointBus) UnstallOut() { _ = b.stack.UnstallEndpoint(b.out) }
