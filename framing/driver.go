package framing

import "github.com/joeycumines/asyncrt/future"

// PipelinedConn drives one connection end-to-end against a
// PipelinedServer: pull inbound frames and dispatch them, encode and
// flush outbound responses in request order, and tear down cleanly on
// EOF (spec.md §4.15's driver loop).
type PipelinedConn[Req, Resp any] struct {
	stream *FramedStream[Req]
	sink   *FramedSink[Resp]
	disp   *PipelinedServer[Req, Resp]

	readEOF     bool
	writeEOF    bool
	pendingResp bool
}

// NewPipelinedConn builds a driver reading frames from stream,
// dispatching them through disp, and writing responses to sink.
func NewPipelinedConn[Req, Resp any](stream *FramedStream[Req], sink *FramedSink[Resp], disp *PipelinedServer[Req, Resp]) *PipelinedConn[Req, Resp] {
	return &PipelinedConn[Req, Resp]{stream: stream, sink: sink, disp: disp}
}

// Poll implements future.Future[struct{}], resolving once both the
// read and write sides have closed (spec.md §4.15 steps 1-5).
func (c *PipelinedConn[Req, Resp]) Poll(w *future.Waker) future.Poll[struct{}] {
	for {
		progressed := false

		for !c.readEOF && !c.disp.Full() {
			p := c.stream.Poll(w)
			if p.IsNotReady() {
				break
			}
			if p.IsErr() {
				err, _ := p.Error()
				c.disp.Cancel()
				return future.Err[struct{}](err)
			}
			opt, _ := p.Value()
			item, ok := opt.Get()
			if !ok {
				c.readEOF = true
				break
			}
			c.disp.Dispatch(item)
			progressed = true
		}

		for !c.writeEOF {
			if !c.pendingResp {
				rp, ok := c.disp.Poll(w)
				if !ok {
					break
				}
				if rp.IsErr() {
					err, _ := rp.Error()
					c.disp.Cancel()
					return future.Err[struct{}](err)
				}
				resp, _ := rp.Value()
				if err := c.sink.StartSend(resp); err != nil {
					c.disp.Cancel()
					return future.Err[struct{}](err)
				}
				c.pendingResp = true
				progressed = true
			}
			cp := c.sink.PollComplete(w)
			if cp.IsNotReady() {
				break
			}
			c.pendingResp = false
			if cp.IsErr() {
				err, _ := cp.Error()
				c.disp.Cancel()
				return future.Err[struct{}](err)
			}
			progressed = true
		}

		if c.readEOF && !c.writeEOF && c.disp.Len() == 0 && !c.pendingResp {
			c.writeEOF = true
			progressed = true
		}

		if c.readEOF && c.writeEOF {
			c.disp.Cancel()
			return future.Ready(struct{}{})
		}

		if !progressed {
			return future.NotReady[struct{}]()
		}
	}
}
