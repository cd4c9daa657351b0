package provider

import "context"

// OneShotStream synthesizes a stream from a synchronous Generate call:
// the complete text arrives as a single fragment followed by immediate
// completion. The gateway uses it to serve Stream entry points for
// providers whose capability set lacks native streaming, replacing the
// inheritance-style "default stream method" pattern with plain adaptation.
func OneShotStream(ctx context.Context, p Provider, req *Request) (<-chan Event, error) {
	reqCopy := *req
	reqCopy.Stream = false

	result, err := p.Generate(ctx, &reqCopy)
	if err != nil {
		return nil, err
	}

	ch := make(chan Event, 2)
	ch <- Event{Type: EventTextDelta, Delta: result.Text, Seq: 1}
	ch <- Event{Type: EventDone, Seq: 2}
	close(ch)
	return ch, nil
}
