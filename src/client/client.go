package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"time"

	"dpcqueue/src/model"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// A QUIC connection to a DPC server. Every call uses its own stream.
type Client struct {
	connection quic.Connection
	log        *zap.Logger
}

// Connects to addr. The server certificate is not verified.
func Dial(ctx context.Context, addr string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{model.NextProto},
	}
	config := &quic.Config{
		MaxIdleTimeout:       5 * time.Minute,
		HandshakeIdleTimeout: 10 * time.Second,
	}
	connection, err := quic.DialAddr(ctx, addr, tlsConf, config)
	if err != nil {
		return nil, err
	}

	return &Client{connection: connection, log: log}, nil
}

func (c *Client) Close() error {
	return c.connection.CloseWithError(0, "")
}

// Sends req and waits for its response. A request without an ID gets one.
func (c *Client) Call(ctx context.Context, req *model.DpcRequest) (*model.DpcResponse, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	stream, err := c.connection.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.CancelRead(0)

	if err := req.Write(stream); err != nil {
		return nil, err
	}
	// Closes the send direction only
	if err := stream.Close(); err != nil {
		return nil, err
	}

	res, err := model.ReadDpcResponse(bufio.NewReader(stream))
	if err != nil {
		return nil, err
	}

	c.log.Debug("response",
		zap.Stringer("id", res.ID),
		zap.Stringer("level", res.Priority),
		zap.String("status", string(res.Status)),
		zap.Int("bytes", len(res.Data)),
	)
	return res, nil
}

// Sends every request with at most concurrency calls in flight. Responses
// are returned in request order. The first transport error cancels the rest.
func (c *Client) CallAll(ctx context.Context, reqs []*model.DpcRequest, concurrency int) ([]*model.DpcResponse, error) {
	responses := make([]*model.DpcResponse, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := c.Call(ctx, req)
			if err != nil {
				return err
			}
			responses[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}
