/*
Copyright © 2024 SUSE LLC
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/frametrace/frametrace-agent/pkg/status"
	"github.com/frametrace/frametrace-agent/pkg/streamer"
	"github.com/frametrace/frametrace-agent/pkg/wire"
)

// Client sends control requests to a Server over its unix socket, one
// connection per request.
type Client struct {
	dialer net.Dialer
	socket string
}

func NewClient(socket string) *Client {
	return &Client{
		dialer: net.Dialer{Timeout: 5 * time.Second},
		socket: socket,
	}
}

// Do sends req and returns the response. A non-success status is returned
// as a *StatusError along with the response.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	conn, err := c.dialer.DialContext(ctx, "unix", c.socket)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return Response{}, err
		}
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("sending %s request: %w", req.Op, err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("reading %s response: %w", req.Op, err)
	}
	if resp.Status != status.Success {
		return resp, &StatusError{Status: resp.Status, Message: resp.Error}
	}
	return resp, nil
}

// StartStreaming subscribes client to target and returns the segment name.
func (c *Client) StartStreaming(ctx context.Context, client streamer.ClientID, target streamer.TargetKey, playback wire.PlaybackFlags) (string, error) {
	resp, err := c.Do(ctx, Request{Op: OpStart, Client: client, Target: target, Playback: playback})
	return resp.Segment, err
}

func (c *Client) StopStreaming(ctx context.Context, id uint32) error {
	_, err := c.Do(ctx, Request{Op: OpStop, ID: id})
	return err
}

func (c *Client) StopStreamingFor(ctx context.Context, client streamer.ClientID, target streamer.TargetKey) error {
	_, err := c.Do(ctx, Request{Op: OpStopPair, Client: client, Target: target})
	return err
}

func (c *Client) StopAllStreams(ctx context.Context) error {
	_, err := c.Do(ctx, Request{Op: OpStopAll})
	return err
}

func (c *Client) Stats(ctx context.Context) ([]streamer.StreamStats, error) {
	resp, err := c.Do(ctx, Request{Op: OpStats})
	return resp.Streams, err
}
