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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/Masterminds/log-go"
	"github.com/frametrace/frametrace-agent/pkg/status"
	"github.com/frametrace/frametrace-agent/pkg/streamer"
	"github.com/frametrace/frametrace-agent/pkg/wire"
)

// Controller is the part of the streamer driven by remote clients.
type Controller interface {
	StartStreaming(client streamer.ClientID, target streamer.TargetKey, playback wire.PlaybackFlags) (string, error)
	StopStreaming(id uint32) error
	StopStreamingFor(client streamer.ClientID, target streamer.TargetKey) error
	StopAllStreams() error
	Stats() []streamer.StreamStats
}

// Server accepts control connections and applies their requests to a
// Controller. A connection may carry any number of requests.
type Server struct {
	controller Controller
	listener   net.Listener
	quit       chan struct{}
	wg         sync.WaitGroup
}

func NewServer(listener net.Listener, controller Controller) *Server {
	return &Server{
		controller: controller,
		listener:   listener,
		quit:       make(chan struct{}),
	}
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() error {
	log.Infof("control server accepting on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				log.Debug("received a quit signal, exiting out of accept loop")
				return nil
			default:
				return fmt.Errorf("failed to accept connection: %w", err)
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Errorf("control server decoding request: %s", err)
			}
			return
		}
		if err := encoder.Encode(s.dispatch(req)); err != nil {
			log.Errorf("control server encoding response: %s", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	log.Debugf("control request: %+v", req)

	var (
		resp Response
		err  error
	)
	switch req.Op {
	case OpStart:
		resp.Segment, err = s.controller.StartStreaming(req.Client, req.Target, req.Playback)
	case OpStop:
		err = s.controller.StopStreaming(req.ID)
	case OpStopPair:
		err = s.controller.StopStreamingFor(req.Client, req.Target)
	case OpStopAll:
		err = s.controller.StopAllStreams()
	case OpStats:
		resp.Streams = s.controller.Stats()
	default:
		return Response{Status: status.Failure, Error: fmt.Sprintf("unknown operation %q", req.Op)}
	}

	resp.Status = streamer.StatusOf(err)
	if err != nil {
		resp.Error = err.Error()
		log.Debugf("control request %s failed: %s", req.Op, err)
	}
	return resp
}

// Close stops accepting and waits for open connections to finish.
func (s *Server) Close() error {
	close(s.quit)
	err := s.listener.Close()
	s.wg.Wait()
	return err
}
