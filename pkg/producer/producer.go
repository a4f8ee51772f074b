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

// Package producer drives a Streamer with generated present events, matched
// against recorded device telemetry. It stands in for a capture pipeline.
package producer

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/log-go"
	"golang.org/x/sync/errgroup"

	"github.com/frametrace/frametrace-agent/pkg/frame"
	"github.com/frametrace/frametrace-agent/pkg/history"
	"github.com/frametrace/frametrace-agent/pkg/streamer"
	"github.com/frametrace/frametrace-agent/pkg/telemetry"
)

// Sink receives present events.
type Sink interface {
	ProcessPresentEvent(rec *frame.Record, gpu *telemetry.GpuSample, cpu *telemetry.CpuSample,
		gpuCaps telemetry.GpuCaps, cpuCaps telemetry.CpuCaps) error
}

type Config struct {
	PID         uint32
	Application string
	// FrameInterval is the time between two presents.
	FrameInterval time.Duration
	// PollInterval is the time between two telemetry samples.
	PollInterval time.Duration
	Fans         int
	// Clock returns QPC values. It defaults to nanoseconds since New.
	Clock telemetry.Clock
}

// Producer generates one present per frame interval.
type Producer struct {
	cfg  Config
	sink Sink
	gpu  *telemetry.Recorder[telemetry.Gpu, telemetry.GpuField]
	cpu  *telemetry.Recorder[telemetry.Cpu, telemetry.CpuField]

	frameID uint32
}

func New(sink Sink, cfg Config) *Producer {
	if cfg.Clock == nil {
		start := time.Now()
		cfg.Clock = func() uint64 { return uint64(time.Since(start).Nanoseconds()) }
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = time.Second / 60
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	return &Producer{
		cfg:  cfg,
		sink: sink,
		gpu: telemetry.NewRecorder("gpu",
			&telemetry.SyntheticGpu{Clock: cfg.Clock, Fans: cfg.Fans}, history.DefaultCapacity),
		cpu: telemetry.NewRecorder("cpu",
			&telemetry.SyntheticCpu{Clock: cfg.Clock}, history.DefaultCapacity),
	}
}

// Run samples telemetry and presents frames until ctx is done.
func (p *Producer) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return p.gpu.Run(ctx, p.cfg.PollInterval) })
	group.Go(func() error { return p.cpu.Run(ctx, p.cfg.PollInterval) })
	group.Go(func() error {
		ticker := time.NewTicker(p.cfg.FrameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := p.Present(); err != nil {
					log.Debugf("synthetic present for pid %d: %s", p.cfg.PID, err)
				}
			}
		}
	})
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Present generates a single frame and hands it to the sink with the
// telemetry sampled closest to its present time.
func (p *Producer) Present() error {
	now := p.cfg.Clock()
	p.frameID++
	interval := uint64(p.cfg.FrameInterval.Nanoseconds())

	rec := &frame.Record{
		Timing: frame.Timing{
			PresentStartTime: now,
			TimeInPresent:    interval / 20,
			GPUStartTime:     now + interval/10,
			ReadyTime:        now + interval/2,
			GPUDuration:      interval / 3,
		},
		Properties: frame.Properties{
			ProcessID:         p.cfg.PID,
			FrameID:           p.frameID,
			SyncInterval:      1,
			Runtime:           frame.RuntimeDXGI,
			PresentMode:       frame.PresentModeHardwareIndependentFlip,
			FinalState:        frame.PresentResultPresented,
			FrameType:         frame.FrameTypeApplication,
			GpuFrameCompleted: true,
			IsCompleted:       true,
		},
		Displayed: []frame.Displayed{
			{Type: frame.FrameTypeApplication, ScreenTime: now + interval},
		},
		Application: p.cfg.Application,
	}

	var (
		gpu     *telemetry.GpuSample
		cpu     *telemetry.CpuSample
		gpuCaps telemetry.GpuCaps
		cpuCaps telemetry.CpuCaps
	)
	if sample, ok := p.gpu.Closest(now); ok {
		gpu, gpuCaps = &sample, sample.Caps
	}
	if sample, ok := p.cpu.Closest(now); ok {
		cpu, cpuCaps = &sample, sample.Caps
	}
	return p.sink.ProcessPresentEvent(rec, gpu, cpu, gpuCaps, cpuCaps)
}

var _ Sink = (*streamer.Streamer)(nil)
