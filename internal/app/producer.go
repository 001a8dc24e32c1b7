package app

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/inertial_streamer/internal/imu"
	"github.com/relabs-tech/inertial_streamer/internal/stream"
)

// SampleSource produces one full sensor cycle per call.
type SampleSource interface {
	ReadSample() (imu.Sample, error)
}

// SamplePublisher mirrors samples to a secondary transport.
type SamplePublisher interface {
	Publish(s imu.Sample) error
}

// Producer is the sample loop: read, broadcast, mirror, log.
type Producer struct {
	src         SampleSource
	b           *stream.Broadcaster
	pub         SamplePublisher
	interval    time.Duration
	logInterval time.Duration

	lastLog time.Time
	latest  atomic.Pointer[imu.Sample]
}

// NewProducer returns a Producer. pub may be nil. A logInterval of zero
// disables the periodic sample log line.
func NewProducer(src SampleSource, b *stream.Broadcaster, pub SamplePublisher, interval, logInterval time.Duration) *Producer {
	return &Producer{
		src:         src,
		b:           b,
		pub:         pub,
		interval:    interval,
		logInterval: logInterval,
	}
}

// Run ticks every interval until ctx is done. A failed tick is logged and
// skipped whatever its policy. Range codes are checked once by PrepareSensor;
// a bad code seen later, after a raw register write or a bus glitch, is
// refetched on the next tick.
func (p *Producer) Run(ctx context.Context) error {
	log.Printf("producer: sampling every %v", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			if err := p.Tick(t); err != nil {
				log.Printf("producer: %s: %v", runtimePolicy(err), err)
			}
		}
	}
}

// Tick performs one cycle. A read error skips the broadcast and is returned;
// delivery and mirror failures are logged and do not fail the tick.
func (p *Producer) Tick(t time.Time) error {
	s, err := p.src.ReadSample()
	if err != nil {
		return err
	}
	p.latest.Store(&s)

	if _, err := p.b.Broadcast(s); err != nil {
		log.Printf("producer: broadcast: %v", err)
	}
	if p.pub != nil {
		if err := p.pub.Publish(s); err != nil {
			log.Printf("producer: publish: %v", err)
		}
	}

	if p.logInterval > 0 && t.Sub(p.lastLog) >= p.logInterval {
		p.lastLog = t
		log.Printf("%s tick: gyro x=%.2f y=%.2f z=%.2f | accel x=%.3f y=%.3f z=%.3f | temp=%.2f | clients=%d",
			t.Format(time.RFC3339),
			s.Gyro[0], s.Gyro[1], s.Gyro[2],
			s.Accel[0], s.Accel[1], s.Accel[2],
			s.Temp,
			p.b.Registry().Len(),
		)
	}
	return nil
}

func runtimePolicy(err error) Action {
	if a := PolicyFor(err); a != Fatal {
		return a
	}
	return SkipTick
}

// Latest returns the most recent sample, if any tick has succeeded.
func (p *Producer) Latest() (imu.Sample, bool) {
	s := p.latest.Load()
	if s == nil {
		return imu.Sample{}, false
	}
	return *s, true
}
