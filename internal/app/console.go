package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_streamer/internal/imu"
	"github.com/relabs-tech/inertial_streamer/internal/orientation"
)

// consoleFilterAlpha weights the gyro in the console tilt estimate.
const consoleFilterAlpha = 0.98

// Console prints samples and a tilt estimate as they arrive.
type Console struct {
	out    io.Writer
	filter *orientation.Filter
	last   time.Time
	now    func() time.Time
}

// NewConsole returns a console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:    out,
		filter: orientation.NewFilter(consoleFilterAlpha),
		now:    time.Now,
	}
}

// Print writes one sample and the updated pose.
func (c *Console) Print(s imu.Sample) {
	now := c.now()
	var dt float64
	if !c.last.IsZero() {
		dt = now.Sub(c.last).Seconds()
	}
	c.last = now
	p := c.filter.Update(s, dt)

	fmt.Fprintf(c.out,
		"[IMU ] gx=%8.2f gy=%8.2f gz=%8.2f  ax=%6.3f ay=%6.3f az=%6.3f  temp=%5.2f\n",
		s.Gyro[0], s.Gyro[1], s.Gyro[2], s.Accel[0], s.Accel[1], s.Accel[2], s.Temp,
	)
	fmt.Fprintf(c.out, "[POSE] ROLL=%6.2f  PITCH=%6.2f\n", p.Roll, p.Pitch)
}

// Consume decodes back-to-back JSON samples from r until EOF. Frames carry
// no delimiter, so boundaries come from the JSON decoder itself; newline
// delimited streams decode the same way.
func (c *Console) Consume(r io.Reader) (int, error) {
	dec := json.NewDecoder(r)
	n := 0
	for {
		var s imu.Sample
		if err := dec.Decode(&s); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("decode stream: %w", err)
		}
		n++
		c.Print(s)
	}
}

// RunConsole subscribes to the sample server's /stream path at addr and
// prints every sample until ctx is done or the server closes the stream.
func RunConsole(ctx context.Context, addr string, out io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if _, err := io.WriteString(conn, "GET /stream HTTP/1.1\r\n\r\n"); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Printf("console: streaming from %s", addr)

	n, err := NewConsole(out).Consume(conn)
	if ctx.Err() != nil {
		err = nil
	}
	log.Printf("console: %d samples received", n)
	return err
}

// RunConsoleMQTT prints samples mirrored to topic on broker until ctx is done.
func RunConsoleMQTT(ctx context.Context, broker, clientID, topic string, out io.Writer) error {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", broker)

	samples := make(chan imu.Sample, 16)
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s imu.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: sample unmarshal error: %v", err)
			return
		}
		select {
		case samples <- s:
		default: // printer is behind; drop
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", topic)

	c := NewConsole(out)
	for {
		select {
		case <-ctx.Done():
			log.Println("console: shutting down")
			return nil
		case s := <-samples:
			c.Print(s)
		}
	}
}
