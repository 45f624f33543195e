package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"station-tracker/internal/store"
	"station-tracker/internal/transit"
)

// Metrics is the subset of the metrics collector the publisher reports to.
type Metrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSSetConnected(connected bool)
}

// NATSPublisher re-broadcasts every station snapshot write to NATS so
// consumers outside the process can follow station/route updates.
type NATSPublisher struct {
	nc            *nats.Conn
	subjectPrefix string
	metrics       Metrics
}

// SnapshotMessage is the wire form of a station snapshot.
type SnapshotMessage struct {
	Station        *transit.Station `json:"station"`
	ArrivingRoutes []transit.Route  `json:"arrivingRoutes"`
	LastUpdated    *time.Time       `json:"lastUpdated"`
}

func NewNATSPublisher(url, subjectPrefix string, m Metrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("station-tracker"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, subjectPrefix: subjectPrefix, metrics: m}, nil
}

// Attach subscribes the publisher to the station store; every write is
// published as it lands. The returned disposer detaches it.
func (p *NATSPublisher) Attach(st *store.Station) func() {
	return st.Subscribe(func() {
		snap := st.Current()
		if err := p.PublishSnapshot(snap); err != nil {
			log.Printf("snapshot publish error: %v", err)
		}
	})
}

// PublishSnapshot publishes one snapshot. The subject carries the station
// id (<prefix>.station.<id>), or <prefix>.none while no station is known.
func (p *NATSPublisher) PublishSnapshot(snap transit.StationSnapshot) error {
	subject := p.subjectPrefix + ".none"
	if snap.Station != nil {
		subject = fmt.Sprintf("%s.station.%s", p.subjectPrefix, subjectToken(fmt.Sprintf("%d", snap.Station.ID)))
	}

	msg := SnapshotMessage{
		Station:        snap.Station,
		ArrivingRoutes: snap.ArrivingRoutes,
		LastUpdated:    snap.LastUpdated,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
