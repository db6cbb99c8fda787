// Package fabric builds the typed channels that connect the robot's
// processes and routes messages over them.
package fabric

import (
	"context"
	"fmt"
	"sort"
	"sync"

	rc "robot_control"
	"robot_control/internal/models"
)

// ConfigError is a topology or type map mismatch. It is fatal at startup.
type ConfigError struct {
	Subject string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("topology %s: %s", e.Subject, e.Reason)
}

func channelErr(c models.Channel, format string, args ...any) error {
	return &ConfigError{Subject: fmt.Sprintf("channel %d (%s)", c.ID, c.Description), Reason: fmt.Sprintf(format, args...)}
}

// route is a built channel.
type route struct {
	ch    models.Channel
	queue *Queue
	kinds KindSet
}

// Fabric holds the queues of one topology.
type Fabric struct {
	types     TypeMap
	processes map[int]models.Process
	routes    []route // active channels in topology order
	byID      map[int]*Queue
	inboxes   map[int]*Queue
	feeds     map[*Queue][]*Queue // merged inbox -> queues forwarded into it
}

// Build creates a queue per channel, or reuses the queue of the channel named
// by ShareQueue. Channels touching a disabled process are built but never
// routed to.
func Build(top models.Topology, types TypeMap) (*Fabric, error) {
	f := &Fabric{
		types:     types,
		processes: make(map[int]models.Process, len(top.Processes)),
		byID:      make(map[int]*Queue, len(top.Channels)),
		inboxes:   make(map[int]*Queue, len(top.Processes)),
		feeds:     make(map[*Queue][]*Queue),
	}

	for _, p := range top.Processes {
		if p.ID == models.RobotProcessID {
			return nil, &ConfigError{Subject: fmt.Sprintf("process %q", p.Name), Reason: "id 0 is reserved for the robot"}
		}
		if _, dup := f.processes[p.ID]; dup {
			return nil, &ConfigError{Subject: fmt.Sprintf("process %d", p.ID), Reason: "duplicate id"}
		}
		f.processes[p.ID] = p
	}

	for _, c := range top.Channels {
		if _, dup := f.byID[c.ID]; dup || c.ID <= 0 {
			return nil, channelErr(c, "id must be positive and unique")
		}
		kinds, ok := types[c.Type]
		if !ok {
			return nil, channelErr(c, "unknown channel type %q", c.Type)
		}
		if c.Direction != models.DirectionSend && c.Direction != models.DirectionReceive {
			return nil, channelErr(c, "unknown direction %q", c.Direction)
		}
		if c.Protocol != "" && c.Protocol != models.ProtocolQueue {
			return nil, channelErr(c, "unsupported protocol %q", c.Protocol)
		}
		for _, end := range []int{c.Source, c.Target} {
			if _, known := f.processes[end]; !known && end != models.RobotProcessID {
				return nil, channelErr(c, "unknown process %d", end)
			}
		}

		q := NewQueue()
		if c.ShareQueue != 0 {
			shared, ok := f.byID[c.ShareQueue]
			if !ok {
				return nil, channelErr(c, "share_queue %d does not name an earlier channel", c.ShareQueue)
			}
			q = shared
		}
		f.byID[c.ID] = q

		if f.enabled(c.Source) && f.enabled(c.Target) {
			f.routes = append(f.routes, route{ch: c, queue: q, kinds: kinds})
		}
	}

	for id := range f.processes {
		f.inboxes[id] = f.inbox(id)
	}
	return f, nil
}

func (f *Fabric) enabled(process int) bool {
	if process == models.RobotProcessID {
		return true
	}
	return f.processes[process].Enabled
}

// Processes returns the enabled worker processes ordered by id.
func (f *Fabric) Processes() []models.Process {
	out := make([]models.Process, 0, len(f.processes))
	for _, p := range f.processes {
		if p.Enabled {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Queue returns the queue behind a channel id.
func (f *Fabric) Queue(channelID int) (*Queue, bool) {
	q, ok := f.byID[channelID]
	return q, ok
}

// inbox returns the queue a worker receives from. Inbound channels on one
// queue are read directly. Several distinct queues are merged into a new
// one fed by Forward.
func (f *Fabric) inbox(process int) *Queue {
	var sources []*Queue
	seen := make(map[*Queue]bool)
	for _, r := range f.routes {
		if r.ch.Target != process || seen[r.queue] {
			continue
		}
		seen[r.queue] = true
		sources = append(sources, r.queue)
	}
	switch len(sources) {
	case 0:
		return NewQueue()
	case 1:
		return sources[0]
	}
	merged := NewQueue()
	f.feeds[merged] = sources
	return merged
}

// Forward starts one goroutine per queue merged into a worker inbox. They
// return when ctx is done; wg tracks them.
func (f *Fabric) Forward(ctx context.Context, wg *sync.WaitGroup) {
	for dst, sources := range f.feeds {
		for _, src := range sources {
			wg.Add(1)
			go func(src, dst *Queue) {
				defer wg.Done()
				for {
					msg, err := src.Get(ctx)
					if err != nil {
						return
					}
					dst.Put(msg)
				}
			}(src, dst)
		}
	}
}

// Endpoint is a process's view of the fabric.
type Endpoint struct {
	process int
	out     []route
	in      *Queue
}

// Endpoint returns the endpoint for a worker process. For the robot itself
// the inbox is empty; its inbound channels are read by monitors.
func (f *Fabric) Endpoint(process int) *Endpoint {
	ep := &Endpoint{process: process}
	for _, r := range f.routes {
		if r.ch.Source == process {
			ep.out = append(ep.out, r)
		}
	}
	in, ok := f.inboxes[process]
	if !ok {
		in = NewQueue()
	}
	ep.in = in
	return ep
}

// Process is the id this endpoint belongs to.
func (e *Endpoint) Process() int { return e.process }

// Send places msg on every outbound channel whose type carries msg.Kind()
// and returns how many channels received it. A queue shared by several
// matching channels receives the message once.
func (e *Endpoint) Send(msg rc.Message) int {
	if msg == nil {
		return 0
	}
	sent := 0
	seen := make(map[*Queue]bool, len(e.out))
	for _, r := range e.out {
		if !r.kinds.Has(msg.Kind()) || seen[r.queue] {
			continue
		}
		seen[r.queue] = true
		r.queue.Put(msg)
		sent++
	}
	return sent
}

// Receive blocks for the next inbound message.
func (e *Endpoint) Receive(ctx context.Context) (rc.Message, error) {
	return e.in.Get(ctx)
}

// Poll returns the next inbound message without blocking.
func (e *Endpoint) Poll() (rc.Message, bool) {
	return e.in.Poll()
}

// broadcast puts msg on every Send channel regardless of type.
func (f *Fabric) broadcast(msg rc.Message) int {
	sent := 0
	seen := make(map[*Queue]bool)
	for _, r := range f.routes {
		if r.ch.Direction != models.DirectionSend || seen[r.queue] {
			continue
		}
		seen[r.queue] = true
		r.queue.Put(msg)
		sent++
	}
	return sent
}

// receiveChannels returns the Receive channels targeting the robot.
func (f *Fabric) receiveChannels() []route {
	var out []route
	for _, r := range f.routes {
		if r.ch.Direction == models.DirectionReceive && r.ch.Target == models.RobotProcessID {
			out = append(out, r)
		}
	}
	return out
}
