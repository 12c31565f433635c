package device

import (
	"sync"

	"Aetherlink/pkg/async"
)

// NetworkConfig wires every node of a Network to the shared medium it
// listens on and the one it transmits into.
type NetworkConfig[BufferIDType comparable] []struct {
	In  BufferIDType
	Out BufferIDType
}

// Network simulates several devices sharing acoustic media. Everything the
// nodes writing to a medium play during one period is summed and heard by
// the nodes listening on it during the next period.
type Network[BufferIDType comparable] struct {
	SampleRate float64                     // the fake sample rate, 0 means no limit
	Config     NetworkConfig[BufferIDType] // the topology of the network
	LateUpdate func()                      // the post process function

	mu      sync.Mutex
	buffers map[BufferIDType][]int32
	nodes   []*NetworkNode[BufferIDType]
	running int
	done    chan struct{}
	stopped <-chan struct{}
}

// NetworkNode is one Device attached to a Network.
type NetworkNode[BufferIDType comparable] struct {
	network  *Network[BufferIDType]
	input    []int32
	output   []int32
	callback func([]int32, []int32)
}

// Build allocates the media and returns one node per Config entry.
func (n *Network[BufferIDType]) Build() []*NetworkNode[BufferIDType] {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.buffers = make(map[BufferIDType][]int32)
	n.nodes = nil
	for _, nodeConfig := range n.Config {
		n.nodes = append(n.nodes, &NetworkNode[BufferIDType]{
			network: n,
			input:   n.buffer(nodeConfig.In),
			output:  alloci32(BufferSize),
		})
	}
	return n.nodes
}

// Stop detaches every node at once and halts the shared clock.
func (n *Network[BufferIDType]) Stop() {
	n.mu.Lock()
	for _, d := range n.nodes {
		d.callback = nil
	}
	n.running = 0
	done, stopped := n.done, n.stopped
	n.done, n.stopped = nil, nil
	n.mu.Unlock()

	if done != nil {
		close(done)
		<-stopped
	}
}

// Buffer returns the current content of a medium.
func (n *Network[BufferIDType]) Buffer(name BufferIDType) []int32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int32(nil), n.buffer(name)...)
}

func (n *Network[BufferIDType]) buffer(name BufferIDType) []int32 {
	buf, ok := n.buffers[name]
	if !ok {
		buf = alloci32(BufferSize)
		n.buffers[name] = buf
	}
	return buf
}

func (n *Network[BufferIDType]) update() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, d := range n.nodes {
		if d.callback != nil {
			d.callback(d.input, d.output)
		} else {
			clear(d.output)
		}
	}

	// clear the buffers
	for _, buf := range n.buffers {
		clear(buf)
	}

	// sum up the output of all the devices to the input buffer
	for i, nodeConfig := range n.Config {
		buf := n.buffers[nodeConfig.Out]
		sumi32(buf, n.nodes[i].output, buf)
	}

	if n.LateUpdate != nil {
		n.LateUpdate()
	}
}

// Start attaches callback to the node. The shared clock runs while at
// least one node is started.
func (d *NetworkNode[BufferIDType]) Start(callback func([]int32, []int32)) error {
	n := d.network
	n.mu.Lock()
	defer n.mu.Unlock()

	if d.callback != nil {
		return ErrAlreadyStarted
	}
	d.callback = callback
	n.running++
	if n.running == 1 {
		done := make(chan struct{})
		n.done = done
		n.stopped = async.Job(func() { tick(done, n.SampleRate, n.update) })
	}
	return nil
}

// Stop detaches the node. The last node to stop halts the shared clock.
func (d *NetworkNode[BufferIDType]) Stop() error {
	n := d.network
	n.mu.Lock()
	if d.callback == nil {
		n.mu.Unlock()
		return ErrNotStarted
	}
	d.callback = nil
	n.running--
	var done chan struct{}
	var stopped <-chan struct{}
	if n.running == 0 {
		done, stopped = n.done, n.stopped
		n.done, n.stopped = nil, nil
	}
	n.mu.Unlock()

	if done != nil {
		close(done)
		<-stopped
	}
	return nil
}
