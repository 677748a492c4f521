package telemetry

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/gwillem/pickplace/internal/log"
)

// Bus is a network publish/subscribe channel for telemetry. Publish only
// enqueues; one goroutine owns the latest-value store and the websocket
// fan-out. HTTP clients query values by name, websocket clients stream them.
type Bus struct {
	app *fiber.App

	in         chan Sample
	register   chan *client
	unregister chan *client
	done       chan struct{}
	closeOnce  sync.Once

	run     atomic.Value // string
	dropped atomic.Uint64

	lnMu    sync.Mutex
	ln      net.Listener
	stopped bool

	mu     sync.RWMutex
	latest map[string]Sample
}

// NewBus creates a bus and starts its fan-out goroutine.
func NewBus() *Bus {
	b := &Bus{
		in:         make(chan Sample, 1024),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		latest:     make(map[string]Sample),
	}
	b.run.Store("")

	app := fiber.New(fiber.Config{
		AppName:               "pickplace telemetry",
		DisableStartupMessage: true,
	})

	api := app.Group("/api")
	api.Get("/telemetry", b.handleSnapshot)
	api.Get("/telemetry/*", b.handleValue)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/telemetry", websocket.New(func(conn *websocket.Conn) {
		c := &client{bus: b, conn: conn, send: make(chan []byte, clientBuffer)}
		c.serve()
	}))

	b.app = app
	go b.loop()
	return b
}

// App returns the HTTP application, mainly for tests.
func (b *Bus) App() *fiber.App {
	return b.app
}

// ErrClosed is returned when starting a bus that was already shut down.
var ErrClosed = errors.New("telemetry bus closed")

// listen binds addr unless the bus was shut down first.
func (b *Bus) listen(addr string) (net.Listener, error) {
	b.lnMu.Lock()
	defer b.lnMu.Unlock()

	if b.stopped {
		return nil, ErrClosed
	}
	if b.ln != nil {
		return nil, errors.New("telemetry bus already listening")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	b.ln = ln
	log.Info("telemetry bus listening", "addr", ln.Addr().String())
	return ln, nil
}

// Start serves HTTP on addr. It blocks until Shutdown.
func (b *Bus) Start(addr string) error {
	ln, err := b.listen(addr)
	if err != nil {
		return err
	}
	return b.app.Listener(ln)
}

// StartAsync binds addr and serves HTTP in a goroutine. Bind errors are
// returned; the port is open once StartAsync returns.
func (b *Bus) StartAsync(addr string) error {
	ln, err := b.listen(addr)
	if err != nil {
		return err
	}
	go func() {
		if err := b.app.Listener(ln); err != nil {
			log.Warn("telemetry bus stopped", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (b *Bus) Addr() net.Addr {
	b.lnMu.Lock()
	defer b.lnMu.Unlock()
	if b.ln == nil {
		return nil
	}
	return b.ln.Addr()
}

// Shutdown stops the HTTP server and the fan-out goroutine. A bus shut
// down before Start never listens.
func (b *Bus) Shutdown() error {
	b.closeOnce.Do(func() { close(b.done) })

	b.lnMu.Lock()
	b.stopped = true
	ln := b.ln
	b.lnMu.Unlock()

	if ln == nil {
		return nil
	}
	// Closing the listener stops a server that has not started accepting yet.
	ln.Close()
	if err := b.app.Shutdown(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// SetRun implements RunSetter.
func (b *Bus) SetRun(id string) {
	b.run.Store(id)
}

// Publish implements Sink. Samples are dropped when the queue is full.
func (b *Bus) Publish(name string, value float64) {
	s := Sample{Run: b.run.Load().(string), Name: name, Value: value, Time: time.Now()}
	select {
	case b.in <- s:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many samples were lost to a full queue.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Latest returns the newest sample published under name.
func (b *Bus) Latest(name string) (Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.latest[name]
	return s, ok
}

// Snapshot returns the newest sample of every name.
func (b *Bus) Snapshot() map[string]Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Sample, len(b.latest))
	for k, v := range b.latest {
		out[k] = v
	}
	return out
}

func (b *Bus) loop() {
	clients := make(map[*client]bool)
	defer func() {
		for c := range clients {
			close(c.send)
		}
	}()

	for {
		select {
		case <-b.done:
			return

		case c := <-b.register:
			clients[c] = true
			log.Debug("telemetry subscriber connected", "total", len(clients))

		case c := <-b.unregister:
			if clients[c] {
				delete(clients, c)
				close(c.send)
			}
			log.Debug("telemetry subscriber disconnected", "total", len(clients))

		case s := <-b.in:
			b.mu.Lock()
			b.latest[s.Name] = s
			b.mu.Unlock()

			if len(clients) == 0 {
				continue
			}
			data, err := json.Marshal(s)
			if err != nil {
				continue
			}
			for c := range clients {
				select {
				case c.send <- data:
				default:
					// Too slow; drop the subscriber rather than the control loop
					close(c.send)
					delete(clients, c)
					log.Warn("dropped slow telemetry subscriber")
				}
			}
		}
	}
}

func (b *Bus) handleSnapshot(c *fiber.Ctx) error {
	return c.JSON(b.Snapshot())
}

func (b *Bus) handleValue(c *fiber.Ctx) error {
	name := c.Params("*")
	s, ok := b.Latest(name)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown telemetry key: "+name)
	}
	return c.JSON(s)
}
