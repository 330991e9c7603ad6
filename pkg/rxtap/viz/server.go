package viz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/norasector/rxtap/pkg/rxtap"
	"github.com/norasector/rxtap/pkg/rxtap/block"
)

const receiveBlocks = 4

type StatusProvider interface {
	Status() rxtap.Status
}

// BlockStats is pushed to websocket clients for every block the server sees.
type BlockStats struct {
	Seq       uint64       `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
	Rows      int          `json:"rows"`
	Cols      int          `json:"cols"`
	RowMeans  []float64    `json:"row_means"`
	Status    rxtap.Status `json:"status"`
}

// Server exposes receiver status over HTTP. It is an output sink: the blocks
// it receives feed the plot and the websocket stream.
type Server struct {
	recvChan       chan *block.Block
	provider       StatusProvider
	srv            *http.Server
	updateInterval time.Duration
	plotter        *BlockPlotter
	hub            *hub
	logger         zerolog.Logger

	mu          sync.RWMutex
	latest      *block.Block
	image       []byte
	renderedSeq uint64
	lastViewed  time.Time
}

func NewServer(port int, updateInterval time.Duration, provider StatusProvider, logger zerolog.Logger) *Server {
	s := &Server{
		recvChan:       make(chan *block.Block, receiveBlocks),
		provider:       provider,
		srv:            &http.Server{Addr: fmt.Sprintf(":%d", port)},
		updateInterval: updateInterval,
		plotter:        NewBlockPlotter("rxtap"),
		hub:            newHub(logger),
		logger:         logger,
	}
	s.srv.Handler = s.Handler()
	return s
}

func (s *Server) Receive() chan<- *block.Block {
	return s.recvChan
}

func (s *Server) Start(ctx context.Context) error {
	go s.consume(ctx)
	go s.renderLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.closeAll()
		s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.srv.Addr).Msg("status server starting")
	err := s.srv.ListenAndServe()
	switch {
	case err == http.ErrServerClosed:
		return nil
	default:
		return err
	}
}

func (s *Server) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-s.recvChan:
			s.observe(b)
		}
	}
}

// observe records b as the latest block and sends its stats to websocket clients.
func (s *Server) observe(b *block.Block) {
	s.mu.Lock()
	s.latest = b
	s.mu.Unlock()

	if s.hub.count() == 0 {
		return
	}
	rows, cols := b.Dims()
	s.hub.broadcast(BlockStats{
		Seq:       b.Seq,
		Timestamp: b.Timestamp,
		Rows:      rows,
		Cols:      cols,
		RowMeans:  b.RowMeans(),
		Status:    s.provider.Status(),
	})
}

func (s *Server) renderLoop(ctx context.Context) {
	tick := time.NewTicker(s.updateInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.mu.RLock()
			viewed := time.Since(s.lastViewed) < 10*s.updateInterval
			s.mu.RUnlock()
			if viewed {
				s.render()
			}
		}
	}
}

// render plots the latest block if it has not been plotted yet.
func (s *Server) render() {
	s.mu.RLock()
	b := s.latest
	stale := b != nil && b.Seq != s.renderedSeq
	s.mu.RUnlock()
	if !stale {
		return
	}

	img, err := s.plotter.Render(b)
	if err != nil {
		s.logger.Warn().Err(err).Uint64("seq", b.Seq).Msg("error rendering block")
		return
	}

	s.mu.Lock()
	s.image = img
	s.renderedSeq = b.Seq
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler {
	handler := httprouter.New()

	handler.GET("/", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.markViewed()
		w.Header().Add("Content-Type", "text/html")
		w.Write([]byte(fmt.Sprintf(`<html><head><title>rxtap</title></head>
		<script type="text/javascript">
			window.onload = function() {
				var img = document.getElementById('block');
				setInterval(function() {
					img.src = img.src.split("?")[0] + "?" + new Date().getTime();
				}, %d);
			}
		</script>
		<body style='background-color: black'><img id="block" src="/img/block" /></body></html>`,
			s.updateInterval.Milliseconds())))
	})

	handler.GET("/status", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.provider.Status()); err != nil {
			s.logger.Warn().Err(err).Msg("error writing status")
		}
	})

	handler.GET("/img/block", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		s.markViewed()

		s.mu.RLock()
		img := s.image
		s.mu.RUnlock()

		if img == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Add("Content-Type", "image/png")
		w.Write(img)
	})

	handler.GET("/ws", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := s.hub.serve(w, r); err != nil {
			s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		}
	})

	return handler
}

func (s *Server) markViewed() {
	s.mu.Lock()
	s.lastViewed = time.Now()
	s.mu.Unlock()
}

type client struct {
	conn *websocket.Conn
	send chan interface{}
}

func (c *client) writePump(done func()) {
	defer done()
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards client messages and notices disconnects.
func (c *client) readPump(done func()) {
	defer done()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

type hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func newHub(logger zerolog.Logger) *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, send: make(chan interface{}, 16)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	remove := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		})
	}

	go c.writePump(remove)
	go c.readPump(remove)
	return nil
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast queues msg for every client, dropping it for clients that are behind.
func (h *hub) broadcast(msg interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("websocket client behind, dropping message")
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
