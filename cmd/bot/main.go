package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"aralia.dev/internal/protocol"
	"aralia.dev/internal/sim/encoding"
)

// The bot walks the parent grid at random and renders the submap under every
// step, printing each digest. Two runs with the same -walk_seed against the
// same world must print the same digests.
func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "client name")
		biome    = flag.String("biome", "", "biome id to render (default: cycle through the catalog)")
		steps    = flag.Int("steps", 20, "number of parent tiles to visit")
		walkSeed = flag.Int64("walk_seed", 1, "seed of the random walk")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "bot")

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	logger.Infof("WELCOME session=%s seed=%d submap=%dx%d biomes=%d", welcome.SessionID, welcome.WorldSeed, welcome.Submap.Rows, welcome.Submap.Cols, len(welcome.Catalog.Biomes))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	w := newWalker(*walkSeed)
	for i := 0; i < *steps; i++ {
		select {
		case <-stop:
			return
		default:
		}

		id := *biome
		if id == "" && len(welcome.Catalog.Biomes) > 0 {
			id = welcome.Catalog.Biomes[i%len(welcome.Catalog.Biomes)]
		}
		p := w.step()
		req := protocol.RenderMsg{
			Type:            protocol.TypeRender,
			ProtocolVersion: protocol.Version,
			ReqID:           fmt.Sprintf("R%d", i),
			Submap:          protocol.SubmapRef{Parent: p, BiomeID: id},
		}
		if err := conn.WriteJSON(req); err != nil {
			logger.Fatalf("send RENDER: %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Fatalf("read: %v", err)
		}
		line, err := describe(msg)
		if err != nil {
			logger.WithError(err).Warn("bad response")
			continue
		}
		fmt.Printf("%s parent=(%d,%d) biome=%s %s\n", req.ReqID, p[0], p[1], id, line)
	}
}

type walker struct {
	r   *rand.Rand
	pos [2]int
}

func newWalker(seed int64) *walker {
	return &walker{r: rand.New(rand.NewSource(seed))}
}

// step moves one parent tile in a random cardinal direction.
func (w *walker) step() [2]int {
	switch w.r.Intn(4) {
	case 0:
		w.pos[1]--
	case 1:
		w.pos[1]++
	case 2:
		w.pos[0]++
	default:
		w.pos[0]--
	}
	return w.pos
}

func describe(msg []byte) (string, error) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return "", err
	}
	switch base.Type {
	case protocol.TypeSubmap:
		var sm protocol.SubmapMsg
		if err := json.Unmarshal(msg, &sm); err != nil {
			return "", err
		}
		bits, err := encoding.DecodeBits(sm.Blocked, sm.Rows*sm.Cols)
		if err != nil {
			return "", err
		}
		blocked := 0
		for _, b := range bits {
			if b {
				blocked++
			}
		}
		return fmt.Sprintf("digest=%s palette=%v blocked=%d/%d", sm.Digest, sm.Palette, blocked, len(bits)), nil
	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return "", err
		}
		return fmt.Sprintf("error=%s %s", e.Code, e.Message), nil
	default:
		return "", fmt.Errorf("unexpected %s", base.Type)
	}
}
